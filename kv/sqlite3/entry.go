package sqlite3

import (
	"context"
	"errors"
	"math"

	"go.miragespace.co/keyval/spec/ring"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// sqlite integers are signed, so hashes are stored with the sign bit flipped
// to keep their order
func ordered(h uint64) int64 {
	return int64(h ^ (1 << 63))
}

func nonNil(v []byte) []byte {
	// errata: gorm library doesn't distinguish between nil and empty byte slice
	if v == nil {
		return []byte{}
	}
	return v
}

func (s *SqliteKV) Put(ctx context.Context, key []byte, value []byte) ([]byte, error) {
	entry := &Entry{
		Key:   key,
		Hash:  ordered(s.hashFn(key)),
		Value: nonNil(value),
	}

	err := s.writer.
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value"}),
		}).
		Create(entry).Error
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

func (s *SqliteKV) Get(ctx context.Context, key []byte) ([]byte, error) {
	entry := &Entry{}
	resp := s.reader.WithContext(ctx).Select("value").Where("key = ?", key).Take(entry)
	if resp.Error != nil {
		if errors.Is(resp.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, resp.Error
	}
	return nonNil(entry.Value), nil
}

func (s *SqliteKV) Delete(ctx context.Context, key []byte) ([]byte, error) {
	var removed []byte

	err := s.writer.
		WithContext(ctx).
		Transaction(func(tx *gorm.DB) error {
			entry := &Entry{}
			if err := tx.Where("key = ?", key).Take(entry).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return err
			}
			if err := tx.Where("key = ?", key).Delete(&Entry{}).Error; err != nil {
				return err
			}
			removed = nonNil(entry.Value)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *SqliteKV) ScanAll(ctx context.Context) (map[string][]byte, error) {
	return s.ScanByHashRange(ctx, ring.Everything)
}

func (s *SqliteKV) ScanByHashRange(ctx context.Context, r ring.HashRange) (map[string][]byte, error) {
	data := make(map[string][]byte)
	batches := make([]Entry, 0)

	tx := s.reader.WithContext(ctx)
	err := withRange(tx.Model(&Entry{}), tx, r).
		FindInBatches(&batches, 100, func(_ *gorm.DB, _ int) error {
			for _, entry := range batches {
				data[string(entry.Key)] = nonNil(entry.Value)
			}
			return nil
		}).Error
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *SqliteKV) DeleteByHashRange(ctx context.Context, r ring.HashRange) (int, error) {
	tx := s.writer.WithContext(ctx)
	cond := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	resp := withRange(cond, tx, r).Delete(&Entry{})
	if resp.Error != nil {
		return 0, resp.Error
	}
	return int(resp.RowsAffected), nil
}

// withRange narrows q to the entries whose hash falls in r, following the
// same wrap around rules as ring.HashRange.Contains
func withRange(q, tx *gorm.DB, r ring.HashRange) *gorm.DB {
	upperOp := "hash <= ?"
	if !r.InclusiveUpper {
		upperOp = "hash < ?"
	}

	switch {
	case r.Lower.Set && r.Upper.Set:
		lower, upper := ordered(r.Lower.Value), ordered(r.Upper.Value)
		if upper > lower {
			return q.Where(
				tx.Where("hash > ?", lower).Where(upperOp, upper),
			)
		}
		return q.Where(
			tx.Where("hash > ?", lower).Or(upperOp, upper),
		)
	case r.Upper.Set:
		return q.Where(upperOp, ordered(r.Upper.Value))
	case r.Lower.Set:
		return q.Where("hash > ?", ordered(r.Lower.Value))
	default:
		return q.Where("hash >= ?", int64(math.MinInt64))
	}
}
