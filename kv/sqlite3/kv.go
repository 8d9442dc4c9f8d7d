package sqlite3

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.miragespace.co/keyval/spec/ring"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"moul.io/zapgorm2"
)

// Entry is one key. Hash is the ring position of Key, stored order preserving
// so range scans can use the index.
type Entry struct {
	Key   []byte `gorm:"primaryKey"`
	Hash  int64  `gorm:"index:idx_entries_hash,sort:asc;not null"`
	Value []byte `gorm:"not null"`
}

type Config struct {
	Logger  *zap.Logger
	HashFn  ring.HashFn
	DataDir string
}

func (c Config) validate() error {
	switch {
	case c.Logger == nil:
		return errors.New("sqlite3: Logger is required")
	case c.HashFn == nil:
		return errors.New("sqlite3: HashFn is required")
	case c.DataDir == "":
		return errors.New("sqlite3: DataDir is required")
	}
	return nil
}

// SqliteKV stores keys in a single sqlite table. Writes go through one
// connection and reads through a pool, relying on WAL for concurrency.
type SqliteKV struct {
	logger *zap.Logger
	hashFn ring.HashFn
	reader *gorm.DB
	writer *gorm.DB
}

var _ ring.KVProvider = (*SqliteKV)(nil)

func connect(logger *zap.Logger, dbPath string, readOnly bool, conns int) (*gorm.DB, error) {
	gl := zapgorm2.New(logger)
	gl.IgnoreRecordNotFoundError = true
	gl.SlowThreshold = 500 * time.Millisecond

	db, err := gorm.Open(openSQLite(logger, dbPath, readOnly), &gorm.Config{
		Logger:         gl,
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	pool, err := db.DB()
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(conns)
	return db, nil
}

func New(cfg Config) (*SqliteKV, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	dir := filepath.Join(cfg.DataDir, "sqlite3")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	dbPath := filepath.Join(dir, "keyval.db")

	// a single writer avoids SQLITE_BUSY between our own connections
	writer, err := connect(cfg.Logger, dbPath, false, 1)
	if err != nil {
		return nil, fmt.Errorf("opening writer: %w", err)
	}
	if err := writer.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	reader, err := connect(cfg.Logger, dbPath, true, max(4, runtime.NumCPU()))
	if err != nil {
		return nil, fmt.Errorf("opening reader: %w", err)
	}

	cfg.Logger.Info("Using sqlite3 for kv storage", zap.String("path", dbPath))

	return &SqliteKV{
		logger: cfg.Logger,
		hashFn: cfg.HashFn,
		reader: reader,
		writer: writer,
	}, nil
}

func (s *SqliteKV) Close() error {
	var err error
	for _, g := range []*gorm.DB{s.reader, s.writer} {
		db, dbErr := g.DB()
		if dbErr != nil {
			err = multierr.Append(err, dbErr)
			continue
		}
		err = multierr.Append(err, db.Close())
	}
	return err
}
