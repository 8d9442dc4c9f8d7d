package memory

import (
	"bytes"
	"context"

	"go.miragespace.co/keyval/spec/ring"

	"github.com/zhangyunhao116/skipmap"
)

// MemoryKV keeps keys grouped by their hash, so range scans walk the hash
// space in order instead of re-hashing every key.
type MemoryKV struct {
	s      *skipmap.Uint64Map[*skipmap.StringMap[[]byte]]
	hashFn ring.HashFn
}

var _ ring.KVProvider = (*MemoryKV)(nil)

func newInnerMapFunc() *skipmap.StringMap[[]byte] {
	return skipmap.NewString[[]byte]()
}

func WithHashFn(fn ring.HashFn) *MemoryKV {
	return &MemoryKV{
		s:      skipmap.NewUint64[*skipmap.StringMap[[]byte]](),
		hashFn: fn,
	}
}

func (m *MemoryKV) Get(_ context.Context, key []byte) ([]byte, error) {
	kMap, ok := m.s.Load(m.hashFn(key))
	if !ok {
		return nil, nil
	}
	v, ok := kMap.Load(string(key))
	if !ok {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (m *MemoryKV) Put(_ context.Context, key, value []byte) ([]byte, error) {
	if value == nil {
		value = []byte{}
	}
	kMap, _ := m.s.LoadOrStoreLazy(m.hashFn(key), newInnerMapFunc)
	kMap.Store(string(key), bytes.Clone(value))
	return value, nil
}

func (m *MemoryKV) Delete(_ context.Context, key []byte) ([]byte, error) {
	kMap, ok := m.s.Load(m.hashFn(key))
	if !ok {
		return nil, nil
	}
	v, loaded := kMap.LoadAndDelete(string(key))
	if !loaded {
		return nil, nil
	}
	return v, nil
}

func (m *MemoryKV) ScanAll(ctx context.Context) (map[string][]byte, error) {
	return m.ScanByHashRange(ctx, ring.Everything)
}

func (m *MemoryKV) ScanByHashRange(ctx context.Context, r ring.HashRange) (map[string][]byte, error) {
	data := make(map[string][]byte)
	m.s.Range(func(id uint64, kMap *skipmap.StringMap[[]byte]) bool {
		if !r.Contains(id) {
			return true
		}
		kMap.Range(func(key string, v []byte) bool {
			data[key] = bytes.Clone(v)
			return true
		})
		return ctx.Err() == nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return data, nil
}

func (m *MemoryKV) DeleteByHashRange(ctx context.Context, r ring.HashRange) (int, error) {
	removed := 0
	m.s.Range(func(id uint64, kMap *skipmap.StringMap[[]byte]) bool {
		if !r.Contains(id) {
			return true
		}
		keys := make([]string, 0, kMap.Len())
		kMap.Range(func(key string, _ []byte) bool {
			keys = append(keys, key)
			return true
		})
		for _, key := range keys {
			if _, loaded := kMap.LoadAndDelete(key); loaded {
				removed++
			}
		}
		return ctx.Err() == nil
	})
	return removed, ctx.Err()
}

// Len returns the number of keys stored
func (m *MemoryKV) Len() int {
	n := 0
	m.s.Range(func(_ uint64, kMap *skipmap.StringMap[[]byte]) bool {
		n += kMap.Len()
		return true
	})
	return n
}
