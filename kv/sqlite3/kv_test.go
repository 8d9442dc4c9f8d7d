package sqlite3

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"sync"
	"testing"

	"go.miragespace.co/keyval/spec/ring"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func testGetKV(t *testing.T) *SqliteKV {
	t.Helper()

	as := require.New(t)
	logger := zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller()))

	cfg := Config{
		Logger:  logger,
		HashFn:  ring.HashKey,
		DataDir: t.TempDir(),
	}

	kv, err := New(cfg)
	as.NoError(err)

	t.Cleanup(func() {
		kv.Close()
	})

	return kv
}

func TestOrdered(t *testing.T) {
	as := require.New(t)

	values := []uint64{0, 1, 1 << 62, 1<<63 - 1, 1 << 63, 1<<63 + 1, math.MaxUint64}
	for i := 1; i < len(values); i++ {
		as.Less(ordered(values[i-1]), ordered(values[i]))
	}
	as.Equal(int64(math.MinInt64), ordered(0))
	as.Equal(int64(math.MaxInt64), ordered(math.MaxUint64))
}

func TestAllKeys(t *testing.T) {
	as := require.New(t)
	kv := testGetKV(t)

	key := make([]byte, 64)
	value := make([]byte, 8)

	num := 1000
	for i := 0; i < num; i++ {
		rand.Read(key)
		rand.Read(value)
		_, err := kv.Put(context.Background(), key, value)
		as.NoError(err)
	}

	all, err := kv.ScanAll(context.Background())
	as.NoError(err)
	as.Len(all, num)
}

func TestLocalOperations(t *testing.T) {
	as := require.New(t)
	kv := testGetKV(t)
	ctx := context.Background()

	val, err := kv.Get(ctx, []byte("missing"))
	as.NoError(err)
	as.Nil(val)

	val, err = kv.Put(ctx, []byte("k"), []byte("v1"))
	as.NoError(err)
	as.Equal([]byte("v1"), val)

	_, err = kv.Put(ctx, []byte("k"), []byte("v2"))
	as.NoError(err)

	val, err = kv.Get(ctx, []byte("k"))
	as.NoError(err)
	as.Equal([]byte("v2"), val)

	val, err = kv.Delete(ctx, []byte("k"))
	as.NoError(err)
	as.Equal([]byte("v2"), val)

	val, err = kv.Delete(ctx, []byte("k"))
	as.NoError(err)
	as.Nil(val)

	_, err = kv.Put(ctx, []byte("empty"), nil)
	as.NoError(err)
	val, err = kv.Get(ctx, []byte("empty"))
	as.NoError(err)
	as.NotNil(val)
	as.Len(val, 0)
}

func TestHashRange(t *testing.T) {
	as := require.New(t)
	kv := testGetKV(t)
	ctx := context.Background()

	hashes := make(map[string]uint64)
	for i := 0; i < 256; i++ {
		key := fmt.Sprintf("key-%d", i)
		hashes[key] = ring.Hash(key)
		_, err := kv.Put(ctx, []byte(key), []byte(key))
		as.NoError(err)
	}

	ranges := []ring.HashRange{
		ring.Everything,
		ring.Span(1<<62, 1<<63),
		ring.Span(1<<63, 1<<62),
		ring.Span(1<<62, 1<<62),
		{Lower: ring.At(1 << 61), Upper: ring.At(3 << 62)},
		{Upper: ring.At(1 << 60), InclusiveUpper: true},
		{Upper: ring.At(1 << 63)},
		{Lower: ring.At(3 << 62)},
	}

	for _, r := range ranges {
		t.Run(r.String(), func(t *testing.T) {
			as := require.New(t)

			expected := make(map[string][]byte)
			for key, h := range hashes {
				if r.Contains(h) {
					expected[key] = []byte(key)
				}
			}
			scanned, err := kv.ScanByHashRange(ctx, r)
			as.NoError(err)
			as.Equal(expected, scanned)
		})
	}

	r := ring.Span(3<<62, 1<<61)
	scanned, err := kv.ScanByHashRange(ctx, r)
	as.NoError(err)
	removed, err := kv.DeleteByHashRange(ctx, r)
	as.NoError(err)
	as.Equal(len(scanned), removed)

	left, err := kv.ScanByHashRange(ctx, r)
	as.NoError(err)
	as.Empty(left)

	all, err := kv.ScanAll(ctx)
	as.NoError(err)
	as.Len(all, len(hashes)-removed)

	removed, err = kv.DeleteByHashRange(ctx, ring.Everything)
	as.NoError(err)
	as.Equal(len(all), removed)
}

func TestReopen(t *testing.T) {
	as := require.New(t)
	dir := t.TempDir()
	ctx := context.Background()

	cfg := Config{
		Logger:  zaptest.NewLogger(t),
		HashFn:  ring.HashKey,
		DataDir: dir,
	}

	kv, err := New(cfg)
	as.NoError(err)
	_, err = kv.Put(ctx, []byte("persist"), []byte("me"))
	as.NoError(err)
	as.NoError(kv.Close())

	kv, err = New(cfg)
	as.NoError(err)
	defer kv.Close()

	val, err := kv.Get(ctx, []byte("persist"))
	as.NoError(err)
	as.Equal([]byte("me"), val)
}

func TestConcurrentOps(t *testing.T) {
	kv := testGetKV(t)
	as := require.New(t)

	keys := make([][]byte, 8)
	for i := range keys {
		keys[i] = make([]byte, 8)
		rand.Read(keys[i])
	}

	var wg sync.WaitGroup
	const numGoroutines = 20

	testOperations := func(ctx context.Context, key []byte, id int) {
		defer wg.Done()

		_, err := kv.Put(ctx, key, []byte(fmt.Sprintf("data-%d", id)))
		as.NoError(err)

		_, err = kv.Get(ctx, key)
		as.NoError(err)

		_, err = kv.Delete(ctx, key)
		as.NoError(err)
	}

	ctx := context.Background()
	for i := 0; i < numGoroutines; i++ {
		for _, key := range keys {
			wg.Add(1)
			go testOperations(ctx, key, i)
		}
	}

	wg.Wait()

	for _, key := range keys {
		resp := kv.reader.Where("key = ?", key).Take(&Entry{})
		as.ErrorIs(resp.Error, gorm.ErrRecordNotFound)
	}
}
