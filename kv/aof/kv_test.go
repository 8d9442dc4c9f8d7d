package aof

import (
	"context"
	"crypto/rand"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.miragespace.co/keyval/spec/ring"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T, dir string) Config {
	return Config{
		Logger:        zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller())),
		HashFn:        ring.HashKey,
		DataDir:       dir,
		FlushInterval: time.Millisecond * 500,
	}
}

func TestConfigValidate(t *testing.T) {
	as := require.New(t)

	_, err := New(Config{})
	as.Error(err)

	cfg := testConfig(t, t.TempDir())
	cfg.FlushInterval = 0
	_, err = New(cfg)
	as.Error(err)
}

func TestStartStop(t *testing.T) {
	as := require.New(t)

	cfg := testConfig(t, t.TempDir())

	kv, err := New(cfg)
	as.NoError(err)
	go kv.Start()

	key := make([]byte, 8)
	value := make([]byte, 16)

	rand.Read(key)
	rand.Read(value)

	_, err = kv.Put(context.Background(), key, value)
	as.NoError(err)

	kv.Stop()

	kv, err = New(cfg)
	as.NoError(err)
	go kv.Start()

	val, err := kv.Get(context.Background(), key)
	as.NoError(err)
	as.Equal(value, val)

	rand.Read(key)
	rand.Read(value)

	_, err = kv.Put(context.Background(), key, value)
	as.NoError(err)

	kv.Stop()

	kv, err = New(cfg)
	as.NoError(err)
	go kv.Start()
	defer kv.Stop()

	val, err = kv.Get(context.Background(), key)
	as.NoError(err)
	as.Equal(value, val)
}

func TestEverything(t *testing.T) {
	as := require.New(t)
	ctx := context.Background()

	cfg := testConfig(t, t.TempDir())

	kv, err := New(cfg)
	as.NoError(err)
	go kv.Start()

	for i := 0; i < 64; i++ {
		k := []byte(fmt.Sprintf("key-%d", i))
		_, err := kv.Put(ctx, k, k)
		as.NoError(err)
	}

	removed, err := kv.Delete(ctx, []byte("key-0"))
	as.NoError(err)
	as.Equal([]byte("key-0"), removed)

	removed, err = kv.Delete(ctx, []byte("key-0"))
	as.NoError(err)
	as.Nil(removed)

	r := ring.Span(1<<63, 1<<62)
	inRange, err := kv.ScanByHashRange(ctx, r)
	as.NoError(err)
	count, err := kv.DeleteByHashRange(ctx, r)
	as.NoError(err)
	as.Equal(len(inRange), count)

	time.Sleep(cfg.FlushInterval * 2)

	snapshot1, err := kv.ScanAll(ctx)
	as.NoError(err)
	as.Len(snapshot1, 63-count)

	kv.Stop()

	// mutations after close should error
	_, err = kv.Put(ctx, []byte("a"), []byte("b"))
	as.ErrorIs(err, fs.ErrClosed)
	_, err = kv.Delete(ctx, []byte("a"))
	as.ErrorIs(err, fs.ErrClosed)
	_, err = kv.DeleteByHashRange(ctx, r)
	as.ErrorIs(err, fs.ErrClosed)

	kv.Stop() // no-op

	kv, err = New(cfg)
	as.NoError(err)
	go kv.Start()
	defer kv.Stop()

	snapshot2, err := kv.ScanAll(ctx)
	as.NoError(err)
	as.Equal(snapshot1, snapshot2)

	val, err := kv.Get(ctx, []byte("key-0"))
	as.NoError(err)
	as.Nil(val)
}

func TestCanceledMutation(t *testing.T) {
	as := require.New(t)

	kv, err := New(testConfig(t, t.TempDir()))
	as.NoError(err)

	// the writer is not running, so the queue never drains
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = kv.Put(ctx, []byte("k"), []byte("v"))
	as.ErrorIs(err, context.DeadlineExceeded)

	go kv.Start()
	kv.Stop()
}

func TestMutationCodec(t *testing.T) {
	as := require.New(t)

	muts := []mutation{
		{Type: mutationPut, Key: []byte("k"), Value: []byte("v")},
		{Type: mutationPut, Key: []byte("k"), Value: []byte{}},
		{Type: mutationDelete, Key: []byte("k")},
		{Type: mutationDeleteRange, Range: ring.Span(10, 5)},
		{Type: mutationDeleteRange, Range: ring.HashRange{Upper: ring.At(7)}},
		{Type: mutationDeleteRange, Range: ring.HashRange{Lower: ring.At(1 << 63)}},
	}
	for _, m := range muts {
		t.Run(m.Type.String()+" "+m.Range.String(), func(t *testing.T) {
			version, data, err := unmarshalEntry(marshalEntry(logVersionV1, m.marshal()))
			as.NoError(err)
			as.Equal(logVersionV1, version)

			var got mutation
			as.NoError(got.unmarshal(data))
			as.Equal(m.Type, got.Type)
			as.Equal(m.Range, got.Range)
			as.Equal(string(m.Key), string(got.Key))
			as.Equal(string(m.Value), string(got.Value))
		})
	}

	var bad mutation
	as.Error(bad.unmarshal([]byte{0x08, 0x09}))
	as.Error(bad.unmarshal([]byte{0x12, 0x05, 'a'}))
}

func TestCorruptedLog(t *testing.T) {
	as := require.New(t)

	dir := t.TempDir()
	cfg := testConfig(t, dir)

	kv, err := New(cfg)
	as.NoError(err)
	go kv.Start()

	_, err = kv.Put(context.Background(), []byte("key"), []byte("value"))
	as.NoError(err)

	kv.Stop()

	files, err := os.ReadDir(filepath.Join(dir, LogDir))
	as.NoError(err)
	as.NotEmpty(files)

	name := filepath.Join(filepath.Join(dir, LogDir), files[0].Name())
	buf, err := os.ReadFile(name)
	as.NoError(err)
	t.Log(buf)

	// length prefix, then the version tag and its value
	as.Equal(byte(0x08), buf[1])
	buf[2] = 0x7f
	as.NoError(os.WriteFile(name, buf, 0o644))

	_, err = New(cfg)
	as.Error(err)
}
