package aof

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"go.miragespace.co/keyval/kv/memory"
	"go.miragespace.co/keyval/spec/ring"

	"github.com/tidwall/wal"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// LogDir is the directory under DataDir holding the log segments
const LogDir = "wal"

var (
	errNoLogger        = errors.New("aof: Logger is required")
	errNoHashFn        = errors.New("aof: HashFn is required")
	errNoDataDir       = errors.New("aof: DataDir is required")
	errBadFlushPeriod  = errors.New("aof: FlushInterval must be positive")
	defaultWalSettings = wal.Options{
		SegmentSize:      4 << 20,
		SegmentCacheSize: 2,
		LogFormat:        wal.Binary,
		NoSync:           true,
		NoCopy:           true,
	}
)

type Config struct {
	Logger        *zap.Logger
	HashFn        ring.HashFn
	DataDir       string
	FlushInterval time.Duration
}

func (c Config) validate() error {
	switch {
	case c.Logger == nil:
		return errNoLogger
	case c.HashFn == nil:
		return errNoHashFn
	case c.DataDir == "":
		return errNoDataDir
	case c.FlushInterval <= 0:
		return errBadFlushPeriod
	}
	return nil
}

type result struct {
	value []byte
	count int
	err   error
}

type pending struct {
	mut  *mutation
	done chan result
}

// DiskKV keeps the dataset in memory and makes it durable by appending each
// mutation to a log before applying it. A single writer goroutine, run by
// Start, owns the log; reads go straight to memory.
type DiskKV struct {
	logger   *zap.Logger
	state    *memory.MemoryKV
	log      *wal.Log
	interval time.Duration

	// next log index, owned by the writer
	next uint64

	barrier sync.RWMutex
	closed  *atomic.Bool
	queue   chan *pending
	stop    chan struct{}
	stopped sync.WaitGroup
}

var _ ring.KVProvider = (*DiskKV)(nil)

// New opens the log under cfg.DataDir and replays it into memory
func New(cfg Config) (*DiskKV, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := defaultWalSettings
	l, err := wal.Open(filepath.Join(cfg.DataDir, LogDir), &opts)
	if err != nil {
		return nil, fmt.Errorf("opening log: %w", err)
	}

	d := &DiskKV{
		logger:   cfg.Logger.With(zap.String("component", "aof")),
		state:    memory.WithHashFn(cfg.HashFn),
		log:      l,
		interval: cfg.FlushInterval,
		closed:   atomic.NewBool(false),
		queue:    make(chan *pending),
		stop:     make(chan struct{}),
	}
	if err := d.replayLogs(); err != nil {
		l.Close()
		return nil, err
	}
	d.stopped.Add(1)

	d.logger.Info("Using append only log for kv storage",
		zap.String("dir", cfg.DataDir),
		zap.Int("keys", d.state.Len()),
	)
	return d, nil
}

// Start runs the writer until Stop is called. Mutations block until Start is
// running.
func (d *DiskKV) Start() {
	defer d.stopped.Done()

	flush := time.NewTicker(d.interval)
	defer flush.Stop()

	dirty := false
	for {
		select {
		case <-d.stop:
			return
		case <-flush.C:
			if dirty {
				d.sync("periodic")
				dirty = false
			}
		case p := <-d.queue:
			res, wrote := d.apply(p.mut)
			dirty = dirty || wrote
			p.done <- res
		}
	}
}

// apply logs then applies one mutation, reporting whether the log was written
func (d *DiskKV) apply(mut *mutation) (result, bool) {
	if d.skippable(mut) {
		return result{}, false
	}
	if err := d.appendLog(mut); err != nil {
		return result{err: fs.ErrInvalid}, false
	}
	res := d.handleMutation(mut)
	if res.err != nil {
		d.rollbackOne(mut, res.err)
	}
	return res, true
}

func (d *DiskKV) sync(reason string) {
	if err := d.log.Sync(); err != nil {
		d.logger.Error("Error flushing log", zap.String("reason", reason), zap.Error(err))
	}
}

// Stop waits for in flight mutations, then flushes and closes the log. Later
// mutations fail with fs.ErrClosed.
func (d *DiskKV) Stop() {
	d.barrier.Lock()
	defer d.barrier.Unlock()

	if !d.closed.CompareAndSwap(false, true) {
		return
	}
	close(d.stop)
	d.stopped.Wait()

	d.sync("shutdown")
	if err := d.log.Close(); err != nil {
		d.logger.Error("Error closing log", zap.Error(err))
	}
}
