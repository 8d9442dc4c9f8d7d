package sqlite3

import (
	"fmt"
	"net/url"
	"runtime"
	"sync"

	"github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/gormlite"
	"github.com/ncruces/go-sqlite3/vfs"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"golang.org/x/sys/cpu"
	"gorm.io/gorm"
)

// 64KiB pages, 32MiB total
const memoryLimitPages = 512

var (
	initOnce sync.Once
	initErr  error
)

// useCompiler reports whether wazero can compile sqlite ahead of time on this
// platform instead of interpreting it
func useCompiler() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpu.X86.HasSSE41
	case "arm64":
		return runtime.GOOS != "openbsd" && runtime.GOOS != "plan9"
	default:
		return false
	}
}

// Initialize sets up the wasm runtime shared by every database, caching
// compiled modules under cacheDir. Only the first call has any effect.
func Initialize(cacheDir string) error {
	initOnce.Do(func() {
		cache, err := wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			initErr = fmt.Errorf("creating compilation cache: %w", err)
			return
		}
		cfg := wazero.NewRuntimeConfigInterpreter()
		if useCompiler() {
			cfg = wazero.NewRuntimeConfigCompiler()
		}
		sqlite3.RuntimeConfig = cfg.
			WithMemoryLimitPages(memoryLimitPages).
			WithCompilationCache(cache)

		initErr = sqlite3.Initialize()
	})
	return initErr
}

// openSQLite returns a dialector for dbPath. Readers are opened with
// query_only and leave the journal mode to the writer, which persists it.
func openSQLite(logger *zap.Logger, dbPath string, readOnly bool) gorm.Dialector {
	logger.Debug("Opening sqlite database",
		zap.String("path", dbPath),
		zap.Bool("readOnly", readOnly),
		zap.Bool("compiler", useCompiler()),
		zap.Bool("lock", vfs.SupportsFileLocking),
		zap.Bool("shm", vfs.SupportsSharedMemory),
	)

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	if readOnly {
		q.Add("_pragma", "query_only(1)")
	} else {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
		q.Set("_txlock", "immediate")
	}
	return gormlite.Open("file:" + dbPath + "?" + q.Encode())
}
