package server

import (
	"fmt"
	"path/filepath"
	"time"

	"go.miragespace.co/keyval/kv/aof"
	"go.miragespace.co/keyval/kv/memory"
	"go.miragespace.co/keyval/kv/sqlite3"
	"go.miragespace.co/keyval/spec/ring"

	"go.uber.org/zap"
)

var engines = []string{"memory", "aof", "sqlite"}

func noop() {}

func getKVProvider(logger *zap.Logger, dataDir string, engine string) (ring.KVProvider, func(), error) {
	switch engine {
	case "memory":
		kv := memory.WithHashFn(ring.HashKey)
		logger.Warn("Using memory as storage backend, keys are lost on restart")
		return kv, noop, nil
	case "aof":
		kv, err := aof.New(aof.Config{
			Logger:        logger,
			HashFn:        ring.HashKey,
			DataDir:       dataDir,
			FlushInterval: time.Second * 3,
		})
		if err != nil {
			return nil, nil, err
		}
		go kv.Start()
		logger.Info("Using Append-only File backed memory storage backend")
		return kv, kv.Stop, nil
	case "sqlite":
		if err := sqlite3.Initialize(filepath.Join(dataDir, "wazero")); err != nil {
			return nil, nil, fmt.Errorf("initializing sqlite runtime: %w", err)
		}
		kv, err := sqlite3.New(sqlite3.Config{
			Logger:  logger,
			HashFn:  ring.HashKey,
			DataDir: dataDir,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using SQLite storage backend")
		return kv, func() {
			if err := kv.Close(); err != nil {
				logger.Error("Error closing sqlite", zap.Error(err))
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage engine: %s", engine)
	}
}
