package ring

import (
	"context"
)

type HashFn func([]byte) uint64

// KVProvider is the local storage engine of a node. Absent keys are reported
// as a nil value with a nil error.
type KVProvider interface {
	Get(ctx context.Context, key []byte) ([]byte, error)
	Put(ctx context.Context, key, value []byte) ([]byte, error)
	Delete(ctx context.Context, key []byte) ([]byte, error)

	ScanAll(ctx context.Context) (map[string][]byte, error)
	ScanByHashRange(ctx context.Context, r HashRange) (map[string][]byte, error)
	DeleteByHashRange(ctx context.Context, r HashRange) (int, error)
}
