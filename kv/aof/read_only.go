package aof

import (
	"context"

	"go.miragespace.co/keyval/spec/ring"
)

func (d *DiskKV) Get(ctx context.Context, key []byte) ([]byte, error) {
	return d.state.Get(ctx, key)
}

func (d *DiskKV) ScanAll(ctx context.Context) (map[string][]byte, error) {
	return d.state.ScanAll(ctx)
}

func (d *DiskKV) ScanByHashRange(ctx context.Context, r ring.HashRange) (map[string][]byte, error) {
	return d.state.ScanByHashRange(ctx, r)
}
