package aof

import (
	"context"
	"io/fs"

	"go.miragespace.co/keyval/spec/ring"
)

func (d *DiskKV) mutate(ctx context.Context, mut *mutation) result {
	d.barrier.RLock()
	defer d.barrier.RUnlock()
	if d.closed.Load() {
		return result{err: fs.ErrClosed}
	}

	p := &pending{
		mut:  mut,
		done: make(chan result, 1),
	}
	select {
	case <-ctx.Done():
		return result{err: ctx.Err()}
	case d.queue <- p:
	}
	return <-p.done
}

func (d *DiskKV) Put(ctx context.Context, key, value []byte) ([]byte, error) {
	res := d.mutate(ctx, &mutation{
		Type:  mutationPut,
		Key:   key,
		Value: value,
	})
	return res.value, res.err
}

func (d *DiskKV) Delete(ctx context.Context, key []byte) ([]byte, error) {
	res := d.mutate(ctx, &mutation{
		Type: mutationDelete,
		Key:  key,
	})
	return res.value, res.err
}

func (d *DiskKV) DeleteByHashRange(ctx context.Context, r ring.HashRange) (int, error) {
	res := d.mutate(ctx, &mutation{
		Type:  mutationDeleteRange,
		Range: r,
	})
	return res.count, res.err
}
