package node

import (
	"context"
	"fmt"

	"go.miragespace.co/keyval/spec/ring"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type replicaResult struct {
	value []byte
	found bool
	err   error
}

// PreferenceList returns the replicas of key, owner first
func (n *LocalNode) PreferenceList(key []byte) []ring.Member {
	return n.table.View().PreferenceList(key)
}

func (n *LocalNode) fanOut(ctx context.Context, list []ring.Member, fn func(context.Context, ring.Member) replicaResult) []replicaResult {
	results := make([]replicaResult, len(list))

	var g errgroup.Group
	for i, m := range list {
		g.Go(func() error {
			callCtx, cancel := n.rpcContext(ctx)
			defer cancel()
			results[i] = fn(callCtx, m)
			return nil
		})
	}
	g.Wait()

	return results
}

func (n *LocalNode) logFailures(op string, key []byte, list []ring.Member, results []replicaResult) error {
	var errs error
	for i, res := range results {
		if res.err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", list[i].Address, res.err))
		}
	}
	if errs != nil {
		n.Logger.Warn("Replica operation failed",
			zap.String("op", op),
			zap.ByteString("key", key),
			zap.Int("failed", len(multierr.Errors(errs))),
			zap.Int("replicas", len(list)),
			zap.Error(errs),
		)
	}
	return errs
}

// Put writes the value to every replica concurrently. It succeeds if at least
// one replica committed the value.
func (n *LocalNode) Put(ctx context.Context, key, value []byte) ([]byte, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}
	n.clientRate.Increment()

	list := n.PreferenceList(key)
	results := n.fanOut(ctx, list, func(ctx context.Context, m ring.Member) (res replicaResult) {
		if m.ID == n.self.ID {
			res.value, res.err = n.KVProvider.Put(ctx, key, value)
		} else {
			res.value, res.err = n.Transport.PutKey(ctx, m.Address, key, value)
		}
		res.found = res.err == nil
		return
	})
	errs := n.logFailures("put", key, list, results)

	for _, res := range results {
		if res.found {
			return res.value, nil
		}
	}
	return nil, fmt.Errorf("%w: %w", ring.ErrReplicasFailed, errs)
}

// Delete removes the key from every replica concurrently. It returns
// ring.ErrKeyNotFound if no replica held the key, and ring.ErrReplicasFailed
// if every replica failed.
func (n *LocalNode) Delete(ctx context.Context, key []byte) ([]byte, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}
	n.clientRate.Increment()

	list := n.PreferenceList(key)
	results := n.fanOut(ctx, list, func(ctx context.Context, m ring.Member) (res replicaResult) {
		if m.ID == n.self.ID {
			res.value, res.err = n.KVProvider.Delete(ctx, key)
			res.found = res.err == nil && res.value != nil
		} else {
			res.value, res.found, res.err = n.Transport.DeleteKey(ctx, m.Address, key)
		}
		return
	})
	errs := n.logFailures("delete", key, list, results)

	answered := false
	for _, res := range results {
		if res.found {
			return res.value, nil
		}
		if res.err == nil {
			answered = true
		}
	}
	if answered {
		return nil, ring.ErrKeyNotFound
	}
	return nil, fmt.Errorf("%w: %w", ring.ErrReplicasFailed, errs)
}

// Get reads from the local engine first if this node is a replica, then tries
// the remaining replicas in order until one has the key.
func (n *LocalNode) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}
	n.clientRate.Increment()

	list := n.PreferenceList(key)

	if hasMember(list, n.self.ID) {
		value, err := n.KVProvider.Get(ctx, key)
		switch {
		case err != nil:
			n.Logger.Warn("Error reading from local engine", zap.ByteString("key", key), zap.Error(err))
		case value != nil:
			return value, nil
		}
	}

	for _, m := range list {
		if m.ID == n.self.ID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, found, err := n.getReplica(ctx, m, key)
		if err != nil {
			n.Logger.Debug("Failing over to next replica",
				zap.Object("replica", m),
				zap.ByteString("key", key),
				zap.Error(err),
			)
			continue
		}
		if found {
			return value, nil
		}
	}

	return nil, ring.ErrKeyNotFound
}

func (n *LocalNode) getReplica(ctx context.Context, m ring.Member, key []byte) ([]byte, bool, error) {
	callCtx, cancel := n.rpcContext(ctx)
	defer cancel()
	return n.Transport.GetKey(callCtx, m.Address, key)
}

func hasMember(list []ring.Member, id uint64) bool {
	for _, m := range list {
		if m.ID == id {
			return true
		}
	}
	return false
}
