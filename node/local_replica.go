package node

import (
	"context"

	"go.miragespace.co/keyval/spec/ring"
)

// Operations in this file act on the local engine only. Peers call them when
// this node is one of the replicas chosen by a coordinator, or during
// rebalance.

func (n *LocalNode) LocalGet(ctx context.Context, key []byte) ([]byte, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}
	n.replicaRate.Increment()
	return n.KVProvider.Get(ctx, key)
}

func (n *LocalNode) LocalPut(ctx context.Context, key, value []byte) ([]byte, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}
	n.replicaRate.Increment()
	return n.KVProvider.Put(ctx, key, value)
}

func (n *LocalNode) LocalDelete(ctx context.Context, key []byte) ([]byte, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}
	n.replicaRate.Increment()
	return n.KVProvider.Delete(ctx, key)
}

// LocalKeys returns the locally stored entries whose key hash is in r
func (n *LocalNode) LocalKeys(ctx context.Context, r ring.HashRange) (map[string][]byte, error) {
	if err := n.checkNodeState(); err != nil {
		return nil, err
	}
	n.replicaRate.Increment()
	if r.IsEverything() {
		return n.KVProvider.ScanAll(ctx)
	}
	return n.KVProvider.ScanByHashRange(ctx, r)
}

// LocalPurge removes the locally stored entries whose key hash is in r
func (n *LocalNode) LocalPurge(ctx context.Context, r ring.HashRange) (int, error) {
	if err := n.checkNodeState(); err != nil {
		return 0, err
	}
	n.replicaRate.Increment()
	return n.KVProvider.DeleteByHashRange(ctx, r)
}
