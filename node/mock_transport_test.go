package node

import (
	"context"
	"fmt"
	"sync"

	"go.miragespace.co/keyval/spec/ring"
)

// mockTransport delivers calls to in-process nodes. Nodes marked down behave
// like a closed socket; state errors look like a non-2xx answer.
type mockTransport struct {
	mu    sync.RWMutex
	nodes map[string]*LocalNode
	down  map[string]bool
}

var _ ring.Transport = (*mockTransport)(nil)

func newMockTransport() *mockTransport {
	return &mockTransport{
		nodes: make(map[string]*LocalNode),
		down:  make(map[string]bool),
	}
}

func (m *mockTransport) register(n *LocalNode) {
	m.mu.Lock()
	m.nodes[n.self.Address] = n
	m.mu.Unlock()
}

func (m *mockTransport) setDown(addr string, down bool) {
	m.mu.Lock()
	m.down[addr] = down
	m.mu.Unlock()
}

func (m *mockTransport) get(ctx context.Context, addr string) (*LocalNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ring.ErrPeerUnreachable, addr, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[addr]
	if !ok || m.down[addr] {
		return nil, fmt.Errorf("%w: %s: connection refused", ring.ErrPeerUnreachable, addr)
	}
	return n, nil
}

func status(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ring.ErrUnexpectedStatus, err)
}

func (m *mockTransport) GetMembership(ctx context.Context, addr string) (ring.Membership, int64, error) {
	n, err := m.get(ctx, addr)
	if err != nil {
		return nil, 0, err
	}
	members, version := n.Membership()
	return members.Clone(), version, nil
}

func (m *mockTransport) PushMembership(ctx context.Context, addr string, members ring.Membership, version int64) error {
	n, err := m.get(ctx, addr)
	if err != nil {
		return err
	}
	_, err = n.MergeMembership(members.Clone(), version)
	return status(err)
}

func (m *mockTransport) Evict(ctx context.Context, addr string, member string) error {
	n, err := m.get(ctx, addr)
	if err != nil {
		return err
	}
	n.Evict(member)
	return nil
}

func (m *mockTransport) Join(ctx context.Context, addr string, bootstrap string) error {
	n, err := m.get(ctx, addr)
	if err != nil {
		return err
	}
	return n.Join(ctx, bootstrap)
}

func (m *mockTransport) GetKey(ctx context.Context, addr string, key []byte) ([]byte, bool, error) {
	n, err := m.get(ctx, addr)
	if err != nil {
		return nil, false, err
	}
	v, err := n.LocalGet(ctx, key)
	return v, v != nil, status(err)
}

func (m *mockTransport) PutKey(ctx context.Context, addr string, key, value []byte) ([]byte, error) {
	n, err := m.get(ctx, addr)
	if err != nil {
		return nil, err
	}
	v, err := n.LocalPut(ctx, key, value)
	return v, status(err)
}

func (m *mockTransport) DeleteKey(ctx context.Context, addr string, key []byte) ([]byte, bool, error) {
	n, err := m.get(ctx, addr)
	if err != nil {
		return nil, false, err
	}
	v, err := n.LocalDelete(ctx, key)
	return v, v != nil, status(err)
}

func (m *mockTransport) FetchRange(ctx context.Context, addr string, r ring.HashRange) (map[string][]byte, error) {
	n, err := m.get(ctx, addr)
	if err != nil {
		return nil, err
	}
	entries, err := n.LocalKeys(ctx, r)
	return entries, status(err)
}

func (m *mockTransport) PurgeRange(ctx context.Context, addr string, r ring.HashRange) (int, error) {
	n, err := m.get(ctx, addr)
	if err != nil {
		return 0, err
	}
	count, err := n.LocalPurge(ctx, r)
	return count, status(err)
}
