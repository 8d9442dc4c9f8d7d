package ring

import (
	"context"
)

// Transport is how a node talks to its peers. Errors caused by the network use
// ErrPeerUnreachable, errors reported by a reachable peer use ErrUnexpectedStatus.
type Transport interface {
	GetMembership(ctx context.Context, addr string) (Membership, int64, error)
	PushMembership(ctx context.Context, addr string, m Membership, version int64) error
	Evict(ctx context.Context, addr string, member string) error
	Join(ctx context.Context, addr string, bootstrap string) error

	// direct replica access, bypassing coordination on the peer
	GetKey(ctx context.Context, addr string, key []byte) ([]byte, bool, error)
	PutKey(ctx context.Context, addr string, key, value []byte) ([]byte, error)
	DeleteKey(ctx context.Context, addr string, key []byte) ([]byte, bool, error)

	FetchRange(ctx context.Context, addr string, r HashRange) (map[string][]byte, error)
	PurgeRange(ctx context.Context, addr string, r HashRange) (int, error)
}
