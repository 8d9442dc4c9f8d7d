package node

import (
	"context"
	"fmt"

	"go.miragespace.co/keyval/membership"
	"go.miragespace.co/keyval/spec/ring"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Membership returns the local membership map and its version
func (n *LocalNode) Membership() (ring.Membership, int64) {
	view := n.table.View()
	return view.Members, view.Version
}

// MergeMembership folds a snapshot pushed by a peer into the local view
func (n *LocalNode) MergeMembership(remote ring.Membership, marker int64) (bool, error) {
	if err := n.checkNodeState(); err != nil {
		return false, err
	}
	n.gossipRate.Increment()
	return n.table.Merge(remote, marker), nil
}

// Evict removes the member at addr from the local view. It reports false if
// addr was not a member or is this node.
func (n *LocalNode) Evict(addr string) bool {
	m := ring.NewMember(addr)
	if n.table.View().Members[m.ID] != addr {
		return false
	}
	if !n.table.Remove(m.ID) {
		return false
	}
	if n.NodesRTT != nil {
		n.NodesRTT.Drop(addr)
	}
	n.Logger.Info("Evicted member", zap.Object("member", m))
	return true
}

// Join merges the membership of the ring that bootstrap belongs to, then
// pulls the keys this node now replicates and asks the successors to drop the
// ranges they no longer replicate.
func (n *LocalNode) Join(ctx context.Context, bootstrap string) error {
	if bootstrap == n.self.Address {
		return ring.ErrSelfJoin
	}
	if _, ok := n.state.Transition(ring.Active, ring.Joining); !ok {
		return ring.ErrInvalidStateChange
	}
	defer n.state.Transition(ring.Joining, ring.Active)

	n.Logger.Info("Joining ring", zap.String("via", bootstrap))

	callCtx, cancel := n.rpcContext(ctx)
	remote, _, err := n.Transport.GetMembership(callCtx, bootstrap)
	cancel()
	if err != nil {
		return fmt.Errorf("fetching membership from bootstrap: %w", err)
	}
	if addr, ok := remote[n.self.ID]; ok && addr != "" && addr != n.self.Address {
		n.Logger.Error("Node ID is already taken in the ring",
			zap.String("taken_by", addr),
		)
		return fmt.Errorf("%w: %s", ring.ErrDuplicateNodeID, addr)
	}

	n.table.Merge(remote, 0)

	view := n.table.View()
	n.Logger.Info("Merged membership from bootstrap",
		zap.Int("members", len(view.Nodes)),
		zap.Int("replicas", view.Replicas),
		zap.Int64("version", view.Version),
	)

	// let the bootstrap know about us right away instead of waiting for gossip
	callCtx, cancel = n.rpcContext(ctx)
	if err := n.Transport.PushMembership(callCtx, bootstrap, view.Members, view.Version); err != nil {
		n.Logger.Warn("Error announcing to bootstrap", zap.String("bootstrap", bootstrap), zap.Error(err))
	}
	cancel()

	n.rebalanceOnAdd(ctx, view)

	return nil
}

func (n *LocalNode) rebalanceOnAdd(ctx context.Context, view *membership.View) {
	nodes := view.Nodes
	size := len(nodes)
	if size < 2 {
		return
	}
	replicas := view.Replicas
	p := view.Index(n.self.ID)

	prev := view.Member(membership.Offset(nodes, p, -1))
	succ := view.Member(membership.Offset(nodes, p, 1))
	lowerBound := membership.Offset(nodes, p, -replicas)

	// the predecessor holds the ranges we now replicate for the nodes before us,
	// our own primary range was owned by our successor
	n.pullRange(ctx, prev, ring.Span(lowerBound, n.self.ID))
	if succ.ID != prev.ID {
		n.pullRange(ctx, succ, ring.Span(prev.ID, n.self.ID))
	}

	if size <= replicas {
		return
	}
	for k := 0; k < replicas; k++ {
		target := view.Member(membership.Offset(nodes, p, k+1))
		r := ring.Span(
			membership.Offset(nodes, p, k-replicas),
			membership.Offset(nodes, p, k-replicas+1),
		)
		n.purgeRange(ctx, target, r)
	}
}

func (n *LocalNode) pullRange(ctx context.Context, from ring.Member, r ring.HashRange) {
	callCtx, cancel := n.rpcContext(ctx)
	defer cancel()

	entries, err := n.Transport.FetchRange(callCtx, from.Address, r)
	if err != nil {
		n.Logger.Error("Error fetching keys during rebalance",
			zap.Object("from", from),
			zap.Stringer("range", r),
			zap.Error(err),
		)
		return
	}
	stored := 0
	for key, value := range entries {
		if _, err := n.KVProvider.Put(ctx, []byte(key), value); err != nil {
			n.Logger.Error("Error storing rebalanced key", zap.String("key", key), zap.Error(err))
			continue
		}
		stored++
	}
	n.Logger.Info("Fetched keys during rebalance",
		zap.Object("from", from),
		zap.Stringer("range", r),
		zap.Int("keys", stored),
	)
}

func (n *LocalNode) purgeRange(ctx context.Context, target ring.Member, r ring.HashRange) {
	callCtx, cancel := n.rpcContext(ctx)
	defer cancel()

	removed, err := n.Transport.PurgeRange(callCtx, target.Address, r)
	if err != nil {
		n.Logger.Error("Error purging keys during rebalance",
			zap.Object("target", target),
			zap.Stringer("range", r),
			zap.Error(err),
		)
		return
	}
	n.Logger.Info("Purged keys during rebalance",
		zap.Object("target", target),
		zap.Stringer("range", r),
		zap.Int("keys", removed),
	)
}

// Leave announces the departure to every peer, then stops gossiping
func (n *LocalNode) Leave(ctx context.Context) {
	if _, ok := n.state.Transition(ring.Active, ring.Leaving); !ok {
		n.Stop()
		return
	}

	n.Logger.Info("Leaving ring")

	tombstone := ring.Membership{n.self.ID: ""}
	peers := n.table.View().Peers()

	var g errgroup.Group
	for _, peer := range peers {
		g.Go(func() error {
			callCtx, cancel := n.rpcContext(ctx)
			defer cancel()
			if err := n.Transport.PushMembership(callCtx, peer.Address, tombstone, 0); err != nil {
				n.Logger.Warn("Error announcing departure", zap.Object("peer", peer), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	n.stop()
	n.state.Set(ring.Left)
}
