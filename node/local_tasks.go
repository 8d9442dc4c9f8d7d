package node

import (
	"context"
	"errors"
	"time"

	"go.miragespace.co/keyval/spec/ring"

	"go.uber.org/zap"
)

// gossip exchanges membership with one random peer: push our snapshot, then
// pull theirs and merge it. A peer that cannot be reached on either leg is
// evicted from the local view.
func (n *LocalNode) gossip(ctx context.Context) error {
	peer, ok := n.table.RandomPeer()
	if !ok {
		return nil
	}
	view := n.table.View()

	callCtx, cancel := n.rpcContext(ctx)
	defer cancel()

	if err := n.Transport.PushMembership(callCtx, peer.Address, view.Members, view.Version); err != nil {
		return n.gossipFailed(ctx, peer, err)
	}
	remote, marker, err := n.Transport.GetMembership(callCtx, peer.Address)
	if err != nil {
		return n.gossipFailed(ctx, peer, err)
	}
	n.lastGossip.Store(time.Now())

	if n.table.Merge(remote, marker) {
		n.Logger.Debug("Membership updated via gossip", zap.Object("peer", peer))
	}
	return nil
}

func (n *LocalNode) gossipFailed(ctx context.Context, peer ring.Member, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !errors.Is(err, ring.ErrPeerUnreachable) {
		return err
	}
	if n.table.Remove(peer.ID) {
		if n.NodesRTT != nil {
			n.NodesRTT.Drop(peer.Address)
		}
		n.Logger.Warn("Evicted unreachable peer", zap.Object("peer", peer), zap.Error(err))
	}
	return err
}

func (n *LocalNode) periodicGossip() {
	defer n.stopWg.Done()

	delay := time.NewTimer(n.GossipDelay)
	defer delay.Stop()

	select {
	case <-n.stopCtx.Done():
		return
	case <-delay.C:
	}

	ticker := time.NewTicker(n.GossipInterval)
	defer ticker.Stop()

	for {
		if err := n.gossip(n.stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			n.Logger.Debug("Gossip round failed", zap.Error(err))
		}
		select {
		case <-n.stopCtx.Done():
			n.Logger.Debug("Stopping gossip task")
			return
		case <-ticker.C:
		}
	}
}
