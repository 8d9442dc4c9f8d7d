package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.miragespace.co/keyval/membership"
	"go.miragespace.co/keyval/spec/ring"
	"go.miragespace.co/keyval/util/ratecounter"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// LocalNode is one member of the ring. It coordinates client requests, serves
// replica requests from its peers, and keeps its membership view up to date
// by gossiping.
type LocalNode struct {
	NodeConfig

	self  ring.Member
	table *membership.Table
	state *nodeState

	stopCtx    context.Context
	stopCancel context.CancelFunc
	stopWg     sync.WaitGroup

	clientRate  *ratecounter.Rate
	replicaRate *ratecounter.Rate
	gossipRate  *ratecounter.Rate
	lastGossip  *atomic.Time
}

func NewLocalNode(conf NodeConfig) *LocalNode {
	if err := conf.Validate(); err != nil {
		panic(err)
	}
	self := ring.NewMember(conf.Address)
	conf.Logger = conf.Logger.With(zap.Uint64("node", self.ID))

	n := &LocalNode{
		NodeConfig: conf,
		self:       self,
		table: membership.NewTable(membership.TableConfig{
			Logger:      conf.Logger.With(zap.String("component", "membership")),
			Self:        self,
			Seeds:       conf.Seeds,
			MaxReplicas: conf.MaxReplicas,
		}),
		state:       newNodeState(ring.Inactive),
		clientRate:  ratecounter.New(time.Second, time.Second*5),
		replicaRate: ratecounter.New(time.Second, time.Second*5),
		gossipRate:  ratecounter.New(time.Second, time.Second*5),
		lastGossip:  atomic.NewTime(time.Time{}),
	}
	n.stopCtx, n.stopCancel = context.WithCancel(context.Background())

	return n
}

func (n *LocalNode) ID() uint64 {
	return n.self.ID
}

func (n *LocalNode) Self() ring.Member {
	return n.self
}

func (n *LocalNode) State() ring.State {
	return n.state.Get()
}

// View returns the current membership snapshot
func (n *LocalNode) View() *membership.View {
	return n.table.View()
}

// Start makes the node serve requests and begins gossiping with its seeds
func (n *LocalNode) Start() error {
	if _, ok := n.state.Transition(ring.Inactive, ring.Active); !ok {
		return fmt.Errorf("node is not inactive")
	}

	view := n.table.View()
	n.Logger.Info("Starting node",
		zap.String("address", n.self.Address),
		zap.Int("members", len(view.Nodes)),
		zap.Int("replicas", view.Replicas),
	)

	n.stopWg.Add(1)
	go n.periodicGossip()

	return nil
}

// Stop cancels gossip and waits for it to exit. It does not announce the
// departure; peers will evict the node once it stops answering.
func (n *LocalNode) Stop() {
	if n.state.Get() == ring.Left {
		return
	}
	n.stop()
	n.state.Set(ring.Left)
}

func (n *LocalNode) stop() {
	n.stopCancel()
	n.stopWg.Wait()
}

func (n *LocalNode) checkNodeState() error {
	switch n.state.Get() {
	case ring.Inactive, ring.Left:
		return ring.ErrNodeNotStarted
	default:
		return nil
	}
}

func (n *LocalNode) rpcContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, n.RPCTimeout)
}
