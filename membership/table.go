package membership

import (
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.miragespace.co/keyval/spec/ring"

	"go.uber.org/zap"
)

// View is an immutable snapshot of the table. Readers may keep it for as long
// as they like; mutations publish a new View.
type View struct {
	Self     ring.Member
	Nodes    []uint64
	Members  ring.Membership
	Version  int64
	Replicas int
	Digest   uint64
}

func (v *View) Member(id uint64) ring.Member {
	return ring.Member{ID: id, Address: v.Members[id]}
}

// Index returns the position of id in the ring, or the position of its
// successor if id is not a member
func (v *View) Index(id uint64) int {
	return Locate(v.Nodes, id)
}

// PreferenceList returns the R members responsible for the key, owner first
func (v *View) PreferenceList(key []byte) []ring.Member {
	ids := Walk(v.Nodes, Locate(v.Nodes, ring.HashKey(key)), v.Replicas)
	list := make([]ring.Member, len(ids))
	for i, id := range ids {
		list[i] = v.Member(id)
	}
	return list
}

// Owns reports whether self is one of the replicas of the key
func (v *View) Owns(key []byte) bool {
	for _, m := range v.PreferenceList(key) {
		if m.ID == v.Self.ID {
			return true
		}
	}
	return false
}

// Peers returns every member except self
func (v *View) Peers() []ring.Member {
	peers := make([]ring.Member, 0, len(v.Nodes))
	for _, id := range v.Nodes {
		if id == v.Self.ID {
			continue
		}
		peers = append(peers, v.Member(id))
	}
	return peers
}

type TableConfig struct {
	Logger      *zap.Logger
	Self        ring.Member
	Seeds       []string
	MaxReplicas int
	// Clock returns the current time, defaults to time.Now
	Clock func() time.Time
}

// Table owns the Ring, the Membership Map and the MembershipVersion. All three
// change together under mu, and every change publishes a new View.
type Table struct {
	logger      *zap.Logger
	self        ring.Member
	maxReplicas int
	clock       func() time.Time

	mu      sync.Mutex
	ring    *Ring
	members ring.Membership
	version int64

	view atomic.Pointer[View]
}

func NewTable(cfg TableConfig) *Table {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.MaxReplicas < 1 {
		cfg.MaxReplicas = ring.MaxReplicas
	}
	t := &Table{
		logger:      cfg.Logger,
		self:        cfg.Self,
		maxReplicas: cfg.MaxReplicas,
		clock:       cfg.Clock,
		ring:        NewRing(cfg.Self.ID),
		members:     ring.Membership{cfg.Self.ID: cfg.Self.Address},
	}
	for _, addr := range cfg.Seeds {
		m := ring.NewMember(addr)
		if m.ID == t.self.ID {
			continue
		}
		t.ring.Insert(m.ID)
		t.members[m.ID] = m.Address
	}

	t.mu.Lock()
	t.bump()
	t.mu.Unlock()

	return t
}

// View returns the current snapshot
func (t *Table) View() *View {
	return t.view.Load()
}

func (t *Table) Self() ring.Member {
	return t.self
}

// bump must be called with mu held
func (t *Table) bump() {
	t.version = max(t.clock().UnixMilli(), t.version+1)
	t.publish()
}

func (t *Table) publish() {
	nodes := t.ring.Sorted()
	members := t.members.Clone()
	t.view.Store(&View{
		Self:     t.self,
		Nodes:    nodes,
		Members:  members,
		Version:  t.version,
		Replicas: ring.Replicas(t.maxReplicas, len(nodes)),
		Digest:   members.Digest(),
	})
}

// Merge applies a remote snapshot carrying marker. It returns true if local
// state changed.
func (t *Table) Merge(remote ring.Membership, marker int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	merged, changed, conflicts := Merge(t.self.ID, t.members, remote, t.version, marker)
	for _, c := range conflicts {
		t.logger.Warn("Ignoring conflicting membership entry",
			zap.Uint64("id", c.ID),
			zap.String("local", c.Local),
			zap.String("remote", c.Remote),
			zap.Bool("invalid", c.Invalid),
		)
	}
	if !changed {
		return false
	}

	for id := range t.members {
		if _, ok := merged[id]; !ok {
			t.ring.Remove(id)
		}
	}
	for id := range merged {
		t.ring.Insert(id)
	}
	t.members = merged
	t.bump()

	t.logger.Debug("Membership merged",
		zap.Int64("marker", marker),
		zap.Int64("version", t.version),
		zap.Int("members", len(merged)),
	)
	return true
}

// Add inserts a member, returning ring.ErrDuplicateNodeID if its ID is taken
// by a different address
func (t *Table) Add(m ring.Member) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.members[m.ID]; ok {
		if prev != m.Address {
			return ring.ErrDuplicateNodeID
		}
		return nil
	}
	t.ring.Insert(m.ID)
	t.members[m.ID] = m.Address
	t.bump()
	return nil
}

// Remove evicts a member. The local node cannot be removed, and removing an
// absent member is a no-op.
func (t *Table) Remove(id uint64) bool {
	if id == t.self.ID {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.members[id]; !ok {
		return false
	}
	t.ring.Remove(id)
	delete(t.members, id)
	t.bump()
	return true
}

// RandomPeer picks a member other than self uniformly at random
func (t *Table) RandomPeer() (ring.Member, bool) {
	peers := t.View().Peers()
	if len(peers) == 0 {
		return ring.Member{}, false
	}
	return peers[rand.IntN(len(peers))], true
}
