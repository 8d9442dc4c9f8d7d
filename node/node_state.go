package node

import (
	"runtime"
	"sync/atomic"

	"go.miragespace.co/keyval/spec/ring"

	"github.com/zhangyunhao116/skipmap"
)

// nodeState packs a transition counter with the state so that CAS fails on
// any interleaved transition
type nodeState struct {
	state   atomic.Uint64
	history *skipmap.Uint64Map[ring.State]
}

func newNodeState(initial ring.State) *nodeState {
	s := &nodeState{
		history: skipmap.NewUint64[ring.State](),
	}
	s.state.Store(uint64(initial))
	s.history.Store(0, initial)
	return s
}

func (s *nodeState) Transition(exp ring.State, nxt ring.State) (ring.State, bool) {
	curr := s.state.Load()
	currIndex := curr >> 4
	if ring.State(curr&0b1111) != exp {
		return ring.State(curr & 0b1111), false
	}
	nextIndex := currIndex + 1
	next := (nextIndex << 4) | uint64(nxt)
	if s.state.CompareAndSwap(curr, next) {
		s.history.Store(nextIndex, nxt)
		return nxt, true
	}
	return ring.State(s.state.Load() & 0b1111), false
}

func (s *nodeState) Set(val ring.State) {
	for {
		if _, ok := s.Transition(s.Get(), val); ok {
			break
		}
		runtime.Gosched()
	}
}

func (s *nodeState) Get() ring.State {
	return ring.State(s.state.Load() & 0b1111)
}

func (s *nodeState) History() []ring.State {
	h := make([]ring.State, 0)
	s.history.Range(func(_ uint64, state ring.State) bool {
		h = append(h, state)
		return true
	})
	return h
}
