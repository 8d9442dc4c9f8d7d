package membership

import (
	"sort"

	"github.com/zhangyunhao116/skipset"
)

// Ring is the ordered set of node IDs. It is not safe to hand out to readers;
// Table publishes sorted copies instead.
type Ring struct {
	members *skipset.Uint64Set
}

func NewRing(ids ...uint64) *Ring {
	r := &Ring{
		members: skipset.NewUint64(),
	}
	for _, id := range ids {
		r.Insert(id)
	}
	return r
}

func (r *Ring) Insert(id uint64) bool {
	return r.members.Add(id)
}

func (r *Ring) Remove(id uint64) bool {
	return r.members.Remove(id)
}

func (r *Ring) Contains(id uint64) bool {
	return r.members.Contains(id)
}

func (r *Ring) Len() int {
	return r.members.Len()
}

// Sorted returns a copy of the members in ascending order
func (r *Ring) Sorted() []uint64 {
	ids := make([]uint64, 0, r.members.Len())
	r.members.Range(func(id uint64) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// Locate returns the index of the smallest member >= id, wrapping to 0 when id
// is past the largest member. nodes must be sorted and non-empty.
func Locate(nodes []uint64, id uint64) int {
	idx := sort.Search(len(nodes), func(i int) bool {
		return nodes[i] >= id
	})
	if idx == len(nodes) {
		return 0
	}
	return idx
}

// Walk returns n ring-contiguous members starting at index start
func Walk(nodes []uint64, start, n int) []uint64 {
	n = min(n, len(nodes))
	list := make([]uint64, n)
	for i := 0; i < n; i++ {
		list[i] = nodes[(start+i)%len(nodes)]
	}
	return list
}

// Offset returns nodes[(idx+delta) mod len]
func Offset(nodes []uint64, idx, delta int) uint64 {
	l := len(nodes)
	return nodes[((idx+delta)%l+l)%l]
}
