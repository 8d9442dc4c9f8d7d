package membership

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingSorted(t *testing.T) {
	as := require.New(t)

	r := NewRing(50, 10, 30)
	as.Equal([]uint64{10, 30, 50}, r.Sorted())

	as.True(r.Insert(20))
	as.False(r.Insert(20))
	as.True(r.Remove(50))
	as.False(r.Remove(50))
	as.False(r.Remove(99))

	as.Equal([]uint64{10, 20, 30}, r.Sorted())
	as.Equal(3, r.Len())
	as.True(r.Contains(10))
	as.False(r.Contains(50))
}

func TestLocate(t *testing.T) {
	as := require.New(t)

	nodes := []uint64{10, 20, 30}

	as.Equal(0, Locate(nodes, 0))
	as.Equal(0, Locate(nodes, 10))
	as.Equal(1, Locate(nodes, 11))
	as.Equal(1, Locate(nodes, 20))
	as.Equal(2, Locate(nodes, 30))
	as.Equal(0, Locate(nodes, 31))
	as.Equal(0, Locate(nodes, math.MaxUint64))

	as.Equal(0, Locate([]uint64{42}, 7))
	as.Equal(0, Locate([]uint64{42}, 43))
}

func TestWalk(t *testing.T) {
	as := require.New(t)

	nodes := []uint64{10, 20, 30}

	as.Equal([]uint64{30, 10}, Walk(nodes, 2, 2))
	as.Equal([]uint64{20, 30, 10}, Walk(nodes, 1, 5))
	as.Equal([]uint64{10}, Walk(nodes, 0, 1))

	as.Equal(uint64(30), Offset(nodes, 0, -1))
	as.Equal(uint64(10), Offset(nodes, 2, 1))
	as.Equal(uint64(20), Offset(nodes, 0, -5))
}
