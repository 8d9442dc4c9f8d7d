package ring

import (
	"encoding/binary"
	"maps"
	"slices"
	"strconv"

	"github.com/zeebo/xxh3"
	"go.uber.org/zap/zapcore"
)

// Member is a single node on the ring
type Member struct {
	ID      uint64
	Address string
}

func NewMember(address string) Member {
	return Member{
		ID:      Hash(address),
		Address: address,
	}
}

func (m Member) String() string {
	return m.Address + "/" + strconv.FormatUint(m.ID, 10)
}

func (m Member) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("id", m.ID)
	enc.AddString("address", m.Address)
	return nil
}

// Membership maps node IDs to addresses. On the wire, an empty address is a
// tombstone for a node that has left the ring.
type Membership map[uint64]string

func (m Membership) Clone() Membership {
	return maps.Clone(m)
}

func (m Membership) Equal(o Membership) bool {
	return maps.Equal(m, o)
}

// IDs returns the sorted node IDs
func (m Membership) IDs() []uint64 {
	return slices.Sorted(maps.Keys(m))
}

// Digest fingerprints the membership independent of map iteration order
func (m Membership) Digest() uint64 {
	hasher := xxh3.New()
	buf := make([]byte, 8)
	for _, id := range m.IDs() {
		binary.BigEndian.PutUint64(buf, id)
		hasher.Write(buf)
		hasher.WriteString(m[id])
	}
	return hasher.Sum64()
}
