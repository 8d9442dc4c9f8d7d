package ring

import (
	"crypto/md5"
	"encoding/binary"
)

const (
	// MaxReplicas is the default upper bound of the replication factor
	MaxReplicas = 2
)

// Hash maps an address or a key to its position on the ring. Every node must
// agree on this function, so the digest is always read big-endian.
func Hash(s string) uint64 {
	return HashKey([]byte(s))
}

func HashKey(b []byte) uint64 {
	sum := md5.Sum(b)
	return binary.BigEndian.Uint64(sum[:8])
}

// target IN (low, high]
func BetweenInclusiveHigh(low, target, high uint64) bool {
	if high > low {
		return low < target && target <= high
	} else {
		return low < target || target <= high
	}
}

// target IN (low, high)
func BetweenStrict(low, target, high uint64) bool {
	if high > low {
		return low < target && target < high
	} else {
		return low < target || target < high
	}
}

func Between(low, target, high uint64, inclusive bool) bool {
	if inclusive {
		return BetweenInclusiveHigh(low, target, high)
	}
	return BetweenStrict(low, target, high)
}

// Replicas returns the effective replication factor for a ring of size n
func Replicas(max, n int) int {
	return min(max, n)
}
