package ring

import "strconv"

type State uint64

const (
	// Node not running, default state
	Inactive State = iota
	// Fetching membership and keys from a bootstrap peer
	Joining
	// Serving requests and gossiping
	Active
	// Announcing departure to peers
	Leaving
	// No longer part of the ring
	Left
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "Inactive"
	case Joining:
		return "Joining"
	case Active:
		return "Active"
	case Leaving:
		return "Leaving"
	case Left:
		return "Left"
	default:
		return "State(" + strconv.FormatUint(uint64(s), 10) + ")"
	}
}
