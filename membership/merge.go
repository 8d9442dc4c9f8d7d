package membership

import (
	"go.miragespace.co/keyval/spec/ring"
)

// Conflict is a remote entry that Merge refused to apply
type Conflict struct {
	ID      uint64
	Local   string
	Remote  string
	Invalid bool
}

// Fresh reports whether a remote snapshot carrying marker should be merged
// into local state at localVersion. Zero forces the merge.
func Fresh(marker, localVersion int64) bool {
	return marker == 0 || marker > localVersion
}

// Merge folds remote into local without touching either. It returns the merged
// membership and whether it differs from local; when the marker is stale or the
// result is identical, local is returned unchanged.
//
// Entries with an empty address remove the node. The node self is never removed
// or re-addressed. Entries whose ID does not match the hash of their address are
// ignored, and an ID already known under a different address keeps the local one.
func Merge(self uint64, local, remote ring.Membership, localVersion, marker int64) (ring.Membership, bool, []Conflict) {
	if !Fresh(marker, localVersion) {
		return local, false, nil
	}
	if remote.Equal(local) {
		return local, false, nil
	}

	var conflicts []Conflict
	merged := local.Clone()
	for id, addr := range remote {
		if id == self {
			if addr != "" && addr != local[self] {
				conflicts = append(conflicts, Conflict{ID: id, Local: local[self], Remote: addr})
			}
			continue
		}
		if addr == "" {
			delete(merged, id)
			continue
		}
		if ring.Hash(addr) != id {
			conflicts = append(conflicts, Conflict{ID: id, Remote: addr, Invalid: true})
			continue
		}
		if prev, ok := merged[id]; ok && prev != addr {
			conflicts = append(conflicts, Conflict{ID: id, Local: prev, Remote: addr})
			continue
		}
		merged[id] = addr
	}

	if merged.Equal(local) {
		return local, false, conflicts
	}
	return merged, true, conflicts
}
