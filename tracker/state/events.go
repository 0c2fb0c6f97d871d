package state

import (
	"github.com/derad-network/derad/tracker/feed"
)

// ChangeKind labels why an observation is being archived.
type ChangeKind uint8

const (
	// New marks the first sighting of an aircraft.
	New ChangeKind = iota
	// Updated marks a changed fingerprint for an already tracked aircraft.
	Updated
	// Reappeared marks an aircraft returning after the reappear threshold.
	Reappeared
)

// String implements fmt.Stringer.
func (k ChangeKind) String() string {
	switch k {
	case New:
		return "new"
	case Updated:
		return "updated"
	case Reappeared:
		return "reappeared"
	default:
		return "unknown"
	}
}

// ChangeEvent is one archivable aircraft change, annotated with the snapshot
// it was observed in.
type ChangeEvent struct {
	Kind            ChangeKind
	Hex             string
	Observation     *feed.Observation
	SnapshotSeconds int64
	TotalMessages   int64
}
