// Package detect identifies operational events in the snapshot series.
// Every detector is a pure function: it reads an ordered slice and returns
// an Event whose Anchor identifies the underlying physical event. Repeated
// calls during one physical event return the same Anchor.
package detect

import (
	"time"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// Kind identifies a detector.
type Kind string

const (
	KindStagnationRecovery Kind = "STAGNATION_RECOVERY"
	KindHighFlow           Kind = "HIGH_FLOW"
	KindBackflush          Kind = "BACKFLUSH"
	KindStoppedFilling     Kind = "STOPPED_FILLING"
)

// Kinds lists the alerting detectors.
var Kinds = []Kind{KindStagnationRecovery, KindHighFlow, KindBackflush}

// Event is a detected operational event.
type Event struct {
	Kind      Kind
	Anchor    time.Time // stable identity of the physical event
	Magnitude float64   // gallons gained, GPH, or gallons lost
}

// point is a snapshot with a readable tank level.
type point struct {
	t time.Time
	g float64
}

// readable drops snapshots without a tank level; order is preserved.
func readable(snaps []logic.Snapshot) []point {
	pts := make([]point, 0, len(snaps))
	for _, s := range snaps {
		if g, ok := s.Gallons(); ok {
			pts = append(pts, point{t: s.Timestamp, g: g})
		}
	}
	return pts
}
