package detect

import (
	"time"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// HighFlowParams tunes the fast-fill detector.
type HighFlowParams struct {
	Window    time.Duration // trailing window, default 6h
	Smoothing int           // snapshots averaged per rate, default 2
	Threshold float64       // gallons per hour, default 60
}

// DefaultHighFlowParams returns the production defaults.
func DefaultHighFlowParams() HighFlowParams {
	return HighFlowParams{Window: 6 * time.Hour, Smoothing: 2, Threshold: 60}
}

// HighFlow reports a fast fill whose smoothed rate exceeds the threshold at
// some snapshot in the trailing window. The rate at snapshot k is taken
// across the previous Smoothing intervals, which suppresses single-reading
// jitter.
//
// The anchor is the first snapshot of the contiguous run of exceeding
// snapshots, even when that start has slid out of the window, so one fast
// fill keeps one anchor for as long as any part of it is in the window.
func HighFlow(snaps []logic.Snapshot, p HighFlowParams) (Event, bool) {
	pts := readable(snaps)
	n := p.Smoothing
	if n < 1 {
		n = 1
	}
	if len(pts) <= n {
		return Event{}, false
	}
	cutoff := pts[len(pts)-1].t.Add(-p.Window)

	for k := n; k < len(pts); k++ {
		if pts[k].t.Before(cutoff) {
			continue
		}
		gph, ok := rate(pts[k-n], pts[k])
		if !ok || gph <= p.Threshold {
			continue
		}
		a := k
		for a > n && exceeds(pts, a-1, n, p.Threshold) {
			a--
		}
		return Event{Kind: KindHighFlow, Anchor: pts[a].t, Magnitude: gph}, true
	}
	return Event{}, false
}

func exceeds(pts []point, k, n int, threshold float64) bool {
	gph, ok := rate(pts[k-n], pts[k])
	return ok && gph > threshold
}

// rate returns gallons per hour between two points.
func rate(from, to point) (float64, bool) {
	hours := to.t.Sub(from.t).Hours()
	if hours <= 0 {
		return 0, false
	}
	return (to.g - from.g) / hours, true
}
