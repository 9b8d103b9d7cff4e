package detect

import (
	"time"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// StagnationParams tunes the stagnation-recovery detector.
type StagnationParams struct {
	Window   time.Duration // minimum stagnation span, default 6h
	MaxGain  float64       // largest rise allowed inside a stagnant window, default 30 gal
	Recovery float64       // gain since the anchor that counts as recovery, default 50 gal
	FlatBand float64       // anchor is the last point within this of the window low, default 10 gal
}

// DefaultStagnationParams returns the production defaults.
func DefaultStagnationParams() StagnationParams {
	return StagnationParams{Window: 6 * time.Hour, MaxGain: 30, Recovery: 50, FlatBand: 10}
}

// StagnationRecovery scans backward from the newest snapshot for the most
// recent stagnant window and reports a recovery once the level has risen
// Recovery gallons above the window's end.
//
// The anchor belongs to the stagnant window, not to the newest snapshot, so
// it stays fixed for as long as the rise that ended the stagnation is inside
// every later window. A new anchor appears only after a new stagnant window.
func StagnationRecovery(snaps []logic.Snapshot, p StagnationParams) (Event, bool) {
	pts := readable(snaps)
	if len(pts) < 2 {
		return Event{}, false
	}
	newest := pts[len(pts)-1]

	for j := len(pts) - 1; j > 0; j-- {
		i, ok := windowStart(pts, j, p.Window)
		if !ok {
			// Earlier ends have even less history.
			return Event{}, false
		}
		if maxRise(pts[i:j+1]) >= p.MaxGain {
			continue
		}
		a := anchorIndex(pts[i:j+1], p.FlatBand) + i
		gain := newest.g - pts[a].g
		if gain < p.Recovery {
			return Event{}, false
		}
		return Event{Kind: KindStagnationRecovery, Anchor: pts[a].t, Magnitude: gain}, true
	}
	return Event{}, false
}

// windowStart returns the latest index i such that pts[j].t - pts[i].t >= d.
func windowStart(pts []point, j int, d time.Duration) (int, bool) {
	for i := j - 1; i >= 0; i-- {
		if pts[j].t.Sub(pts[i].t) >= d {
			return i, true
		}
	}
	return 0, false
}

// maxRise is the largest gain from a running low to a later point.
func maxRise(pts []point) float64 {
	low := pts[0].g
	var rise float64
	for _, p := range pts[1:] {
		if p.g < low {
			low = p.g
		}
		if r := p.g - low; r > rise {
			rise = r
		}
	}
	return rise
}

// anchorIndex returns the last index whose level is within band of the
// window minimum: the low point where stagnation ends.
func anchorIndex(pts []point, band float64) int {
	low := pts[0].g
	for _, p := range pts {
		if p.g < low {
			low = p.g
		}
	}
	for k := len(pts) - 1; k >= 0; k-- {
		if pts[k].g-low <= band {
			return k
		}
	}
	return 0
}
