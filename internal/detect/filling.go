package detect

import (
	"time"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// FillingParams tunes the stopped-filling detector.
type FillingParams struct {
	Window    time.Duration // trailing window of level samples, default 120m
	Threshold float64       // net gain that counts as filling, default 12 gal
}

// DefaultFillingParams returns the production defaults.
func DefaultFillingParams() FillingParams {
	return FillingParams{Window: 120 * time.Minute, Threshold: 12}
}

// Filling computes net level change over the trailing window ending at now
// and whether that counts as filling. ok is false until at least half of
// the window is covered by samples. Sensor noise is smoothed by the window
// length; callers log a STOPPED_FILLING event when filling goes true->false.
func Filling(levels []logic.LevelSample, now time.Time, p FillingParams) (net float64, filling bool, ok bool) {
	cutoff := now.Add(-p.Window)
	first := -1
	for i, s := range levels {
		if !s.Time.Before(cutoff) {
			first = i
			break
		}
	}
	if first < 0 {
		return 0, false, false
	}
	oldest := levels[first]
	newest := levels[len(levels)-1]
	if newest.Time.Sub(oldest.Time) < p.Window/2 {
		return 0, false, false
	}
	net = newest.Gallons - oldest.Gallons
	return net, net >= p.Threshold, true
}
