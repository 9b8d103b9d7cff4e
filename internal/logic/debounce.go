package logic

import "time"

// channelState tracks debounce state for a single binary input.
type channelState struct {
	// Current stable (debounced) state
	stable bool
	// Pending state during debounce
	pending    bool
	hasPending bool
	// Time when pending state was first observed
	pendingSince time.Time
	// Whether we have established a baseline
	baselined bool
}

// Debouncer turns raw samples of a chattering switch into stable transitions.
// With a zero duration the first differing sample is a transition.
type Debouncer struct {
	duration time.Duration
	ch       channelState
}

// NewDebouncer creates a debouncer with the given hold duration.
func NewDebouncer(d time.Duration) *Debouncer {
	return &Debouncer{duration: d}
}

// Process takes a raw sample. It returns changed=true when the stable state
// flips. The transition that establishes the baseline is not reported.
func (d *Debouncer) Process(raw bool, now time.Time) (stable bool, changed bool) {
	ch := &d.ch

	// First time seeing this channel
	if !ch.baselined {
		if !ch.hasPending || ch.pending != raw {
			ch.pending = raw
			ch.hasPending = true
			ch.pendingSince = now
		}
		if now.Sub(ch.pendingSince) >= d.duration {
			ch.stable = raw
			ch.baselined = true
			ch.hasPending = false
		}
		return ch.stable, false
	}

	if raw == ch.stable {
		// No change from stable state, clear any pending
		ch.hasPending = false
		return ch.stable, false
	}

	if !ch.hasPending || ch.pending != raw {
		ch.pending = raw
		ch.hasPending = true
		ch.pendingSince = now
	}

	if now.Sub(ch.pendingSince) >= d.duration {
		ch.stable = raw
		ch.hasPending = false
		return ch.stable, true
	}
	return ch.stable, false
}

// IsBaselined returns whether the debouncer has established a baseline.
func (d *Debouncer) IsBaselined() bool {
	return d.ch.baselined
}

// Stable returns the current debounced state.
func (d *Debouncer) Stable() bool {
	return d.ch.stable
}
