// Package notify turns detector events into alerts, at most once per anchor.
package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/tank-monitor/internal/detect"
)

// Store persists the last reported anchor per detector.
type Store interface {
	LoadDedup() (map[detect.Kind]time.Time, error)
	SaveDedup(map[detect.Kind]time.Time) error
}

// Dedup remembers which anchor each detector last reported. Correctness
// relies entirely on detectors returning stable anchors.
type Dedup struct {
	mu    sync.Mutex
	store Store
	last  map[detect.Kind]time.Time
	dirty bool // in-memory state not yet confirmed on disk
}

// NewDedup loads persisted state once. A missing store file is an empty state.
func NewDedup(store Store) (*Dedup, error) {
	last, err := store.LoadDedup()
	if err != nil {
		return nil, fmt.Errorf("load dedup state: %w", err)
	}
	if last == nil {
		last = make(map[detect.Kind]time.Time)
	}
	return &Dedup{store: store, last: last}, nil
}

// ShouldReport reports whether anchor is strictly newer than the last one
// reported for kind. It does not change state.
func (d *Dedup) ShouldReport(kind detect.Kind, anchor time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, ok := d.last[kind]
	return !ok || anchor.After(prev)
}

// MarkReported records anchor for kind and writes the whole map to the store.
// The in-memory mark holds even if the write fails, so the alert is not
// repeated by this process; the write is retried by Flush.
func (d *Dedup) MarkReported(kind detect.Kind, anchor time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last[kind] = anchor
	d.dirty = true
	return d.saveLocked()
}

// Flush retries a failed write. It is a no-op when nothing is pending.
func (d *Dedup) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.dirty {
		return nil
	}
	return d.saveLocked()
}

// Pending reports whether a write is outstanding.
func (d *Dedup) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// Last returns the last reported anchor for kind.
func (d *Dedup) Last(kind detect.Kind) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.last[kind]
	return t, ok
}

func (d *Dedup) saveLocked() error {
	cp := make(map[detect.Kind]time.Time, len(d.last))
	for k, v := range d.last {
		cp[k] = v
	}
	if err := d.store.SaveDedup(cp); err != nil {
		return fmt.Errorf("save dedup state: %w", err)
	}
	d.dirty = false
	return nil
}
