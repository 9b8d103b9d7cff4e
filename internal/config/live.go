package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Live is the current settings behind an atomically swapped pointer.
// Readers never see a partially updated Settings.
type Live struct {
	path string
	cur  atomic.Pointer[Settings]

	mu    sync.Mutex // serializes Reload
	mtime time.Time
}

// NewLive returns a Live holding s, with no backing file.
func NewLive(s *Settings) *Live {
	l := &Live{}
	l.cur.Store(s)
	return l
}

// LoadLive reads path. A missing file yields the defaults and is picked up
// by Reload once it appears; an invalid file is an error at startup.
func LoadLive(path string) (*Live, error) {
	l := &Live{path: path}
	l.cur.Store(Default())
	if path == "" {
		return l, nil
	}
	if _, err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Get returns the current settings. The result must not be modified.
func (l *Live) Get() *Settings {
	return l.cur.Load()
}

// Set replaces the current settings.
func (l *Live) Set(s *Settings) {
	l.cur.Store(s)
}

// Reload re-reads the file if its modification time changed. On a parse or
// validation error the previous settings stay in effect.
func (l *Live) Reload() (changed bool, err error) {
	if l.path == "" {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	fi, err := os.Stat(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat settings: %w", err)
	}
	if fi.ModTime().Equal(l.mtime) {
		return false, nil
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return false, fmt.Errorf("read settings: %w", err)
	}
	// Record the mtime before parsing so a bad file is reported once, not
	// on every poll.
	l.mtime = fi.ModTime()
	s, err := Parse(data)
	if err != nil {
		return false, err
	}
	l.cur.Store(s)
	return true, nil
}

// Watch polls the file every interval until ctx is done.
func (l *Live) Watch(ctx context.Context, interval time.Duration) {
	if l.path == "" || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			changed, err := l.Reload()
			if err != nil {
				log.Printf("settings reload error: %v (keeping previous settings)", err)
				continue
			}
			if changed {
				s := l.Get()
				log.Printf("settings reloaded: turn_on_below=%s turn_off_at=%s", fmtGallons(s.Relay.TurnOnBelow), fmtGallons(s.Relay.TurnOffAt))
			}
		}
	}
}

func fmtGallons(v *float64) string {
	if v == nil {
		return "off"
	}
	return fmt.Sprintf("%.0f", *v)
}
