package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sweeney/tank-monitor/internal/detect"
)

// FakeSink records alerts for test assertions.
type FakeSink struct {
	mu sync.Mutex

	// Alerts contains all alerts that were accepted.
	Alerts []Alert

	// SendError, if set, will be returned by Send.
	SendError error
}

// Send records the alert.
func (f *FakeSink) Send(ctx context.Context, alert Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}
	f.Alerts = append(f.Alerts, alert)
	return nil
}

// Sent returns a copy of the recorded alerts.
func (f *FakeSink) Sent() []Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Alert(nil), f.Alerts...)
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu    sync.Mutex
	State map[detect.Kind]time.Time

	// SaveError, if set, will be returned by SaveDedup.
	SaveError error
	Saves     int
}

// LoadDedup returns a copy of the stored state.
func (m *MemoryStore) LoadDedup() (map[detect.Kind]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[detect.Kind]time.Time, len(m.State))
	for k, v := range m.State {
		out[k] = v
	}
	return out, nil
}

// SaveDedup replaces the stored state.
func (m *MemoryStore) SaveDedup(state map[detect.Kind]time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveError != nil {
		return m.SaveError
	}
	if state == nil {
		return errors.New("nil state")
	}
	m.State = state
	m.Saves++
	return nil
}
