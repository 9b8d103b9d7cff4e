package relay

import (
	"sync"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// Write is one recorded Set call.
type Write struct {
	Channel logic.Channel
	State   logic.State
}

// FakeDriver records writes and holds channel state in memory.
type FakeDriver struct {
	mu     sync.Mutex
	states map[logic.Channel]logic.State
	writes []Write

	// SetError, if set, fails every Set without changing state.
	SetError error
	Closed   bool
}

// NewFakeDriver creates a driver with every channel OFF.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{states: make(map[logic.Channel]logic.State)}
}

// Set records the write and updates the channel.
func (f *FakeDriver) Set(ch logic.Channel, s logic.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.states[ch] = s
	f.writes = append(f.writes, Write{Channel: ch, State: s})
	return nil
}

// Get returns the channel state.
func (f *FakeDriver) Get(ch logic.Channel) (logic.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[ch]; ok {
		return s, nil
	}
	return logic.StateOff, nil
}

// SetFailing changes SetError under the lock, for use while another
// goroutine may be writing.
func (f *FakeDriver) SetFailing(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetError = err
}

// Writes returns a copy of the successful writes.
func (f *FakeDriver) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// WritesTo returns the successful writes to one channel.
func (f *FakeDriver) WritesTo(ch logic.Channel) []logic.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []logic.State
	for _, w := range f.writes {
		if w.Channel == ch {
			out = append(out, w.State)
		}
	}
	return out
}

// Close marks the driver closed.
func (f *FakeDriver) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
