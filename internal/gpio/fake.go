package gpio

import (
	"errors"
	"sync"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// FakeReader returns scripted switch samples.
type FakeReader struct {
	mu sync.Mutex

	// Samples are consumed one per Read; the last one repeats.
	Samples []Sample
	index   int

	Closed    bool
	ReadError error
}

// Sample is one logical switch reading.
type Sample struct {
	Pressure bool
	Float    logic.FloatState
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeReader) Read() (bool, logic.FloatState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, logic.FloatUnknown, f.ReadError
	}
	if len(f.Samples) == 0 {
		return false, logic.FloatUnknown, errors.New("no samples configured")
	}

	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	if s.Float == "" {
		s.Float = logic.FloatUnknown
	}
	return s.Pressure, s.Float, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset rewinds to the first sample.
func (f *FakeReader) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.index = 0
	f.Closed = false
}
