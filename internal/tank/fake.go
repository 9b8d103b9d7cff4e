package tank

import (
	"context"
	"errors"
	"sync"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// Result is one scripted fetch outcome.
type Result struct {
	Reading logic.TankReading
	Err     error
}

// FakeFetcher returns scripted results; the last one repeats.
type FakeFetcher struct {
	mu      sync.Mutex
	Results []Result
	index   int
	calls   int
}

// NewFakeFetcher creates a FakeFetcher.
func NewFakeFetcher(results ...Result) *FakeFetcher {
	return &FakeFetcher{Results: results}
}

// Fetch returns the next scripted result.
func (f *FakeFetcher) Fetch(ctx context.Context) (logic.TankReading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := ctx.Err(); err != nil {
		return logic.TankReading{}, err
	}
	if len(f.Results) == 0 {
		return logic.TankReading{}, errors.New("no results configured")
	}
	r := f.Results[f.index]
	if f.index < len(f.Results)-1 {
		f.index++
	}
	return r.Reading, r.Err
}

// Calls returns the number of Fetch calls.
func (f *FakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
