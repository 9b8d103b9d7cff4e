package monitor

import (
	"log"
	"sync"
	"time"

	"github.com/sweeney/tank-monitor/internal/config"
	"github.com/sweeney/tank-monitor/internal/interlock"
	"github.com/sweeney/tank-monitor/internal/logic"
)

// Purger pulses the filter purge valve in the background so a purge never
// holds up the control loop.
type Purger struct {
	driver interlock.Driver

	mu      sync.Mutex
	last    time.Time
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewPurger creates a purger on driver's purge channel.
func NewPurger(driver interlock.Driver) *Purger {
	return &Purger{driver: driver, stop: make(chan struct{})}
}

// Trigger starts a purge unless purging is disabled, one is already running,
// or the last one started less than MinInterval ago.
func (p *Purger) Trigger(now time.Time, s config.PurgeSettings) bool {
	if !s.Enabled || s.Duration <= 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || (!p.last.IsZero() && now.Sub(p.last) < s.MinInterval) {
		return false
	}
	select {
	case <-p.stop:
		return false
	default:
	}
	p.running = true
	p.last = now
	p.wg.Add(1)
	go p.pulse(s.Duration)
	return true
}

func (p *Purger) pulse(d time.Duration) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	if err := p.driver.Set(logic.ChannelPurge, logic.StateOn); err != nil {
		log.Printf("purge start error: %v", err)
		return
	}
	t := time.NewTimer(d)
	select {
	case <-t.C:
	case <-p.stop:
		t.Stop()
	}
	if err := p.driver.Set(logic.ChannelPurge, logic.StateOff); err != nil {
		log.Printf("purge stop error: %v", err)
	}
}

// Running reports whether a purge is in progress.
func (p *Purger) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stop cuts any running purge short and waits for the valve to close.
// Later triggers are ignored.
func (p *Purger) Stop() {
	p.mu.Lock()
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
