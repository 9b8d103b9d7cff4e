// Package interlock owns the override and bypass valve relays. It is the
// only writer of relay state: level-driven auto-on/auto-off, the forced
// shutoff when tank data is lost, and manual commands all go through it.
package interlock

import (
	"fmt"
	"log"
	"time"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// DefaultMaxFailures is the number of consecutive failed tank reads that
// forces the override valve off.
const DefaultMaxFailures = 3

// Driver sets and reads relay channels.
type Driver interface {
	Set(ch logic.Channel, s logic.State) error
	Get(ch logic.Channel) (logic.State, error)
}

// Store persists relay state across restarts.
type Store interface {
	LoadRelay() (logic.RelayState, bool, error)
	SaveRelay(logic.RelayState) error
}

// Thresholds are the live auto-on/auto-off levels in gallons. A nil field
// disables that rule.
type Thresholds struct {
	TurnOnBelow *float64
	TurnOffAt   *float64
}

// Interlock tracks tank read health and drives the relays. Not safe for
// concurrent use; the control loop owns it.
type Interlock struct {
	driver      Driver
	store       Store
	maxFailures int

	state    logic.RelayState
	failures int
}

// New creates an interlock. Call Restore before the first Evaluate.
func New(driver Driver, store Store, maxFailures int) (*Interlock, error) {
	if driver == nil {
		return nil, fmt.Errorf("interlock: nil driver")
	}
	if store == nil {
		return nil, fmt.Errorf("interlock: nil store")
	}
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &Interlock{
		driver:      driver,
		store:       store,
		maxFailures: maxFailures,
		state:       logic.RelayState{Bypass: logic.StateOff, Override: logic.StateOff},
	}, nil
}

// Restore loads the persisted relay state and re-applies it to hardware so a
// restart does not drop an open valve. A channel whose write fails takes the
// state read back from the driver.
func (i *Interlock) Restore(now time.Time) []logic.Event {
	saved, ok, err := i.store.LoadRelay()
	if err != nil {
		log.Printf("relay state load error: %v (defaulting to OFF)", err)
	}
	if !ok || err != nil {
		saved = logic.RelayState{Bypass: logic.StateOff, Override: logic.StateOff}
	}

	for _, ch := range []logic.Channel{logic.ChannelBypass, logic.ChannelOverride} {
		want := saved.Get(ch)
		if err := i.driver.Set(ch, want); err != nil {
			log.Printf("relay restore %s=%s failed: %v", ch, want, err)
			got, gerr := i.driver.Get(ch)
			if gerr != nil {
				got = logic.StateOff
			}
			want = got
		}
		i.state = i.state.With(ch, want, now)
	}

	detail := fmt.Sprintf("bypass=%s override=%s", i.state.Bypass, i.state.Override)
	if ok {
		detail += " (persisted)"
	}
	log.Printf("relay restore: %s", detail)
	return []logic.Event{{Timestamp: now, Type: logic.EventRelayRestore, Detail: detail}}
}

// RecordRead updates the consecutive read-failure counter.
func (i *Interlock) RecordRead(ok bool) {
	if ok {
		i.failures = 0
		return
	}
	i.failures++
}

// Evaluate applies the control rules for one tick in priority order:
// read-failure shutoff, auto-on, auto-off. gallons is nil when the tank
// level is unknown. Auto rules run only when no read has failed since the
// last success.
func (i *Interlock) Evaluate(now time.Time, gallons *float64, th Thresholds) []logic.Event {
	if i.failures >= i.maxFailures && i.state.Override == logic.StateOn {
		attempts := i.failures
		events := i.apply(now, logic.ChannelOverride, logic.StateOff, logic.EventSafetyShutoff,
			fmt.Sprintf("tank unreadable after %d attempts", attempts))
		if i.state.Override == logic.StateOff {
			events[0].Value = float64(attempts)
			log.Printf("SAFETY: override forced OFF after %d failed tank reads", attempts)
			i.failures = 0
		}
		return events
	}

	if gallons == nil || i.failures > 0 {
		return nil
	}

	var events []logic.Event
	if th.TurnOnBelow != nil && i.state.Override == logic.StateOff && *gallons < *th.TurnOnBelow {
		events = append(events, i.apply(now, logic.ChannelOverride, logic.StateOn, logic.EventOverrideOn,
			fmt.Sprintf("auto-on: %.0f < %.0f", *gallons, *th.TurnOnBelow))...)
	}
	if th.TurnOffAt != nil && i.state.Override == logic.StateOn && *gallons >= *th.TurnOffAt {
		events = append(events, i.apply(now, logic.ChannelOverride, logic.StateOff, logic.EventOverrideOff,
			fmt.Sprintf("auto-off: %.0f >= %.0f", *gallons, *th.TurnOffAt))...)
	}
	return events
}

// Command applies a manual relay change.
func (i *Interlock) Command(now time.Time, ch logic.Channel, s logic.State) ([]logic.Event, error) {
	var typ logic.EventType
	switch {
	case ch == logic.ChannelOverride && s == logic.StateOn:
		typ = logic.EventOverrideOn
	case ch == logic.ChannelOverride && s == logic.StateOff:
		typ = logic.EventOverrideOff
	case ch == logic.ChannelBypass && s == logic.StateOn:
		typ = logic.EventBypassOn
	case ch == logic.ChannelBypass && s == logic.StateOff:
		typ = logic.EventBypassOff
	default:
		return nil, fmt.Errorf("unsupported relay command %s=%s", ch, s)
	}
	events := i.apply(now, ch, s, typ, "manual")
	if i.state.Get(ch) != s {
		return events, fmt.Errorf("relay %s write failed", ch)
	}
	return events, nil
}

// apply writes one channel. State changes in memory only after the driver
// confirms the write; a persistence failure is logged and the in-memory state
// still holds.
func (i *Interlock) apply(now time.Time, ch logic.Channel, s logic.State, typ logic.EventType, detail string) []logic.Event {
	if err := i.driver.Set(ch, s); err != nil {
		log.Printf("relay write error: %s=%s: %v", ch, s, err)
		return []logic.Event{{Timestamp: now, Type: logic.EventRelayWriteError, Detail: fmt.Sprintf("%s=%s: %v", ch, s, err)}}
	}
	i.state = i.state.With(ch, s, now)
	if err := i.store.SaveRelay(i.state); err != nil {
		log.Printf("relay state save error: %v", err)
	}
	log.Printf("relay %s -> %s (%s)", ch, s, detail)
	return []logic.Event{{Timestamp: now, Type: typ, Detail: detail}}
}

// State returns the current relay state.
func (i *Interlock) State() logic.RelayState {
	return i.state
}

// Failures returns the consecutive tank read failure count.
func (i *Interlock) Failures() int {
	return i.failures
}
