//go:build linux

package relay

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sweeney/tank-monitor/internal/logic"
	"github.com/warthog618/go-gpiocdev"
)

// RealDriver drives relay outputs through the GPIO character device.
// The board is active-high: line value 1 energizes the relay.
// Writes are serialized so the purge runner and the control loop can share it.
type RealDriver struct {
	mu    sync.Mutex
	chip  *gpiocdev.Chip
	lines map[logic.Channel]*gpiocdev.Line
}

// NewRealDriver requests every configured channel as an output, initially
// de-energized.
func NewRealDriver(pins Pins) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	d := &RealDriver{chip: chip, lines: make(map[logic.Channel]*gpiocdev.Line)}
	for ch, pin := range map[logic.Channel]int{
		logic.ChannelBypass:   pins.Bypass,
		logic.ChannelOverride: pins.Override,
		logic.ChannelPurge:    pins.Purge,
	} {
		if pin <= 0 {
			continue
		}
		line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", ch, pin, err)
		}
		d.lines[ch] = line
	}
	return d, nil
}

// Set energizes (ON) or releases (OFF) a channel.
func (d *RealDriver) Set(ch logic.Channel, s logic.State) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	line, ok := d.lines[ch]
	if !ok {
		return fmt.Errorf("relay %s not configured", ch)
	}
	v := 0
	if s == logic.StateOn {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("set %s: %w", ch, err)
	}
	return nil
}

// Get reads back a channel's output value.
func (d *RealDriver) Get(ch logic.Channel) (logic.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	line, ok := d.lines[ch]
	if !ok {
		return logic.StateOff, fmt.Errorf("relay %s not configured", ch)
	}
	v, err := line.Value()
	if err != nil {
		return logic.StateOff, fmt.Errorf("read %s: %w", ch, err)
	}
	return logic.BoolToState(v == 1), nil
}

// Close releases the lines as inputs with pull-down, which drops the relays.
func (d *RealDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for ch, line := range d.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", ch, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", ch, err))
		}
	}
	d.lines = nil
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		d.chip = nil
	}
	return errors.Join(errs...)
}
