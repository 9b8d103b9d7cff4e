//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/sweeney/tank-monitor/internal/logic"
	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the switches from Raspberry Pi hardware.
type RealReader struct {
	chip     *gpiocdev.Chip
	pressure *gpiocdev.Line
	float    *gpiocdev.Line // nil when no float switch is wired locally
}

// NewRealReader requests the input lines. pinFloat <= 0 leaves the float
// unread; Read then reports FloatUnknown.
func NewRealReader(pinPressure, pinFloat int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Switches close to ground; the pull-up holds an open switch high.
	pl, err := chip.RequestLine(pinPressure, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request pressure pin %d: %w", pinPressure, err)
	}

	r := &RealReader{chip: chip, pressure: pl}
	if pinFloat > 0 {
		fl, err := chip.RequestLine(pinFloat, gpiocdev.AsInput, gpiocdev.WithPullUp)
		if err != nil {
			pl.Close()
			chip.Close()
			return nil, fmt.Errorf("request float pin %d: %w", pinFloat, err)
		}
		r.float = fl
	}
	return r, nil
}

// Read returns the pressure and float states.
func (r *RealReader) Read() (bool, logic.FloatState, error) {
	raw, err := r.pressure.Value()
	if err != nil {
		return false, logic.FloatUnknown, fmt.Errorf("read pressure pin: %w", err)
	}
	pressure := raw == 0

	if r.float == nil {
		return pressure, logic.FloatUnknown, nil
	}
	fraw, err := r.float.Value()
	if err != nil {
		return pressure, logic.FloatUnknown, fmt.Errorf("read float pin: %w", err)
	}
	// Float down closes the switch: the tank is calling for water.
	if fraw == 0 {
		return pressure, logic.FloatCalling, nil
	}
	return pressure, logic.FloatFull, nil
}

// Close returns the pins to input with pull-down (the Pi boot default)
// before releasing them.
func (r *RealReader) Close() error {
	var errs []error
	for name, line := range map[string]*gpiocdev.Line{"pressure": r.pressure, "float": r.float} {
		if line == nil {
			continue
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}
