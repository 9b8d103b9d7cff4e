//go:build !linux

package relay

import (
	"errors"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// RealDriver is not available on non-Linux platforms.
type RealDriver struct{}

// NewRealDriver returns an error on non-Linux platforms.
func NewRealDriver(pins Pins) (*RealDriver, error) {
	return nil, errors.New("relay: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (d *RealDriver) Set(ch logic.Channel, s logic.State) error {
	return errors.New("relay: not supported")
}

// Get is not implemented on non-Linux platforms.
func (d *RealDriver) Get(ch logic.Channel) (logic.State, error) {
	return logic.StateOff, errors.New("relay: not supported")
}

// Close is not implemented on non-Linux platforms.
func (d *RealDriver) Close() error {
	return nil
}
