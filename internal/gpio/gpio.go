// Package gpio reads the well pressure switch and the tank float switch.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "github.com/sweeney/tank-monitor/internal/logic"

// Reader reads the local switch inputs.
type Reader interface {
	// Read returns the logical pressure state (true = switch closed, well
	// pumping) and the float position. Both switches close to ground, so
	// raw 0 = closed.
	Read() (bool, logic.FloatState, error)

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	PinPressure = 17
	PinFloat    = 27 // 0 disables the local float input
)
