// Package relay drives the valve relay board. The driver is a dumb actuator:
// it sets and reads channels, and the interlock decides what to set.
package relay

// Pin definitions (BCM numbering)
const (
	PinBypass   = 5
	PinOverride = 6
	PinPurge    = 13
)

// Pins maps relay channels to BCM lines.
type Pins struct {
	Bypass   int
	Override int
	Purge    int // 0 when no purge valve is fitted
}

// DefaultPins is the standard board wiring.
var DefaultPins = Pins{Bypass: PinBypass, Override: PinOverride, Purge: PinPurge}
