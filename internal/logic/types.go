// Package logic contains pure business logic for tank and well state tracking.
// This package has NO external dependencies (no GPIO, MQTT, HTTP, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of a binary channel (relay or switch).
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// FloatState represents the tank float switch position.
type FloatState string

const (
	FloatCalling FloatState = "CALLING" // float down, tank wants water
	FloatFull    FloatState = "FULL"
	FloatUnknown FloatState = "UNKNOWN"
)

// EventType identifies a discrete state event for the audit log.
type EventType string

const (
	EventPressureHigh    EventType = "PRESSURE_HIGH"
	EventPressureLow     EventType = "PRESSURE_LOW"
	EventTankLevel       EventType = "TANK_LEVEL"
	EventTankFloat       EventType = "TANK_FLOAT"
	EventTankFilling     EventType = "TANK_FILLING"
	EventTankStopped     EventType = "TANK_STOPPED_FILLING"
	EventPurge           EventType = "PURGE"
	EventOverrideOn      EventType = "OVERRIDE_ON"
	EventOverrideOff     EventType = "OVERRIDE_OFF"
	EventBypassOn        EventType = "BYPASS_ON"
	EventBypassOff       EventType = "BYPASS_OFF"
	EventSafetyShutoff   EventType = "SAFETY_SHUTOFF"
	EventRelayRestore    EventType = "RELAY_RESTORE"
	EventSnapshot        EventType = "SNAPSHOT"
	EventShutdown        EventType = "SHUTDOWN"
	EventStartup         EventType = "STARTUP"
	EventRelayWriteError EventType = "RELAY_WRITE_ERROR"
)

// Event is a discrete state change worth logging.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Gallons   *float64 // tank level at the time, when known
	Value     float64  // event-specific: cycle gallons, attempts, level delta
	Detail    string
}

// TankReading is one successful read of the remote tank sensor.
type TankReading struct {
	Gallons float64
	Depth   float64 // inches of water
	Percent float64
	Float   FloatState
	AsOf    time.Time // sensor's own timestamp, not fetch time
}

// Channel names a relay.
type Channel string

const (
	ChannelBypass   Channel = "bypass"
	ChannelOverride Channel = "override"
	ChannelPurge    Channel = "purge"
)

// RelayState is the persisted state of the valve relays.
type RelayState struct {
	Bypass      State     `json:"bypass"`
	Override    State     `json:"override"`
	LastUpdated time.Time `json:"last_updated"`
}

// Get returns the state of the given persisted channel. Unknown channels are OFF.
func (r RelayState) Get(ch Channel) State {
	var s State
	switch ch {
	case ChannelBypass:
		s = r.Bypass
	case ChannelOverride:
		s = r.Override
	}
	if s == "" {
		return StateOff
	}
	return s
}

// With returns a copy of r with channel ch set to s.
func (r RelayState) With(ch Channel, s State, now time.Time) RelayState {
	switch ch {
	case ChannelBypass:
		r.Bypass = s
	case ChannelOverride:
		r.Override = s
	}
	r.LastUpdated = now
	return r
}

// Snapshot is the aggregated record of one fixed-length interval.
// TankGallons is nil when the tank could not be read; it is never zero
// standing in for unknown.
type Snapshot struct {
	Timestamp        time.Time  `json:"timestamp"`
	TankGallons      *float64   `json:"tank_gallons"`
	TankAgeSeconds   *int64     `json:"tank_age_seconds"`
	Float            FloatState `json:"float"`
	FloatEverCalling bool       `json:"float_ever_calling"`
	FloatAlwaysFull  bool       `json:"float_always_full"`
	PressureHighPct  float64    `json:"pressure_high_pct"` // fraction 0..1
	EstimatedGallons float64    `json:"estimated_gallons"`
	PurgeCount       int        `json:"purge_count"`
	Bypass           State      `json:"bypass"`
	Override         State      `json:"override"`
}

// Gallons returns the tank level and whether it was readable.
func (s Snapshot) Gallons() (float64, bool) {
	if s.TankGallons == nil {
		return 0, false
	}
	return *s.TankGallons, true
}

// Input is a single sample of the local switches.
type Input struct {
	Pressure bool // true = pressure switch closed (high)
	Float    FloatState
	Time     time.Time
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// BoolToState maps true to ON.
func BoolToState(b bool) State {
	if b {
		return StateOn
	}
	return StateOff
}

// RelayCommand is a manual relay change requested from outside the control
// loop. The loop applies it between ticks and replies on Result, which must
// be buffered.
type RelayCommand struct {
	Channel Channel
	State   State
	Result  chan error
}
