// Package status provides a thread-safe status view of the tank monitor.
// The control loop writes it; HTTP handlers and MQTT heartbeats read copies.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/tank-monitor/internal/detect"
	"github.com/sweeney/tank-monitor/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs      int64
	PollMs      int64
	SnapshotMs  int64
	Broker      string
	HTTPPort    string
	TankURL     string
	StateDir    string
	MaxFailures int
}

// Loop is the part of the status owned by the control loop, replaced
// wholesale on every tick.
type Loop struct {
	Baselined    bool
	Pressure     bool
	CycleOpen    bool
	Cycles       int
	Float        logic.FloatState
	Tank         *logic.TankReading
	ReadFailures int
	Relays       logic.RelayState
	Filling      bool
	FillingNet   *float64
	NextSnapshot time.Time
}

// Detection is the last result of one detector.
type Detection struct {
	Anchor    time.Time
	Magnitude float64
	Outcome   string
	At        time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; safe to use after the lock is released.
type Snapshot struct {
	Loop
	LastSnapshot  *logic.Snapshot
	Detections    map[detect.Kind]Detection
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// TankAge returns the age of the tank reading at Now, or false if none.
func (s Snapshot) TankAge() (time.Duration, bool) {
	if s.Tank == nil {
		return 0, false
	}
	return s.Now.Sub(s.Tank.AsOf), true
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:  startTime,
			Config:     cfg,
			Detections: make(map[detect.Kind]Detection),
		},
		now: time.Now,
	}
}

// SetClock replaces the clock used to stamp Snapshot.Now.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Update replaces the loop-owned state. Called from the control loop on
// every tick.
func (t *Tracker) Update(l Loop) {
	if l.Tank != nil {
		r := *l.Tank
		l.Tank = &r
	}
	t.mu.Lock()
	t.snap.Loop = l
	t.mu.Unlock()
}

// SetLastSnapshot records the most recent interval snapshot.
func (t *Tracker) SetLastSnapshot(s logic.Snapshot) {
	t.mu.Lock()
	t.snap.LastSnapshot = &s
	t.mu.Unlock()
}

// RecordDetection stores a detector result and what the notifier did with it.
func (t *Tracker) RecordDetection(ev detect.Event, outcome string, at time.Time) {
	t.mu.Lock()
	t.snap.Detections[ev.Kind] = Detection{Anchor: ev.Anchor, Magnitude: ev.Magnitude, Outcome: outcome, At: at}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Detections = make(map[detect.Kind]Detection, len(t.snap.Detections))
	for k, v := range t.snap.Detections {
		s.Detections[k] = v
	}
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}
