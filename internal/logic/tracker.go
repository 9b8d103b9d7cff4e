package logic

import (
	"fmt"
	"math"
	"time"
)

// TrackerConfig tunes the event tracker.
type TrackerConfig struct {
	Debounce         time.Duration // pressure switch debounce
	Volume           VolumeModel
	SnapshotInterval time.Duration // wall-clock grid, default 15m
	LevelEpsilon     float64       // gallons; smaller changes are not logged
	StaleAfter       time.Duration // readings older than this snapshot as unknown
	LevelRetention   time.Duration // how much recent level history to keep
}

// DefaultTrackerConfig returns the production defaults.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Volume:           DefaultVolumeModel,
		SnapshotInterval: 15 * time.Minute,
		LevelEpsilon:     2,
		StaleAfter:       30 * time.Minute,
		LevelRetention:   6 * time.Hour,
	}
}

// LevelSample is one tank level observation, keyed by the sensor's as-of time.
type LevelSample struct {
	Time    time.Time
	Gallons float64
}

// interval accumulates everything that goes into the next snapshot.
type interval struct {
	start        time.Time
	pressureHigh time.Duration
	gallons      float64
	purges       int
	samples      int
	everCalling  bool
	alwaysFull   bool
}

func newInterval(start time.Time) interval {
	return interval{start: start, alwaysFull: true}
}

// Tracker folds switch samples and tank readings into state events and
// periodic snapshots. Not safe for concurrent use; the control loop owns it.
type Tracker struct {
	cfg      TrackerConfig
	pressure *Debouncer

	cycleOpen  bool
	cycleStart time.Time
	highMark   time.Time // start of pressure-high time not yet accumulated
	cycles     int

	cur          interval
	nextSnapshot time.Time
	lastStamp    time.Time

	tank        *TankReading
	loggedLevel *float64
	tankFloat   FloatState
	float       FloatState
	levels      []LevelSample
}

// NewTracker creates a tracker whose first interval starts at start.
func NewTracker(cfg TrackerConfig, start time.Time) *Tracker {
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = 15 * time.Minute
	}
	return &Tracker{
		cfg:          cfg,
		pressure:     NewDebouncer(cfg.Debounce),
		cur:          newInterval(start),
		nextSnapshot: NextBoundary(start, cfg.SnapshotInterval),
		float:        FloatUnknown,
		tankFloat:    FloatUnknown,
	}
}

// ProcessInput handles one tick of local switch samples and returns any
// pressure transition events.
func (t *Tracker) ProcessInput(in Input) []Event {
	f := in.Float
	if f == "" || f == FloatUnknown {
		f = t.tankFloat
	}
	t.float = f
	t.cur.samples++
	if f == FloatCalling {
		t.cur.everCalling = true
	}
	if f != FloatFull {
		t.cur.alwaysFull = false
	}

	wasBaselined := t.pressure.IsBaselined()
	high, changed := t.pressure.Process(in.Pressure, in.Time)

	// A switch already high when the baseline settles is an open cycle.
	if !wasBaselined && t.pressure.IsBaselined() && high {
		t.openCycle(in.Time)
		return []Event{t.event(in.Time, EventPressureHigh, 0, "high at startup")}
	}
	if !changed {
		return nil
	}
	if high {
		t.openCycle(in.Time)
		return []Event{t.event(in.Time, EventPressureHigh, 0, "")}
	}
	return []Event{t.closeCycle(in.Time)}
}

func (t *Tracker) openCycle(now time.Time) {
	t.cycleOpen = true
	t.cycleStart = now
	t.highMark = now
}

func (t *Tracker) closeCycle(now time.Time) Event {
	dur := now.Sub(t.cycleStart)
	est := t.cfg.Volume.EstimateGallons(dur)
	t.cur.pressureHigh += now.Sub(t.highMark)
	t.cur.gallons += est
	t.cycleOpen = false
	t.cycles++
	return t.event(now, EventPressureLow, est, fmt.Sprintf("duration=%s", dur.Truncate(time.Second)))
}

// ObserveTank records a successful tank read and returns level and float
// events for changes since the last logged values.
func (t *Tracker) ObserveTank(r TankReading) []Event {
	if t.tank != nil && !r.AsOf.After(t.tank.AsOf) {
		// Same sensor reading re-served; level history is keyed by as-of.
		t.tank = &r
		return nil
	}
	t.tank = &r
	t.appendLevel(LevelSample{Time: r.AsOf, Gallons: r.Gallons})

	var events []Event
	if t.loggedLevel == nil || math.Abs(r.Gallons-*t.loggedLevel) > t.cfg.LevelEpsilon {
		var delta float64
		if t.loggedLevel != nil {
			delta = r.Gallons - *t.loggedLevel
		}
		t.loggedLevel = Float64(r.Gallons)
		events = append(events, t.event(r.AsOf, EventTankLevel, delta, ""))
	}
	if r.Float != "" && r.Float != t.tankFloat {
		prev := t.tankFloat
		t.tankFloat = r.Float
		events = append(events, t.event(r.AsOf, EventTankFloat, 0, fmt.Sprintf("%s -> %s", prev, r.Float)))
	}
	return events
}

func (t *Tracker) appendLevel(s LevelSample) {
	t.levels = append(t.levels, s)
	if t.cfg.LevelRetention <= 0 {
		return
	}
	cutoff := s.Time.Add(-t.cfg.LevelRetention)
	i := 0
	for i < len(t.levels) && t.levels[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.levels = append(t.levels[:0], t.levels[i:]...)
	}
}

// RecordPurge counts a filter purge in the current interval.
func (t *Tracker) RecordPurge(now time.Time) Event {
	t.cur.purges++
	return t.event(now, EventPurge, float64(t.cur.purges), "")
}

// SnapshotDue reports whether now has crossed the next grid boundary.
func (t *Tracker) SnapshotDue(now time.Time) bool {
	return !now.Before(t.nextSnapshot)
}

// TakeSnapshot closes the current interval. The snapshot is stamped with the
// grid boundary that was crossed; the next boundary is computed from now.
func (t *Tracker) TakeSnapshot(now time.Time, relays RelayState) Snapshot {
	snap := t.build(t.nextSnapshot, now, relays)
	t.lastStamp = snap.Timestamp
	t.cur = newInterval(now)
	t.nextSnapshot = NextBoundary(now, t.cfg.SnapshotInterval)
	return snap
}

// Close ends the tracker at shutdown: any open pressure cycle is closed with
// an estimate and a final off-grid snapshot is returned. The final snapshot
// is stamped strictly after the last grid snapshot, even when shutdown lands
// on the boundary itself.
func (t *Tracker) Close(now time.Time, relays RelayState) (Snapshot, []Event) {
	var events []Event
	if t.cycleOpen {
		events = append(events, t.closeCycle(now))
	}
	ts := now
	if !ts.After(t.lastStamp) {
		ts = t.lastStamp.Add(time.Nanosecond)
	}
	snap := t.build(ts, now, relays)
	t.cur = newInterval(now)
	return snap, events
}

func (t *Tracker) build(ts, now time.Time, relays RelayState) Snapshot {
	if t.cycleOpen {
		t.cur.pressureHigh += now.Sub(t.highMark)
		t.highMark = now
	}
	var pct float64
	if elapsed := now.Sub(t.cur.start); elapsed > 0 {
		pct = math.Min(1, float64(t.cur.pressureHigh)/float64(elapsed))
	}

	snap := Snapshot{
		Timestamp:        ts,
		Float:            t.float,
		FloatEverCalling: t.cur.everCalling,
		FloatAlwaysFull:  t.cur.samples > 0 && t.cur.alwaysFull,
		PressureHighPct:  pct,
		EstimatedGallons: t.cur.gallons,
		PurgeCount:       t.cur.purges,
		Bypass:           relays.Get(ChannelBypass),
		Override:         relays.Get(ChannelOverride),
	}
	if t.tank != nil {
		age := now.Sub(t.tank.AsOf)
		secs := int64(age.Seconds())
		snap.TankAgeSeconds = &secs
		if t.cfg.StaleAfter <= 0 || age <= t.cfg.StaleAfter {
			snap.TankGallons = Float64(t.tank.Gallons)
		}
	}
	return snap
}

func (t *Tracker) event(ts time.Time, typ EventType, value float64, detail string) Event {
	e := Event{Timestamp: ts, Type: typ, Value: value, Detail: detail}
	if t.tank != nil {
		e.Gallons = Float64(t.tank.Gallons)
	}
	return e
}

// Tank returns the latest tank reading, or nil if none has succeeded yet.
func (t *Tracker) Tank() *TankReading {
	return t.tank
}

// Levels returns recent tank level samples, oldest first.
func (t *Tracker) Levels() []LevelSample {
	return t.levels
}

// Baselined reports whether the pressure switch has settled since startup.
func (t *Tracker) Baselined() bool {
	return t.pressure.IsBaselined()
}

// Pressure returns the debounced pressure switch state.
func (t *Tracker) Pressure() bool {
	return t.pressure.Stable()
}

// Float returns the most recent float state.
func (t *Tracker) Float() FloatState {
	return t.float
}

// CycleOpen reports whether a pressure cycle is in progress.
func (t *Tracker) CycleOpen() bool {
	return t.cycleOpen
}

// Cycles returns the number of completed pressure cycles.
func (t *Tracker) Cycles() int {
	return t.cycles
}

// NextSnapshot returns the next grid boundary.
func (t *Tracker) NextSnapshot() time.Time {
	return t.nextSnapshot
}
