package logic

import (
	"math"
	"testing"
	"time"
)

var trackerStart = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestTracker() *Tracker {
	cfg := DefaultTrackerConfig()
	cfg.Volume = VolumeModel{ResidualPressure: 30 * time.Second, GallonsPerSecond: 0.5}
	return NewTracker(cfg, trackerStart)
}

func feed(tr *Tracker, from time.Time, n int, step time.Duration, pressure bool, float FloatState) []Event {
	var events []Event
	for i := 0; i < n; i++ {
		events = append(events, tr.ProcessInput(Input{Pressure: pressure, Float: float, Time: from.Add(time.Duration(i) * step)})...)
	}
	return events
}

func TestTrackerPressureCycle(t *testing.T) {
	tr := newTestTracker()
	step := 5 * time.Second

	events := feed(tr, trackerStart, 2, step, false, FloatCalling)
	if len(events) != 0 {
		t.Fatalf("expected no events at baseline, got %d", len(events))
	}

	high := trackerStart.Add(10 * time.Second)
	events = tr.ProcessInput(Input{Pressure: true, Float: FloatCalling, Time: high})
	if len(events) != 1 || events[0].Type != EventPressureHigh {
		t.Fatalf("expected PRESSURE_HIGH, got %+v", events)
	}
	if !tr.CycleOpen() {
		t.Fatal("expected open cycle")
	}

	low := high.Add(90 * time.Second)
	events = tr.ProcessInput(Input{Pressure: false, Float: FloatCalling, Time: low})
	if len(events) != 1 || events[0].Type != EventPressureLow {
		t.Fatalf("expected PRESSURE_LOW, got %+v", events)
	}
	// (90s - 30s residual) * 0.5 gal/s
	if events[0].Value != 30 {
		t.Errorf("cycle estimate: got %v, want 30", events[0].Value)
	}
	if tr.Cycles() != 1 {
		t.Errorf("Cycles: got %d, want 1", tr.Cycles())
	}

	snap := tr.TakeSnapshot(trackerStart.Add(15*time.Minute), RelayState{})
	if snap.EstimatedGallons != 30 {
		t.Errorf("snapshot gallons: got %v, want 30", snap.EstimatedGallons)
	}
	wantPct := 90.0 / (15 * 60)
	if math.Abs(snap.PressureHighPct-wantPct) > 1e-9 {
		t.Errorf("pressure pct: got %v, want %v", snap.PressureHighPct, wantPct)
	}
}

func TestTrackerShortCycleEstimatesZero(t *testing.T) {
	tr := newTestTracker()
	tr.ProcessInput(Input{Pressure: false, Time: trackerStart})
	tr.ProcessInput(Input{Pressure: true, Time: trackerStart.Add(5 * time.Second)})
	events := tr.ProcessInput(Input{Pressure: false, Time: trackerStart.Add(25 * time.Second)})
	if len(events) != 1 || events[0].Value != 0 {
		t.Fatalf("expected zero-gallon PRESSURE_LOW, got %+v", events)
	}
}

func TestTrackerHighAtStartupOpensCycle(t *testing.T) {
	tr := newTestTracker()
	events := tr.ProcessInput(Input{Pressure: true, Time: trackerStart})
	if len(events) != 1 || events[0].Type != EventPressureHigh {
		t.Fatalf("expected PRESSURE_HIGH at baseline, got %+v", events)
	}
	if !tr.CycleOpen() {
		t.Error("expected open cycle")
	}
}

func TestTrackerOpenCycleSpansSnapshots(t *testing.T) {
	tr := newTestTracker()
	tr.ProcessInput(Input{Pressure: false, Time: trackerStart})
	tr.ProcessInput(Input{Pressure: true, Time: trackerStart.Add(10 * time.Minute)})

	first := tr.TakeSnapshot(trackerStart.Add(15*time.Minute), RelayState{})
	if math.Abs(first.PressureHighPct-5.0/15) > 1e-9 {
		t.Errorf("first pct: got %v, want %v", first.PressureHighPct, 5.0/15)
	}
	if first.EstimatedGallons != 0 {
		t.Errorf("open cycle should not be credited yet, got %v", first.EstimatedGallons)
	}

	second := tr.TakeSnapshot(trackerStart.Add(30*time.Minute), RelayState{})
	if math.Abs(second.PressureHighPct-1) > 1e-9 {
		t.Errorf("second pct: got %v, want 1", second.PressureHighPct)
	}
}

func TestTrackerCloseEndsOpenCycle(t *testing.T) {
	tr := newTestTracker()
	tr.ProcessInput(Input{Pressure: false, Time: trackerStart})
	tr.ProcessInput(Input{Pressure: true, Time: trackerStart.Add(time.Minute)})

	snap, events := tr.Close(trackerStart.Add(3*time.Minute), RelayState{Override: StateOn})
	if len(events) != 1 || events[0].Type != EventPressureLow {
		t.Fatalf("expected closing PRESSURE_LOW, got %+v", events)
	}
	if tr.CycleOpen() {
		t.Error("cycle should be closed")
	}
	// (120s - 30s) * 0.5
	if snap.EstimatedGallons != 45 {
		t.Errorf("final snapshot gallons: got %v, want 45", snap.EstimatedGallons)
	}
	if snap.Override != StateOn {
		t.Errorf("override: got %s, want ON", snap.Override)
	}
	if !snap.Timestamp.Equal(trackerStart.Add(3 * time.Minute)) {
		t.Errorf("final snapshot should be stamped at close time, got %v", snap.Timestamp)
	}
}

func TestTrackerCloseOnBoundary(t *testing.T) {
	tr := newTestTracker()
	boundary := trackerStart.Add(15 * time.Minute)
	grid := tr.TakeSnapshot(boundary, RelayState{})

	final, _ := tr.Close(boundary, RelayState{})
	if !final.Timestamp.After(grid.Timestamp) {
		t.Errorf("final snapshot %v not after grid snapshot %v", final.Timestamp, grid.Timestamp)
	}
	if final.Timestamp.Sub(boundary) > time.Millisecond {
		t.Errorf("final snapshot stamped %v, want just after %v", final.Timestamp, boundary)
	}
}

func TestTrackerSnapshotGrid(t *testing.T) {
	tr := NewTracker(DefaultTrackerConfig(), trackerStart.Add(7*time.Minute))
	if tr.SnapshotDue(trackerStart.Add(14 * time.Minute)) {
		t.Error("snapshot should not be due before :15")
	}
	now := trackerStart.Add(15*time.Minute + 3*time.Second)
	if !tr.SnapshotDue(now) {
		t.Fatal("snapshot should be due after :15")
	}
	snap := tr.TakeSnapshot(now, RelayState{})
	if !snap.Timestamp.Equal(trackerStart.Add(15 * time.Minute)) {
		t.Errorf("snapshot timestamp: got %v, want :15 boundary", snap.Timestamp)
	}
	if !tr.NextSnapshot().Equal(trackerStart.Add(30 * time.Minute)) {
		t.Errorf("next boundary: got %v", tr.NextSnapshot())
	}
}

func TestTrackerTankLevelEvents(t *testing.T) {
	tr := newTestTracker()

	events := tr.ObserveTank(TankReading{Gallons: 1200, Float: FloatCalling, AsOf: trackerStart})
	if len(events) != 2 {
		t.Fatalf("first reading: expected level and float events, got %+v", events)
	}

	// Within epsilon: no event.
	events = tr.ObserveTank(TankReading{Gallons: 1201, Float: FloatCalling, AsOf: trackerStart.Add(time.Minute)})
	if len(events) != 0 {
		t.Fatalf("expected no events for small change, got %+v", events)
	}

	events = tr.ObserveTank(TankReading{Gallons: 1210, Float: FloatFull, AsOf: trackerStart.Add(2 * time.Minute)})
	if len(events) != 2 {
		t.Fatalf("expected level and float events, got %+v", events)
	}
	if events[0].Type != EventTankLevel || events[0].Value != 10 {
		t.Errorf("level event: got %+v", events[0])
	}
	if events[1].Type != EventTankFloat {
		t.Errorf("float event: got %+v", events[1])
	}
	if len(tr.Levels()) != 3 {
		t.Errorf("levels: got %d, want 3", len(tr.Levels()))
	}
}

func TestTrackerRepeatedAsOfNotAppended(t *testing.T) {
	tr := newTestTracker()
	r := TankReading{Gallons: 1200, AsOf: trackerStart}
	tr.ObserveTank(r)
	tr.ObserveTank(r)
	if len(tr.Levels()) != 1 {
		t.Errorf("levels: got %d, want 1", len(tr.Levels()))
	}
}

func TestTrackerSnapshotStaleTankIsUnknown(t *testing.T) {
	tr := newTestTracker()
	tr.ObserveTank(TankReading{Gallons: 1200, AsOf: trackerStart.Add(-time.Hour)})

	snap := tr.TakeSnapshot(trackerStart.Add(15*time.Minute), RelayState{})
	if snap.TankGallons != nil {
		t.Errorf("stale reading should snapshot as unknown, got %v", *snap.TankGallons)
	}
	if snap.TankAgeSeconds == nil || *snap.TankAgeSeconds != int64(75*60) {
		t.Errorf("tank age: got %v, want 4500", snap.TankAgeSeconds)
	}
}

func TestTrackerSnapshotNoReading(t *testing.T) {
	tr := newTestTracker()
	snap := tr.TakeSnapshot(trackerStart.Add(15*time.Minute), RelayState{})
	if snap.TankGallons != nil || snap.TankAgeSeconds != nil {
		t.Error("expected nil gallons and age without readings")
	}
}

func TestTrackerFloatFlags(t *testing.T) {
	tr := newTestTracker()
	feed(tr, trackerStart, 3, 5*time.Second, false, FloatFull)
	snap := tr.TakeSnapshot(trackerStart.Add(15*time.Minute), RelayState{})
	if !snap.FloatAlwaysFull || snap.FloatEverCalling {
		t.Errorf("all-full interval: got alwaysFull=%v everCalling=%v", snap.FloatAlwaysFull, snap.FloatEverCalling)
	}

	base := trackerStart.Add(15 * time.Minute)
	feed(tr, base, 2, 5*time.Second, false, FloatFull)
	feed(tr, base.Add(10*time.Second), 1, 5*time.Second, false, FloatCalling)
	snap = tr.TakeSnapshot(trackerStart.Add(30*time.Minute), RelayState{})
	if snap.FloatAlwaysFull || !snap.FloatEverCalling {
		t.Errorf("mixed interval: got alwaysFull=%v everCalling=%v", snap.FloatAlwaysFull, snap.FloatEverCalling)
	}
	if snap.Float != FloatCalling {
		t.Errorf("float: got %s, want CALLING", snap.Float)
	}
}

func TestTrackerPurgeCount(t *testing.T) {
	tr := newTestTracker()
	tr.RecordPurge(trackerStart)
	tr.RecordPurge(trackerStart.Add(time.Minute))
	snap := tr.TakeSnapshot(trackerStart.Add(15*time.Minute), RelayState{})
	if snap.PurgeCount != 2 {
		t.Errorf("purge count: got %d, want 2", snap.PurgeCount)
	}
	next := tr.TakeSnapshot(trackerStart.Add(30*time.Minute), RelayState{})
	if next.PurgeCount != 0 {
		t.Errorf("purge count should reset, got %d", next.PurgeCount)
	}
}

func TestTrackerLevelRetention(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.LevelRetention = time.Hour
	tr := NewTracker(cfg, trackerStart)
	for i := 0; i < 120; i++ {
		tr.ObserveTank(TankReading{Gallons: float64(1000 + i), AsOf: trackerStart.Add(time.Duration(i) * time.Minute)})
	}
	levels := tr.Levels()
	oldest := levels[0].Time
	newest := levels[len(levels)-1].Time
	if newest.Sub(oldest) > time.Hour {
		t.Errorf("retained span %v exceeds 1h", newest.Sub(oldest))
	}
}
