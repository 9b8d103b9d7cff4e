package interlock

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/tank-monitor/internal/logic"
	"github.com/sweeney/tank-monitor/internal/relay"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	state     logic.RelayState
	saved     bool
	saves     int
	saveError error
}

func (m *memStore) LoadRelay() (logic.RelayState, bool, error) {
	return m.state, m.saved, nil
}

func (m *memStore) SaveRelay(s logic.RelayState) error {
	if m.saveError != nil {
		return m.saveError
	}
	m.state = s
	m.saved = true
	m.saves++
	return nil
}

func newInterlock(t *testing.T, store *memStore) (*Interlock, *relay.FakeDriver) {
	t.Helper()
	d := relay.NewFakeDriver()
	il, err := New(d, store, 3)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	il.Restore(t0)
	return il, d
}

func gal(v float64) *float64 { return &v }

func TestRestoreReappliesPersistedState(t *testing.T) {
	store := &memStore{state: logic.RelayState{Override: logic.StateOn, Bypass: logic.StateOff}, saved: true}
	il, d := newInterlock(t, store)

	if il.State().Override != logic.StateOn {
		t.Errorf("override: got %s, want ON", il.State().Override)
	}
	if s, _ := d.Get(logic.ChannelOverride); s != logic.StateOn {
		t.Error("persisted ON must be written back to hardware")
	}
}

func TestRestoreFirstRunDefaultsOff(t *testing.T) {
	il, d := newInterlock(t, &memStore{})
	if il.State().Override != logic.StateOff || il.State().Bypass != logic.StateOff {
		t.Errorf("state: %+v", il.State())
	}
	if len(d.Writes()) != 2 {
		t.Errorf("expected both channels written, got %v", d.Writes())
	}
}

func TestShutoffRequiresConsecutiveFailures(t *testing.T) {
	store := &memStore{state: logic.RelayState{Override: logic.StateOn}, saved: true}
	il, d := newInterlock(t, store)

	il.RecordRead(false)
	il.RecordRead(false)
	if ev := il.Evaluate(t0, nil, Thresholds{}); len(ev) != 0 {
		t.Fatalf("two failures must not act, got %+v", ev)
	}
	il.RecordRead(true)
	if ev := il.Evaluate(t0, gal(1300), Thresholds{}); len(ev) != 0 {
		t.Fatalf("recovered read must not act, got %+v", ev)
	}
	if il.State().Override != logic.StateOn {
		t.Fatal("override should still be ON")
	}
	if il.Failures() != 0 {
		t.Errorf("success should reset the counter, got %d", il.Failures())
	}

	for i := 0; i < 3; i++ {
		il.RecordRead(false)
	}
	ev := il.Evaluate(t0.Add(time.Minute), nil, Thresholds{})
	if len(ev) != 1 || ev[0].Type != logic.EventSafetyShutoff || ev[0].Value != 3 {
		t.Fatalf("expected SAFETY_SHUTOFF with 3 attempts, got %+v", ev)
	}
	if il.State().Override != logic.StateOff {
		t.Error("override should be OFF")
	}
	if il.Failures() != 0 {
		t.Errorf("shutoff should reset the counter, got %d", il.Failures())
	}
	if store.state.Override != logic.StateOff {
		t.Error("shutoff should be persisted")
	}

	il.RecordRead(false)
	if ev := il.Evaluate(t0.Add(2*time.Minute), nil, Thresholds{}); len(ev) != 0 {
		t.Errorf("shutoff must fire exactly once, got %+v", ev)
	}
	offs := 0
	for _, s := range d.WritesTo(logic.ChannelOverride) {
		if s == logic.StateOff {
			offs++
		}
	}
	if offs != 1 {
		t.Errorf("expected one OFF write after restore, got %d", offs)
	}
}

func TestShutoffRetriedAfterWriteFailure(t *testing.T) {
	store := &memStore{state: logic.RelayState{Override: logic.StateOn}, saved: true}
	il, d := newInterlock(t, store)
	for i := 0; i < 3; i++ {
		il.RecordRead(false)
	}

	d.SetError = errors.New("bus error")
	ev := il.Evaluate(t0, nil, Thresholds{})
	if len(ev) != 1 || ev[0].Type != logic.EventRelayWriteError {
		t.Fatalf("expected RELAY_WRITE_ERROR, got %+v", ev)
	}
	if il.State().Override != logic.StateOn || store.state.Override != logic.StateOn {
		t.Error("unconfirmed write must not change state")
	}
	if il.Failures() != 3 {
		t.Errorf("counter must survive a failed shutoff, got %d", il.Failures())
	}

	d.SetError = nil
	ev = il.Evaluate(t0.Add(5*time.Second), nil, Thresholds{})
	if len(ev) != 1 || ev[0].Type != logic.EventSafetyShutoff {
		t.Fatalf("expected retried shutoff, got %+v", ev)
	}
}

func TestShutoffIgnoredWhenAlreadyOff(t *testing.T) {
	il, _ := newInterlock(t, &memStore{})
	for i := 0; i < 5; i++ {
		il.RecordRead(false)
	}
	if ev := il.Evaluate(t0, nil, Thresholds{}); len(ev) != 0 {
		t.Errorf("no action expected with override OFF, got %+v", ev)
	}
}

func TestHysteresis(t *testing.T) {
	il, _ := newInterlock(t, &memStore{})
	th := Thresholds{TurnOnBelow: gal(1350), TurnOffAt: gal(1410)}

	levels := []float64{1380, 1340, 1345, 1360, 1400, 1409, 1420, 1415, 1380, 1351, 1340, 1390, 1420}
	var got []logic.EventType
	for i, l := range levels {
		il.RecordRead(true)
		for _, e := range il.Evaluate(t0.Add(time.Duration(i)*time.Minute), gal(l), th) {
			got = append(got, e.Type)
		}
	}

	want := []logic.EventType{
		logic.EventOverrideOn,  // 1340
		logic.EventOverrideOff, // 1420
		logic.EventOverrideOn,  // 1340
		logic.EventOverrideOff, // 1420
	}
	if len(got) != len(want) {
		t.Fatalf("transitions: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestAutoOffWinsSameTick(t *testing.T) {
	il, _ := newInterlock(t, &memStore{})
	// Misconfigured overlap: both rules hold at 1400.
	th := Thresholds{TurnOnBelow: gal(1450), TurnOffAt: gal(1350)}
	il.RecordRead(true)
	il.Evaluate(t0, gal(1400), th)
	if il.State().Override != logic.StateOff {
		t.Error("auto-off must win when both rules fire")
	}
}

func TestAutoRulesSkippedAfterFailedRead(t *testing.T) {
	il, _ := newInterlock(t, &memStore{})
	il.RecordRead(false)
	if ev := il.Evaluate(t0, gal(1000), Thresholds{TurnOnBelow: gal(1350)}); len(ev) != 0 {
		t.Errorf("auto-on must not act on untrusted data, got %+v", ev)
	}
}

func TestNilThresholdsDisableRules(t *testing.T) {
	il, _ := newInterlock(t, &memStore{})
	il.RecordRead(true)
	if ev := il.Evaluate(t0, gal(0), Thresholds{}); len(ev) != 0 {
		t.Errorf("got %+v", ev)
	}
}

func TestPersistFailureKeepsDecision(t *testing.T) {
	store := &memStore{}
	il, _ := newInterlock(t, store)
	store.saveError = errors.New("read-only fs")

	il.RecordRead(true)
	il.Evaluate(t0, gal(1000), Thresholds{TurnOnBelow: gal(1350)})
	if il.State().Override != logic.StateOn {
		t.Error("in-memory state should follow the confirmed write")
	}
}

func TestManualCommand(t *testing.T) {
	store := &memStore{}
	il, d := newInterlock(t, store)

	ev, err := il.Command(t0, logic.ChannelBypass, logic.StateOn)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if len(ev) != 1 || ev[0].Type != logic.EventBypassOn || ev[0].Detail != "manual" {
		t.Errorf("events: %+v", ev)
	}
	if store.state.Bypass != logic.StateOn {
		t.Error("manual change should persist")
	}

	if _, err := il.Command(t0, logic.ChannelPurge, logic.StateOn); err == nil {
		t.Error("purge is not a persisted channel")
	}

	d.SetError = errors.New("stuck")
	if _, err := il.Command(t0, logic.ChannelOverride, logic.StateOn); err == nil {
		t.Error("expected error on failed write")
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, &memStore{}, 3); err == nil {
		t.Error("expected error for nil driver")
	}
	if _, err := New(relay.NewFakeDriver(), nil, 3); err == nil {
		t.Error("expected error for nil store")
	}
}
