package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/tank-monitor/internal/detect"
)

func TestDefaultIsValid(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if s.Relay.TurnOnBelow != nil || s.Relay.TurnOffAt != nil {
		t.Error("relay thresholds should default to disabled")
	}
	if s.Stagnation() != detect.DefaultStagnationParams() {
		t.Errorf("stagnation params: %+v", s.Stagnation())
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	s, err := Parse([]byte(`
relay:
  turn_on_below: 1350
  turn_off_at: 1410
detectors:
  high_flow:
    threshold_gph: 75
  backflush:
    window_start: "01:00"
    window_end: "05:15"
  filling:
    window: 90m
alerts:
  backflush: false
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	th := s.Thresholds()
	if th.TurnOnBelow == nil || *th.TurnOnBelow != 1350 || th.TurnOffAt == nil || *th.TurnOffAt != 1410 {
		t.Errorf("thresholds: %+v", s.Relay)
	}
	if s.HighFlow().Threshold != 75 || s.HighFlow().Smoothing != 2 {
		t.Errorf("high flow: %+v", s.HighFlow())
	}
	bf := s.Backflush(time.UTC)
	if bf.WindowStart != time.Hour || bf.WindowEnd != 5*time.Hour+15*time.Minute || bf.Location != time.UTC {
		t.Errorf("backflush: %+v", bf)
	}
	if s.Filling().Window != 90*time.Minute {
		t.Errorf("filling window: %v", s.Filling().Window)
	}
	if s.AlertEnabled(detect.KindBackflush) || !s.AlertEnabled(detect.KindHighFlow) {
		t.Error("alert enables not applied")
	}
	if s.AlertEnabled(detect.KindStoppedFilling) {
		t.Error("stopped filling never alerts")
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"inverted thresholds": "relay: {turn_on_below: 1410, turn_off_at: 1350}",
		"bad clock":           `detectors: {backflush: {window_start: "25:00"}}`,
		"recovery too small":  "detectors: {stagnation: {max_gain: 60, recovery: 50}}",
		"zero span":           "detectors: {backflush: {span: 0}}",
		"not yaml":            "relay: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	d, err := ParseClock("04:30")
	if err != nil || d != 4*time.Hour+30*time.Minute {
		t.Errorf("04:30: %v %v", d, err)
	}
	if _, err := ParseClock("0430"); err == nil {
		t.Error("expected error without colon")
	}
	if ClockTime(d).String() != "04:30" {
		t.Errorf("String: %s", ClockTime(d))
	}
}

func TestLiveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("relay: {turn_off_at: 1400}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	l, err := LoadLive(path)
	if err != nil {
		t.Fatalf("LoadLive: %v", err)
	}
	if got := l.Get().Relay.TurnOffAt; got == nil || *got != 1400 {
		t.Fatalf("initial turn_off_at: %v", got)
	}

	if changed, _ := l.Reload(); changed {
		t.Error("unchanged file should not reload")
	}

	os.WriteFile(path, []byte("relay: {turn_off_at: 1420}\n"), 0o644)
	later := time.Now().Add(time.Minute)
	os.Chtimes(path, later, later)
	changed, err := l.Reload()
	if err != nil || !changed {
		t.Fatalf("Reload: changed=%v err=%v", changed, err)
	}
	if got := *l.Get().Relay.TurnOffAt; got != 1420 {
		t.Errorf("reloaded turn_off_at: %v", got)
	}

	// A broken edit keeps the previous settings.
	os.WriteFile(path, []byte("relay: {turn_on_below: 1500, turn_off_at: 1420}\n"), 0o644)
	later = later.Add(time.Minute)
	os.Chtimes(path, later, later)
	if _, err := l.Reload(); err == nil {
		t.Error("expected validation error")
	}
	if l.Get().Relay.TurnOnBelow != nil {
		t.Error("invalid settings must not be applied")
	}
}

func TestLoadLiveMissingFile(t *testing.T) {
	l, err := LoadLive(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should use defaults: %v", err)
	}
	if !l.Get().Alerts.HighFlow {
		t.Error("expected defaults")
	}
}

func TestLoadLiveInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	os.WriteFile(path, []byte("relay: ["), 0o644)
	if _, err := LoadLive(path); err == nil {
		t.Error("expected startup error for invalid file")
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pi-helper.env")
	os.WriteFile(path, []byte("NETWORK_STATUS=up\nTANK_URL=http://tank.local/level.json\n"), 0o644)
	t.Setenv(EnvTankURL, "http://override")
	t.Setenv(EnvNetworkStatus, "")
	os.Unsetenv(EnvNetworkStatus)

	if err := LoadEnvFile(path); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := Getenv(EnvTankURL, ""); got != "http://override" {
		t.Errorf("existing variable overridden: %s", got)
	}
	if got := Getenv(EnvNetworkStatus, ""); got != "up" {
		t.Errorf("NETWORK_STATUS: %q", got)
	}
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("missing env file should be ignored: %v", err)
	}

	vals, err := ReadEnvFile(path)
	if err != nil || vals["NETWORK_STATUS"] != "up" {
		t.Errorf("ReadEnvFile: %v %v", vals, err)
	}
}

func TestGetenvDefault(t *testing.T) {
	t.Setenv("TANK_MONITOR_TEST_UNSET", "")
	if got := Getenv("TANK_MONITOR_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("got %q", got)
	}
}
