// Package config holds the monitor's live settings and environment helpers.
//
// Live settings come from a YAML file that can be edited while the monitor
// runs; the control loop reads them through Live.Get on every tick.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/tank-monitor/internal/detect"
	"github.com/sweeney/tank-monitor/internal/interlock"
	"gopkg.in/yaml.v3"
)

// Settings is one immutable version of the live configuration.
type Settings struct {
	Relay     RelaySettings    `yaml:"relay"`
	Detectors DetectorSettings `yaml:"detectors"`
	Alerts    AlertSettings    `yaml:"alerts"`
	Purge     PurgeSettings    `yaml:"purge"`
}

// RelaySettings are the auto-on/auto-off thresholds in gallons. Omit a
// threshold to disable that rule.
type RelaySettings struct {
	TurnOnBelow *float64 `yaml:"turn_on_below"`
	TurnOffAt   *float64 `yaml:"turn_off_at"`
}

// DetectorSettings tunes the pattern detectors.
type DetectorSettings struct {
	Stagnation struct {
		Window   time.Duration `yaml:"window"`
		MaxGain  float64       `yaml:"max_gain"`
		Recovery float64       `yaml:"recovery"`
		FlatBand float64       `yaml:"flat_band"`
	} `yaml:"stagnation"`
	HighFlow struct {
		Window    time.Duration `yaml:"window"`
		Smoothing int           `yaml:"smoothing"`
		Threshold float64       `yaml:"threshold_gph"`
	} `yaml:"high_flow"`
	Backflush struct {
		WindowStart ClockTime `yaml:"window_start"`
		WindowEnd   ClockTime `yaml:"window_end"`
		MinLoss     float64   `yaml:"min_loss"`
		Span        int       `yaml:"span"`
	} `yaml:"backflush"`
	Filling struct {
		Window    time.Duration `yaml:"window"`
		Threshold float64       `yaml:"threshold"`
	} `yaml:"filling"`
}

// AlertSettings enables alerting per detector. Detection and logging
// continue when an alert is disabled.
type AlertSettings struct {
	StagnationRecovery bool `yaml:"stagnation_recovery"`
	HighFlow           bool `yaml:"high_flow"`
	Backflush          bool `yaml:"backflush"`
}

// PurgeSettings controls the filter purge after pressure cycles.
type PurgeSettings struct {
	Enabled     bool          `yaml:"enabled"`
	Duration    time.Duration `yaml:"duration"`
	MinInterval time.Duration `yaml:"min_interval"`
}

// ClockTime is a time of day written as "HH:MM", stored as an offset from
// midnight.
type ClockTime time.Duration

// UnmarshalYAML parses "HH:MM".
func (c *ClockTime) UnmarshalYAML(n *yaml.Node) error {
	d, err := ParseClock(n.Value)
	if err != nil {
		return err
	}
	*c = ClockTime(d)
	return nil
}

// String formats the clock time as "HH:MM".
func (c ClockTime) String() string {
	d := time.Duration(c)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// ParseClock parses "HH:MM" (00:00 through 24:00).
func ParseClock(s string) (time.Duration, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("clock time %q: want HH:MM", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil {
		return 0, fmt.Errorf("clock time %q: %w", s, err)
	}
	mm, err := strconv.Atoi(m)
	if err != nil {
		return 0, fmt.Errorf("clock time %q: %w", s, err)
	}
	if hh < 0 || mm < 0 || mm > 59 || hh > 24 || (hh == 24 && mm != 0) {
		return 0, fmt.Errorf("clock time %q out of range", s)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}

// Default returns the built-in settings: every alert on, no relay
// thresholds, purge off.
func Default() *Settings {
	s := &Settings{
		Alerts: AlertSettings{StagnationRecovery: true, HighFlow: true, Backflush: true},
		Purge:  PurgeSettings{Duration: 10 * time.Second, MinInterval: time.Hour},
	}

	st := detect.DefaultStagnationParams()
	s.Detectors.Stagnation.Window = st.Window
	s.Detectors.Stagnation.MaxGain = st.MaxGain
	s.Detectors.Stagnation.Recovery = st.Recovery
	s.Detectors.Stagnation.FlatBand = st.FlatBand

	hf := detect.DefaultHighFlowParams()
	s.Detectors.HighFlow.Window = hf.Window
	s.Detectors.HighFlow.Smoothing = hf.Smoothing
	s.Detectors.HighFlow.Threshold = hf.Threshold

	bf := detect.DefaultBackflushParams()
	s.Detectors.Backflush.WindowStart = ClockTime(bf.WindowStart)
	s.Detectors.Backflush.WindowEnd = ClockTime(bf.WindowEnd)
	s.Detectors.Backflush.MinLoss = bf.MinLoss
	s.Detectors.Backflush.Span = bf.Span

	fl := detect.DefaultFillingParams()
	s.Detectors.Filling.Window = fl.Window
	s.Detectors.Filling.Threshold = fl.Threshold
	return s
}

// Parse decodes YAML over the defaults, so a file only needs the keys it
// changes.
func Parse(data []byte) (*Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate rejects settings the detectors or interlock cannot run with.
func (s *Settings) Validate() error {
	r := s.Relay
	if r.TurnOnBelow != nil && r.TurnOffAt != nil && *r.TurnOnBelow >= *r.TurnOffAt {
		return fmt.Errorf("relay: turn_on_below (%.0f) must be below turn_off_at (%.0f)", *r.TurnOnBelow, *r.TurnOffAt)
	}
	d := s.Detectors
	if d.Stagnation.Window <= 0 || d.HighFlow.Window <= 0 || d.Filling.Window <= 0 {
		return fmt.Errorf("detectors: windows must be positive")
	}
	if d.Stagnation.Recovery <= d.Stagnation.MaxGain {
		return fmt.Errorf("detectors: stagnation recovery (%.0f) must exceed max_gain (%.0f)", d.Stagnation.Recovery, d.Stagnation.MaxGain)
	}
	if d.HighFlow.Smoothing < 1 || d.Backflush.Span < 1 {
		return fmt.Errorf("detectors: smoothing and span must be at least 1")
	}
	if s.Purge.Enabled && s.Purge.Duration <= 0 {
		return fmt.Errorf("purge: duration must be positive when enabled")
	}
	return nil
}

// Thresholds returns the interlock thresholds.
func (s *Settings) Thresholds() interlock.Thresholds {
	return interlock.Thresholds{TurnOnBelow: s.Relay.TurnOnBelow, TurnOffAt: s.Relay.TurnOffAt}
}

// Stagnation returns the stagnation detector parameters.
func (s *Settings) Stagnation() detect.StagnationParams {
	st := s.Detectors.Stagnation
	return detect.StagnationParams{Window: st.Window, MaxGain: st.MaxGain, Recovery: st.Recovery, FlatBand: st.FlatBand}
}

// HighFlow returns the high-flow detector parameters.
func (s *Settings) HighFlow() detect.HighFlowParams {
	hf := s.Detectors.HighFlow
	return detect.HighFlowParams{Window: hf.Window, Smoothing: hf.Smoothing, Threshold: hf.Threshold}
}

// Backflush returns the backflush detector parameters in loc.
func (s *Settings) Backflush(loc *time.Location) detect.BackflushParams {
	bf := s.Detectors.Backflush
	return detect.BackflushParams{
		WindowStart: time.Duration(bf.WindowStart),
		WindowEnd:   time.Duration(bf.WindowEnd),
		MinLoss:     bf.MinLoss,
		Span:        bf.Span,
		Location:    loc,
	}
}

// Filling returns the filling detector parameters.
func (s *Settings) Filling() detect.FillingParams {
	return detect.FillingParams{Window: s.Detectors.Filling.Window, Threshold: s.Detectors.Filling.Threshold}
}

// AlertEnabled reports whether alerts for kind are on.
func (s *Settings) AlertEnabled(kind detect.Kind) bool {
	switch kind {
	case detect.KindStagnationRecovery:
		return s.Alerts.StagnationRecovery
	case detect.KindHighFlow:
		return s.Alerts.HighFlow
	case detect.KindBackflush:
		return s.Alerts.Backflush
	}
	return false
}
