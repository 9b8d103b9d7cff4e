// Package monitor runs the control loop: it samples the switches, polls the
// tank, drives the relay interlock, writes snapshots and runs the detectors.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"github.com/sweeney/tank-monitor/internal/config"
	"github.com/sweeney/tank-monitor/internal/detect"
	"github.com/sweeney/tank-monitor/internal/gpio"
	"github.com/sweeney/tank-monitor/internal/interlock"
	"github.com/sweeney/tank-monitor/internal/logic"
	"github.com/sweeney/tank-monitor/internal/metrics"
	"github.com/sweeney/tank-monitor/internal/mqtt"
	"github.com/sweeney/tank-monitor/internal/notify"
	"github.com/sweeney/tank-monitor/internal/status"
	"github.com/sweeney/tank-monitor/internal/tank"
)

// SnapshotStore is the append-only snapshot series.
type SnapshotStore interface {
	Append(logic.Snapshot) error
	Recent() []logic.Snapshot
}

// EventStore is the state event audit log.
type EventStore interface {
	Append(logic.Event) error
}

// Config holds the loop's static settings.
type Config struct {
	Tracker      logic.TrackerConfig
	PollInterval time.Duration // tank re-poll cadence, default 60s
	FetchTimeout time.Duration // bound on one tank fetch, default 10s
	Location     *time.Location
}

// Deps are the loop's collaborators. Publisher, Status, Metrics, Commands,
// MQTTStatus and Network may be nil.
type Deps struct {
	Switches   gpio.Reader
	Tank       tank.Fetcher
	Interlock  *interlock.Interlock
	Purger     *Purger
	Notifier   *notify.Notifier
	Snapshots  SnapshotStore
	Events     EventStore
	Settings   *config.Live
	Publisher  mqtt.Publisher
	MQTTStatus mqtt.ConnectionStatus
	Status     *status.Tracker
	Metrics    *metrics.Metrics
	Commands   <-chan logic.RelayCommand
	Network    func() *status.NetworkInfo
}

// Monitor is the single owner of tracker, interlock and detector state.
type Monitor struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	tracker  *logic.Tracker
	lastPoll time.Time
	polled   bool
	filling  bool
	fillNet  *float64
}

// New validates deps and creates a Monitor. now is the wall clock.
func New(cfg Config, deps Deps, now func() time.Time) (*Monitor, error) {
	switch {
	case deps.Switches == nil:
		return nil, errors.New("monitor: nil switch reader")
	case deps.Tank == nil:
		return nil, errors.New("monitor: nil tank fetcher")
	case deps.Interlock == nil:
		return nil, errors.New("monitor: nil interlock")
	case deps.Notifier == nil:
		return nil, errors.New("monitor: nil notifier")
	case deps.Snapshots == nil || deps.Events == nil:
		return nil, errors.New("monitor: nil store")
	case deps.Settings == nil:
		return nil, errors.New("monitor: nil settings")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Tracker.SnapshotInterval <= 0 {
		cfg.Tracker = logic.DefaultTrackerConfig()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &Monitor{cfg: cfg, deps: deps, now: now}, nil
}

// Run restores relay state, then processes ticks and relay commands until
// a signal arrives. The shutdown sequence runs on every exit path.
func (m *Monitor) Run(tick <-chan time.Time, sig <-chan os.Signal) error {
	start := m.now()
	m.tracker = logic.NewTracker(m.cfg.Tracker, start)

	m.handleEvents(m.deps.Interlock.Restore(start))
	m.handleEvents([]logic.Event{{Timestamp: start, Type: logic.EventStartup}})
	m.updateStatus()
	m.publishSystem("STARTUP", "", true)
	log.Printf("monitor started: next snapshot %s", m.tracker.NextSnapshot().Format(time.RFC3339))

	reason := "UNKNOWN"
	defer func() { m.shutdown(reason) }()

	for {
		select {
		case s := <-sig:
			reason = signalName(s)
			log.Printf("received %v, shutting down", s)
			return nil

		case cmd := <-m.deps.Commands:
			m.safely("command", func() { m.applyCommand(cmd) })

		case t := <-tick:
			m.safely("tick", func() { m.tick(t) })
		}
	}
}

// safely runs fn, logging instead of propagating a panic.
func (m *Monitor) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s panic: %v", what, r)
		}
	}()
	fn()
}

func (m *Monitor) tick(t time.Time) {
	m.deps.Metrics.Ticks.Inc()
	settings := m.deps.Settings.Get()

	m.samplePressure(t, settings)

	if !m.polled || t.Sub(m.lastPoll) >= m.cfg.PollInterval {
		m.pollTank(t, settings)
	}

	m.handleEvents(m.deps.Interlock.Evaluate(t, m.freshGallons(t), settings.Thresholds()))

	if m.tracker.SnapshotDue(t) {
		m.snapshot(t, settings)
	}

	// Backflush runs every tick against the series plus the live reading.
	if ev, ok := detect.Backflush(m.withLive(m.deps.Snapshots.Recent()), settings.Backflush(m.cfg.Location)); ok {
		m.report(t, settings, ev)
	}

	if err := m.deps.Notifier.Flush(); err != nil {
		log.Printf("dedup flush error: %v", err)
	}
	m.updateStatus()
}

func (m *Monitor) samplePressure(t time.Time, settings *config.Settings) {
	pressure, float, err := m.deps.Switches.Read()
	if err != nil {
		log.Printf("gpio read error: %v", err)
		return
	}
	events := m.tracker.ProcessInput(logic.Input{Pressure: pressure, Float: float, Time: t})
	m.handleEvents(events)
	for _, e := range events {
		if e.Type == logic.EventPressureLow && m.deps.Purger != nil && m.deps.Purger.Trigger(t, settings.Purge) {
			m.handleEvents([]logic.Event{m.tracker.RecordPurge(t)})
		}
	}
}

func (m *Monitor) pollTank(t time.Time, settings *config.Settings) {
	m.lastPoll = t
	m.polled = true

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.FetchTimeout)
	defer cancel()
	began := time.Now()
	reading, err := m.deps.Tank.Fetch(ctx)
	m.deps.Metrics.ObserveFetch(time.Since(began), err)

	// A sensor that keeps serving the same old reading counts as a failed read.
	stale := err == nil && m.cfg.Tracker.StaleAfter > 0 && t.Sub(reading.AsOf) > m.cfg.Tracker.StaleAfter
	m.deps.Interlock.RecordRead(err == nil && !stale)
	m.deps.Metrics.ReadFailures.Set(float64(m.deps.Interlock.Failures()))
	if err != nil {
		log.Printf("tank read error (%d consecutive): %v", m.deps.Interlock.Failures(), err)
		return
	}
	if stale {
		log.Printf("tank reading stale (%d consecutive): as of %s", m.deps.Interlock.Failures(), reading.AsOf.Format(time.RFC3339))
	}
	m.handleEvents(m.tracker.ObserveTank(reading))
	m.deps.Metrics.SetTank(m.tracker.Tank(), t)

	net, filling, ok := detect.Filling(m.tracker.Levels(), reading.AsOf, settings.Filling())
	if !ok {
		return
	}
	m.fillNet = logic.Float64(net)
	switch {
	case filling && !m.filling:
		m.handleEvents([]logic.Event{{Timestamp: reading.AsOf, Type: logic.EventTankFilling, Gallons: logic.Float64(reading.Gallons), Value: net}})
	case !filling && m.filling:
		m.handleEvents([]logic.Event{{Timestamp: reading.AsOf, Type: logic.EventTankStopped, Gallons: logic.Float64(reading.Gallons), Value: net}})
	}
	m.filling = filling
}

// freshGallons returns the tank level for the interlock, or nil when the
// reading is missing or too old to act on.
func (m *Monitor) freshGallons(t time.Time) *float64 {
	r := m.tracker.Tank()
	if r == nil {
		return nil
	}
	if stale := m.cfg.Tracker.StaleAfter; stale > 0 && t.Sub(r.AsOf) > stale {
		return nil
	}
	return logic.Float64(r.Gallons)
}

func (m *Monitor) snapshot(t time.Time, settings *config.Settings) {
	snap := m.tracker.TakeSnapshot(t, m.deps.Interlock.State())
	m.recordSnapshot(snap)

	series := m.deps.Snapshots.Recent()
	if ev, ok := detect.StagnationRecovery(series, settings.Stagnation()); ok {
		m.report(t, settings, ev)
	}
	if ev, ok := detect.HighFlow(series, settings.HighFlow()); ok {
		m.report(t, settings, ev)
	}

	m.updateStatus()
	m.publishSystem("HEARTBEAT", "", false)
}

func (m *Monitor) recordSnapshot(snap logic.Snapshot) {
	if err := m.deps.Snapshots.Append(snap); err != nil {
		log.Printf("snapshot write error: %v", err)
	}
	m.deps.Metrics.Snapshots.Inc()
	m.handleEvents([]logic.Event{{Timestamp: snap.Timestamp, Type: logic.EventSnapshot, Gallons: snap.TankGallons, Value: snap.EstimatedGallons}})
	if m.deps.Status != nil {
		m.deps.Status.SetLastSnapshot(snap)
	}
	if m.deps.Publisher != nil {
		if err := m.deps.Publisher.PublishSnapshot(snap); err != nil {
			log.Printf("snapshot publish error: %v", err)
		}
	}
	log.Printf("snapshot: %s tank=%s pressure=%.0f%% est=%.1fgal purges=%d override=%s",
		snap.Timestamp.Format(time.RFC3339), fmtGallons(snap.TankGallons), snap.PressureHighPct*100,
		snap.EstimatedGallons, snap.PurgeCount, snap.Override)
}

// withLive appends the current tank reading to series as a provisional
// point when it is newer than the last snapshot.
func (m *Monitor) withLive(series []logic.Snapshot) []logic.Snapshot {
	r := m.tracker.Tank()
	if r == nil {
		return series
	}
	if n := len(series); n > 0 && !r.AsOf.After(series[n-1].Timestamp) {
		return series
	}
	return append(series, logic.Snapshot{Timestamp: r.AsOf, TankGallons: logic.Float64(r.Gallons)})
}

func (m *Monitor) report(t time.Time, settings *config.Settings, ev detect.Event) {
	outcome := "disabled"
	if settings.AlertEnabled(ev.Kind) {
		outcome = string(m.deps.Notifier.Report(context.Background(), ev))
	}
	m.deps.Metrics.Detections.WithLabelValues(string(ev.Kind), outcome).Inc()
	if m.deps.Status != nil {
		m.deps.Status.RecordDetection(ev, outcome, t)
	}
}

func (m *Monitor) applyCommand(cmd logic.RelayCommand) {
	events, err := m.deps.Interlock.Command(m.now(), cmd.Channel, cmd.State)
	m.handleEvents(events)
	m.updateStatus()
	if cmd.Result != nil {
		cmd.Result <- err
	}
}

// handleEvents logs, persists, publishes and counts state events.
func (m *Monitor) handleEvents(events []logic.Event) {
	for _, e := range events {
		log.Printf("event: %s gallons=%s value=%.1f %s", e.Type, fmtGallons(e.Gallons), e.Value, e.Detail)
		if err := m.deps.Events.Append(e); err != nil {
			log.Printf("event log error: %v", err)
		}
		if m.deps.Publisher != nil {
			if err := m.deps.Publisher.PublishEvent(e); err != nil {
				log.Printf("publish error: %v", err)
			}
		}
		m.deps.Metrics.ObserveEvent(e)
	}
}

func (m *Monitor) updateStatus() {
	m.deps.Metrics.SetRelays(m.deps.Interlock.State())
	if m.deps.Status == nil {
		return
	}
	if m.deps.MQTTStatus != nil {
		m.deps.Status.SetMQTTConnected(m.deps.MQTTStatus.IsConnected())
	}
	m.deps.Status.Update(status.Loop{
		Baselined:    m.tracker.Baselined(),
		Pressure:     m.tracker.Pressure(),
		CycleOpen:    m.tracker.CycleOpen(),
		Cycles:       m.tracker.Cycles(),
		Float:        m.tracker.Float(),
		Tank:         m.tracker.Tank(),
		ReadFailures: m.deps.Interlock.Failures(),
		Relays:       m.deps.Interlock.State(),
		Filling:      m.filling,
		FillingNet:   m.fillNet,
		NextSnapshot: m.tracker.NextSnapshot(),
	})
}

func (m *Monitor) publishSystem(event, reason string, retained bool) {
	if m.deps.Publisher == nil {
		return
	}
	ev := mqtt.SystemEvent{Timestamp: m.now(), Event: event, Reason: reason, Retained: retained}
	if m.deps.Status != nil {
		if m.deps.Network != nil {
			if info := m.deps.Network(); info != nil {
				m.deps.Status.SetNetwork(info)
			}
		}
		ev.RawPayload = status.FormatStatusEvent(m.deps.Status.Snapshot(), event, reason)
	}
	if err := m.deps.Publisher.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
	}
}

// shutdown closes the open pressure cycle, stops any purge, writes the
// final snapshot and announces the shutdown. Adapters are released by the
// caller.
func (m *Monitor) shutdown(reason string) {
	t := m.now()
	if m.deps.Purger != nil {
		m.deps.Purger.Stop()
	}

	snap, events := m.tracker.Close(t, m.deps.Interlock.State())
	m.handleEvents(events)
	m.recordSnapshot(snap)
	m.handleEvents([]logic.Event{{Timestamp: t, Type: logic.EventShutdown, Detail: reason}})

	if err := m.deps.Notifier.Flush(); err != nil {
		log.Printf("dedup flush error at shutdown: %v", err)
	}
	m.updateStatus()
	m.publishSystem("SHUTDOWN", reason, true)
	log.Printf("shutdown complete (%s)", reason)
}

// Tracker exposes the event tracker for tests.
func (m *Monitor) Tracker() *logic.Tracker {
	return m.tracker
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func fmtGallons(g *float64) string {
	if g == nil {
		return "unknown"
	}
	return fmt.Sprintf("%.0f", *g)
}
