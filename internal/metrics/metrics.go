// Package metrics exposes control loop activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sweeney/tank-monitor/internal/detect"
	"github.com/sweeney/tank-monitor/internal/logic"
)

const namespace = "tank_monitor"

// Metrics bundles the monitor's collectors.
type Metrics struct {
	Ticks          prometheus.Counter
	TankReads      *prometheus.CounterVec
	FetchDuration  prometheus.Histogram
	TankGallons    prometheus.Gauge
	TankAge        prometheus.Gauge
	ReadFailures   prometheus.Gauge
	PressureCycles prometheus.Counter
	PumpedGallons  prometheus.Counter
	Purges         prometheus.Counter
	Snapshots      prometheus.Counter
	Events         *prometheus.CounterVec
	Detections     *prometheus.CounterVec
	Relay          *prometheus.GaugeVec
}

// New constructs the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Control loop ticks processed",
		}),
		TankReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tank_reads_total",
			Help:      "Tank sensor fetches by result",
		}, []string{"result"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tank_fetch_duration_seconds",
			Help:      "Tank sensor fetch latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		TankGallons: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tank_gallons",
			Help:      "Last tank level read",
		}),
		TankAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tank_data_age_seconds",
			Help:      "Age of the last tank reading by the sensor's own timestamp",
		}),
		ReadFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tank_read_failures",
			Help:      "Consecutive failed tank reads",
		}),
		PressureCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pressure_cycles_total",
			Help:      "Completed well pressure cycles",
		}),
		PumpedGallons: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimated_gallons_total",
			Help:      "Estimated gallons pumped from pressure cycles",
		}),
		Purges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purges_total",
			Help:      "Filter purges run",
		}),
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots written",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "State events by type",
		}, []string{"type"}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Detector results by kind and notification outcome",
		}, []string{"kind", "outcome"}),
		Relay: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_on",
			Help:      "Relay channel state (1 = ON)",
		}, []string{"channel"}),
	}
	// Sent counts exist from startup so alert rates read zero, not absent.
	for _, k := range detect.Kinds {
		m.Detections.WithLabelValues(string(k), "sent")
	}
	if reg != nil {
		reg.MustRegister(
			m.Ticks,
			m.TankReads,
			m.FetchDuration,
			m.TankGallons,
			m.TankAge,
			m.ReadFailures,
			m.PressureCycles,
			m.PumpedGallons,
			m.Purges,
			m.Snapshots,
			m.Events,
			m.Detections,
			m.Relay,
		)
	}
	return m
}

// ObserveFetch records one tank fetch.
func (m *Metrics) ObserveFetch(d time.Duration, err error) {
	m.FetchDuration.Observe(d.Seconds())
	switch {
	case err == nil:
		m.TankReads.WithLabelValues("ok").Inc()
	case errors.Is(err, context.DeadlineExceeded):
		m.TankReads.WithLabelValues("timeout").Inc()
	default:
		m.TankReads.WithLabelValues("error").Inc()
	}
}

// ObserveEvent counts a state event and folds cycle estimates into the
// pumped total.
func (m *Metrics) ObserveEvent(e logic.Event) {
	m.Events.WithLabelValues(string(e.Type)).Inc()
	switch e.Type {
	case logic.EventPressureLow:
		m.PressureCycles.Inc()
		m.PumpedGallons.Add(e.Value)
	case logic.EventPurge:
		m.Purges.Inc()
	}
}

// SetRelays publishes the relay states.
func (m *Metrics) SetRelays(r logic.RelayState) {
	for _, ch := range []logic.Channel{logic.ChannelBypass, logic.ChannelOverride} {
		v := 0.0
		if r.Get(ch) == logic.StateOn {
			v = 1
		}
		m.Relay.WithLabelValues(string(ch)).Set(v)
	}
}

// SetTank publishes the latest reading and its age at now.
func (m *Metrics) SetTank(r *logic.TankReading, now time.Time) {
	if r == nil {
		return
	}
	m.TankGallons.Set(r.Gallons)
	m.TankAge.Set(now.Sub(r.AsOf).Seconds())
}
