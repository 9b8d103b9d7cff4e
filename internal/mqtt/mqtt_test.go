package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/tank-monitor/internal/detect"
	"github.com/sweeney/tank-monitor/internal/logic"
	"github.com/sweeney/tank-monitor/internal/notify"
)

var ts = time.Date(2026, 6, 1, 14, 30, 0, 0, time.FixedZone("CDT", -5*60*60))

func TestFormatEventPayload(t *testing.T) {
	data, err := FormatEventPayload(logic.Event{
		Timestamp: ts,
		Type:      logic.EventPressureLow,
		Gallons:   logic.Float64(1200),
		Value:     18.5,
		Detail:    "duration=1m37s",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"tank":{"timestamp":"2026-06-01T19:30:00Z","event":"PRESSURE_LOW","gallons":1200,"value":18.5,"detail":"duration=1m37s"}}`
	if string(data) != want {
		t.Errorf("payload:\n got %s\nwant %s", data, want)
	}
}

func TestFormatEventPayloadUnknownGallons(t *testing.T) {
	data, _ := FormatEventPayload(logic.Event{Timestamp: ts, Type: logic.EventSafetyShutoff})
	if !strings.Contains(string(data), `"gallons":null`) {
		t.Errorf("unknown gallons must be null, got %s", data)
	}
}

func TestFormatSnapshotPayload(t *testing.T) {
	data, err := FormatSnapshotPayload(logic.Snapshot{
		Timestamp:       ts,
		Float:           logic.FloatFull,
		PressureHighPct: 0.25,
		Bypass:          logic.StateOff,
		Override:        logic.StateOn,
	})
	if err != nil {
		t.Fatal(err)
	}
	var got struct {
		Snapshot map[string]any `json:"snapshot"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.Snapshot["timestamp"] != "2026-06-01T19:30:00Z" {
		t.Errorf("timestamp: %v", got.Snapshot["timestamp"])
	}
	if v, ok := got.Snapshot["tank_gallons"]; !ok || v != nil {
		t.Errorf("tank_gallons should be present and null, got %v", v)
	}
	if got.Snapshot["override"] != "ON" {
		t.Errorf("override: %v", got.Snapshot["override"])
	}
}

func TestFormatAlertPayload(t *testing.T) {
	data, _ := FormatAlertPayload(notify.Alert{
		Kind:      detect.KindHighFlow,
		Anchor:    ts,
		Magnitude: 75,
		Message:   "fast fill",
	})
	want := `{"alert":{"kind":"HIGH_FLOW","anchor":"2026-06-01T19:30:00Z","magnitude":75,"message":"fast fill"}}`
	if string(data) != want {
		t.Errorf("payload:\n got %s\nwant %s", data, want)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	data, _ := FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "SIGTERM"})
	want := `{"system":{"timestamp":"2026-06-01T19:30:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(data) != want {
		t.Errorf("payload:\n got %s\nwant %s", data, want)
	}

	data, _ = FormatSystemPayload(SystemEvent{Timestamp: ts, Event: "STARTUP"})
	if strings.Contains(string(data), "reason") {
		t.Errorf("empty reason should be omitted: %s", data)
	}

	raw := []byte(`{"status":{}}`)
	data, _ = FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if string(data) != string(raw) {
		t.Errorf("raw payload should pass through, got %s", data)
	}
}

func TestWillPayload(t *testing.T) {
	var p SystemPayload
	if err := json.Unmarshal(WillPayload(), &p); err != nil {
		t.Fatal(err)
	}
	if p.System.Event != "OFFLINE" {
		t.Errorf("will event: %s", p.System.Event)
	}
}

func TestFakePublisherRecords(t *testing.T) {
	f := NewFakePublisher()
	f.PublishEvent(logic.Event{Type: logic.EventPurge})
	f.PublishEvent(logic.Event{Type: logic.EventPressureHigh})
	f.PublishSnapshot(logic.Snapshot{Timestamp: ts})
	f.PublishSystem(SystemEvent{Event: "STARTUP"})

	types := f.EventTypes()
	if len(types) != 2 || types[0] != logic.EventPurge || types[1] != logic.EventPressureHigh {
		t.Errorf("event order: %v", types)
	}
	if len(f.Snapshots) != 1 {
		t.Errorf("snapshots: %d", len(f.Snapshots))
	}
	if names := f.SystemEventNames(); len(names) != 1 || names[0] != "STARTUP" {
		t.Errorf("system events: %v", names)
	}
	if len(f.SystemPayloads) != 1 {
		t.Errorf("system payloads: %d", len(f.SystemPayloads))
	}
}

func TestFakePublisherErrors(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("broker down")
	if err := f.PublishEvent(logic.Event{}); err == nil {
		t.Error("expected PublishEvent error")
	}
	if err := f.PublishSystem(SystemEvent{}); err == nil {
		t.Error("expected PublishSystem error")
	}
	if len(f.Events) != 0 || len(f.SystemEvents) != 0 {
		t.Error("failed publishes must not be recorded")
	}
}

func TestFakePublisherSendOffline(t *testing.T) {
	f := NewFakePublisher()
	f.Connected = false
	if err := f.Send(context.Background(), notify.Alert{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	f.Connected = true
	if err := f.Send(context.Background(), notify.Alert{Kind: detect.KindBackflush}); err != nil {
		t.Fatal(err)
	}
	if len(f.Alerts) != 1 {
		t.Errorf("alerts: %d", len(f.Alerts))
	}
}

func TestTopicsDistinct(t *testing.T) {
	seen := map[string]bool{}
	for _, topic := range []string{TopicEvents, TopicSnapshots, TopicAlerts, TopicSystem} {
		if seen[topic] {
			t.Errorf("duplicate topic %s", topic)
		}
		seen[topic] = true
	}
}
