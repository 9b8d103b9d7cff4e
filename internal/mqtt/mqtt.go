// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/tank-monitor/internal/logic"
	"github.com/sweeney/tank-monitor/internal/notify"
)

// Topics.
const (
	TopicEvents    = "water/tank/monitor/events"
	TopicSnapshots = "water/tank/monitor/snapshots"
	TopicAlerts    = "water/tank/monitor/alerts"
	TopicSystem    = "water/tank/monitor/system"
)

// Publisher publishes monitor output to MQTT. Publish failures are
// returned but must not stop the control loop.
type Publisher interface {
	// PublishEvent sends a state event.
	PublishEvent(event logic.Event) error

	// PublishSnapshot sends a retained interval snapshot.
	PublishSnapshot(snap logic.Snapshot) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // pre-formatted JSON; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// EventPayload is the envelope for a state event.
type EventPayload struct {
	Tank EventInner `json:"tank"`
}

// EventInner contains the state event details.
type EventInner struct {
	Timestamp string   `json:"timestamp"`
	Event     string   `json:"event"`
	Gallons   *float64 `json:"gallons"`
	Value     float64  `json:"value,omitempty"`
	Detail    string   `json:"detail,omitempty"`
}

// FormatEventPayload creates the JSON payload for a state event.
func FormatEventPayload(event logic.Event) ([]byte, error) {
	return json.Marshal(EventPayload{
		Tank: EventInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Gallons:   event.Gallons,
			Value:     event.Value,
			Detail:    event.Detail,
		},
	})
}

// FormatSnapshotPayload creates the JSON payload for a snapshot.
func FormatSnapshotPayload(snap logic.Snapshot) ([]byte, error) {
	snap.Timestamp = snap.Timestamp.UTC()
	return json.Marshal(struct {
		Snapshot logic.Snapshot `json:"snapshot"`
	}{snap})
}

// AlertPayload is the envelope for a detector alert.
type AlertPayload struct {
	Alert AlertInner `json:"alert"`
}

// AlertInner contains the alert details.
type AlertInner struct {
	Kind      string  `json:"kind"`
	Anchor    string  `json:"anchor"`
	Magnitude float64 `json:"magnitude"`
	Message   string  `json:"message"`
}

// FormatAlertPayload creates the JSON payload for an alert.
func FormatAlertPayload(a notify.Alert) ([]byte, error) {
	return json.Marshal(AlertPayload{
		Alert: AlertInner{
			Kind:      string(a.Kind),
			Anchor:    a.Anchor.UTC().Format(time.RFC3339),
			Magnitude: a.Magnitude,
			Message:   a.Message,
		},
	})
}

// SystemPayload is used for simple events (LWT, RECONNECTED) that don't
// carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}

// WillPayload is the retained last-will message: the broker publishes it if
// the monitor drops off without a clean shutdown.
func WillPayload() []byte {
	data, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE", Reason: "connection lost"}})
	return data
}
