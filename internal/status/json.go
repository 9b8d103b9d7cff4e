package status

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/sweeney/tank-monitor/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string          `json:"event,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Ready         bool            `json:"ready"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	StartTime     string          `json:"start_time"`
	Timestamp     string          `json:"timestamp"`
	Tank          TankJSON        `json:"tank"`
	Pressure      PressureJSON    `json:"pressure"`
	Relays        RelaysJSON      `json:"relays"`
	NextSnapshot  string          `json:"next_snapshot,omitempty"`
	LastSnapshot  *logic.Snapshot `json:"last_snapshot,omitempty"`
	Detections    []DetectionJSON `json:"detections"`
	MQTT          MQTTStatus      `json:"mqtt"`
	Network       *NetworkJSON    `json:"network,omitempty"`
	Config        ConfigJSON      `json:"config"`
}

// TankJSON reports the tank level. Gallons is null until a read succeeds.
type TankJSON struct {
	Gallons      *float64 `json:"gallons"`
	Percent      *float64 `json:"percent"`
	Float        string   `json:"float"`
	AsOf         string   `json:"as_of,omitempty"`
	AgeSeconds   *int64   `json:"age_seconds"`
	ReadFailures int      `json:"read_failures"`
	Filling      bool     `json:"filling"`
	FillingNet   *float64 `json:"filling_net_gallons"`
}

// PressureJSON reports the well pressure switch.
type PressureJSON struct {
	High      bool `json:"high"`
	CycleOpen bool `json:"cycle_open"`
	Cycles    int  `json:"cycles"`
}

// RelaysJSON reports the valve relays.
type RelaysJSON struct {
	Bypass      string `json:"bypass"`
	Override    string `json:"override"`
	LastUpdated string `json:"last_updated,omitempty"`
}

// DetectionJSON is the last result of one detector.
type DetectionJSON struct {
	Kind      string  `json:"kind"`
	Anchor    string  `json:"anchor"`
	Magnitude float64 `json:"magnitude"`
	Outcome   string  `json:"outcome"`
	At        string  `json:"at"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	PollMs      int64  `json:"poll_ms"`
	SnapshotMs  int64  `json:"snapshot_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
	TankURL     string `json:"tank_url"`
	StateDir    string `json:"state_dir"`
	MaxFailures int    `json:"max_failures"`
}

func rfc3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:         snap.Baselined,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     rfc3339(snap.StartTime),
		Timestamp:     rfc3339(snap.Now),
		Tank: TankJSON{
			Float:        orUnknown(string(snap.Float)),
			ReadFailures: snap.ReadFailures,
			Filling:      snap.Filling,
			FillingNet:   snap.FillingNet,
		},
		Pressure: PressureJSON{High: snap.Pressure, CycleOpen: snap.CycleOpen, Cycles: snap.Cycles},
		Relays: RelaysJSON{
			Bypass:      string(snap.Relays.Get(logic.ChannelBypass)),
			Override:    string(snap.Relays.Get(logic.ChannelOverride)),
			LastUpdated: rfc3339(snap.Relays.LastUpdated),
		},
		NextSnapshot: rfc3339(snap.NextSnapshot),
		LastSnapshot: snap.LastSnapshot,
		Detections:   []DetectionJSON{},
		MQTT:         MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			PollMs:      snap.Config.PollMs,
			SnapshotMs:  snap.Config.SnapshotMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
			TankURL:     snap.Config.TankURL,
			StateDir:    snap.Config.StateDir,
			MaxFailures: snap.Config.MaxFailures,
		},
	}

	if r := snap.Tank; r != nil {
		inner.Tank.Gallons = logic.Float64(r.Gallons)
		inner.Tank.Percent = logic.Float64(r.Percent)
		inner.Tank.AsOf = rfc3339(r.AsOf)
		age, _ := snap.TankAge()
		secs := int64(age.Seconds())
		inner.Tank.AgeSeconds = &secs
	}

	for kind, d := range snap.Detections {
		inner.Detections = append(inner.Detections, DetectionJSON{
			Kind:      string(kind),
			Anchor:    rfc3339(d.Anchor),
			Magnitude: d.Magnitude,
			Outcome:   d.Outcome,
			At:        rfc3339(d.At),
		})
	}
	sort.Slice(inner.Detections, func(i, j int) bool { return inner.Detections[i].Kind < inner.Detections[j].Kind })

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
