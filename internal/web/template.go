package web

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/sweeney/tank-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"gallons": func(v *float64) string {
		if v == nil {
			return "unknown"
		}
		return fmt.Sprintf("%.0f gal", *v)
	},
	"utc": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.UTC().Format("2006-01-02 15:04:05Z")
	},
	"deref": func(v *float64) float64 { return *v },
	// signed keeps the leading + unescaped; the output is digits and a sign.
	"signed": func(v float64) template.HTML { return template.HTML(fmt.Sprintf("%+.0f", v)) },
	"pct":   func(f float64) float64 { return f * 100 },
	"stateClass": func(s string) string {
		switch s {
		case "ON":
			return "on"
		case "OFF":
			return "off"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="30">
<title>Tank Monitor</title>
<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.stale { color: red; }
.connected { color: green; }
.disconnected { color: red; }
form { display: inline; }
</style>
</head>
<body>
<h1>Tank Monitor</h1>

<h2>Tank</h2>
<table>
<tr><th>Level</th><td id="tank-gallons">{{gallons .Gallons}}{{if .Tank}} ({{printf "%.0f" .Tank.Percent}}%){{end}}</td></tr>
<tr><th>Data age</th><td{{if .Stale}} class="stale"{{end}}>{{if .Tank}}{{uptime .Age}}{{else}}no reading{{end}}</td></tr>
<tr><th>Float</th><td>{{if .Float}}{{.Float}}{{else}}UNKNOWN{{end}}</td></tr>
<tr><th>Filling</th><td>{{if .Filling}}yes{{else}}no{{end}}{{if .FillingNet}} ({{signed (deref .FillingNet)}} gal / window){{end}}</td></tr>
<tr><th>Failed reads</th><td{{if .ReadFailures}} class="stale"{{end}}>{{.ReadFailures}} of {{.Config.MaxFailures}}</td></tr>
</table>

<h2>Well</h2>
<table>
<tr><th>Pressure</th><td class="{{if .Pressure}}on{{else}}off{{end}}">{{if .Pressure}}HIGH{{else}}LOW{{end}}</td></tr>
<tr><th>Cycles</th><td>{{.Cycles}}</td></tr>
<tr><th>Ready</th><td>{{if .Baselined}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Relays</h2>
<table>
{{range .RelayRows}}<tr><th>{{.Name}}</th><td class="{{stateClass .State}}">{{.State}}
<form method="post" action="/relay"><input type="hidden" name="channel" value="{{.Channel}}"><input type="hidden" name="state" value="{{.Toggle}}"><input type="hidden" name="redirect" value="1"><button>turn {{.Toggle}}</button></form></td></tr>
{{end}}<tr><th>Last change</th><td>{{utc .Relays.LastUpdated}}</td></tr>
</table>

{{if .LastSnapshot}}<h2>Last snapshot</h2>
<table>
<tr><th>Time</th><td>{{utc .LastSnapshot.Timestamp}}</td></tr>
<tr><th>Tank</th><td>{{gallons .LastSnapshot.TankGallons}}</td></tr>
<tr><th>Pressure high</th><td>{{printf "%.0f" (pct .LastSnapshot.PressureHighPct)}}%</td></tr>
<tr><th>Pumped (est.)</th><td>{{printf "%.0f" .LastSnapshot.EstimatedGallons}} gal</td></tr>
<tr><th>Purges</th><td>{{.LastSnapshot.PurgeCount}}</td></tr>
</table>{{end}}

<h2>Detections</h2>
<table>
{{range .DetectionRows}}<tr><th>{{.Kind}}</th><td>{{printf "%.0f" .Magnitude}} @ {{utc .Anchor}} ({{.Outcome}})</td></tr>
{{else}}<tr><td>none</td></tr>
{{end}}</table>

<h2>System</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{utc .StartTime}}</td></tr>
<tr><th>Next snapshot</th><td>{{utc .NextSnapshot}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

type relayRow struct {
	Name    string
	Channel string
	State   string
	Toggle  string
}

type detectionRow struct {
	Kind string
	status.Detection
}

// staleAfter marks the data age red on the dashboard.
const staleAfter = 30 * time.Minute

func renderHTML(w io.Writer, snap status.Snapshot) {
	age, _ := snap.TankAge()
	data := struct {
		status.Snapshot
		Uptime        time.Duration
		Age           time.Duration
		Stale         bool
		Gallons       *float64
		RelayRows     []relayRow
		DetectionRows []detectionRow
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Age:      age,
		Stale:    snap.Tank == nil || age > staleAfter,
	}
	if snap.Tank != nil {
		g := snap.Tank.Gallons
		data.Gallons = &g
	}
	for _, r := range []relayRow{
		{Name: "Override", Channel: "override", State: string(snap.Relays.Override)},
		{Name: "Bypass", Channel: "bypass", State: string(snap.Relays.Bypass)},
	} {
		if r.State == "" {
			r.State = "OFF"
		}
		r.Toggle = "ON"
		if r.State == "ON" {
			r.Toggle = "OFF"
		}
		data.RelayRows = append(data.RelayRows, r)
	}
	for k, d := range snap.Detections {
		data.DetectionRows = append(data.DetectionRows, detectionRow{Kind: string(k), Detection: d})
	}
	sort.Slice(data.DetectionRows, func(i, j int) bool { return data.DetectionRows[i].Kind < data.DetectionRows[j].Kind })
	indexTmpl.Execute(w, data)
}
