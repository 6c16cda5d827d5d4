package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/mat-logger/internal/status"
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
	"matClass": func(s string) string {
		switch s {
		case "OPEN":
			return "open"
		case "CLOSED":
			return "closed"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Mat Logger</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.open { color: green; font-weight: bold; }
.closed { color: #888; }
.unknown { color: orange; }
.full { color: red; }
</style>
</head>
<body>
<h1>Mat Logger</h1>

<h2>State</h2>
<table>
<tr><th>Mode</th><td id="mode">{{if .Updated}}{{.Mode}}{{else}}STARTING{{end}}</td></tr>
<tr><th>Mat</th><td id="mat" class="{{matClass .Mat}}">{{.Mat}}</td></tr>
<tr><th>Clock</th><td>{{if .Machine.ClockSet}}{{.Clock.Format "2006-01-02T15:04:05Z"}} ({{.Machine.Timestamp}}){{else}}not set{{end}}</td></tr>
</table>

<h2>Event Log</h2>
<table>
<tr><th>Records</th><td id="count" class="{{if ge .Machine.Log.Count .Machine.Log.Capacity}}full{{end}}">{{.Machine.Log.Count}} / {{.Machine.Log.Capacity}}</td></tr>
<tr><th>Stored</th><td>{{.Machine.Log.Stored}}</td></tr>
<tr><th>Buffered</th><td>{{.Machine.Log.Buffered}}</td></tr>
<tr><th>Dropped</th><td>{{.Machine.Log.Dropped}}</td></tr>
<tr><th>IRQ drops</th><td>{{.Machine.IRQDrops}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>GPIO</th><td>{{.Config.Chip}} sensor={{.Config.SensorPin}} presence={{.Config.PresencePin}}</td></tr>
<tr><th>Serial</th><td>{{.Config.SerialPort}}</td></tr>
<tr><th>Storage</th><td>{{.Config.StorageImage}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot methods are flattened into fields for the template.
	data := struct {
		status.Snapshot
		Uptime time.Duration
		Clock  time.Time
		Mode   string
		Mat    string
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Clock:    snap.Clock(),
		Mode:     snap.Machine.Mode.String(),
		Mat:      snap.Machine.Previous.String(),
	}
	return indexTmpl.Execute(w, data)
}
