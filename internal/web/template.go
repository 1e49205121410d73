package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/plunger-sensor/internal/logic"
	"github.com/sweeney/plunger-sensor/internal/mqtt"
	"github.com/sweeney/plunger-sensor/internal/plunger"
	"github.com/sweeney/plunger-sensor/internal/status"
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
	"stateOrUnknown": func(s logic.State) string { return status.StateOrUnknown(string(s)) },
	// percent renders a normalized position as a bar width.
	"percent": func(pos int) int { return pos * 100 / plunger.MaxPosition },
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Plunger Sensor</title>
<style>
body { font-family: monospace; max-width: 700px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.bar { background: #eee; height: 10px; width: 100%; }
.bar div { background: #36c; height: 10px; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>Plunger Sensor{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

{{range .Units}}
<h2>Unit {{.Number}} ({{.Type}})</h2>
<table>
<tr><th>State</th><td class="{{if not .Baselined}}unknown{{end}}">{{stateOrUnknown .State}}</td></tr>
<tr><th>Position</th><td>{{if .HasReading}}<span id="pos-{{.Number}}">{{.Reading.Position}}</span><div class="bar"><div id="bar-{{.Number}}" style="width: {{percent .Reading.Position}}%"></div></div>{{else}}<span class="unknown">no reading</span>{{end}}</td></tr>
<tr><th>Calibrated</th><td id="cal-{{.Number}}">{{if .HasReading}}{{.Reading.Calibrated}}{{end}}</td></tr>
<tr><th>Orientation</th><td>{{.Orientation}}</td></tr>
<tr><th>Scan time</th><td>{{.ScanTime}}</td></tr>
{{if .Integration}}<tr><th>Integration</th><td>+{{.Integration}}</td></tr>{{end}}
{{if .InvalidTransitions}}<tr><th>Invalid transitions</th><td>{{.InvalidTransitions}}</td></tr>{{end}}
<tr><th>No reading</th><td>{{.NoReadings}}</td></tr>
<tr><th>Calibration</th><td>{{if .Calibrating}}in progress{{else}}min {{.Calibration.Min}} zero {{.Calibration.Zero}} max {{.Calibration.Max}} release {{.Calibration.ReleaseTime}}{{end}}</td></tr>
<tr><th>Events</th><td>pullback {{.Counts.Pullback}} release {{.Counts.Release}} rest {{.Counts.Rest}}</td></tr>
</table>
<form method="post" action="/calibration/{{if .Calibrating}}end{{else}}begin{{end}}?unit={{.Number}}" style="display:inline">
<button>{{if .Calibrating}}Finish calibration{{else}}Calibrate{{end}}</button>
</form>
{{else}}
<p class="unknown">No sensors bound.</p>
{{end}}

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Session</th><td>{{.Session}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Publish interval</th><td>{{.Config.PublishIntervalMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/metrics">metrics</a></p>
{{if .Config.WSBroker}}
<script src="https://unpkg.com/mqtt@5/dist/mqtt.min.js"></script>
<script>
(function() {
  var broker = "{{.Config.WSBroker}}";
  var topic = "{{.ReadingsTopic}}";
  var dot = document.getElementById("live-dot");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  var client = mqtt.connect(broker, { reconnectPeriod: 5000 });

  client.on("connect", function() {
    setDot("ok", "live");
    client.subscribe(topic);
  });
  client.on("reconnect", function() { setDot("pending", "reconnecting"); });
  client.on("offline", function() { setDot("err", "offline"); });
  client.on("error", function() { setDot("err", "error"); });

  client.on("message", function(t, payload) {
    try {
      var r = JSON.parse(payload.toString()).reading;
      if (!r) return;
      var pos = document.getElementById("pos-" + r.unit);
      var bar = document.getElementById("bar-" + r.unit);
      var cal = document.getElementById("cal-" + r.unit);
      if (pos) pos.textContent = r.position;
      if (bar) bar.style.width = Math.floor(r.position * 100 / {{.MaxPosition}}) + "%";
      if (cal) cal.textContent = r.calibrated;
    } catch (e) {}
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime        time.Duration
		ReadingsTopic string
		MaxPosition   int
	}{
		Snapshot:      snap,
		Uptime:        snap.Uptime(),
		ReadingsTopic: mqtt.TopicReadings,
		MaxPosition:   plunger.MaxPosition,
	}
	indexTmpl.Execute(w, data)
}
