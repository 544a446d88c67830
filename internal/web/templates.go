package web

import (
	"bytes"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/wifi"
)

const layoutHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta name="viewport" content="width=device-width, initial-scale=1, user-scalable=no"/>
<title>{{.Title}}</title>
<script>
function c(l) {
  document.getElementById('s').value = l.innerText || l.textContent;
  document.getElementById('p').focus();
}
</script>
<style>
.c { text-align: center; }
div, input { padding: 5px; font-size: 1em; }
input { width: 95%; }
body { text-align: center; font-family: verdana; }
button { border: 0; border-radius: 0.3rem; background-color: #1fa3ec; color: #fff; line-height: 2.4rem; font-size: 1.2rem; width: 100%; }
.q { float: right; width: 64px; text-align: right; }
.l { background: url("data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAACAAAAAgCAMAAABEpIrGAAAALVBMVEX///8EBwfBwsLw8PAzNjaCg4NTVVUjJiZDRUUUFxdiZGSho6OSk5Pg4eFydHTCjaf3AAAAZElEQVQ4je2NSw7AIAhEBamKn97/uMXEGBvozkWb9C2Zx4xzWykBhFAeYp9gkLyZE0zIMno9n4g19hmdY39scwqVkOXaxph0ZCXQcqxSpgQpONa59wkRDOL93eAXvimwlbPbwwVAegLS1HGfZAAAAABJRU5ErkJggg==") no-repeat left center; background-size: 1em; }
</style>
{{.Head}}
{{- if .Refresh}}
<meta http-equiv="refresh" content="10; url={{.Refresh}}">
{{- end}}
</head>
<body>
<div style='text-align:left;display:inline-block;min-width:260px;'>
{{template "content" .}}
</div>
</body>
</html>
`

const optionsHTML = `{{define "options"}}
<form action="/api/v2/wifi/scan" method="get"><button>Configure WiFi</button></form><br/>
<form action="/api/v2/wifi/info" method="get"><button>Info</button></form><br/>
<form action="/api/v2/wifi/reset" method="post"><button>Reset</button></form><br/>
<form action="/api/v2/wifi/stand_alone" method="get"><button>Stand alone mode</button></form><br/>
<form action="/" method="post"><button>Home</button></form>
{{end}}`

const rootHTML = `{{define "content"}}
{{- if .Data.APName}}<h1>{{.Data.APName}}</h1>{{end}}
<h3><center>{{.Data.Brand}}</center></h3>
{{template "options" .}}
<h3><center>Stand alone mode:
{{if .Data.StandAlone}}<p style="color:green;">ACTIVATED</p>{{else}}<p style="color:red;">DEACTIVATED</p>{{end}}
</center></h3>
{{.Data.CustomOptions}}
{{end}}`

const wifiHTML = `{{define "content"}}
{{- if .Data.Scanned}}
{{- if .Data.Networks}}
{{range .Data.Networks}}<div><a href='#p' onclick='c(this)'>{{.SSID}}</a>&nbsp;<span class='q{{if .Secured}} l{{end}}'>{{.Quality}}%</span></div>
{{end}}<br/>
{{- else}}No networks found. Refresh to scan again{{end}}
{{- end}}
<form method='get' action='/api/v2/wifi/save'>
<input id='s' name='s' length=32 placeholder='SSID'><br/>
<input id='p' name='p' length=64 type='password' placeholder='password'><br/>
{{- range .Data.Params}}
{{- if .ID}}
<br/><input id='{{.ID}}' name='{{.ID}}' length={{.Length}} placeholder='{{.Placeholder}}' value='{{.Value}}' {{.Attrs}}>
{{- else}}
{{.HTML}}
{{- end}}
{{- end}}
{{- if .Data.Params}}<br/>{{end}}
{{- range .Data.Static}}
<br/><input id='{{.ID}}' name='{{.ID}}' length={{.Length}} placeholder='{{.Placeholder}}' value='{{.Value}}'>
{{- end}}
{{- if .Data.Static}}<br/>{{end}}
<br/><button type='submit'>save</button></form>
<br/><div class="c"><a href="/api/v2/wifi/scan">Scan</a></div>
{{end}}`

const savedHTML = `{{define "content"}}
<div>
Credentials Saved<br/>
Trying to connect to the network.<br/>
If it fails reconnect to the access point to try again.<br/><br/>
If the device connects successfully it will respond with its new IP address.
</div>
{{end}}`

const infoHTML = `{{define "content"}}
<dl>
{{- if .Data.Connecting}}
<dt>Trying to connect</dt><dd>{{.Data.StationStatus}}</dd>
{{- end}}
{{- range .Data.Rows}}
<dt>{{.Label}}</dt><dd>{{.Value}}</dd>
{{- end}}
</dl>
{{- if .Data.Result}}
</div><br><div style=text-align:center;display:inline-block;min-width:400px><dl><dt>
{{- if .Data.Result.Connected}}
Connect now to your network {{.Data.Result.SSID}} to get access to your machine by using the IPAddress: {{.Data.Result.IP}}
{{- else}}
Connection failed to the network (wrong password, connection lost).
{{- end}}
</dl>
{{- end}}
{{end}}`

const standAloneHTML = `{{define "content"}}
<h3><center>Are you sure you want to activate stand alone mode ?</center></h3>
<form action="/api/v2/wifi/stand_alone_yes" method="get"><button>Activate</button></form><br/>
<form action="/api/v2/wifi/stand_alone_no" method="get"><button>Deactivate</button></form>
{{.Data.CustomOptions}}
{{end}}`

const messageHTML = `{{define "content"}}
{{.Data.Message}}
{{- if .Data.Link}}<br/><a href="{{.Data.Link}}">{{.Data.Link}}</a>{{end}}
{{end}}`

var layout = template.Must(template.New("layout").Parse(layoutHTML + optionsHTML))

func mustPage(content string) *template.Template {
	return template.Must(template.Must(layout.Clone()).Parse(content))
}

var (
	rootPage       = mustPage(rootHTML)
	wifiPage       = mustPage(wifiHTML)
	savedPage      = mustPage(savedHTML)
	infoPage       = mustPage(infoHTML)
	standAlonePage = mustPage(standAloneHTML)
	messagePage    = mustPage(messageHTML)
)

// view is the data every page receives.
type view struct {
	Title   string
	Head    template.HTML
	Refresh string
	Data    any
}

type rootData struct {
	APName        string
	Brand         string
	StandAlone    bool
	CustomOptions template.HTML
}

type field struct {
	ID          string
	Placeholder string
	Value       string
	Length      int
	Attrs       template.HTMLAttr
	HTML        template.HTML
}

type wifiData struct {
	Scanned  bool
	Networks []wifi.ListEntry
	Params   []field
	Static   []field
}

type infoRow struct {
	Label string
	Value string
}

type saveResult struct {
	Connected bool
	SSID      string
	IP        string
}

type infoData struct {
	Connecting    bool
	StationStatus string
	Rows          []infoRow
	Result        *saveResult
}

type standAloneData struct {
	CustomOptions template.HTML
}

type messageData struct {
	Message string
	Link    string
}

// render executes t into a buffer first so a template error never leaves a
// half-written page.
func render(w http.ResponseWriter, status int, t *template.Template, v view) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		logging.Error("Failed to render page", zap.String("title", v.Title), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
