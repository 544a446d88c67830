package web

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/clock"
	"github.com/muurk/wifiportal/internal/kvstore"
	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/portal"
	"github.com/muurk/wifiportal/internal/radio"
	"github.com/muurk/wifiportal/internal/system"
	"github.com/muurk/wifiportal/internal/version"
	"github.com/muurk/wifiportal/internal/wifi"
)

// API paths served in both AP and station mode.
const (
	PathRoot          = "/"
	PathFwlink        = "/fwlink"
	PathStationRoot   = "/wifi"
	PathScan          = "/api/v2/wifi/scan"
	PathSave          = "/api/v2/wifi/save"
	PathInfo          = "/api/v2/wifi/info"
	PathReset         = "/api/v2/wifi/reset"
	PathStandAlone    = "/api/v2/wifi/stand_alone"
	PathStandAloneYes = "/api/v2/wifi/stand_alone_yes"
	PathStandAloneNo  = "/api/v2/wifi/stand_alone_no"
	PathStatus        = "/api/v2/wifi/status"
	PathNetworks      = "/api/v2/wifi/networks"
	PathEvents        = "/api/v2/wifi/events"
)

const (
	DefaultBrand         = "WiFi Manager"
	DefaultRebootDelay   = 500 * time.Millisecond
	DefaultStandAloneURL = "http://4.3.2.1"
)

// Options configures a Facade.
type Options struct {
	// Addr is the listen address. Empty leaves serving to the caller
	// through Handler.
	Addr  string
	Brand string
	// Rebooter restarts the device after reset and stand-alone changes.
	Rebooter    system.Rebooter
	RebootDelay time.Duration
	// Facts returns host details for the info page; nil uses
	// system.CollectFacts.
	Facts func(ctx context.Context) system.Facts
	// StandAloneURL is where the device answers once stand-alone mode is on.
	StandAloneURL string
	Clock         clock.Clock
}

// Facade is the HTTP side of the portal. It implements portal.Frontend and
// also serves the station-mode API once the device is on a network.
type Facade struct {
	opts   Options
	router *Router
	server *server
	hub    *hub

	mu          sync.Mutex
	sess        *portal.Session
	station     *Station
	unsubscribe func()
	pumpDone    chan struct{}
}

// NewFacade returns a facade with no routes mounted.
func NewFacade(opts Options) *Facade {
	if opts.Brand == "" {
		opts.Brand = DefaultBrand
	}
	if opts.RebootDelay <= 0 {
		opts.RebootDelay = DefaultRebootDelay
	}
	if opts.StandAloneURL == "" {
		opts.StandAloneURL = DefaultStandAloneURL
	}
	if opts.Facts == nil {
		opts.Facts = system.CollectFacts
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Rebooter == nil {
		opts.Rebooter = system.FuncRebooter(func(time.Duration) error {
			logging.Warn("Reboot requested but no rebooter is configured")
			return nil
		})
	}
	f := &Facade{opts: opts, router: NewRouter(), hub: newHub()}
	f.server = &server{addr: opts.Addr, handler: f.router}
	return f
}

// Handler returns the live route table.
func (f *Facade) Handler() http.Handler { return f.router }

// Addr returns the bound listen address, nil when not listening.
func (f *Facade) Addr() net.Addr { return f.server.address() }

// Mount publishes the portal routes for s and starts listening.
func (f *Facade) Mount(s *portal.Session) error {
	f.detach()

	f.router.OnMethod(http.MethodGet, PathRoot, f.handleRoot)
	f.router.OnMethod(http.MethodPost, PathRoot, f.handleRoot)
	f.router.On(PathFwlink, f.handleRoot)
	f.router.On(PathScan, f.handleScan)
	f.router.On(PathSave, f.handleSave)
	f.router.On(PathInfo, f.handleInfo)
	f.router.OnMethod(http.MethodPost, PathReset, f.handleReset)
	f.router.OnMethod(http.MethodGet, PathStandAlone, f.handleStandAlone)
	f.router.OnMethod(http.MethodGet, PathStandAloneYes, f.handleStandAloneYes)
	f.router.OnMethod(http.MethodGet, PathStandAloneNo, f.handleStandAloneNo)
	f.router.OnMethod(http.MethodGet, PathStatus, f.handleStatus)
	f.router.OnMethod(http.MethodGet, PathNetworks, f.handleNetworks)
	f.router.OnMethod(http.MethodGet, PathEvents, f.handleEvents)
	f.router.OnNotFound(f.handleNotFound)

	events, cancel := s.Subscribe()
	done := make(chan struct{})
	f.mu.Lock()
	f.sess = s
	f.unsubscribe = cancel
	f.pumpDone = done
	f.mu.Unlock()
	go f.hub.pump(s, events, done)

	f.router.Begin()
	logging.Info("Portal routes mounted", zap.String("ap", s.APName()))
	return f.listen()
}

// Unmount drops every route, closes feed clients and stops listening.
func (f *Facade) Unmount() {
	f.router.Reset()
	f.detach()
	f.hub.closeAll()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := f.server.shutdown(ctx); err != nil {
		logging.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
}

// Close stops serving in any mode.
func (f *Facade) Close(ctx context.Context) error {
	f.router.Reset()
	f.detach()
	f.hub.closeAll()
	return f.server.shutdown(ctx)
}

func (f *Facade) listen() error {
	if f.opts.Addr == "" {
		return nil
	}
	return f.server.start()
}

// detach stops the event pump of the current session, if any.
func (f *Facade) detach() {
	f.mu.Lock()
	cancel, done := f.unsubscribe, f.pumpDone
	f.sess, f.station = nil, nil
	f.unsubscribe, f.pumpDone = nil, nil
	f.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (f *Facade) session() *portal.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sess
}

func (f *Facade) baseView(title string, s *portal.Session) view {
	v := view{Title: title}
	if s != nil {
		v.Head = template.HTML(s.Config().CustomHeadElement)
	}
	return v
}

func (f *Facade) handleRoot(w http.ResponseWriter, r *http.Request) {
	s := f.session()
	if s == nil {
		http.NotFound(w, r)
		return
	}
	if f.captive(w, r, s) {
		return
	}
	v := f.baseView("Options", s)
	v.Data = rootData{
		APName:        s.APName(),
		Brand:         f.opts.Brand,
		StandAlone:    s.StandAlone(),
		CustomOptions: template.HTML(s.Config().CustomOptionsElement),
	}
	render(w, http.StatusOK, rootPage, v)
}

func (f *Facade) handleScan(w http.ResponseWriter, r *http.Request) {
	s := f.session()
	if s == nil {
		http.NotFound(w, r)
		return
	}
	s.RequestScan()

	cfg := s.Config()
	data := wifiData{
		Scanned:  true,
		Networks: s.Scans().Listing(cfg.MinimumQuality, 0),
		Params:   paramFields(s.Parameters()),
	}
	if cfg.STAStatic.IsSet() {
		data.Static = staticFields(cfg.STAStatic)
	}
	v := f.baseView("Configure WiFi", s)
	v.Data = data
	render(w, http.StatusOK, wifiPage, v)
}

func paramFields(reg *portal.Registry) []field {
	var out []field
	for _, p := range reg.All() {
		if p.IsCustom() {
			out = append(out, field{HTML: template.HTML(p.CustomHTML())})
			continue
		}
		out = append(out, field{
			ID:          p.ID(),
			Placeholder: p.Placeholder(),
			Value:       p.Value(),
			Length:      p.Length(),
			Attrs:       template.HTMLAttr(p.CustomHTML()),
		})
	}
	return out
}

func staticFields(c radio.IPConfig) []field {
	str := func(ip net.IP) string {
		if ip == nil {
			return ""
		}
		return ip.String()
	}
	return []field{
		{ID: "ip", Placeholder: "Static IP", Length: 15, Value: str(c.IP)},
		{ID: "gw", Placeholder: "Static Gateway", Length: 15, Value: str(c.Gateway)},
		{ID: "sn", Placeholder: "Subnet", Length: 15, Value: str(c.Netmask)},
		{ID: "dns1", Placeholder: "DNS1", Length: 15, Value: str(c.DNS1)},
		{ID: "dns2", Placeholder: "DNS2", Length: 15, Value: str(c.DNS2)},
	}
}

var staticKeys = []string{"ip", "gw", "sn", "dns1", "dns2"}

// submission reads the save form. ok is false when the ssid field is
// absent or empty; an absent password is an open network.
func submission(r *http.Request, reg *portal.Registry) (portal.Submission, bool) {
	if err := r.ParseForm(); err != nil {
		return portal.Submission{}, false
	}
	if r.Form.Get("s") == "" {
		return portal.Submission{}, false
	}
	sub := portal.Submission{
		SSID:     r.Form.Get("s"),
		Password: r.Form.Get("p"),
		Static:   map[string]string{},
		Values:   map[string]string{},
	}
	for _, k := range staticKeys {
		if _, ok := r.Form[k]; ok {
			sub.Static[k] = r.Form.Get(k)
		}
	}
	if reg != nil {
		for _, p := range reg.All() {
			if p.IsCustom() {
				continue
			}
			if _, ok := r.Form[p.ID()]; ok {
				sub.Values[p.ID()] = r.Form.Get(p.ID())
			}
		}
	}
	return sub, true
}

func (f *Facade) handleSave(w http.ResponseWriter, r *http.Request) {
	s := f.session()
	if s == nil {
		http.NotFound(w, r)
		return
	}
	sub, ok := submission(r, s.Parameters())
	if !ok {
		http.Error(w, "missing ssid", http.StatusBadRequest)
		return
	}
	if err := s.Submit(sub); err != nil {
		if errors.Is(err, portal.ErrSessionClosed) {
			http.Error(w, "portal closed", http.StatusServiceUnavailable)
			return
		}
		logging.Error("Failed to queue credentials", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	v := f.baseView("Credentials Saved", s)
	v.Refresh = PathInfo
	render(w, http.StatusOK, savedPage, v)
}

func (f *Facade) handleInfo(w http.ResponseWriter, r *http.Request) {
	s := f.session()
	if s == nil {
		http.NotFound(w, r)
		return
	}
	st := s.Snapshot()
	data := infoData{
		Connecting:    st.ConnectPending,
		StationStatus: st.StationStatus,
		Rows:          f.infoRows(r.Context(), st),
	}
	// The outcome is only known once the loop has run the attempt.
	if !st.ConnectPending && s.ConsumeSaveAttempted() {
		data.Result = &saveResult{Connected: st.Connected, SSID: st.StationSSID, IP: st.StationIP}
	}

	v := f.baseView("Info", s)
	if data.Connecting {
		v.Refresh = PathInfo
	}
	v.Data = data
	render(w, http.StatusOK, infoPage, v)
}

func (f *Facade) infoRows(ctx context.Context, st portal.Status) []infoRow {
	facts := f.opts.Facts(ctx)
	rows := []infoRow{
		{"Chip ID", st.ChipID},
		{"Hostname", facts.Hostname},
		{"Platform", joinNonEmpty(facts.Platform, facts.PlatformVersion)},
		{"Kernel", facts.KernelVersion},
		{"CPU", joinNonEmpty(facts.CPUModel, facts.Arch)},
		{"Memory", system.FormatBytes(facts.MemAvailable) + " free of " + system.FormatBytes(facts.MemTotal)},
		{"Disk", system.FormatBytes(facts.DiskFree) + " free of " + system.FormatBytes(facts.DiskTotal)},
		{"Uptime", system.FormatUptime(facts.Uptime)},
		{"Soft AP IP", st.APIP},
		{"Soft AP MAC", st.APMAC},
		{"Station SSID", st.StationSSID},
		{"Station IP", st.StationIP},
		{"Station MAC", st.StationMAC},
	}
	bi := version.Get()
	rows = append(rows, infoRow{"Build", bi.Version + " (" + bi.Commit + ", " + bi.GoVersion + ")"})
	return rows
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

func (f *Facade) handleReset(w http.ResponseWriter, r *http.Request) {
	v := f.baseView("Info", f.session())
	v.Data = messageData{Message: "Module will reset in a few seconds"}
	render(w, http.StatusOK, messagePage, v)
	f.reboot("reset requested")
}

func (f *Facade) handleStandAlone(w http.ResponseWriter, r *http.Request) {
	s := f.session()
	v := f.baseView("Stand alone", s)
	data := standAloneData{}
	if s != nil {
		data.CustomOptions = template.HTML(s.Config().CustomOptionsElement)
	}
	v.Data = data
	render(w, http.StatusOK, standAlonePage, v)
}

func (f *Facade) handleStandAloneYes(w http.ResponseWriter, r *http.Request) {
	store, rad := f.backends()
	if store == nil {
		http.NotFound(w, r)
		return
	}
	if err := store.SetInt(kvstore.KeyStandAlone, 1); err != nil {
		logging.Error("Failed to persist stand-alone flag", zap.Error(err))
		http.Error(w, "failed to save setting", http.StatusInternalServerError)
		return
	}
	v := f.baseView("Stand alone", f.session())
	v.Data = messageData{
		Message: "Stand alone mode activated. The device restarts now; join its access point and open",
		Link:    f.opts.StandAloneURL,
	}
	render(w, http.StatusOK, messagePage, v)
	flush(w)

	if err := rad.Disconnect(true); err != nil {
		logging.Warn("Failed to erase station credentials", zap.Error(err))
	}
	f.reboot("stand-alone activated")
}

func (f *Facade) handleStandAloneNo(w http.ResponseWriter, r *http.Request) {
	store, _ := f.backends()
	if store == nil {
		http.NotFound(w, r)
		return
	}
	if err := store.SetInt(kvstore.KeyStandAlone, 0); err != nil {
		logging.Error("Failed to persist stand-alone flag", zap.Error(err))
		http.Error(w, "failed to save setting", http.StatusInternalServerError)
		return
	}
	v := f.baseView("Stand alone", f.session())
	v.Data = messageData{Message: "Stand alone mode deactivated. Module will reset in a few seconds"}
	render(w, http.StatusOK, messagePage, v)
	f.reboot("stand-alone deactivated")
}

func (f *Facade) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := f.status()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, st)
}

// Network is one row of the networks API.
type Network struct {
	SSID       string `json:"ssid"`
	Quality    int    `json:"quality"`
	RSSI       int    `json:"rssi"`
	Channel    int    `json:"channel"`
	Secured    bool   `json:"secured"`
	Encryption string `json:"encryption"`
}

func toNetworks(rows []wifi.ListEntry) []Network {
	out := make([]Network, 0, len(rows))
	for _, r := range rows {
		out = append(out, Network{
			SSID:       r.SSID,
			Quality:    r.Quality,
			RSSI:       r.RSSI,
			Channel:    r.Channel,
			Secured:    r.Secured,
			Encryption: r.Encryption.String(),
		})
	}
	return out
}

// handleNetworks lists the cached scan. Add ?scan=1 to have the next
// tick rescan.
func (f *Facade) handleNetworks(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	s, st := f.sess, f.station
	f.mu.Unlock()

	var rows []wifi.ListEntry
	switch {
	case s != nil:
		if r.URL.Query().Get("scan") != "" {
			s.RequestScan()
		}
		rows = s.Scans().Listing(s.Config().MinimumQuality, 0)
	case st != nil:
		if r.URL.Query().Get("scan") != "" {
			st.scan()
		}
		rows = st.scans.Listing(st.MinimumQuality, portal.MaxListedNetworks)
	default:
		http.NotFound(w, r)
		return
	}
	writeJSON(w, toNetworks(rows))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}

func (f *Facade) handleEvents(w http.ResponseWriter, r *http.Request) {
	st, ok := f.status()
	if !ok {
		http.NotFound(w, r)
		return
	}
	f.hub.serve(w, r, Message{Type: MessageStatus, Status: &st})
}

// handleNotFound redirects to the portal. Requests addressed by IP get the
// no-cache variant so probes are re-run once the device is configured.
func (f *Facade) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s := f.session()
	if s == nil {
		http.NotFound(w, r)
		return
	}
	if f.captive(w, r, s) {
		return
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "-1")
	redirect(w, "http://"+localHost(r, s.Radio().SoftAPIP())+"/")
}

// captive redirects requests for foreign host names to the portal and
// reports whether it did so. A port on the Host header is ignored so the
// redirect target itself is accepted when the portal is not on port 80.
func (f *Facade) captive(w http.ResponseWriter, r *http.Request, s *portal.Session) bool {
	if IsIP(hostOnly(r.Host)) {
		return false
	}
	logging.Debug("Request redirected to captive portal", zap.String("host", r.Host))
	redirect(w, "http://"+localHost(r, s.Radio().SoftAPIP())+"/")
	return true
}

func hostOnly(hostport string) string {
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return host
	}
	return hostport
}

func redirect(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusFound)
}

func flush(w http.ResponseWriter) {
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}
}

func (f *Facade) reboot(reason string) {
	logging.Info("Restarting device", zap.String("reason", reason))
	if err := f.opts.Rebooter.Reboot(f.opts.RebootDelay); err != nil {
		logging.Error("Failed to schedule reboot", zap.Error(err))
	}
}

// backends returns the store and radio of whichever mode is mounted.
func (f *Facade) backends() (kvstore.Store, radio.Radio) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.sess != nil:
		return f.sess.Store(), f.sess.Radio()
	case f.station != nil:
		return f.station.Store, f.station.Radio
	default:
		return nil, nil
	}
}

func (f *Facade) status() (portal.Status, bool) {
	f.mu.Lock()
	s, st := f.sess, f.station
	f.mu.Unlock()
	switch {
	case s != nil:
		return s.Snapshot(), true
	case st != nil:
		return st.snapshot(), true
	default:
		return portal.Status{}, false
	}
}
