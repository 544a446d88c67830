package portal

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/clock"
	"github.com/muurk/wifiportal/internal/kvstore"
	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/radio"
	"github.com/muurk/wifiportal/internal/wifi"
)

// ErrSessionClosed is returned when credentials are submitted to a session
// that already reached a terminal state.
var ErrSessionClosed = errors.New("portal session closed")

// ErrNoSSID is returned when a submission names no network.
var ErrNoSSID = errors.New("submission has no ssid")

// DNSResponder answers captive DNS queries on the AP interface. Start
// reports whether the responder is running; ProcessNextRequest must not
// block.
type DNSResponder interface {
	Start(port int, domain string, ip net.IP) bool
	ProcessNextRequest()
	Stop()
}

// Frontend serves the portal pages for a session.
type Frontend interface {
	Mount(s *Session) error
	Unmount()
}

type nopDNS struct{}

func (nopDNS) Start(int, string, net.IP) bool { return false }
func (nopDNS) ProcessNextRequest()            {}
func (nopDNS) Stop()                          {}

type nopFrontend struct{}

func (nopFrontend) Mount(*Session) error { return nil }
func (nopFrontend) Unmount()             {}

// Options wires a Session to its collaborators. Radio is required; the
// rest fall back to no-op or in-memory implementations.
type Options struct {
	Config   Config
	Radio    radio.Radio
	DNS      DNSResponder
	Frontend Frontend
	Store    kvstore.Store
	Clock    clock.Clock
	Watchdog wifi.Watchdog
}

// Submission is a credential save received from the portal form.
type Submission struct {
	SSID     string
	Password string
	// Static holds the ip, gw, sn, dns1 and dns2 fields that were present.
	Static map[string]string
	// Values holds submitted custom parameter values keyed by id.
	Values map[string]string
}

// Attempt summarises the last connection attempt made for a submission.
type Attempt struct {
	SSID    string        `json:"ssid"`
	Outcome string        `json:"outcome"`
	Status  string        `json:"status"`
	At      time.Time     `json:"at"`
	Elapsed time.Duration `json:"elapsed"`
}

// Session drives one captive portal: the soft AP, captive DNS, periodic
// scans and connection attempts for submitted credentials.
//
// The mutex guards session fields only. Radio calls are always made with
// it released so HTTP handlers never wait on the driver.
type Session struct {
	cfg       Config
	radio     radio.Radio
	dns       DNSResponder
	frontend  Frontend
	store     kvstore.Store
	clock     clock.Clock
	watchdog  wifi.Watchdog
	scans     *wifi.ScanCache
	connector *wifi.Connector
	params    *Registry
	events    broker

	mu        sync.Mutex
	onAPEntry func(*Session)
	onSave    func()

	state     State
	modeless  bool
	mounted   bool
	dnsActive bool
	apName    string
	apPass    string
	started   time.Time

	// AP fallback: once apGrace has passed since apEpoch the radio is
	// switched to AP-only mode, once per epoch.
	apEpoch  time.Time
	apGrace  time.Duration
	apForced bool

	scanned       bool
	scanRequested bool
	asyncScan     bool
	lastScan      time.Time

	connectRequested bool
	pending          wifi.Credentials
	staStatic        radio.IPConfig
	// reconnecting marks a join started with stored credentials; a
	// connection it produces does not fire the save callback unless
	// submitted credentials failed since (credsDirty).
	reconnecting  bool
	credsDirty    bool
	saveAttempted bool
	last          *Attempt
}

// New builds an idle session.
func New(opts Options) *Session {
	cfg := opts.Config.withDefaults()
	c := opts.Clock
	if c == nil {
		c = clock.Real{}
	}
	wd := opts.Watchdog
	if wd == nil {
		wd = wifi.NopWatchdog{}
	}

	s := &Session{
		cfg:       cfg,
		radio:     opts.Radio,
		dns:       opts.DNS,
		frontend:  opts.Frontend,
		store:     opts.Store,
		clock:     c,
		watchdog:  wd,
		params:    NewRegistry(cfg.MaxParameters),
		staStatic: cfg.STAStatic,
	}
	if s.dns == nil {
		s.dns = nopDNS{}
	}
	if s.frontend == nil {
		s.frontend = nopFrontend{}
	}
	if s.store == nil {
		s.store = kvstore.NewMemory()
	}

	s.scans = wifi.NewScanCache(opts.Radio, wifi.ScanCacheConfig{
		RemoveDuplicates: cfg.RemoveDuplicates,
		ConfiguredSSID:   s.ConfiguredSSID,
		Clock:            c,
	})
	s.connector = wifi.NewConnector(opts.Radio, c, cfg.ConnectTimeout)
	s.connector.TryWPS = cfg.TryWPS
	s.connector.Watchdog = wd
	return s
}

func (s *Session) Config() Config             { return s.cfg }
func (s *Session) Radio() radio.Radio         { return s.radio }
func (s *Session) Store() kvstore.Store       { return s.store }
func (s *Session) Scans() *wifi.ScanCache     { return s.scans }
func (s *Session) Parameters() *Registry      { return s.params }
func (s *Session) Connector() *wifi.Connector { return s.connector }
func (s *Session) Clock() clock.Clock         { return s.clock }

// AddParameter registers an extra form field.
func (s *Session) AddParameter(p *Parameter) error {
	return s.params.Add(p)
}

// SetAPCallback registers a hook called right before the AP comes up.
func (s *Session) SetAPCallback(fn func(*Session)) {
	s.mu.Lock()
	s.onAPEntry = fn
	s.mu.Unlock()
}

// SetSaveCallback registers a hook called when new credentials are in
// effect.
func (s *Session) SetSaveCallback(fn func()) {
	s.mu.Lock()
	s.onSave = fn
	s.mu.Unlock()
}

// Subscribe returns a channel of state transitions and a cancel func.
func (s *Session) Subscribe() (<-chan Event, func()) {
	return s.events.subscribe()
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// APName returns the soft AP name in use.
func (s *Session) APName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apName
}

// ConfiguredSSID returns the network saved by the last successful
// provisioning.
func (s *Session) ConfiguredSSID() string {
	return s.store.GetString(kvstore.KeyNetwork)
}

// StandAlone reports the persisted stand-alone flag.
func (s *Session) StandAlone() bool {
	return s.store.GetInt(kvstore.KeyStandAlone) == 1
}

// ConnectPending reports whether a submission is waiting for the loop.
func (s *Session) ConnectPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectRequested
}

// ConsumeSaveAttempted reports whether a save happened since the last
// call and clears the marker.
func (s *Session) ConsumeSaveAttempted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.saveAttempted
	s.saveAttempted = false
	return v
}

// LastAttempt returns the result of the last submitted connection attempt.
func (s *Session) LastAttempt() *Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	a := *s.last
	return &a
}

// RequestScan makes the next tick scan regardless of the interval.
func (s *Session) RequestScan() {
	s.mu.Lock()
	s.scanRequested = true
	s.mu.Unlock()
}

// DefaultAPName returns "ESP" followed by the chip id of r.
func DefaultAPName(r radio.Radio) string {
	return "ESP" + radio.ChipID(r.MACAddress())
}

// StartPortal runs a blocking portal session until it connects, times out
// or ctx is cancelled. It reports whether the station is connected.
func (s *Session) StartPortal(ctx context.Context, apName, apPassword string) (bool, error) {
	s.mu.Lock()
	s.modeless = false
	cb := s.onAPEntry
	s.mu.Unlock()

	if err := s.radio.SetMode(radio.ModeAPStation); err != nil {
		logging.Warn("Failed to switch to AP+STA mode", zap.Error(err))
	}
	if cb != nil {
		cb(s)
	}
	s.setup(apName, apPassword)

	for {
		if err := ctx.Err(); err != nil {
			s.Stop()
			return false, err
		}
		if st := s.Tick(ctx); st.Terminal() {
			break
		}
		s.clock.Sleep(s.cfg.TickInterval)
	}
	return s.radio.Status() == radio.StatusConnected, nil
}

// StartModeless tries the stored credentials once, then brings the portal
// up and returns. Progress is made by calling Tick.
func (s *Session) StartModeless(ctx context.Context, apName, apPassword string) bool {
	s.mu.Lock()
	s.modeless = true
	cb := s.onAPEntry
	s.mu.Unlock()

	if err := s.radio.SetMode(radio.ModeAPStation); err != nil {
		logging.Warn("Failed to switch to AP+STA mode", zap.Error(err))
	}

	res := s.connector.Connect(ctx, wifi.Credentials{Static: s.cfg.STAStatic})
	connected := res.Outcome == wifi.OutcomeConnected
	if connected {
		logging.Info("Connected with stored credentials", zap.String("ssid", s.radio.SSID()))
		s.fireSave()
	}

	if cb != nil {
		cb(s)
	}
	s.setup(apName, apPassword)

	if connected {
		// Already saved above; the first tick only needs to settle state.
		s.mu.Lock()
		s.reconnecting = true
		s.mu.Unlock()
	}
	return connected
}

func (s *Session) setup(apName, apPassword string) {
	if apName == "" {
		apName = s.cfg.APName
	}
	if apName == "" {
		apName = DefaultAPName(s.radio)
	}
	if apPassword == "" {
		apPassword = s.cfg.APPassword
	}
	if err := ValidateAPPassword(apPassword); err != nil {
		logging.Warn("Invalid AP password, starting an open access point", zap.Error(err))
		apPassword = ""
	}

	now := s.clock.Now()
	s.mu.Lock()
	s.state = StateIdle
	s.apName, s.apPass = apName, apPassword
	s.started = now
	s.apEpoch = now
	s.apGrace = s.cfg.APGracePeriod
	s.apForced = false
	s.scanned = false
	s.scanRequested = false
	s.asyncScan = false
	s.connectRequested = false
	s.reconnecting = false
	s.credsDirty = false
	s.saveAttempted = false
	s.last = nil
	s.staStatic = s.cfg.STAStatic
	s.mu.Unlock()

	if s.cfg.APStatic.IsSet() {
		if err := s.radio.SoftAPConfig(s.cfg.APStatic); err != nil {
			logging.Warn("Failed to apply AP address", zap.Error(err))
		}
	}
	if err := s.radio.SoftAP(apName, apPassword); err != nil {
		logging.Error("Failed to start access point", zap.String("ssid", apName), zap.Error(err))
	}
	s.clock.Sleep(s.cfg.APSettleDelay)

	ip := s.radio.SoftAPIP()
	logging.Info("Access point started",
		zap.String("ssid", apName),
		zap.String("ip", ip.String()),
		zap.Bool("secured", apPassword != ""))

	dnsOK := s.dns.Start(s.cfg.DNSPort, s.cfg.DNSDomain, ip)
	if !dnsOK {
		logging.Warn("Captive DNS responder not running; continuing without redirection",
			zap.Int("port", s.cfg.DNSPort))
	}

	mountErr := s.frontend.Mount(s)
	if mountErr != nil {
		logging.Error("Failed to start portal HTTP server", zap.Error(mountErr))
	}

	s.mu.Lock()
	s.dnsActive = dnsOK
	s.mounted = mountErr == nil
	s.mu.Unlock()

	s.transition(StateScanPending, "portal started")
}

// Tick runs one loop iteration and returns the resulting state. It is a
// no-op before the portal starts and after a terminal state.
func (s *Session) Tick(ctx context.Context) State {
	now := s.clock.Now()

	s.mu.Lock()
	if s.state == StateIdle || s.state.Terminal() {
		st := s.state
		s.mu.Unlock()
		return st
	}
	if !s.modeless && s.cfg.PortalTimeout > 0 && now.Sub(s.started) >= s.cfg.PortalTimeout {
		s.mu.Unlock()
		logging.Info("Portal timed out", zap.Duration("timeout", s.cfg.PortalTimeout))
		s.finish(StateTimedOut, "portal timeout")
		return StateTimedOut
	}
	forceAP := !s.apForced && now.Sub(s.apEpoch) > s.apGrace
	s.mu.Unlock()

	if forceAP {
		s.forceAP()
	}

	s.watchdog.Feed()
	s.dns.ProcessNextRequest()

	if s.isModeless() {
		s.scanAsync(now)
	} else {
		s.scanBlocking(now)
	}

	if st, done := s.checkConnected(); done {
		return st
	}
	if st, done := s.processPending(ctx); done {
		return st
	}
	return s.State()
}

func (s *Session) isModeless() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modeless
}

func (s *Session) forceAP() {
	if err := s.radio.SetMode(radio.ModeAP); err != nil {
		logging.Warn("Failed to switch to AP-only mode", zap.Error(err))
	}
	s.mu.Lock()
	s.apForced = true
	grace := s.apGrace
	s.mu.Unlock()
	logging.Debug("Access point forced on", zap.Duration("grace", grace))
	s.transition(StateAPActive, "AP fallback grace elapsed")
}

// ensureStation re-enables the station interface after an AP-only switch.
func (s *Session) ensureStation() {
	if s.radio.Mode() != radio.ModeAP {
		return
	}
	if err := s.radio.SetMode(radio.ModeAPStation); err != nil {
		logging.Warn("Failed to re-enable station interface", zap.Error(err))
	}
}

func (s *Session) scanBlocking(now time.Time) {
	s.mu.Lock()
	due := !s.scanned || s.scanRequested || now.Sub(s.lastScan) >= s.cfg.ScanInterval
	if !due {
		s.mu.Unlock()
		return
	}
	s.scanned = true
	s.scanRequested = false
	s.mu.Unlock()

	// A scan supersedes any join in flight.
	if err := s.radio.Disconnect(false); err != nil {
		logging.Debug("Disconnect before scan failed", zap.Error(err))
	}
	s.ensureStation()
	s.ingest(s.radio.ScanNetworks(false))

	reconnect := false
	if s.cfg.TryConnectDuringPortal {
		if err := s.radio.Begin("", ""); err != nil {
			logging.Debug("Reconnect with stored credentials failed to start", zap.Error(err))
		} else {
			reconnect = true
		}
	}

	s.mu.Lock()
	s.lastScan = s.clock.Now()
	if reconnect {
		s.reconnecting = true
	}
	s.mu.Unlock()
}

func (s *Session) scanAsync(now time.Time) {
	s.mu.Lock()
	start := !s.asyncScan &&
		(!s.scanned || s.scanRequested || now.Sub(s.lastScan) >= s.cfg.ModelessScanInterval)
	if start {
		s.scanned = true
		s.scanRequested = false
		s.lastScan = now
	}
	running := s.asyncScan
	s.mu.Unlock()

	if start {
		s.ensureStation()
		code := s.radio.ScanNetworks(true)
		if code != radio.ScanRunning {
			s.ingest(code)
			if code >= 0 {
				s.radio.ScanDelete()
			}
			return
		}
		s.mu.Lock()
		s.asyncScan = true
		s.mu.Unlock()
		running = true
	}
	if !running {
		return
	}

	code := s.radio.ScanComplete()
	if code == radio.ScanRunning {
		return
	}
	s.mu.Lock()
	s.asyncScan = false
	s.mu.Unlock()
	s.ingest(code)
	if code >= 0 {
		s.radio.ScanDelete()
	}
}

// ingest publishes a scan result. Missing the configured network shortens
// the AP fallback grace.
func (s *Session) ingest(code int) {
	batch, err := s.scans.Refresh(code)
	if err != nil {
		logging.Debug("Scan produced no new batch", zap.Error(err))
		return
	}
	if batch.FoundConfigured {
		return
	}

	s.mu.Lock()
	s.apEpoch = s.clock.Now()
	s.apGrace = s.cfg.APNotFoundGrace
	wasForced := s.apForced
	s.apForced = false
	var ev Event
	var ok bool
	if wasForced {
		ev, ok = s.setStateLocked(StateScanPending, "configured network not found")
	}
	s.mu.Unlock()
	if ok {
		s.emit(ev)
	}
}

func (s *Session) checkConnected() (State, bool) {
	if s.radio.Status() != radio.StatusConnected {
		return 0, false
	}

	s.mu.Lock()
	suppress := s.reconnecting && !s.credsDirty
	s.mu.Unlock()

	if suppress {
		logging.Info("Reconnected with stored credentials", zap.String("ssid", s.radio.SSID()))
	} else {
		s.fireSave()
	}
	s.finish(StateConnected, "station connected")
	return StateConnected, true
}

func (s *Session) processPending(ctx context.Context) (State, bool) {
	s.mu.Lock()
	if !s.connectRequested {
		s.mu.Unlock()
		return 0, false
	}
	creds := s.pending
	creds.Static = s.staStatic
	s.pending = wifi.Credentials{}
	s.connectRequested = false
	s.reconnecting = false
	s.mu.Unlock()

	logging.Info("Connecting with submitted credentials", zap.String("ssid", creds.SSID))
	s.clock.Sleep(s.cfg.SaveSettleDelay)
	s.ensureStation()

	res := s.connector.Connect(ctx, creds)
	attempt := &Attempt{
		SSID:    creds.SSID,
		Outcome: res.Outcome.String(),
		Status:  res.Status.String(),
		At:      s.clock.Now(),
		Elapsed: res.Elapsed,
	}

	if res.Outcome == wifi.OutcomeConnected {
		s.mu.Lock()
		s.last = attempt
		s.credsDirty = false
		s.mu.Unlock()
		s.fireSave()
		s.finish(StateConnected, "connected with submitted credentials")
		return StateConnected, true
	}

	logging.Warn("Failed to connect with submitted credentials",
		zap.String("ssid", creds.SSID),
		zap.String("status", res.Status.String()),
		zap.Error(res.Err))

	if s.cfg.BreakAfterConfig {
		s.mu.Lock()
		s.last = attempt
		s.mu.Unlock()
		s.fireSave()
		s.finish(StateTimedOut, "break after config")
		return StateTimedOut, true
	}

	s.mu.Lock()
	s.last = attempt
	s.credsDirty = true
	if s.cfg.TryConnectDuringPortal {
		s.apEpoch = s.clock.Now()
	}
	ev, ok := s.setStateLocked(StateScanPending, "connection attempt failed")
	s.mu.Unlock()
	if ok {
		s.emit(ev)
	}
	return 0, false
}

// Submit queues credentials for the loop. It resets the AP fallback with
// the post-save grace, clears the stand-alone flag and applies parameter
// values and static address fields. A submission without an SSID is
// rejected and changes nothing.
func (s *Session) Submit(sub Submission) error {
	if sub.SSID == "" {
		return ErrNoSSID
	}
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.apEpoch = s.clock.Now()
	s.apGrace = s.cfg.APAfterSaveGrace
	s.apForced = false
	s.staStatic = ApplyStaticFields(s.staStatic, sub.Static)
	s.pending = wifi.Credentials{SSID: sub.SSID, Password: sub.Password}
	s.connectRequested = true
	s.saveAttempted = true
	ev, ok := s.setStateLocked(StateConnectPending, "credentials submitted")
	s.mu.Unlock()

	if err := s.store.SetInt(kvstore.KeyStandAlone, 0); err != nil {
		logging.Warn("Failed to clear stand-alone flag", zap.Error(err))
	}
	s.params.Apply(sub.Values)

	logging.Info("Credentials submitted", zap.String("ssid", sub.SSID))
	if ok {
		s.emit(ev)
	}
	return nil
}

// ApplyStaticFields overlays the present and parseable ip, gw, sn, dns1
// and dns2 fields onto base.
func ApplyStaticFields(base radio.IPConfig, fields map[string]string) radio.IPConfig {
	set := func(dst *net.IP, key string) {
		v, ok := fields[key]
		if !ok {
			return
		}
		ip := net.ParseIP(v).To4()
		if ip == nil {
			logging.Debug("Ignoring malformed address field", zap.String("field", key))
			return
		}
		*dst = ip
	}
	set(&base.IP, "ip")
	set(&base.Gateway, "gw")
	set(&base.Netmask, "sn")
	set(&base.DNS1, "dns1")
	set(&base.DNS2, "dns2")
	return base
}

// Stop tears the portal down. A session that has not reached a terminal
// state ends as TimedOut.
func (s *Session) Stop() {
	s.mu.Lock()
	terminal := s.state.Terminal()
	idle := s.state == StateIdle
	s.mu.Unlock()
	if !terminal && !idle {
		s.transition(StateTimedOut, "stopped")
	}
	s.teardown()
}

// ResetSettings erases the stored station credentials and the configured
// network.
func (s *Session) ResetSettings() error {
	if err := s.radio.SetMode(radio.ModeAPStation); err != nil {
		logging.Warn("Failed to switch to AP+STA mode", zap.Error(err))
	}
	if err := s.radio.Disconnect(true); err != nil {
		return wifi.NewRadioFailedError("reset", 0, "failed to erase credentials", err)
	}
	if err := s.store.Delete(kvstore.KeyNetwork); err != nil {
		return err
	}
	logging.Info("Stored Wi-Fi settings erased")
	return nil
}

func (s *Session) fireSave() {
	s.mu.Lock()
	cb := s.onSave
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// finish moves to a terminal state. Blocking sessions tear the portal down;
// modeless sessions leave it to the owner.
func (s *Session) finish(to State, reason string) {
	s.transition(to, reason)
	if !s.isModeless() {
		s.teardown()
	}
}

func (s *Session) teardown() {
	s.mu.Lock()
	mounted, dnsActive := s.mounted, s.dnsActive
	s.mounted, s.dnsActive = false, false
	s.mu.Unlock()

	if mounted {
		s.frontend.Unmount()
	}
	if dnsActive {
		s.dns.Stop()
	}
}

func (s *Session) setStateLocked(to State, reason string) (Event, bool) {
	if s.state == to || s.state.Terminal() {
		return Event{}, false
	}
	ev := Event{Time: s.clock.Now(), From: s.state.String(), To: to.String(), Reason: reason}
	s.state = to
	return ev, true
}

func (s *Session) transition(to State, reason string) {
	s.mu.Lock()
	ev, ok := s.setStateLocked(to, reason)
	s.mu.Unlock()
	if ok {
		s.emit(ev)
	}
}

func (s *Session) emit(ev Event) {
	logging.LogTransition(ev.From, ev.To, ev.Reason)
	s.events.publish(ev)
}
