package portal

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muurk/wifiportal/internal/clock"
	"github.com/muurk/wifiportal/internal/kvstore"
	"github.com/muurk/wifiportal/internal/radio"
	"github.com/muurk/wifiportal/internal/radio/simradio"
)

type fakeDNS struct {
	mu        sync.Mutex
	fail      bool
	started   int
	processed int
	stopped   int
	ip        net.IP
	domain    string
}

func (d *fakeDNS) Start(port int, domain string, ip net.IP) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started++
	d.ip, d.domain = ip, domain
	return !d.fail
}

func (d *fakeDNS) ProcessNextRequest() {
	d.mu.Lock()
	d.processed++
	d.mu.Unlock()
}

func (d *fakeDNS) Stop() {
	d.mu.Lock()
	d.stopped++
	d.mu.Unlock()
}

type fakeFrontend struct {
	mounted   int
	unmounted int
	session   *Session
}

func (f *fakeFrontend) Mount(s *Session) error {
	f.mounted++
	f.session = s
	return nil
}

func (f *fakeFrontend) Unmount() { f.unmounted++ }

type harness struct {
	s     *Session
	sim   *simradio.Sim
	clock *clock.Manual
	dns   *fakeDNS
	web   *fakeFrontend
	store *kvstore.Memory
	saves int
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	c := clock.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	sim := simradio.New(c,
		simradio.Network{Observation: radio.Observation{SSID: "home", RSSI: -50, Channel: 6, Encryption: radio.EncryptionWPA2PSK}, Password: "secret123"},
		simradio.Network{Observation: radio.Observation{SSID: "cafe", RSSI: -70, Channel: 1, Encryption: radio.EncryptionOpen}},
	)
	h := &harness{
		sim:   sim,
		clock: c,
		dns:   &fakeDNS{},
		web:   &fakeFrontend{},
		store: kvstore.NewMemory(),
	}
	h.s = New(Options{
		Config:   cfg,
		Radio:    sim,
		DNS:      h.dns,
		Frontend: h.web,
		Store:    h.store,
		Clock:    c,
	})
	h.s.SetSaveCallback(func() { h.saves++ })
	return h
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = time.Second
	cfg.ConnectTimeout = 5 * time.Second
	return cfg
}

// run ticks, advancing one second between ticks, until a terminal state or
// n ticks have passed.
func (h *harness) run(n int) State {
	var st State
	for i := 0; i < n; i++ {
		st = h.s.Tick(context.Background())
		if st.Terminal() {
			return st
		}
		h.clock.Advance(time.Second)
	}
	return st
}

func hasCall(calls []string, want string) bool {
	for _, c := range calls {
		if c == want {
			return true
		}
	}
	return false
}

func TestSetupBringsPortalUp(t *testing.T) {
	h := newHarness(t, testConfig())
	events, cancel := h.s.Subscribe()
	defer cancel()

	h.s.setup("", "")

	if got, want := h.sim.APName(), "ESP240AC4123456"; got != want {
		t.Errorf("AP name = %q, want %q", got, want)
	}
	if h.dns.started != 1 || h.dns.domain != "*" || !h.dns.ip.Equal(net.IPv4(192, 168, 4, 1)) {
		t.Errorf("dns start = %d %q %v", h.dns.started, h.dns.domain, h.dns.ip)
	}
	if h.web.mounted != 1 || h.web.session != h.s {
		t.Errorf("frontend mounted %d times", h.web.mounted)
	}
	if h.s.State() != StateScanPending {
		t.Errorf("State() = %v, want ScanPending", h.s.State())
	}

	select {
	case ev := <-events:
		if ev.From != "Idle" || ev.To != "ScanPending" {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Error("no transition event published")
	}
}

func TestSetupDowngradesShortAPPassword(t *testing.T) {
	h := newHarness(t, testConfig())
	h.s.setup("portal", "short12")

	if h.sim.APPassword() != "" {
		t.Errorf("AP password = %q, want open AP", h.sim.APPassword())
	}
	if h.s.State() != StateScanPending {
		t.Errorf("State() = %v", h.s.State())
	}
}

func TestDNSFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, testConfig())
	h.dns.fail = true
	h.s.setup("portal", "")

	if st := h.run(3); st != StateScanPending {
		t.Errorf("state = %v, want ScanPending", st)
	}
	if h.dns.processed == 0 {
		t.Error("tick never serviced the responder")
	}

	h.s.Stop()
	if h.dns.stopped != 0 {
		t.Error("stopped a responder that never started")
	}
}

func TestZeroPortalTimeoutNeverTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.PortalTimeout = 0
	h := newHarness(t, cfg)
	h.s.setup("portal", "")

	for i := 0; i < 500; i++ {
		if st := h.s.Tick(context.Background()); st == StateTimedOut {
			t.Fatalf("timed out after %d ticks", i)
		}
		h.clock.Advance(time.Hour)
	}
}

func TestPortalTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.PortalTimeout = 3 * time.Minute
	h := newHarness(t, cfg)
	start := h.clock.Now()

	connected, err := h.s.StartPortal(context.Background(), "portal", "")
	if err != nil {
		t.Fatalf("StartPortal() error = %v", err)
	}
	if connected {
		t.Error("StartPortal() reported a connection")
	}
	if h.s.State() != StateTimedOut {
		t.Errorf("State() = %v, want TimedOut", h.s.State())
	}
	if elapsed := h.clock.Now().Sub(start); elapsed < cfg.PortalTimeout {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
	if h.web.unmounted != 1 || h.dns.stopped != 1 {
		t.Errorf("teardown: unmounted=%d dnsStopped=%d", h.web.unmounted, h.dns.stopped)
	}
	if h.saves != 0 {
		t.Errorf("save callback fired %d times", h.saves)
	}
}

func TestStartPortalHonoursContext(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	connected, err := h.s.StartPortal(ctx, "portal", "")
	if err == nil || connected {
		t.Fatalf("StartPortal() = %v, %v; want context error", connected, err)
	}
	if h.s.State() != StateTimedOut {
		t.Errorf("State() = %v", h.s.State())
	}
}

func TestSubmitConnects(t *testing.T) {
	h := newHarness(t, testConfig())
	h.s.AddParameter(NewParameter("mqtt", "MQTT server", "", 8, ""))
	h.s.setup("portal", "")

	err := h.s.Submit(Submission{
		SSID:     "home",
		Password: "secret123",
		Values:   map[string]string{"mqtt": "broker.example.com"},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if h.s.State() != StateConnectPending || !h.s.ConnectPending() {
		t.Errorf("after submit: state %v pending %v", h.s.State(), h.s.ConnectPending())
	}

	if st := h.run(10); st != StateConnected {
		t.Fatalf("state = %v, want Connected", st)
	}
	if h.saves != 1 {
		t.Errorf("save callback fired %d times, want 1", h.saves)
	}
	if !hasCall(h.sim.Calls(), "begin(home)") {
		t.Errorf("calls = %v", h.sim.Calls())
	}
	if p, _ := h.s.Parameters().Get("mqtt"); p.Value() != "broker.e" {
		t.Errorf("parameter = %q, want truncated value", p.Value())
	}
	if a := h.s.LastAttempt(); a == nil || a.Outcome != "connected" || a.SSID != "home" {
		t.Errorf("LastAttempt() = %+v", a)
	}
	if h.web.unmounted != 1 || h.dns.stopped != 1 {
		t.Errorf("teardown: unmounted=%d dnsStopped=%d", h.web.unmounted, h.dns.stopped)
	}
	if err := h.s.Submit(Submission{SSID: "late"}); err != ErrSessionClosed {
		t.Errorf("Submit() after close = %v", err)
	}
}

func TestSubmitWithoutPasswordJoinsOpenNetwork(t *testing.T) {
	h := newHarness(t, testConfig())
	h.s.setup("portal", "")
	h.s.Submit(Submission{SSID: "cafe"})

	if st := h.run(10); st != StateConnected {
		t.Fatalf("state = %v, want Connected", st)
	}
	if h.sim.SSID() != "cafe" {
		t.Errorf("stored SSID = %q", h.sim.SSID())
	}
}

func TestSubmitWithoutSSIDIsRejected(t *testing.T) {
	cfg := testConfig()
	cfg.TryConnectDuringPortal = false
	h := newHarness(t, cfg)
	h.sim.Remember("home", "secret123")
	h.s.setup("portal", "")
	h.sim.ResetCalls()

	if err := h.s.Submit(Submission{SSID: "", Password: "secret123"}); !errors.Is(err, ErrNoSSID) {
		t.Fatalf("Submit error = %v, want ErrNoSSID", err)
	}
	if h.s.ConnectPending() {
		t.Error("connection queued without an ssid")
	}
	if st := h.run(3); st == StateConnected {
		t.Fatal("session connected without submitted credentials")
	}
	if h.saves != 0 {
		t.Errorf("save callback fired %d times", h.saves)
	}
	for _, c := range h.sim.Calls() {
		if strings.HasPrefix(c, "begin(") {
			t.Errorf("unexpected join: %v", h.sim.Calls())
		}
	}
}

func TestSubmitClearsStandAloneAndAppliesStatic(t *testing.T) {
	h := newHarness(t, testConfig())
	h.store.SetInt(kvstore.KeyStandAlone, 1)
	h.s.setup("portal", "")

	h.s.Submit(Submission{
		SSID:     "home",
		Password: "secret123",
		Static:   map[string]string{"ip": "192.168.1.60", "gw": "192.168.1.1", "sn": "255.255.255.0"},
	})
	if h.s.StandAlone() {
		t.Error("stand-alone flag not cleared")
	}

	h.run(10)
	if !hasCall(h.sim.Calls(), "config(192.168.1.60)") {
		t.Errorf("static address not applied: %v", h.sim.Calls())
	}
}

func TestFailedSubmitStaysInPortal(t *testing.T) {
	h := newHarness(t, testConfig())
	h.s.setup("portal", "")
	h.s.Submit(Submission{SSID: "home", Password: "wrong-pass"})

	if st := h.run(1); st != StateScanPending {
		t.Fatalf("state = %v, want ScanPending", st)
	}
	if h.saves != 0 {
		t.Errorf("save callback fired on failure")
	}
	a := h.s.LastAttempt()
	if a == nil || a.Outcome != "failed" {
		t.Errorf("LastAttempt() = %+v", a)
	}
	if !h.s.ConsumeSaveAttempted() {
		t.Error("save-attempted marker not set")
	}
	if h.s.ConsumeSaveAttempted() {
		t.Error("save-attempted marker not cleared by the first read")
	}
}

func TestBreakAfterConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BreakAfterConfig = true
	h := newHarness(t, cfg)
	h.s.setup("portal", "")
	h.s.Submit(Submission{SSID: "home", Password: "wrong-pass"})

	if st := h.run(2); st != StateTimedOut {
		t.Fatalf("state = %v, want TimedOut", st)
	}
	if h.saves != 1 {
		t.Errorf("save callback fired %d times, want 1", h.saves)
	}
}

func TestReconnectDuringPortalSuppressesSave(t *testing.T) {
	h := newHarness(t, testConfig())
	h.store.SetString(kvstore.KeyNetwork, "home")
	h.sim.Remember("home", "secret123")
	h.s.setup("portal", "")

	if st := h.run(10); st != StateConnected {
		t.Fatalf("state = %v, want Connected", st)
	}
	if h.saves != 0 {
		t.Errorf("save callback fired %d times for a stored-credential reconnect", h.saves)
	}
	calls := h.sim.Calls()
	if !hasCall(calls, "scan(false)") || !hasCall(calls, "begin()") {
		t.Errorf("calls = %v", calls)
	}
}

func TestReconnectAfterFailedSubmitFiresSave(t *testing.T) {
	h := newHarness(t, testConfig())
	h.store.SetString(kvstore.KeyNetwork, "home")
	h.s.setup("portal", "")
	h.s.Submit(Submission{SSID: "home", Password: "new-secret"})

	if st := h.run(1); st != StateScanPending {
		t.Fatalf("state = %v, want ScanPending", st)
	}

	// The router catches up with the submitted password.
	h.sim.SetNetworks(simradio.Network{
		Observation: radio.Observation{SSID: "home", RSSI: -50, Encryption: radio.EncryptionWPA2PSK},
		Password:    "new-secret",
	})
	h.s.RequestScan()

	if st := h.run(10); st != StateConnected {
		t.Fatalf("state = %v, want Connected", st)
	}
	if h.saves != 1 {
		t.Errorf("save callback fired %d times, want 1", h.saves)
	}
}

func TestAPForcedWhenConfiguredNetworkMissing(t *testing.T) {
	h := newHarness(t, testConfig())
	h.store.SetString(kvstore.KeyNetwork, "office")
	h.s.setup("portal", "")

	if st := h.run(5); st != StateAPActive {
		t.Fatalf("state = %v, want ApActive", st)
	}
	if !hasCall(h.sim.Calls(), "mode(ap)") {
		t.Errorf("calls = %v", h.sim.Calls())
	}
	snap := h.s.Snapshot()
	if !snap.APForced || snap.FoundConfigured || snap.ConfiguredSSID != "office" {
		t.Errorf("Snapshot() = %+v", snap)
	}
}

func TestAPNotForcedWithinGrace(t *testing.T) {
	h := newHarness(t, testConfig())
	h.store.SetString(kvstore.KeyNetwork, "home")
	h.s.setup("portal", "")

	// Nothing stored, so the reconnect never succeeds; the configured
	// network is in range so only the general grace applies.
	if st := h.run(30); st != StateScanPending {
		t.Fatalf("state = %v before the grace elapsed", st)
	}
	if hasCall(h.sim.Calls(), "mode(ap)") {
		t.Error("AP forced before the grace period")
	}
	if st := h.run(15); st != StateAPActive {
		t.Errorf("state = %v after the grace, want ApActive", st)
	}
}

func TestSubmitResetsAPFallback(t *testing.T) {
	h := newHarness(t, testConfig())
	h.store.SetString(kvstore.KeyNetwork, "office")
	h.s.setup("portal", "")
	h.run(5)
	if !h.s.Snapshot().APForced {
		t.Fatal("precondition: AP not forced")
	}

	h.s.Submit(Submission{SSID: "home", Password: "wrong-pass"})
	if h.s.Snapshot().APForced {
		t.Error("submit did not clear the forced AP flag")
	}
}

func TestModelessConnectsWithStoredCredentials(t *testing.T) {
	h := newHarness(t, testConfig())
	h.sim.Remember("home", "secret123")
	entered := 0
	h.s.SetAPCallback(func(*Session) { entered++ })

	if !h.s.StartModeless(context.Background(), "portal", "") {
		t.Fatal("StartModeless() = false")
	}
	if h.saves != 1 || entered != 1 {
		t.Errorf("saves=%d apEntered=%d, want 1 and 1", h.saves, entered)
	}
	if h.sim.APName() != "portal" {
		t.Error("AP not started")
	}

	if st := h.s.Tick(context.Background()); st != StateConnected {
		t.Errorf("Tick() = %v, want Connected", st)
	}
	if h.saves != 1 {
		t.Errorf("save callback fired again on tick")
	}
	if h.web.unmounted != 0 {
		t.Error("modeless session tore the portal down")
	}
}

func TestModelessScansAsyncAndNeverTimesOut(t *testing.T) {
	cfg := testConfig()
	cfg.PortalTimeout = time.Minute
	h := newHarness(t, cfg)

	if h.s.StartModeless(context.Background(), "portal", "") {
		t.Fatal("connected with nothing stored")
	}
	h.s.Tick(context.Background())

	if !hasCall(h.sim.Calls(), "scan(true)") {
		t.Errorf("calls = %v, want an async scan", h.sim.Calls())
	}
	if b := h.s.Scans().Latest(); b == nil || b.Len() != 2 {
		t.Fatalf("Latest() = %+v", b)
	}

	h.clock.Advance(10 * time.Minute)
	if st := h.s.Tick(context.Background()); st.Terminal() {
		t.Errorf("modeless session reached %v", st)
	}

	h.s.Submit(Submission{SSID: "home", Password: "secret123"})
	if st := h.run(10); st != StateConnected {
		t.Errorf("state = %v, want Connected", st)
	}
	if h.saves != 1 {
		t.Errorf("saves = %d", h.saves)
	}
}

func TestScanFailureKeepsPreviousBatch(t *testing.T) {
	h := newHarness(t, testConfig())
	h.s.setup("portal", "")
	h.run(1)
	first := h.s.Scans().Latest()
	if first == nil {
		t.Fatal("no batch after first scan")
	}

	h.sim.ScanCode = radio.ScanFailed
	h.s.RequestScan()
	h.run(1)
	if h.s.Scans().Latest() != first {
		t.Error("failed scan replaced the batch")
	}
}

func TestAutoConnectWithStoredCredentials(t *testing.T) {
	h := newHarness(t, testConfig())
	h.sim.Remember("home", "secret123")

	ok, err := h.s.AutoConnect(context.Background(), "portal", "", 3, time.Second)
	if err != nil || !ok {
		t.Fatalf("AutoConnect() = %v, %v", ok, err)
	}
	if h.sim.APName() != "" {
		t.Error("portal started despite a working stored network")
	}
}

func TestAutoConnectFallsBackToPortal(t *testing.T) {
	cfg := testConfig()
	cfg.PortalTimeout = 30 * time.Second
	h := newHarness(t, cfg)

	ok, err := h.s.AutoConnect(context.Background(), "portal", "", 2, time.Second)
	if err != nil || ok {
		t.Fatalf("AutoConnect() = %v, %v; want portal timeout", ok, err)
	}
	if h.sim.APName() != "portal" {
		t.Errorf("AP name = %q", h.sim.APName())
	}
	begins := 0
	for _, c := range h.sim.Calls() {
		if c == "begin()" {
			begins++
		}
	}
	if begins < 2 {
		t.Errorf("begin() called %d times, want one per retry", begins)
	}
}

func TestResetSettings(t *testing.T) {
	h := newHarness(t, testConfig())
	h.sim.Remember("home", "secret123")
	h.store.SetString(kvstore.KeyNetwork, "home")

	if err := h.s.ResetSettings(); err != nil {
		t.Fatalf("ResetSettings() error = %v", err)
	}
	if h.sim.SSID() != "" || h.s.ConfiguredSSID() != "" {
		t.Error("credentials survived reset")
	}
	if !hasCall(h.sim.Calls(), "disconnect(true)") {
		t.Errorf("calls = %v", h.sim.Calls())
	}
}

func TestApplyStaticFields(t *testing.T) {
	base := radio.IPConfig{Gateway: net.IPv4(10, 0, 0, 1).To4()}
	got := ApplyStaticFields(base, map[string]string{
		"ip":   "10.0.0.5",
		"gw":   "not-an-ip",
		"dns1": "1.1.1.1",
	})
	if !got.IP.Equal(net.IPv4(10, 0, 0, 5)) {
		t.Errorf("IP = %v", got.IP)
	}
	if !got.Gateway.Equal(net.IPv4(10, 0, 0, 1)) {
		t.Errorf("Gateway = %v, want unchanged", got.Gateway)
	}
	if !got.DNS1.Equal(net.IPv4(1, 1, 1, 1)) || got.DNS2 != nil {
		t.Errorf("DNS = %v %v", got.DNS1, got.DNS2)
	}
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t, testConfig())
	h.s.setup("portal", "")
	h.run(1)
	snap := h.s.Snapshot()

	if snap.State != "ScanPending" || snap.APName != "portal" {
		t.Errorf("Snapshot() = %+v", snap)
	}
	if snap.ChipID != "240AC4123456" || snap.APIP != "192.168.4.1" {
		t.Errorf("identity = %s %s", snap.ChipID, snap.APIP)
	}
	if snap.Networks != 2 || snap.LastScan == nil {
		t.Errorf("scan fields = %d %v", snap.Networks, snap.LastScan)
	}
	if !strings.EqualFold(snap.APMAC, "24:0a:c4:12:34:57") {
		t.Errorf("APMAC = %s", snap.APMAC)
	}
}
