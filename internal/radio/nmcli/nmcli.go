// Package nmcli drives a Linux Wi-Fi interface through NetworkManager.
//
// The station and the soft AP are kept as two NetworkManager connection
// profiles owned by the daemon. Joins run `connection up` in the background so
// Begin returns immediately and Status polls the device state, the same
// contract a microcontroller driver offers. WPS push-button is delegated to
// wpa_cli.
package nmcli

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/radio"
)

const (
	// DefaultStationProfile is the NetworkManager profile holding station credentials.
	DefaultStationProfile = "wifiportal-sta"

	// DefaultAPProfile is the NetworkManager profile of the soft AP.
	DefaultAPProfile = "wifiportal-ap"

	// DefaultCommandTimeout bounds every nmcli invocation.
	DefaultCommandTimeout = 20 * time.Second

	// DefaultConnectWait is the period WaitForConnectResult blocks for.
	DefaultConnectWait = 30 * time.Second
)

// Options configures the backend.
type Options struct {
	// STAInterface is the interface used for station joins and scans.
	STAInterface string
	// APInterface hosts the soft AP. It may equal STAInterface on chips that
	// cannot run both roles, in which case AP+STA degrades to AP only.
	APInterface    string
	StationProfile string
	APProfile      string
	CommandTimeout time.Duration
	ConnectWait    time.Duration
	Runner         Runner
}

// Radio is a radio.Radio backed by nmcli.
type Radio struct {
	opts Options

	mu          sync.Mutex
	mode        radio.Mode
	apConfig    radio.IPConfig
	staConfig   radio.IPConfig
	scanning    bool
	scanCode    int
	results     []radio.Observation
	joinFailed  bool
	joinPending bool
}

// New returns an nmcli-backed radio.
func New(opts Options) *Radio {
	if opts.STAInterface == "" {
		opts.STAInterface = "wlan0"
	}
	if opts.APInterface == "" {
		opts.APInterface = opts.STAInterface
	}
	if opts.StationProfile == "" {
		opts.StationProfile = DefaultStationProfile
	}
	if opts.APProfile == "" {
		opts.APProfile = DefaultAPProfile
	}
	if opts.CommandTimeout == 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	if opts.ConnectWait == 0 {
		opts.ConnectWait = DefaultConnectWait
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	return &Radio{
		opts:     opts,
		mode:     radio.ModeStation,
		scanCode: radio.ScanFailed,
	}
}

func (r *Radio) run(args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.CommandTimeout)
	defer cancel()
	out, err := r.opts.Runner.Run(ctx, "nmcli", args...)
	if err != nil {
		logging.Debug("nmcli command failed", zap.Strings("args", redact(args)), zap.Error(err))
	}
	return out, err
}

// ScanNetworks implements radio.Scanner.
func (r *Radio) ScanNetworks(async bool) int {
	r.mu.Lock()
	if r.scanning {
		r.mu.Unlock()
		return radio.ScanRunning
	}
	r.scanning = true
	r.mu.Unlock()

	if async {
		go r.scan()
		return radio.ScanRunning
	}
	return r.scan()
}

func (r *Radio) scan() int {
	out, err := r.run("-t", "-f", "SSID,BSSID,CHAN,SIGNAL,SECURITY",
		"device", "wifi", "list", "ifname", r.opts.STAInterface, "--rescan", "yes")

	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanning = false
	if err != nil {
		r.scanCode = radio.ScanFailed
		return r.scanCode
	}
	r.results = parseWifiList(out)
	r.scanCode = len(r.results)
	return r.scanCode
}

// ScanComplete implements radio.Scanner.
func (r *Radio) ScanComplete() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scanning {
		return radio.ScanRunning
	}
	return r.scanCode
}

// ScanDelete implements radio.Scanner.
func (r *Radio) ScanDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = nil
	r.scanCode = radio.ScanFailed
}

// NetworkInfo implements radio.Scanner.
func (r *Radio) NetworkInfo(i int) (radio.Observation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.results) {
		return radio.Observation{}, false
	}
	return r.results[i], true
}

// Status implements radio.Station.
func (r *Radio) Status() radio.Status {
	out, err := r.run("-t", "-f", "GENERAL.STATE", "device", "show", r.opts.STAInterface)
	if err != nil {
		return radio.StatusDisconnected
	}
	st := parseDeviceState(out)

	r.mu.Lock()
	defer r.mu.Unlock()
	if st == radio.StatusConnected {
		r.joinFailed = false
		return st
	}
	if r.joinPending && st == radio.StatusDisconnected {
		return radio.StatusIdle
	}
	if r.joinFailed {
		return radio.StatusConnectFailed
	}
	return st
}

// SSID implements radio.Station.
func (r *Radio) SSID() string {
	out, err := r.run("-g", "802-11-wireless.ssid", "connection", "show", r.opts.StationProfile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// LocalIP implements radio.Station.
func (r *Radio) LocalIP() net.IP {
	out, err := r.run("-g", "IP4.ADDRESS", "device", "show", r.opts.STAInterface)
	if err != nil {
		return net.IPv4zero
	}
	if ip := parseIPv4(out); ip != nil {
		return ip
	}
	return net.IPv4zero
}

// MACAddress implements radio.Station.
func (r *Radio) MACAddress() net.HardwareAddr {
	return interfaceMAC(r.opts.STAInterface)
}

// Begin implements radio.Station.
func (r *Radio) Begin(ssid, pass string) error {
	r.mu.Lock()
	static := r.staConfig
	r.mu.Unlock()

	if ssid != "" {
		// Replacing the profile keeps exactly one stored credential pair.
		_, _ = r.run("connection", "delete", r.opts.StationProfile)
		args := []string{"connection", "add", "type", "wifi",
			"ifname", r.opts.STAInterface, "con-name", r.opts.StationProfile,
			"autoconnect", "yes", "ssid", ssid}
		if pass != "" {
			args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", pass)
		}
		args = append(args, ipv4Args(static)...)
		if _, err := r.run(args...); err != nil {
			return fmt.Errorf("failed to create station profile: %w", err)
		}
	} else if static.IsSet() {
		args := append([]string{"connection", "modify", r.opts.StationProfile}, ipv4Args(static)...)
		if _, err := r.run(args...); err != nil {
			return fmt.Errorf("failed to apply static address: %w", err)
		}
	}

	r.mu.Lock()
	r.joinPending = true
	r.joinFailed = false
	r.mu.Unlock()

	go func() {
		_, err := r.run("connection", "up", r.opts.StationProfile, "ifname", r.opts.STAInterface)
		r.mu.Lock()
		r.joinPending = false
		r.joinFailed = err != nil
		r.mu.Unlock()
	}()
	return nil
}

func ipv4Args(c radio.IPConfig) []string {
	if !c.IsSet() {
		return nil
	}
	args := []string{"ipv4.method", "manual",
		"ipv4.addresses", fmt.Sprintf("%s/%d", c.IP, c.PrefixLength())}
	if c.Gateway != nil {
		args = append(args, "ipv4.gateway", c.Gateway.String())
	}
	var dns []string
	for _, d := range []net.IP{c.DNS1, c.DNS2} {
		if d != nil && !d.IsUnspecified() {
			dns = append(dns, d.String())
		}
	}
	if len(dns) > 0 {
		args = append(args, "ipv4.dns", strings.Join(dns, ","))
	}
	return args
}

// Disconnect implements radio.Station.
func (r *Radio) Disconnect(eraseConfig bool) error {
	_, err := r.run("device", "disconnect", r.opts.STAInterface)
	if eraseConfig {
		if _, derr := r.run("connection", "delete", r.opts.StationProfile); derr != nil && err == nil {
			err = derr
		}
	}
	r.mu.Lock()
	r.joinPending = false
	r.joinFailed = false
	r.mu.Unlock()
	return err
}

// WaitForConnectResult implements radio.Station.
func (r *Radio) WaitForConnectResult() radio.Status {
	deadline := time.Now().Add(r.opts.ConnectWait)
	for {
		st := r.Status()
		if st != radio.StatusIdle || time.Now().After(deadline) {
			return st
		}
		time.Sleep(500 * time.Millisecond)
	}
}

// Config implements radio.Station.
func (r *Radio) Config(cfg radio.IPConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staConfig = cfg
	return nil
}

// Mode implements radio.AccessPoint.
func (r *Radio) Mode() radio.Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// SetMode implements radio.AccessPoint.
func (r *Radio) SetMode(m radio.Mode) error {
	var err error
	switch m {
	case radio.ModeAP:
		if r.opts.STAInterface != r.opts.APInterface {
			_, err = r.run("device", "disconnect", r.opts.STAInterface)
		}
	case radio.ModeStation:
		_, err = r.run("connection", "down", r.opts.APProfile)
	case radio.ModeOff:
		_, _ = r.run("connection", "down", r.opts.APProfile)
		_, err = r.run("device", "disconnect", r.opts.STAInterface)
	}

	r.mu.Lock()
	r.mode = m
	r.mu.Unlock()
	return err
}

// SoftAP implements radio.AccessPoint.
func (r *Radio) SoftAP(name, pass string) error {
	r.mu.Lock()
	cfg := r.apConfig
	r.mu.Unlock()

	_, _ = r.run("connection", "delete", r.opts.APProfile)
	args := []string{"connection", "add", "type", "wifi",
		"ifname", r.opts.APInterface, "con-name", r.opts.APProfile,
		"autoconnect", "no", "ssid", name,
		"802-11-wireless.mode", "ap", "802-11-wireless.band", "bg",
		"ipv4.method", "shared"}
	if cfg.IsSet() {
		args = append(args, "ipv4.addresses", fmt.Sprintf("%s/%d", cfg.IP, cfg.PrefixLength()))
	}
	if pass != "" {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk", pass)
	}
	if _, err := r.run(args...); err != nil {
		return fmt.Errorf("failed to create access point profile: %w", err)
	}
	if _, err := r.run("connection", "up", r.opts.APProfile); err != nil {
		return fmt.Errorf("failed to start access point: %w", err)
	}

	r.mu.Lock()
	if r.mode == radio.ModeStation || r.mode == radio.ModeOff {
		r.mode = radio.ModeAPStation
	}
	r.mu.Unlock()
	return nil
}

// SoftAPConfig implements radio.AccessPoint.
func (r *Radio) SoftAPConfig(cfg radio.IPConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apConfig = cfg
	return nil
}

// SoftAPIP implements radio.AccessPoint.
func (r *Radio) SoftAPIP() net.IP {
	r.mu.Lock()
	cfg := r.apConfig
	r.mu.Unlock()
	if cfg.IsSet() {
		return cfg.IP
	}
	out, err := r.run("-g", "IP4.ADDRESS", "device", "show", r.opts.APInterface)
	if err == nil {
		if ip := parseIPv4(out); ip != nil {
			return ip
		}
	}
	// NetworkManager's default for shared connections.
	return net.IPv4(10, 42, 0, 1)
}

// SoftAPMACAddress implements radio.AccessPoint.
func (r *Radio) SoftAPMACAddress() net.HardwareAddr {
	return interfaceMAC(r.opts.APInterface)
}

// StartWPS implements radio.WPS using wpa_supplicant's push-button mode.
func (r *Radio) StartWPS() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.CommandTimeout)
	defer cancel()
	out, err := r.opts.Runner.Run(ctx, "wpa_cli", "-i", r.opts.STAInterface, "wps_pbc")
	if err != nil {
		return fmt.Errorf("wps push-button failed: %w", err)
	}
	if !strings.Contains(string(out), "OK") {
		return fmt.Errorf("wps push-button rejected: %s", strings.TrimSpace(string(out)))
	}
	r.mu.Lock()
	r.joinPending = true
	r.mu.Unlock()
	return nil
}

func interfaceMAC(name string) net.HardwareAddr {
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return iface.HardwareAddr
}

var (
	_ radio.Radio = (*Radio)(nil)
	_ radio.WPS   = (*Radio)(nil)
)
