// Package simradio provides an in-memory radio. The daemon uses it with
// --simulate to exercise the portal on machines without Wi-Fi hardware, and
// tests use it to script scan and connect outcomes.
package simradio

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/muurk/wifiportal/internal/clock"
	"github.com/muurk/wifiportal/internal/radio"
)

// Network is a simulated access point within range.
type Network struct {
	Observation radio.Observation
	// Password accepted by the network; ignored for open networks.
	Password string
}

// Sim is a scriptable radio.Radio. All methods are safe for concurrent use.
type Sim struct {
	mu sync.Mutex

	clock    clock.Clock
	networks []Network

	// ConnectLatency is how long a Begin stays in StatusIdle before resolving.
	ConnectLatency time.Duration
	// ScanCode, when non-zero, is returned by scans instead of a count.
	ScanCode int
	// DefaultWait is the period WaitForConnectResult blocks for.
	DefaultWait time.Duration

	mode       radio.Mode
	apName     string
	apPass     string
	apConfig   radio.IPConfig
	staConfig  radio.IPConfig
	storedSSID string
	storedPass string

	joining   bool
	joinSSID  string
	joinPass  string
	joinStart time.Time
	status    radio.Status

	lastScan    []radio.Observation
	scanPending bool
	scanDone    bool

	mac   net.HardwareAddr
	apMAC net.HardwareAddr
	calls []string
}

// New returns a simulated radio using the given clock. A nil clock uses
// the system clock.
func New(c clock.Clock, networks ...Network) *Sim {
	if c == nil {
		c = clock.Real{}
	}
	return &Sim{
		clock:          c,
		networks:       networks,
		ConnectLatency: 2 * time.Second,
		DefaultWait:    10 * time.Second,
		mode:           radio.ModeStation,
		status:         radio.StatusDisconnected,
		mac:            net.HardwareAddr{0x24, 0x0a, 0xc4, 0x12, 0x34, 0x56},
		apMAC:          net.HardwareAddr{0x24, 0x0a, 0xc4, 0x12, 0x34, 0x57},
	}
}

// Demo returns a simulated radio with a handful of neighbours, used by the
// daemon's --simulate mode.
func Demo() *Sim {
	return New(nil,
		Network{Observation: radio.Observation{SSID: "home", RSSI: -48, Channel: 6, Encryption: radio.EncryptionWPA2PSK}, Password: "correct horse"},
		Network{Observation: radio.Observation{SSID: "home", RSSI: -71, Channel: 11, Encryption: radio.EncryptionWPA2PSK}, Password: "correct horse"},
		Network{Observation: radio.Observation{SSID: "cafe", RSSI: -67, Channel: 1, Encryption: radio.EncryptionOpen}},
		Network{Observation: radio.Observation{SSID: "neighbour", RSSI: -93, Channel: 1, Encryption: radio.EncryptionWPA2PSK}, Password: "x"},
	)
}

// SetNetworks replaces the networks in range.
func (s *Sim) SetNetworks(networks ...Network) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.networks = networks
}

// Remember stores station credentials as if a previous session had saved them.
func (s *Sim) Remember(ssid, pass string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storedSSID = ssid
	s.storedPass = pass
}

// ForceStatus overrides the station status until the next Begin.
func (s *Sim) ForceStatus(st radio.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joining = false
	s.status = st
}

// Calls returns the recorded driver calls in order.
func (s *Sim) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// ResetCalls clears the call log.
func (s *Sim) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// APName returns the SSID the soft AP was started with.
func (s *Sim) APName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apName
}

// APPassword returns the passphrase the soft AP was started with.
func (s *Sim) APPassword() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apPass
}

func (s *Sim) record(format string, args ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

// ScanNetworks implements radio.Scanner.
func (s *Sim) ScanNetworks(async bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("scan(%t)", async)

	if s.ScanCode != 0 {
		return s.ScanCode
	}
	if async {
		s.scanPending = true
		s.scanDone = false
		return radio.ScanRunning
	}
	s.captureLocked()
	return len(s.lastScan)
}

// ScanComplete implements radio.Scanner. A pending async scan completes on
// the first call.
func (s *Sim) ScanComplete() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ScanCode != 0 {
		return s.ScanCode
	}
	if s.scanPending {
		s.scanPending = false
		s.captureLocked()
	}
	if !s.scanDone {
		return radio.ScanFailed
	}
	return len(s.lastScan)
}

func (s *Sim) captureLocked() {
	s.lastScan = make([]radio.Observation, 0, len(s.networks))
	for _, n := range s.networks {
		s.lastScan = append(s.lastScan, n.Observation)
	}
	s.scanDone = true
}

// ScanDelete implements radio.Scanner.
func (s *Sim) ScanDelete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScan = nil
	s.scanDone = false
}

// NetworkInfo implements radio.Scanner.
func (s *Sim) NetworkInfo(i int) (radio.Observation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.lastScan) {
		return radio.Observation{}, false
	}
	return s.lastScan[i], true
}

// Status implements radio.Station.
func (s *Sim) Status() radio.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Sim) statusLocked() radio.Status {
	if !s.joining {
		return s.status
	}
	if s.clock.Now().Sub(s.joinStart) < s.ConnectLatency {
		return radio.StatusIdle
	}

	s.joining = false
	s.status = radio.StatusNoSSIDAvailable
	for _, n := range s.networks {
		if n.Observation.SSID != s.joinSSID {
			continue
		}
		if n.Observation.Encryption.Secured() && n.Password != s.joinPass {
			s.status = radio.StatusConnectFailed
			continue
		}
		s.status = radio.StatusConnected
		break
	}
	return s.status
}

// SSID implements radio.Station.
func (s *Sim) SSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storedSSID
}

// LocalIP implements radio.Station.
func (s *Sim) LocalIP() net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusLocked() != radio.StatusConnected {
		return net.IPv4zero
	}
	if s.staConfig.IsSet() {
		return s.staConfig.IP
	}
	return net.IPv4(192, 168, 1, 77)
}

// MACAddress implements radio.Station.
func (s *Sim) MACAddress() net.HardwareAddr {
	return s.mac
}

// Begin implements radio.Station.
func (s *Sim) Begin(ssid, pass string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ssid == "" {
		s.record("begin()")
		ssid, pass = s.storedSSID, s.storedPass
	} else {
		s.record("begin(%s)", ssid)
		s.storedSSID, s.storedPass = ssid, pass
	}
	if ssid == "" {
		s.status = radio.StatusNoSSIDAvailable
		s.joining = false
		return nil
	}

	s.joining = true
	s.joinSSID = ssid
	s.joinPass = pass
	s.joinStart = s.clock.Now()
	s.status = radio.StatusIdle
	return nil
}

// Disconnect implements radio.Station.
func (s *Sim) Disconnect(eraseConfig bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("disconnect(%t)", eraseConfig)
	s.joining = false
	s.status = radio.StatusDisconnected
	if eraseConfig {
		s.storedSSID = ""
		s.storedPass = ""
	}
	return nil
}

// WaitForConnectResult implements radio.Station.
func (s *Sim) WaitForConnectResult() radio.Status {
	deadline := s.clock.Now().Add(s.DefaultWait)
	for {
		st := s.Status()
		if st != radio.StatusIdle || !s.clock.Now().Before(deadline) {
			return st
		}
		s.clock.Sleep(100 * time.Millisecond)
	}
}

// Config implements radio.Station.
func (s *Sim) Config(cfg radio.IPConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("config(%s)", cfg.IP)
	s.staConfig = cfg
	return nil
}

// Mode implements radio.AccessPoint.
func (s *Sim) Mode() radio.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode implements radio.AccessPoint.
func (s *Sim) SetMode(m radio.Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("mode(%s)", m)
	s.mode = m
	if m == radio.ModeAP {
		s.joining = false
		s.status = radio.StatusDisconnected
	}
	return nil
}

// SoftAP implements radio.AccessPoint.
func (s *Sim) SoftAP(name, pass string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("softap(%s)", name)
	s.apName = name
	s.apPass = pass
	if s.mode == radio.ModeStation || s.mode == radio.ModeOff {
		s.mode = radio.ModeAPStation
	}
	return nil
}

// SoftAPConfig implements radio.AccessPoint.
func (s *Sim) SoftAPConfig(cfg radio.IPConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("softapconfig(%s)", cfg.IP)
	s.apConfig = cfg
	return nil
}

// SoftAPIP implements radio.AccessPoint.
func (s *Sim) SoftAPIP() net.IP {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.apConfig.IsSet() {
		return s.apConfig.IP
	}
	return net.IPv4(192, 168, 4, 1)
}

// SoftAPMACAddress implements radio.AccessPoint.
func (s *Sim) SoftAPMACAddress() net.HardwareAddr {
	return s.apMAC
}

// WithWPS wraps a simulated radio with WPS support. A WPS negotiation joins
// the first secured network in range using its password.
type WithWPS struct {
	*Sim
	Attempts int
}

// StartWPS implements radio.WPS.
func (w *WithWPS) StartWPS() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Attempts++
	w.record("wps()")
	for _, n := range w.networks {
		if n.Observation.Encryption.Secured() {
			w.storedSSID = n.Observation.SSID
			w.storedPass = n.Password
			w.joining = true
			w.joinSSID = n.Observation.SSID
			w.joinPass = n.Password
			w.joinStart = w.clock.Now()
			return nil
		}
	}
	return fmt.Errorf("wps: no registrar in range")
}

var (
	_ radio.Radio = (*Sim)(nil)
	_ radio.WPS   = (*WithWPS)(nil)
)
