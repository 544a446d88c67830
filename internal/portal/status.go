package portal

import (
	"time"

	"github.com/muurk/wifiportal/internal/radio"
)

// Status is a point-in-time view of the session for pages and the status
// API.
type Status struct {
	State           string     `json:"state"`
	Modeless        bool       `json:"modeless"`
	ChipID          string     `json:"chip_id"`
	APName          string     `json:"ap_name"`
	APIP            string     `json:"ap_ip"`
	APMAC           string     `json:"ap_mac"`
	APForced        bool       `json:"ap_forced"`
	StationSSID     string     `json:"station_ssid"`
	StationIP       string     `json:"station_ip"`
	StationMAC      string     `json:"station_mac"`
	StationStatus   string     `json:"station_status"`
	Connected       bool       `json:"connected"`
	ConnectPending  bool       `json:"connect_pending"`
	StandAlone      bool       `json:"stand_alone"`
	ConfiguredSSID  string     `json:"configured_ssid,omitempty"`
	FoundConfigured bool       `json:"found_configured"`
	Networks        int        `json:"networks"`
	LastScan        *time.Time `json:"last_scan,omitempty"`
	ScanAgeSeconds  float64    `json:"scan_age_seconds"`
	Uptime          float64    `json:"uptime_seconds"`
	LastAttempt     *Attempt   `json:"last_attempt,omitempty"`
}

// Snapshot collects the current status. Radio queries happen outside the
// session lock.
func (s *Session) Snapshot() Status {
	now := s.clock.Now()

	s.mu.Lock()
	st := Status{
		State:          s.state.String(),
		Modeless:       s.modeless,
		APName:         s.apName,
		APForced:       s.apForced,
		ConnectPending: s.connectRequested,
	}
	if !s.started.IsZero() {
		st.Uptime = now.Sub(s.started).Seconds()
	}
	if s.last != nil {
		a := *s.last
		st.LastAttempt = &a
	}
	s.mu.Unlock()

	st.ChipID = radio.ChipID(s.radio.MACAddress())
	st.APIP = s.radio.SoftAPIP().String()
	st.APMAC = s.radio.SoftAPMACAddress().String()
	st.StationSSID = s.radio.SSID()
	st.StationMAC = s.radio.MACAddress().String()
	status := s.radio.Status()
	st.StationStatus = status.String()
	st.Connected = status == radio.StatusConnected
	if st.Connected {
		st.StationIP = s.radio.LocalIP().String()
	}
	st.StandAlone = s.StandAlone()
	st.ConfiguredSSID = s.ConfiguredSSID()

	if b := s.scans.Latest(); b != nil {
		at := b.ScannedAt
		st.LastScan = &at
		st.ScanAgeSeconds = now.Sub(at).Seconds()
		st.Networks = b.Len()
		st.FoundConfigured = b.FoundConfigured
	}
	return st
}
