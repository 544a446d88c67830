package radio

import (
	"fmt"
	"net"
)

// Scan sentinels returned by ScanNetworks and ScanComplete in place of a count.
const (
	ScanRunning = -1
	ScanFailed  = -2
)

// Status is the station connection status reported by the radio.
type Status int

const (
	StatusIdle Status = iota
	StatusNoSSIDAvailable
	StatusScanCompleted
	StatusConnected
	StatusConnectFailed
	StatusConnectionLost
	StatusDisconnected
)

// String returns a human-readable status name
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusNoSSIDAvailable:
		return "no ssid available"
	case StatusScanCompleted:
		return "scan completed"
	case StatusConnected:
		return "connected"
	case StatusConnectFailed:
		return "connect failed"
	case StatusConnectionLost:
		return "connection lost"
	case StatusDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Mode is the radio operating mode.
type Mode int

const (
	ModeOff Mode = iota
	ModeStation
	ModeAP
	ModeAPStation
)

// String returns a human-readable mode name
func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeStation:
		return "sta"
	case ModeAP:
		return "ap"
	case ModeAPStation:
		return "ap+sta"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Encryption is the security kind advertised by a network.
type Encryption int

const (
	EncryptionOpen Encryption = iota
	EncryptionWEP
	EncryptionWPAPSK
	EncryptionWPA2PSK
	EncryptionWPAWPA2PSK
	EncryptionWPA2Enterprise
	EncryptionWPA3PSK
	EncryptionWPA2WPA3PSK
	EncryptionUnknown
)

// Secured reports whether joining the network needs credentials.
func (e Encryption) Secured() bool {
	return e != EncryptionOpen
}

// String returns a human-readable encryption name
func (e Encryption) String() string {
	switch e {
	case EncryptionOpen:
		return "open"
	case EncryptionWEP:
		return "wep"
	case EncryptionWPAPSK:
		return "wpa-psk"
	case EncryptionWPA2PSK:
		return "wpa2-psk"
	case EncryptionWPAWPA2PSK:
		return "wpa/wpa2-psk"
	case EncryptionWPA2Enterprise:
		return "wpa2-enterprise"
	case EncryptionWPA3PSK:
		return "wpa3-psk"
	case EncryptionWPA2WPA3PSK:
		return "wpa2/wpa3-psk"
	default:
		return "unknown"
	}
}

// Observation is one network seen by a scan.
type Observation struct {
	SSID       string
	Encryption Encryption
	RSSI       int
	Channel    int
	Hidden     bool
	BSSID      net.HardwareAddr

	// Duplicate is derived by the scan cache, never by the radio.
	Duplicate bool
}

// IPConfig is a static IPv4 configuration for the soft AP or the station.
// DNS servers are only used for the station.
type IPConfig struct {
	IP      net.IP
	Gateway net.IP
	Netmask net.IP
	DNS1    net.IP
	DNS2    net.IP
}

// IsSet reports whether a static address is configured.
func (c IPConfig) IsSet() bool {
	return c.IP != nil && !c.IP.IsUnspecified()
}

// PrefixLength returns the CIDR prefix length of the netmask, 24 when unset.
func (c IPConfig) PrefixLength() int {
	if c.Netmask == nil {
		return 24
	}
	mask := c.Netmask.To4()
	if mask == nil {
		return 24
	}
	ones, bits := net.IPMask(mask).Size()
	if bits == 0 {
		return 24
	}
	return ones
}

// ChipID renders a MAC address as upper-case hex with no separators. It is
// the device identity used in default AP names and mDNS instance names.
func ChipID(mac net.HardwareAddr) string {
	return fmt.Sprintf("%X", []byte(mac))
}
