package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Device is a provisioned device found on the network.
type Device struct {
	// ChipID is the device identity, taken from the instance name.
	ChipID string

	// Instance is the full mDNS instance name (e.g. "wifiportal-240AC4123456")
	Instance string

	// Hostname is the mDNS host (e.g. "wifiportal-240AC4123456.local.")
	Hostname string

	IP   string
	Port int

	// Metadata holds the TXT records: path, chip, ver
	Metadata map[string]string

	DiscoveredAt time.Time
}

func (d *Device) String() string {
	return fmt.Sprintf("Device %s (%s) at %s", d.ChipID, d.Hostname, net.JoinHostPort(d.IP, strconv.Itoa(d.Port)))
}

// BaseURL returns the HTTP base URL of the device.
func (d *Device) BaseURL() string {
	return "http://" + net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}

// PortalURL returns the advertised station API entry point.
func (d *Device) PortalURL() string {
	path := d.GetMetadata(TXTPath)
	if path == "" {
		path = "/"
	}
	return d.BaseURL() + path
}

// Version returns the advertised daemon version, if any.
func (d *Device) Version() string {
	return d.GetMetadata(TXTVersion)
}

// GetMetadata returns a TXT value, or "" when absent.
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
