package radio

import (
	"errors"
	"net"
)

// ErrNotSupported is returned by backends for primitives the hardware lacks.
var ErrNotSupported = errors.New("radio: operation not supported")

// Scanner runs network scans and exposes their raw results by index.
type Scanner interface {
	// ScanNetworks starts a scan. Synchronous scans return the number of
	// networks found or a negative sentinel; async scans return ScanRunning.
	ScanNetworks(async bool) int
	// ScanComplete returns the count of the last scan, or a sentinel while
	// one is running or after it failed.
	ScanComplete() int
	// ScanDelete discards the driver's copy of the last scan.
	ScanDelete()
	// NetworkInfo returns the i-th result of the last scan.
	NetworkInfo(i int) (Observation, bool)
}

// Station is the client side of the radio.
type Station interface {
	Status() Status
	// SSID is the remembered station SSID, empty when nothing is stored.
	SSID() string
	LocalIP() net.IP
	MACAddress() net.HardwareAddr
	// Begin starts joining a network. Empty ssid reuses stored credentials.
	// It must not block until the association completes.
	Begin(ssid, pass string) error
	// Disconnect drops the station link, erasing stored credentials when
	// eraseConfig is set.
	Disconnect(eraseConfig bool) error
	// WaitForConnectResult blocks for the driver's own default period.
	WaitForConnectResult() Status
	// Config applies a static station address before the next Begin.
	Config(cfg IPConfig) error
}

// AccessPoint is the soft AP side of the radio.
type AccessPoint interface {
	Mode() Mode
	SetMode(m Mode) error
	// SoftAP starts the access point; an empty pass runs an open network.
	SoftAP(name, pass string) error
	SoftAPConfig(cfg IPConfig) error
	SoftAPIP() net.IP
	SoftAPMACAddress() net.HardwareAddr
}

// Radio is the full capability surface the portal drives. A portal session
// owns it exclusively while active.
type Radio interface {
	Scanner
	Station
	AccessPoint
}

// WPS is implemented by radios that can negotiate credentials by push button.
type WPS interface {
	StartWPS() error
}

// SupportsWPS reports whether r offers WPS negotiation.
func SupportsWPS(r Radio) (WPS, bool) {
	w, ok := r.(WPS)
	return w, ok
}
