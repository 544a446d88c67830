package portal

import (
	"fmt"
	"time"

	"github.com/muurk/wifiportal/internal/radio"
	"github.com/muurk/wifiportal/internal/wifi"
)

// Defaults for Config.
const (
	DefaultScanInterval         = 1000 * time.Second
	DefaultModelessScanInterval = 60 * time.Second
	DefaultAPGracePeriod        = 40 * time.Second
	DefaultAPNotFoundGrace      = 2 * time.Second
	DefaultAPAfterSaveGrace     = 20 * time.Second
	DefaultSaveSettleDelay      = 2 * time.Second
	DefaultAPSettleDelay        = 500 * time.Millisecond
	DefaultTickInterval         = 10 * time.Millisecond
	DefaultDNSPort              = 53
	DefaultDNSDomain            = "*"
	DefaultMaxParameters        = 10
	DefaultMinimumQuality       = -1
	MaxListedNetworks           = 10
)

// AP password length bounds (WPA2 passphrase).
const (
	MinAPPasswordLen = 8
	MaxAPPasswordLen = 63
)

// Config holds the portal behaviour knobs. The zero value is not useful;
// start from DefaultConfig.
type Config struct {
	// APName and APPassword are used when StartPortal is given empty values.
	APName     string
	APPassword string

	// APStatic, when set, is applied to the soft AP before it starts.
	APStatic radio.IPConfig
	// STAStatic, when set, is applied to the station before every join.
	STAStatic radio.IPConfig

	// PortalTimeout bounds a blocking session. Zero means never.
	PortalTimeout time.Duration
	// ConnectTimeout bounds each join. Zero delegates to the radio's own wait.
	ConnectTimeout time.Duration

	// MinimumQuality hides networks below this quality; -1 disables.
	MinimumQuality   int
	RemoveDuplicates bool

	BreakAfterConfig       bool
	TryConnectDuringPortal bool
	TryWPS                 bool

	ScanInterval         time.Duration
	ModelessScanInterval time.Duration

	// APGracePeriod is how long the portal runs in AP+STA before forcing
	// AP-only. The other two graces replace it after a scan that misses the
	// configured network and after a credential save.
	APGracePeriod    time.Duration
	APNotFoundGrace  time.Duration
	APAfterSaveGrace time.Duration

	// SaveSettleDelay lets the save response reach the client before the
	// radio leaves the AP channel.
	SaveSettleDelay time.Duration
	APSettleDelay   time.Duration
	TickInterval    time.Duration

	DNSPort   int
	DNSDomain string

	MaxParameters int

	CustomHeadElement    string
	CustomOptionsElement string
}

// DefaultConfig returns the stock behaviour.
func DefaultConfig() Config {
	return Config{
		MinimumQuality:         DefaultMinimumQuality,
		RemoveDuplicates:       true,
		TryConnectDuringPortal: true,
		ScanInterval:           DefaultScanInterval,
		ModelessScanInterval:   DefaultModelessScanInterval,
		APGracePeriod:          DefaultAPGracePeriod,
		APNotFoundGrace:        DefaultAPNotFoundGrace,
		APAfterSaveGrace:       DefaultAPAfterSaveGrace,
		SaveSettleDelay:        DefaultSaveSettleDelay,
		APSettleDelay:          DefaultAPSettleDelay,
		TickInterval:           DefaultTickInterval,
		DNSPort:                DefaultDNSPort,
		DNSDomain:              DefaultDNSDomain,
		MaxParameters:          DefaultMaxParameters,
	}
}

// withDefaults fills zero-valued intervals so a partially built Config
// cannot spin or stall the loop.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ScanInterval <= 0 {
		c.ScanInterval = d.ScanInterval
	}
	if c.ModelessScanInterval <= 0 {
		c.ModelessScanInterval = d.ModelessScanInterval
	}
	if c.APGracePeriod <= 0 {
		c.APGracePeriod = d.APGracePeriod
	}
	if c.APNotFoundGrace <= 0 {
		c.APNotFoundGrace = d.APNotFoundGrace
	}
	if c.APAfterSaveGrace <= 0 {
		c.APAfterSaveGrace = d.APAfterSaveGrace
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.DNSPort <= 0 {
		c.DNSPort = d.DNSPort
	}
	if c.DNSDomain == "" {
		c.DNSDomain = d.DNSDomain
	}
	if c.MaxParameters <= 0 {
		c.MaxParameters = d.MaxParameters
	}
	return c
}

// ValidateAPPassword checks a soft AP passphrase. Empty means an open AP.
func ValidateAPPassword(pass string) error {
	if pass == "" {
		return nil
	}
	if n := len(pass); n < MinAPPasswordLen || n > MaxAPPasswordLen {
		return wifi.NewInvalidConfigError("ap_password",
			fmt.Sprintf("length %d outside %d-%d", n, MinAPPasswordLen, MaxAPPasswordLen))
	}
	return nil
}
