package config

import (
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/portal"
	"github.com/muurk/wifiportal/internal/radio"
)

// DefaultTickInterval paces the portal loop of the daemon. It is coarser
// than the in-process default since every tick queries the radio.
const DefaultTickInterval = 200 * time.Millisecond

// Config is the daemon configuration file.
type Config struct {
	Version  int    `yaml:"version" ignored:"true"`
	LogLevel string `yaml:"log_level" split_words:"true"`

	AP         APConfig         `yaml:"ap" split_words:"true"`
	Station    StationConfig    `yaml:"station" split_words:"true"`
	Portal     PortalConfig     `yaml:"portal" split_words:"true"`
	APFallback APFallbackConfig `yaml:"ap_fallback" split_words:"true"`
	DNS        DNSConfig        `yaml:"dns" split_words:"true"`
	Radio      RadioConfig      `yaml:"radio" split_words:"true"`
	Store      StoreConfig      `yaml:"store" split_words:"true"`
	Discovery  DiscoveryConfig  `yaml:"discovery" split_words:"true"`
	System     SystemConfig     `yaml:"system" split_words:"true"`

	Parameters []Parameter `yaml:"parameters,omitempty" ignored:"true"`
}

// APConfig describes the soft access point.
type APConfig struct {
	Name       string   `yaml:"name" split_words:"true"`
	NamePrefix string   `yaml:"name_prefix" split_words:"true"`
	Password   string   `yaml:"password" split_words:"true"`
	Static     IPConfig `yaml:"static" split_words:"true"`
}

// StationConfig describes how the station joins networks.
type StationConfig struct {
	Static         IPConfig      `yaml:"static" split_words:"true"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" split_words:"true"`
	TryWPS         bool          `yaml:"try_wps" split_words:"true"`
}

// PortalConfig holds the portal loop and HTTP settings.
type PortalConfig struct {
	Timeout                time.Duration `yaml:"timeout" split_words:"true"`
	HTTPAddr               string        `yaml:"http_addr" split_words:"true"`
	Modeless               bool          `yaml:"modeless" split_words:"true"`
	MinimumQuality         int           `yaml:"minimum_quality" split_words:"true"`
	RemoveDuplicates       bool          `yaml:"remove_duplicates" split_words:"true"`
	BreakAfterConfig       bool          `yaml:"break_after_config" split_words:"true"`
	TryConnectDuringPortal bool          `yaml:"try_connect_during_portal" split_words:"true"`
	ScanInterval           time.Duration `yaml:"scan_interval" split_words:"true"`
	// TickInterval paces the portal loop. Each tick polls the radio status,
	// which spawns a process on the nmcli backend.
	TickInterval         time.Duration `yaml:"tick_interval" split_words:"true"`
	ModelessScanInterval time.Duration `yaml:"modeless_scan_interval" split_words:"true"`
	AutoConnectRetries   int           `yaml:"auto_connect_retries" split_words:"true"`
	AutoConnectDelay     time.Duration `yaml:"auto_connect_delay" split_words:"true"`
	CustomHead           string        `yaml:"custom_head,omitempty" split_words:"true"`
	CustomOptions        string        `yaml:"custom_options,omitempty" split_words:"true"`
}

// APFallbackConfig holds the graces after which the radio is forced into
// AP-only mode.
type APFallbackConfig struct {
	Grace     time.Duration `yaml:"grace" split_words:"true"`
	NotFound  time.Duration `yaml:"not_found" split_words:"true"`
	AfterSave time.Duration `yaml:"after_save" split_words:"true"`
}

type DNSConfig struct {
	Port   int    `yaml:"port" split_words:"true"`
	Domain string `yaml:"domain" split_words:"true"`
}

// RadioConfig selects and configures the radio backend.
type RadioConfig struct {
	Backend        string        `yaml:"backend" split_words:"true"` // nmcli or sim
	STAInterface   string        `yaml:"sta_interface" split_words:"true"`
	APInterface    string        `yaml:"ap_interface,omitempty" split_words:"true"`
	CommandTimeout time.Duration `yaml:"command_timeout" split_words:"true"`
}

type StoreConfig struct {
	Path string `yaml:"path" split_words:"true"`
}

// DiscoveryConfig controls the mDNS advertisement made once connected.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled" split_words:"true"`
	Port    int  `yaml:"port" split_words:"true"`
}

// SystemConfig holds host integration settings.
type SystemConfig struct {
	RebootCommand []string `yaml:"reboot_command,flow" split_words:"true"`
	Watchdog      bool     `yaml:"watchdog" split_words:"true"`
}

// IPConfig is a static address block in dotted-quad form. An empty IP
// means DHCP.
type IPConfig struct {
	IP           string `yaml:"ip,omitempty" split_words:"true"`
	Gateway      string `yaml:"gateway,omitempty" split_words:"true"`
	Netmask      string `yaml:"netmask,omitempty" split_words:"true"`
	DNSPrimary   string `yaml:"dns1,omitempty" split_words:"true"`
	DNSSecondary string `yaml:"dns2,omitempty" split_words:"true"`
}

// Parameter declares an extra field on the configuration form.
type Parameter struct {
	ID          string `yaml:"id,omitempty"`
	Placeholder string `yaml:"placeholder,omitempty"`
	Default     string `yaml:"default,omitempty"`
	Length      int    `yaml:"length,omitempty"`
	CustomHTML  string `yaml:"custom_html,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:  1,
		LogLevel: "info",
		AP: APConfig{
			NamePrefix: "ESP",
		},
		Station: StationConfig{
			ConnectTimeout: 30 * time.Second,
		},
		Portal: PortalConfig{
			HTTPAddr:               ":80",
			MinimumQuality:         8,
			RemoveDuplicates:       true,
			TryConnectDuringPortal: true,
			ScanInterval:           portal.DefaultScanInterval,
			TickInterval:           DefaultTickInterval,
			ModelessScanInterval:   portal.DefaultModelessScanInterval,
			AutoConnectRetries:     1,
			AutoConnectDelay:       10 * time.Second,
		},
		APFallback: APFallbackConfig{
			Grace:     portal.DefaultAPGracePeriod,
			NotFound:  portal.DefaultAPNotFoundGrace,
			AfterSave: portal.DefaultAPAfterSaveGrace,
		},
		DNS: DNSConfig{
			Port:   portal.DefaultDNSPort,
			Domain: portal.DefaultDNSDomain,
		},
		Radio: RadioConfig{
			Backend:        "nmcli",
			STAInterface:   "wlan0",
			CommandTimeout: 20 * time.Second,
		},
		Store: StoreConfig{
			Path: "/var/lib/wifiportal/state.yaml",
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
			Port:    80,
		},
		System: SystemConfig{
			RebootCommand: []string{"systemctl", "reboot"},
			Watchdog:      true,
		},
	}
}

// Validate reports every problem found. AP password problems are reported
// but the portal still starts with an open AP.
func (c *Config) Validate() []error {
	var errs []error

	if err := portal.ValidateAPPassword(c.AP.Password); err != nil {
		errs = append(errs, err)
	}
	if c.Portal.MinimumQuality < -1 || c.Portal.MinimumQuality > 100 {
		errs = append(errs, fmt.Errorf("portal.minimum_quality %d outside -1..100", c.Portal.MinimumQuality))
	}
	if c.Portal.Timeout < 0 {
		errs = append(errs, fmt.Errorf("portal.timeout must not be negative"))
	}
	if c.Portal.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("portal.tick_interval must not be negative"))
	}
	if c.Portal.AutoConnectRetries < 0 {
		errs = append(errs, fmt.Errorf("portal.auto_connect_retries must not be negative"))
	}
	if c.Station.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("station.connect_timeout must not be negative"))
	}
	if c.DNS.Port < 0 || c.DNS.Port > 65535 {
		errs = append(errs, fmt.Errorf("dns.port %d out of range", c.DNS.Port))
	}
	switch c.Radio.Backend {
	case "nmcli", "sim":
	default:
		errs = append(errs, fmt.Errorf("radio.backend %q: want nmcli or sim", c.Radio.Backend))
	}
	if len(c.Parameters) > portal.DefaultMaxParameters {
		errs = append(errs, fmt.Errorf("%d parameters declared, at most %d allowed", len(c.Parameters), portal.DefaultMaxParameters))
	}
	for i, p := range c.Parameters {
		if p.ID == "" && p.CustomHTML == "" {
			errs = append(errs, fmt.Errorf("parameters[%d]: needs an id or custom_html", i))
		}
		if p.ID != "" && p.Length <= 0 {
			errs = append(errs, fmt.Errorf("parameters[%d] %q: length must be positive", i, p.ID))
		}
	}
	for name, ipc := range map[string]IPConfig{"ap.static": c.AP.Static, "station.static": c.Station.Static} {
		if _, err := ipc.Parse(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errs
}

// Parse converts the block into a radio.IPConfig.
func (c IPConfig) Parse() (radio.IPConfig, error) {
	var out radio.IPConfig
	fields := []struct {
		name string
		in   string
		dst  *net.IP
	}{
		{"ip", c.IP, &out.IP},
		{"gateway", c.Gateway, &out.Gateway},
		{"netmask", c.Netmask, &out.Netmask},
		{"dns1", c.DNSPrimary, &out.DNS1},
		{"dns2", c.DNSSecondary, &out.DNS2},
	}
	for _, f := range fields {
		if f.in == "" {
			continue
		}
		ip := net.ParseIP(f.in).To4()
		if ip == nil {
			return radio.IPConfig{}, fmt.Errorf("%s %q is not an IPv4 address", f.name, f.in)
		}
		*f.dst = ip
	}
	return out, nil
}

// APName returns the configured AP name or the prefix followed by chipID.
func (c *Config) APName(chipID string) string {
	if c.AP.Name != "" {
		return c.AP.Name
	}
	return c.AP.NamePrefix + chipID
}

// PortalConfig builds the portal settings. Malformed static blocks are
// logged and dropped, leaving the address unset.
func (c *Config) PortalConfig() portal.Config {
	pc := portal.DefaultConfig()
	pc.APName = c.AP.Name
	pc.APPassword = c.AP.Password
	pc.APStatic = parseStatic("ap.static", c.AP.Static)
	pc.STAStatic = parseStatic("station.static", c.Station.Static)
	if c.Portal.TickInterval > 0 {
		pc.TickInterval = c.Portal.TickInterval
	}
	pc.PortalTimeout = c.Portal.Timeout
	pc.ConnectTimeout = c.Station.ConnectTimeout
	pc.MinimumQuality = c.Portal.MinimumQuality
	pc.RemoveDuplicates = c.Portal.RemoveDuplicates
	pc.BreakAfterConfig = c.Portal.BreakAfterConfig
	pc.TryConnectDuringPortal = c.Portal.TryConnectDuringPortal
	pc.TryWPS = c.Station.TryWPS
	pc.ScanInterval = c.Portal.ScanInterval
	pc.ModelessScanInterval = c.Portal.ModelessScanInterval
	pc.APGracePeriod = c.APFallback.Grace
	pc.APNotFoundGrace = c.APFallback.NotFound
	pc.APAfterSaveGrace = c.APFallback.AfterSave
	pc.DNSPort = c.DNS.Port
	pc.DNSDomain = c.DNS.Domain
	pc.CustomHeadElement = c.Portal.CustomHead
	pc.CustomOptionsElement = c.Portal.CustomOptions
	return pc
}

func parseStatic(name string, ipc IPConfig) radio.IPConfig {
	out, err := ipc.Parse()
	if err != nil {
		logging.Warn("Ignoring static address block", zap.String("block", name), zap.Error(err))
	}
	return out
}
