package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/portal"
	"github.com/muurk/wifiportal/internal/wifi"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if !strings.Contains(configDir, "wifiportal") {
		t.Errorf("GetConfigDir() = %v, should contain 'wifiportal'", configDir)
	}
	if runtime.GOOS == "linux" && os.Getenv("XDG_CONFIG_HOME") == "" && !strings.Contains(configDir, ".config") {
		t.Errorf("Unix config dir should contain '.config', got: %v", configDir)
	}
}

func TestGetConfigDirHonoursXDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG only applies on Linux")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if got != filepath.Join(dir, "wifiportal") {
		t.Errorf("GetConfigDir() = %v", got)
	}
}

func TestDefaultHistoricalValues(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"grace", c.APFallback.Grace, 40 * time.Second},
		{"not found", c.APFallback.NotFound, 2 * time.Second},
		{"after save", c.APFallback.AfterSave, 20 * time.Second},
		{"scan interval", c.Portal.ScanInterval, 1000 * time.Second},
		{"modeless scan interval", c.Portal.ModelessScanInterval, 60 * time.Second},
		{"minimum quality", c.Portal.MinimumQuality, 8},
		{"dns port", c.DNS.Port, 53},
		{"remove duplicates", c.Portal.RemoveDuplicates, true},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if errs := c.Validate(); len(errs) != 0 {
		t.Errorf("Default().Validate() = %v", errs)
	}
}

func TestLoadLayers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `version: 1
ap:
  name: kitchen-sensor
  password: supersecret
portal:
  timeout: 3m
  minimum_quality: 20
ap_fallback:
  grace: 10s
parameters:
  - id: mqtt_server
    placeholder: MQTT server
    length: 40
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("WIFIPORTAL_PORTAL_TIMEOUT", "5m")
	t.Setenv("WIFIPORTAL_AP_PASSWORD", "fromenvironment")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.AP.Name != "kitchen-sensor" {
		t.Errorf("AP.Name = %q", c.AP.Name)
	}
	if c.AP.Password != "fromenvironment" {
		t.Errorf("env override lost: AP.Password = %q", c.AP.Password)
	}
	if c.Portal.Timeout != 5*time.Minute {
		t.Errorf("Portal.Timeout = %v, want env value", c.Portal.Timeout)
	}
	if c.Portal.MinimumQuality != 20 || c.APFallback.Grace != 10*time.Second {
		t.Errorf("file values lost: %+v %+v", c.Portal, c.APFallback)
	}
	if c.APFallback.NotFound != 2*time.Second {
		t.Errorf("default lost: NotFound = %v", c.APFallback.NotFound)
	}
	if len(c.Parameters) != 1 || c.Parameters[0].ID != "mqtt_server" {
		t.Errorf("Parameters = %+v", c.Parameters)
	}

	pc := c.PortalConfig()
	if pc.PortalTimeout != 5*time.Minute || pc.APGracePeriod != 10*time.Second || pc.MinimumQuality != 20 {
		t.Errorf("PortalConfig() = %+v", pc)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for an explicit missing file")
	}
}

func TestLoadRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("version: 2\n"), 0600)
	if _, err := Load(path); err == nil {
		t.Error("expected version error")
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	c.AP.Password = "short"
	c.Radio.Backend = "bluetooth"
	c.Station.Static.IP = "300.1.1.1"
	c.Parameters = []Parameter{{Placeholder: "orphan"}}

	errs := c.Validate()
	if len(errs) != 4 {
		t.Fatalf("Validate() = %v, want 4 errors", errs)
	}
	if !wifi.IsInvalidConfig(errs[0]) {
		t.Errorf("password error type = %v", errs[0])
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	c := Default()
	c.AP.Name = "garage"
	c.Station.Static = IPConfig{IP: "192.168.1.50", Gateway: "192.168.1.1", Netmask: "255.255.255.0"}

	if err := c.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.AP.Name != "garage" || loaded.Station.Static.IP != "192.168.1.50" {
		t.Errorf("round trip lost values: %+v", loaded)
	}
	st, err := loaded.Station.Static.Parse()
	if err != nil || st.PrefixLength() != 24 {
		t.Errorf("Parse() = %+v, %v", st, err)
	}
}

func TestPortalConfigTickInterval(t *testing.T) {
	tests := []struct {
		name string
		set  time.Duration
		want time.Duration
	}{
		{"default", DefaultTickInterval, 200 * time.Millisecond},
		{"configured", time.Second, time.Second},
		{"unset falls back", 0, portal.DefaultTickInterval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			c.Portal.TickInterval = tt.set
			if got := c.PortalConfig().TickInterval; got != tt.want {
				t.Errorf("TickInterval = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTickIntervalFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("version: 1\nportal:\n  tick_interval: 500ms\n"), 0600); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Portal.TickInterval != 500*time.Millisecond {
		t.Errorf("file value = %v", c.Portal.TickInterval)
	}

	t.Setenv("WIFIPORTAL_PORTAL_TICK_INTERVAL", "250ms")
	if c, err = Load(path); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Portal.TickInterval != 250*time.Millisecond {
		t.Errorf("env value = %v", c.Portal.TickInterval)
	}

	c.Portal.TickInterval = -time.Second
	if errs := c.Validate(); len(errs) != 1 {
		t.Errorf("Validate() = %v, want one error", errs)
	}
}

func TestPortalConfigLogsMalformedStatic(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))
	defer logging.SetLogger(nil)

	c := Default()
	c.Station.Static.IP = "300.1.1.1"
	c.AP.Static.IP = "192.168.4.1"

	pc := c.PortalConfig()
	if pc.STAStatic.IP != nil {
		t.Errorf("malformed station address kept: %v", pc.STAStatic.IP)
	}
	if pc.APStatic.IP.String() != "192.168.4.1" {
		t.Errorf("AP address = %v", pc.APStatic.IP)
	}
	entries := logs.FilterMessage("Ignoring static address block").All()
	if len(entries) != 1 || entries[0].ContextMap()["block"] != "station.static" {
		t.Errorf("log entries = %v", entries)
	}
}

func TestAPName(t *testing.T) {
	c := Default()
	if got := c.APName("240AC4123456"); got != "ESP240AC4123456" {
		t.Errorf("APName() = %q", got)
	}
	c.AP.Name = "fixed"
	if got := c.APName("240AC4123456"); got != "fixed" {
		t.Errorf("APName() = %q", got)
	}
}
