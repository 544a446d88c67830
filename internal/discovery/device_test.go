package discovery

import "testing"

func TestDeviceString(t *testing.T) {
	d := &Device{ChipID: "240AC4123456", Hostname: "wifiportal-240AC4123456.local.", IP: "192.168.1.77", Port: 80}
	want := "Device 240AC4123456 (wifiportal-240AC4123456.local.) at 192.168.1.77:80"
	if d.String() != want {
		t.Errorf("String() = %q, want %q", d.String(), want)
	}
}

func TestDeviceURLs(t *testing.T) {
	tests := []struct {
		name       string
		device     *Device
		wantBase   string
		wantPortal string
	}{
		{
			name:       "advertised path",
			device:     &Device{IP: "192.168.1.77", Port: 80, Metadata: map[string]string{"path": "/wifi"}},
			wantBase:   "http://192.168.1.77:80",
			wantPortal: "http://192.168.1.77:80/wifi",
		},
		{
			name:       "no path",
			device:     &Device{IP: "10.0.0.5", Port: 8080},
			wantBase:   "http://10.0.0.5:8080",
			wantPortal: "http://10.0.0.5:8080/",
		},
		{
			name:       "IPv6",
			device:     &Device{IP: "fe80::1", Port: 80},
			wantBase:   "http://[fe80::1]:80",
			wantPortal: "http://[fe80::1]:80/",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.BaseURL(); got != tt.wantBase {
				t.Errorf("BaseURL() = %q, want %q", got, tt.wantBase)
			}
			if got := tt.device.PortalURL(); got != tt.wantPortal {
				t.Errorf("PortalURL() = %q, want %q", got, tt.wantPortal)
			}
		})
	}
}

func TestDeviceMetadata(t *testing.T) {
	d := &Device{Metadata: map[string]string{"ver": "1.2.0", "chip": "ABC"}}
	if d.Version() != "1.2.0" {
		t.Errorf("Version() = %q", d.Version())
	}
	if d.GetMetadata("missing") != "" {
		t.Error("missing key should be empty")
	}
	if (&Device{}).GetMetadata("anything") != "" {
		t.Error("nil map should be empty")
	}
}
