package nmcli

import (
	"net"
	"strconv"
	"strings"

	"github.com/muurk/wifiportal/internal/radio"
)

// splitTerse splits one line of `nmcli -t` output. Field separators are ':'
// and literal colons inside a field are escaped as '\:'.
func splitTerse(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}

// parseWifiList parses `nmcli -t -f SSID,BSSID,CHAN,SIGNAL,SECURITY device wifi list`.
func parseWifiList(out []byte) []radio.Observation {
	var obs []radio.Observation
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		f := splitTerse(line)
		if len(f) < 5 {
			continue
		}
		bssid, _ := net.ParseMAC(f[1])
		channel, _ := strconv.Atoi(f[2])
		signal, err := strconv.Atoi(f[3])
		if err != nil {
			continue
		}
		obs = append(obs, radio.Observation{
			SSID:       f[0],
			BSSID:      bssid,
			Channel:    channel,
			RSSI:       signalToRSSI(signal),
			Encryption: parseSecurity(f[4]),
			Hidden:     f[0] == "",
		})
	}
	return obs
}

// signalToRSSI inverts NetworkManager's percent scale, which is linear
// between -100 dBm (0%) and -50 dBm (100%).
func signalToRSSI(percent int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return percent/2 - 100
}

func parseSecurity(s string) radio.Encryption {
	s = strings.TrimSpace(s)
	has := func(tok string) bool { return strings.Contains(s, tok) }
	switch {
	case s == "" || s == "--":
		return radio.EncryptionOpen
	case has("802.1X"):
		return radio.EncryptionWPA2Enterprise
	case has("WPA3") && has("WPA2"):
		return radio.EncryptionWPA2WPA3PSK
	case has("WPA3"):
		return radio.EncryptionWPA3PSK
	case has("WPA2") && has("WPA1"):
		return radio.EncryptionWPAWPA2PSK
	case has("WPA2"):
		return radio.EncryptionWPA2PSK
	case has("WPA1"):
		return radio.EncryptionWPAPSK
	case has("WEP"):
		return radio.EncryptionWEP
	default:
		return radio.EncryptionUnknown
	}
}

// parseDeviceState maps GENERAL.STATE codes onto radio statuses.
// The value looks like "100 (connected)".
func parseDeviceState(out []byte) radio.Status {
	v := strings.TrimSpace(string(out))
	if i := strings.IndexByte(v, ':'); i >= 0 && strings.HasPrefix(v, "GENERAL.STATE") {
		v = v[i+1:]
	}
	if i := strings.IndexByte(v, ' '); i >= 0 {
		v = v[:i]
	}
	code, err := strconv.Atoi(v)
	if err != nil {
		return radio.StatusDisconnected
	}
	switch {
	case code == 100:
		return radio.StatusConnected
	case code == 120:
		return radio.StatusConnectFailed
	case code >= 40 && code < 100:
		return radio.StatusIdle
	default:
		return radio.StatusDisconnected
	}
}

// parseIPv4 extracts the first address from `nmcli -g IP4.ADDRESS`,
// e.g. "192.168.1.5/24 | 10.0.0.2/8".
func parseIPv4(out []byte) net.IP {
	v := strings.TrimSpace(string(out))
	if i := strings.Index(v, "|"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	if ip, _, err := net.ParseCIDR(v); err == nil {
		return ip
	}
	return net.ParseIP(v)
}
