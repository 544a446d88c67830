package portalclient

import (
	"fmt"
	"net"
)

const (
	MaxSSIDLength       = 32
	MinPassphraseLength = 8
	MaxPassphraseLength = 63
	hexPSKLength        = 64
)

// ValidateSSID checks that ssid is non-empty and fits in 32 bytes.
func ValidateSSID(ssid string) error {
	if ssid == "" {
		return NewValidationError("SSID cannot be empty")
	}
	if len(ssid) > MaxSSIDLength {
		return NewValidationError(fmt.Sprintf("SSID is %d bytes, maximum is %d", len(ssid), MaxSSIDLength))
	}
	return nil
}

// ValidatePassword accepts an empty password for open networks, an 8 to
// 63 character passphrase, or a 64 digit hex PSK.
func ValidatePassword(password string) error {
	n := len(password)
	switch {
	case n == 0:
		return nil
	case n == hexPSKLength && isHex(password):
		return nil
	case n < MinPassphraseLength:
		return NewValidationError(fmt.Sprintf("password must be at least %d characters", MinPassphraseLength))
	case n > MaxPassphraseLength:
		return NewValidationError(fmt.Sprintf("password must be at most %d characters", MaxPassphraseLength))
	}
	return nil
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// ValidateStaticIP checks every non-empty static field is an IPv4 address.
func ValidateStaticIP(s *StaticIP) error {
	if s == nil {
		return nil
	}
	for _, f := range []struct{ name, value string }{
		{"ip", s.IP}, {"gw", s.Gateway}, {"sn", s.Netmask}, {"dns1", s.DNS1}, {"dns2", s.DNS2},
	} {
		if f.value == "" {
			continue
		}
		if ip := net.ParseIP(f.value); ip == nil || ip.To4() == nil {
			return NewValidationError(fmt.Sprintf("%s %q is not an IPv4 address", f.name, f.value))
		}
	}
	return nil
}

// Validate checks the credentials before they are sent.
func (c Credentials) Validate() error {
	if err := ValidateSSID(c.SSID); err != nil {
		return err
	}
	if err := ValidatePassword(c.Password); err != nil {
		return err
	}
	return ValidateStaticIP(c.Static)
}
