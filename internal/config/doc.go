// Package config loads the daemon configuration.
//
// Values are layered: built-in defaults, then the YAML file, then
// WIFIPORTAL_* environment variables, then command-line flags applied by
// the caller. Nested keys map to environment names by joining with an
// underscore, so ap.password is WIFIPORTAL_AP_PASSWORD and
// ap_fallback.grace is WIFIPORTAL_AP_FALLBACK_GRACE.
//
// # File Location
//
//   - root: /etc/wifiportal/config.yaml
//   - others: $XDG_CONFIG_HOME/wifiportal/config.yaml or
//     $HOME/.config/wifiportal/config.yaml
//
// A missing file at the default location is not an error; a missing file
// named explicitly is.
package config
