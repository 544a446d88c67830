// Package system integrates with the host: device identity, host facts for
// the info page, rebooting, and the systemd liveness watchdog.
package system
