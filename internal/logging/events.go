package logging

import (
	"time"

	"go.uber.org/zap"
)

// Field keys shared by the event helpers.
const (
	keyFrom   = "from"
	keyTo     = "to"
	keyReason = "reason"
	keySSID   = "ssid"
	keyRemote = "remote_addr"
)

func LogTransition(from, to, reason string) {
	Info("Portal state transition",
		zap.String(keyFrom, from),
		zap.String(keyTo, to),
		zap.String(keyReason, reason))
}

// LogScan records a finished scan. code is the radio's result code, stored
// the number of entries kept after filtering.
func LogScan(code, stored int, foundConfigured bool) {
	Debug("Scan completed",
		zap.Int("code", code),
		zap.Int("stored", stored),
		zap.Bool("found_configured", foundConfigured))
}

func LogConnectResult(ssid, status string, elapsed time.Duration) {
	Info("Connection attempt finished",
		zap.String(keySSID, ssid),
		zap.String("status", status),
		zap.Duration("elapsed", elapsed))
}

func LogHTTPRequest(remote, method, path, host string) {
	Debug("HTTP request",
		zap.String(keyRemote, remote),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("host", host))
}

func LogDNSQuery(remote, name string, answered bool) {
	Debug("DNS query",
		zap.String(keyRemote, remote),
		zap.String("name", name),
		zap.Bool("answered", answered))
}
