// Package logging provides structured logging for the Wi-Fi portal daemon and
// its operator CLI.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used by the portal: state transitions, scan outcomes, connection
// attempts, captive HTTP requests and DNS lookups.
//
// # Log Levels
//
//   - Debug: per-tick detail (DNS queries, HTTP requests, raw packets)
//   - Info: state transitions, connection results, server lifecycle
//   - Warn: recoverable radio failures, downgraded configuration
//   - Error: startup failures of optional components (DNS, mDNS)
//
// # Configuration
//
// The daemon initializes logging from its --log-level flag. The CLI stays
// silent unless WIFIPORTAL_LOG_LEVEL is set. WIFIPORTAL_LOG_FORMAT=json
// switches to JSON lines for log collectors:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// # Specialized Logging
//
//	logging.LogTransition("ScanPending", "ApActive", "grace period elapsed")
//	logging.LogConnectResult("home", "connected", 3*time.Second)
//
// All functions are safe for concurrent use.
package logging
