// Package wifi holds the radio-facing building blocks of the portal: signal
// quality mapping, the scan cache and single connection attempts.
//
// # Scan cache
//
// ScanCache.Refresh takes the count returned by a radio scan. Negative counts
// are reported as RadioBusy or RadioFailed errors and leave the previous batch
// in place; callers treat them as "no new batch" and retry on a later tick.
// Non-negative counts publish a new Batch with a single pointer swap, so the
// HTTP rendering path never observes a half-built batch.
//
// # Connection attempts
//
// Connector.Connect applies an optional static address, resets the station
// and begins a join with explicit credentials, the remembered SSID (fast path)
// or whatever the driver holds. It then polls the status until connected,
// failed or the timeout elapses, feeding the watchdog on every iteration.
//
// # Errors
//
// Failures are classified with *Error and the IsXxx predicates:
//
//	if wifi.IsRadioBusy(err) {
//	    // try again next tick
//	}
package wifi
