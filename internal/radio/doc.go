// Package radio defines the Wi-Fi capability surface driven by the portal.
//
// The surface mirrors what a microcontroller Wi-Fi driver offers: scans that
// return a count or a negative sentinel, indexed access to scan results, a
// non-blocking Begin plus Status polling for station joins, and a soft AP that
// can be reconfigured at runtime. Optional capabilities, such as WPS, are
// discovered with interface assertions.
//
// Backends live in sub-packages and are selected by the daemon at startup:
//
//   - nmcli: Linux hosts managed by NetworkManager
//   - simradio: an in-memory radio for development and tests
package radio
