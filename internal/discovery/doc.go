// Package discovery advertises provisioned devices over multicast DNS and
// finds them again from the operator CLI.
//
// # Advertisement
//
// Once the portal has put a device on a network the daemon registers an
// "_http._tcp" service named "wifiportal-<chip id>" in the "local." domain.
// TXT records carry the station API entry point and identity:
//
//	path=/wifi
//	chip=240AC4123456
//	ver=1.2.0
//
// # Browsing
//
// Scanner browses for the same service type and keeps only entries whose
// instance name carries the wifiportal prefix. Each match becomes a Device
// with its address, port and TXT metadata:
//
//	devices, err := discovery.NewScanner().Scan(ctx)
//	for _, d := range devices {
//	    fmt.Println(d.ChipID, d.PortalURL())
//	}
//
// # Network Requirements
//
// Multicast must be allowed on the interface and UDP port 5353 must be open.
// Devices must share a network segment with the browser.
package discovery
