// Package portalclient talks to a running wifiportal over its HTTP API.
//
// It is used by the wifiportal-cfg tool to inspect a device, list the
// networks it can see, submit credentials and follow the portal's state
// machine live over the events websocket. It works both against the
// captive portal (typically http://192.168.4.1) and against a device that
// has already joined a network and serves the station-mode API.
//
// # Usage Example
//
//	client := portalclient.NewClient("192.168.4.1", 80)
//
//	status, err := client.Status(ctx)
//	if err != nil {
//	    log.Fatal(portalclient.ShortErrorMessage(err))
//	}
//
//	err = client.Save(ctx, portalclient.Credentials{SSID: "home", Password: "secret123"})
//
//	// Follow transitions until the portal closes
//	err = client.Watch(ctx, func(m web.Message) bool {
//	    fmt.Println(m.Type, m.Status.State)
//	    return true
//	})
//
// # Retries
//
// Idempotent reads are retried with exponential backoff on network errors
// and 5xx responses. Submissions are sent once: a save that reached the
// device must not be replayed, since the portal may already be joining.
//
// # Error Handling
//
// Failures are reported as *ClientError values carrying an ErrorType. Use
// the IsXxx predicates to branch on them and TroubleshootingHint to show
// the user what to check.
package portalclient
