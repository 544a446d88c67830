// Package monitor is the live terminal dashboard behind "wifiportal-cfg
// watch".
//
// The dashboard follows a portal over its events websocket and shows the
// state machine, the latest status snapshot, a rolling transition log and
// the networks the portal last scanned. A network can be picked from the
// list and credentials submitted without leaving the terminal:
//
//	client := portalclient.NewClient("192.168.4.1", 80)
//	p := tea.NewProgram(monitor.New(ctx, client), tea.WithAltScreen())
//	_, err := p.Run()
//
// When the feed drops while the portal is still running the dashboard
// reconnects. Once the portal reaches a terminal state the feed is closed
// by the device and the final outcome stays on screen.
package monitor
