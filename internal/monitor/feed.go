package monitor

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/wifiportal/internal/portalclient"
	"github.com/muurk/wifiportal/internal/web"
)

const (
	reconnectDelay = 2 * time.Second
	feedBuffer     = 32
)

type feedMsg web.Message

// feedClosedMsg ends one websocket session. err is nil when the portal
// closed the feed itself.
type feedClosedMsg struct{ err error }

type reconnectMsg struct{}

type networksMsg struct {
	networks []web.Network
	err      error
}

type saveDoneMsg struct {
	ssid string
	err  error
}

// watchCmd runs one websocket session, forwarding messages to out. It
// blocks for the life of the feed; bubbletea runs it on its own goroutine.
func watchCmd(ctx context.Context, client *portalclient.Client, out chan<- web.Message) tea.Cmd {
	return func() tea.Msg {
		err := client.Watch(ctx, func(m web.Message) bool {
			select {
			case out <- m:
				return true
			case <-ctx.Done():
				return false
			}
		})
		return feedClosedMsg{err: err}
	}
}

// waitForFeed delivers the next forwarded message.
func waitForFeed(ctx context.Context, in <-chan web.Message) tea.Cmd {
	return func() tea.Msg {
		select {
		case m := <-in:
			return feedMsg(m)
		case <-ctx.Done():
			return nil
		}
	}
}

func fetchNetworks(ctx context.Context, client *portalclient.Client, rescan bool) tea.Cmd {
	return func() tea.Msg {
		nets, err := client.Networks(ctx, rescan)
		return networksMsg{networks: nets, err: err}
	}
}

func saveCmd(ctx context.Context, client *portalclient.Client, creds portalclient.Credentials) tea.Cmd {
	return func() tea.Msg {
		return saveDoneMsg{ssid: creds.SSID, err: client.Save(ctx, creds)}
	}
}

func reconnectAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return reconnectMsg{} })
}
