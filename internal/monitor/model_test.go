package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/wifiportal/internal/portal"
	"github.com/muurk/wifiportal/internal/portalclient"
	"github.com/muurk/wifiportal/internal/web"
)

func newModel(t *testing.T) Model {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, portalclient.NewClientWithURL("http://192.0.2.1"))
}

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return out, cmd
}

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func sampleNetworks() networksMsg {
	return networksMsg{networks: []web.Network{
		{SSID: "home", Quality: 100, Secured: true},
		{SSID: "cafe", Quality: 40},
	}}
}

func TestStatusMessageRenders(t *testing.T) {
	m := newModel(t)
	if !strings.Contains(m.View(), "Waiting for status") {
		t.Error("expected placeholder before the first status")
	}

	m, cmd := step(t, m, feedMsg(web.Message{
		Type:   web.MessageStatus,
		Status: &portal.Status{State: "ApActive", APName: "portal-ap", APIP: "192.168.4.1", Modeless: true},
	}))
	if cmd == nil {
		t.Fatal("feed should keep being read")
	}
	view := m.View()
	for _, want := range []string{"ApActive", "portal-ap (192.168.4.1)", "modeless", "live"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestTransitionLogIsBounded(t *testing.T) {
	m := newModel(t)
	for i := 0; i < maxEvents+3; i++ {
		m, _ = step(t, m, feedMsg(web.Message{
			Type:  web.MessageTransition,
			Event: &portal.Event{Time: time.Unix(int64(i), 0), From: "ScanPending", To: "ApActive", Reason: "scan done"},
		}))
	}
	if len(m.events) != maxEvents {
		t.Errorf("kept %d events, want %d", len(m.events), maxEvents)
	}
	if !strings.Contains(m.View(), "scan done") {
		t.Error("transition reason not shown")
	}
}

func TestNetworkSelection(t *testing.T) {
	m := newModel(t)
	m, _ = step(t, m, sampleNetworks())
	if !strings.Contains(m.View(), "> home") {
		t.Error("first network should be selected")
	}

	m, _ = step(t, m, keyMsg("down"))
	m, _ = step(t, m, keyMsg("down"))
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
	m, _ = step(t, m, keyMsg("up"))
	if m.cursor != 0 {
		t.Errorf("cursor = %d, want 0", m.cursor)
	}

	// A shorter list clamps the cursor.
	m.cursor = 1
	m, _ = step(t, m, networksMsg{networks: []web.Network{{SSID: "home"}}})
	if m.cursor != 0 {
		t.Errorf("cursor = %d after shrink", m.cursor)
	}
}

func TestConnectOpenNetworkSubmitsDirectly(t *testing.T) {
	m := newModel(t)
	m, _ = step(t, m, sampleNetworks())
	m, _ = step(t, m, keyMsg("down"))
	m, cmd := step(t, m, keyMsg("enter"))
	if !m.saving || m.editing || cmd == nil {
		t.Errorf("saving=%v editing=%v cmd=%v", m.saving, m.editing, cmd != nil)
	}

	m, _ = step(t, m, saveDoneMsg{ssid: "cafe"})
	if m.saving || !strings.Contains(m.View(), "Credentials for cafe submitted") {
		t.Error("save outcome not shown")
	}
}

func TestConnectSecuredNetworkAsksForPassword(t *testing.T) {
	m := newModel(t)
	m, _ = step(t, m, sampleNetworks())
	m, _ = step(t, m, keyMsg("enter"))
	if !m.editing {
		t.Fatal("expected the password editor")
	}

	for _, r := range "short" {
		m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, _ = step(t, m, keyMsg("enter"))
	if !portalclient.IsValidationError(m.err) || !m.editing {
		t.Errorf("short password accepted: err=%v editing=%v", m.err, m.editing)
	}

	m, _ = step(t, m, keyMsg("esc"))
	if m.editing || m.password.Value() != "" {
		t.Error("esc should close and clear the editor")
	}
	if m.saving {
		t.Error("nothing should be submitted after cancel")
	}
}

func TestFeedClosedAfterConnect(t *testing.T) {
	m := newModel(t)
	m, _ = step(t, m, feedMsg(web.Message{
		Type: web.MessageTransition,
		Status: &portal.Status{
			State: "Connected", Connected: true, StationSSID: "home", StationIP: "192.168.1.77",
		},
	}))
	m, cmd := step(t, m, feedClosedMsg{})
	if cmd != nil {
		t.Error("no reconnect after a terminal state")
	}
	if !m.closed || !strings.Contains(m.View(), "Connected to home at 192.168.1.77") {
		t.Errorf("final outcome missing:\n%s", m.View())
	}

	m, cmd = step(t, m, keyMsg("enter"))
	if m.saving || cmd != nil {
		t.Error("connect should be disabled once closed")
	}
}

func TestFeedErrorReconnects(t *testing.T) {
	m := newModel(t)
	m, _ = step(t, m, feedMsg(web.Message{Type: web.MessageStatus, Status: &portal.Status{State: "ApActive"}}))
	m, cmd := step(t, m, feedClosedMsg{err: portalclient.NewNetworkError("192.0.2.1", "events feed interrupted", errors.New("eof"))})
	if cmd == nil {
		t.Fatal("expected a reconnect")
	}
	if m.connected || m.closed {
		t.Errorf("connected=%v closed=%v", m.connected, m.closed)
	}
	if !strings.Contains(m.View(), "device unreachable") {
		t.Error("error not shown")
	}
}

func TestRescanAndQuit(t *testing.T) {
	m := newModel(t)
	m, cmd := step(t, m, keyMsg("r"))
	if cmd == nil || m.notice != "Scan requested" {
		t.Error("rescan should fetch networks")
	}
	if _, cmd = step(t, m, keyMsg("q")); cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not return tea.Quit")
	}
}

func TestSignalBars(t *testing.T) {
	tests := []struct {
		quality int
		full    int
	}{
		{100, 4}, {60, 3}, {30, 2}, {5, 1}, {0, 0},
	}
	for _, tt := range tests {
		got := signalBars(tt.quality)
		if n := strings.Count(got, "▂") + strings.Count(got, "▄") + strings.Count(got, "▆") + strings.Count(got, "█"); n != 4 {
			t.Errorf("signalBars(%d) has %d bars, want 4", tt.quality, n)
		}
		full := []rune("▂▄▆█")[:tt.full]
		if !strings.HasPrefix(got, string(full)) {
			t.Errorf("signalBars(%d) = %q", tt.quality, got)
		}
	}
}
