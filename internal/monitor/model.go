package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/wifiportal/internal/portal"
	"github.com/muurk/wifiportal/internal/portalclient"
	"github.com/muurk/wifiportal/internal/version"
	"github.com/muurk/wifiportal/internal/web"
	"github.com/muurk/wifiportal/internal/wifi"
)

// maxEvents is how many transitions the log keeps.
const maxEvents = 8

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Connect key.Binding
	Rescan  key.Binding
	Cancel  key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Connect, k.Rescan, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down, k.Connect}, {k.Rescan, k.Cancel, k.Quit}}
}

func defaultKeys() keyMap {
	return keyMap{
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Connect: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "connect")),
		Rescan:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
		Cancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Model is the dashboard.
type Model struct {
	ctx    context.Context
	client *portalclient.Client
	feed   chan web.Message

	status   *portal.Status
	events   []portal.Event
	networks []web.Network
	cursor   int

	editing  bool
	password textinput.Model
	saving   bool

	connected bool
	closed    bool
	err       error
	notice    string

	spinner spinner.Model
	help    help.Model
	keys    keyMap

	width  int
	height int
}

// New returns a dashboard following the portal behind client. The feed
// stops when ctx is cancelled.
func New(ctx context.Context, client *portalclient.Client) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	pw := textinput.New()
	pw.Placeholder = "Enter password"
	pw.EchoMode = textinput.EchoPassword
	pw.EchoCharacter = '•'
	pw.CharLimit = portalclient.MaxPassphraseLength + 1
	pw.Width = 40

	return Model{
		ctx:      ctx,
		client:   client,
		feed:     make(chan web.Message, feedBuffer),
		password: pw,
		spinner:  s,
		help:     help.New(),
		keys:     defaultKeys(),
		width:    MinWidth,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		watchCmd(m.ctx, m.client, m.feed),
		waitForFeed(m.ctx, m.feed),
		fetchNetworks(m.ctx, m.client, false),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateEditor(msg)
		}
		return m.updateKeys(msg)

	case feedMsg:
		return m.applyMessage(web.Message(msg))

	case feedClosedMsg:
		if m.status != nil && isTerminal(m.status.State) {
			m.closed = true
			return m, nil
		}
		if msg.err == nil {
			m.closed = true
			m.notice = "Portal closed the feed"
			return m, nil
		}
		m.connected = false
		m.err = msg.err
		return m, reconnectAfter(reconnectDelay)

	case reconnectMsg:
		if m.ctx.Err() != nil {
			return m, nil
		}
		return m, watchCmd(m.ctx, m.client, m.feed)

	case networksMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.networks = msg.networks
		if m.cursor >= len(m.networks) {
			m.cursor = max(len(m.networks)-1, 0)
		}
		return m, nil

	case saveDoneMsg:
		m.saving = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.notice = fmt.Sprintf("Credentials for %s submitted", msg.ssid)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) applyMessage(msg web.Message) (tea.Model, tea.Cmd) {
	m.connected = true
	m.err = nil
	cmds := []tea.Cmd{waitForFeed(m.ctx, m.feed)}

	if msg.Event != nil {
		m.events = append(m.events, *msg.Event)
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
	}
	if msg.Status != nil {
		prev := m.status
		m.status = msg.Status
		if prev == nil || prev.Networks != msg.Status.Networks || !sameScan(prev, msg.Status) {
			cmds = append(cmds, fetchNetworks(m.ctx, m.client, false))
		}
	}
	return m, tea.Batch(cmds...)
}

func sameScan(a, b *portal.Status) bool {
	if a.LastScan == nil || b.LastScan == nil {
		return a.LastScan == b.LastScan
	}
	return a.LastScan.Equal(*b.LastScan)
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.networks)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Rescan):
		m.notice = "Scan requested"
		return m, fetchNetworks(m.ctx, m.client, true)
	case key.Matches(msg, m.keys.Connect):
		n, ok := m.selected()
		if !ok || m.saving || m.closed {
			return m, nil
		}
		if !n.Secured {
			return m.submit(n.SSID, "")
		}
		m.editing = true
		m.password.SetValue("")
		m.password.Focus()
		return m, textinput.Blink
	}
	return m, nil
}

func (m Model) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.password.Blur()
		m.password.SetValue("")
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
		n, ok := m.selected()
		if !ok {
			m.editing = false
			return m, nil
		}
		pass := m.password.Value()
		if err := portalclient.ValidatePassword(pass); err != nil {
			m.err = err
			return m, nil
		}
		m.editing = false
		m.password.Blur()
		m.password.SetValue("")
		return m.submit(n.SSID, pass)
	}
	var cmd tea.Cmd
	m.password, cmd = m.password.Update(msg)
	return m, cmd
}

func (m Model) submit(ssid, pass string) (tea.Model, tea.Cmd) {
	m.saving = true
	m.err = nil
	m.notice = ""
	return m, saveCmd(m.ctx, m.client, portalclient.Credentials{SSID: ssid, Password: pass})
}

func (m Model) selected() (web.Network, bool) {
	if m.cursor < 0 || m.cursor >= len(m.networks) {
		return web.Network{}, false
	}
	return m.networks[m.cursor], true
}

func isTerminal(state string) bool {
	return state == portal.StateConnected.String() || state == portal.StateTimedOut.String()
}

func (m Model) View() string {
	width := clampWidth(m.width)
	inner := width - 4

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, boxStyle.Width(width-2).Render(m.renderStatus(inner)))
	sections = append(sections, boxStyle.Width(width-2).Render(m.renderNetworks(inner)))
	if len(m.events) > 0 {
		sections = append(sections, boxStyle.Width(width-2).Render(m.renderEvents()))
	}
	if line := m.renderFooter(); line != "" {
		sections = append(sections, line)
	}
	sections = append(sections, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("WIFIPORTAL MONITOR")
	sub := subtitleStyle.Render(m.client.BaseURL + "  ·  " + version.Version)
	var feed string
	switch {
	case m.closed:
		feed = mutedStyle.Render("feed closed")
	case m.connected:
		feed = selectedStyle.Render("● live")
	default:
		feed = m.spinner.View() + mutedStyle.Render(" connecting")
	}
	return lipgloss.JoinVertical(lipgloss.Left, title, sub+"  "+feed)
}

func (m Model) renderStatus(width int) string {
	if m.status == nil {
		return mutedStyle.Render("Waiting for status…")
	}
	st := m.status
	row := func(k, v string) string {
		return keyStyle.Render(k) + valueStyle.Render(v)
	}
	mode := "blocking"
	if st.Modeless {
		mode = "modeless"
	}
	lines := []string{
		keyStyle.Render("State") + stateStyle(st.State).Render(st.State),
		row("Mode", mode),
	}
	if st.APName != "" {
		lines = append(lines, row("Access point", fmt.Sprintf("%s (%s)", st.APName, st.APIP)))
	}
	station := st.StationStatus
	if st.Connected {
		station = fmt.Sprintf("%s on %s", st.StationIP, st.StationSSID)
	}
	lines = append(lines, row("Station", station))
	if st.ConfiguredSSID != "" {
		seen := "not seen"
		if st.FoundConfigured {
			seen = "in range"
		}
		lines = append(lines, row("Configured", st.ConfiguredSSID+" ("+seen+")"))
	}
	if st.StandAlone {
		lines = append(lines, row("Stand alone", "activated"))
	}
	lines = append(lines, row("Uptime", (time.Duration(st.Uptime)*time.Second).String()))
	if st.LastAttempt != nil {
		a := st.LastAttempt
		outcome := errorStyle.Render(a.Outcome)
		if a.Outcome == wifi.OutcomeConnected.String() {
			outcome = selectedStyle.Render(a.Outcome)
		}
		lines = append(lines, keyStyle.Render("Last attempt")+valueStyle.Render(a.SSID+" ")+outcome)
	}
	if st.ConnectPending || m.saving {
		lines = append(lines, m.spinner.View()+" "+noticeStyle.Render("Connecting…"))
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderNetworks(width int) string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Networks (%d)", len(m.networks))))
	b.WriteString("\n")
	if len(m.networks) == 0 {
		b.WriteString(mutedStyle.Render("No networks found. Press r to scan again."))
		return b.String()
	}
	for i, n := range m.networks {
		lock := " "
		if n.Secured {
			lock = "🔒"
		}
		line := fmt.Sprintf("%-32s %s %3d%% %s", n.SSID, signalBars(n.Quality), n.Quality, lock)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + valueStyle.Render(line))
		}
		b.WriteString("\n")
		if i == m.cursor && m.editing {
			b.WriteString("    " + m.password.View() + "\n")
		}
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderEvents() string {
	lines := []string{sectionStyle.Render("Transitions")}
	for _, ev := range m.events {
		line := fmt.Sprintf("%s  %s → %s", ev.Time.Format("15:04:05"), ev.From, stateStyle(ev.To).Render(ev.To))
		if ev.Reason != "" {
			line += mutedStyle.Render("  " + ev.Reason)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	if m.err != nil {
		line := errorStyle.Render("✗ " + portalclient.ShortErrorMessage(m.err))
		if hint := portalclient.TroubleshootingHint(m.err); hint != "" {
			line += "\n" + mutedStyle.Render("  "+hint)
		}
		return line
	}
	if m.closed && m.status != nil {
		if m.status.Connected {
			return selectedStyle.Render(fmt.Sprintf("✓ Connected to %s at %s", m.status.StationSSID, m.status.StationIP))
		}
		return noticeStyle.Render("Portal ended in state " + m.status.State)
	}
	if m.notice != "" {
		return noticeStyle.Render(m.notice)
	}
	return ""
}
