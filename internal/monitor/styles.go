package monitor

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/wifiportal/internal/portal"
)

const (
	MinWidth = 60
	MaxWidth = 110
)

var (
	primaryColor = lipgloss.Color("#7D56F4")
	successColor = lipgloss.Color("#43BF6D")
	warningColor = lipgloss.Color("#FFA500")
	errorColor   = lipgloss.Color("#FF5555")
	subtleColor  = lipgloss.Color("#626262")
	textColor    = lipgloss.Color("#FFFFFF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(subtleColor).
			Italic(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(subtleColor).
			Bold(true)

	keyStyle = lipgloss.NewStyle().
			Foreground(subtleColor).
			Width(16)

	valueStyle = lipgloss.NewStyle().
			Foreground(textColor)

	selectedStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(subtleColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(primaryColor)
)

// stateStyle colours a state name by how far the portal has got.
func stateStyle(state string) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch state {
	case portal.StateConnected.String(), "Station":
		return s.Foreground(successColor)
	case portal.StateConnectPending.String(), portal.StateScanPending.String():
		return s.Foreground(warningColor)
	case portal.StateTimedOut.String():
		return s.Foreground(errorColor)
	default:
		return s.Foreground(primaryColor)
	}
}

// signalBars renders a quality percentage as four bars.
func signalBars(quality int) string {
	const bars = "▂▄▆█"
	n := 0
	switch {
	case quality >= 75:
		n = 4
	case quality >= 50:
		n = 3
	case quality >= 25:
		n = 2
	case quality > 0:
		n = 1
	}
	runes := []rune(bars)
	return string(runes[:n]) + mutedStyle.Render(string(runes[n:]))
}

func clampWidth(w int) int {
	if w < MinWidth {
		return MinWidth
	}
	if w > MaxWidth {
		return MaxWidth
	}
	return w
}
