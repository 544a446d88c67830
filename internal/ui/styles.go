package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	PrimaryColor = lipgloss.Color("#7D56F4")
	SuccessColor = lipgloss.Color("#43BF6D")
	ErrorColor   = lipgloss.Color("#FF5555")
	WarningColor = lipgloss.Color("#FFA500")
	MutedColor   = lipgloss.Color("#626262")
	TextColor    = lipgloss.Color("#FFFFFF")
)

const (
	MinTerminalWidth = 60
	MaxContentWidth  = 100
)

const (
	MarkerDone    = "✓"
	MarkerRunning = "●"
	MarkerPending = "·"
	MarkerFailed  = "✗"
	MarkerWarning = "⚠"
)

var (
	titleStyle      = lipgloss.NewStyle().Foreground(TextColor).Bold(true).PaddingLeft(2)
	commandStyle    = lipgloss.NewStyle().Foreground(MutedColor).PaddingLeft(2)
	keyStyle        = lipgloss.NewStyle().Foreground(MutedColor)
	valueStyle      = lipgloss.NewStyle().Foreground(TextColor)
	mutedStyle      = lipgloss.NewStyle().Foreground(MutedColor)
	noteStyle       = lipgloss.NewStyle().Foreground(MutedColor).Italic(true)
	doneStyle       = lipgloss.NewStyle().Foreground(SuccessColor)
	runningStyle    = lipgloss.NewStyle().Foreground(WarningColor)
	failedStyle     = lipgloss.NewStyle().Foreground(ErrorColor).Bold(true)
	tableHeadStyle  = lipgloss.NewStyle().Foreground(PrimaryColor).Bold(true)
	highlightStyle  = lipgloss.NewStyle().Foreground(SuccessColor).Bold(true)
	errorTextStyle  = lipgloss.NewStyle().Foreground(ErrorColor)
	promptStyle     = lipgloss.NewStyle().Foreground(WarningColor).Bold(true)
	disclaimerStyle = lipgloss.NewStyle().Foreground(MutedColor).Italic(true).PaddingLeft(3)
)

// TerminalWidth returns the stdout width clamped to the supported range.
// Non-terminals get MinTerminalWidth.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	return clampWidth(width, err)
}

func clampWidth(width int, err error) int {
	if err != nil || width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// IsTerminal reports whether stdin is interactive.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func boxStyle(border lipgloss.Border, color lipgloss.Color, width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(border).
		BorderForeground(color).
		Width(width-2).
		Padding(0, 2)
}
