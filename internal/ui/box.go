package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Field is one labelled value. Slices of fields keep their order, unlike
// maps.
type Field struct {
	Key   string
	Value string
}

// Kind selects the colour and banner of a result box.
type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
	KindWarning
)

// Result is a boxed outcome with details and, for failures, hints.
type Result struct {
	Kind    Kind
	Title   string
	Details []Field
	Err     error
	Hints   []string
}

// RenderHeader renders the command banner.
func RenderHeader(title, command string, params []Field, width int) string {
	top := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(strings.ToUpper(title)),
		commandStyle.Render(command))
	content := top
	if len(params) > 0 {
		divider := lipgloss.NewStyle().Foreground(PrimaryColor).
			Render(strings.Repeat("─", max(width-6, 10)))
		content = lipgloss.JoinVertical(lipgloss.Left, top, divider, renderFields(params, "  "))
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2).
		Render(content)
}

// Render draws the result box.
func (r Result) Render(width int) string {
	width = max(width, MinTerminalWidth)

	var banner string
	var color lipgloss.Color
	switch r.Kind {
	case KindFailure:
		banner, color = MarkerFailed+"  FAILED", ErrorColor
	case KindWarning:
		banner, color = MarkerWarning+"  WARNING", WarningColor
	default:
		banner, color = MarkerDone+"  SUCCESS", SuccessColor
	}

	lines := []string{"", lipgloss.NewStyle().Foreground(color).Bold(true).Render(" " + banner + "  ─  " + r.Title), ""}
	if r.Err != nil {
		lines = append(lines, errorTextStyle.Render(" Error: "+r.Err.Error()), "")
	}
	if len(r.Details) > 0 {
		lines = append(lines, renderFields(r.Details, " "), "")
	}
	if len(r.Hints) > 0 {
		hints := []string{mutedStyle.Bold(true).Render("Troubleshooting:")}
		for _, h := range r.Hints {
			hints = append(hints, mutedStyle.Render("  • "+h))
		}
		inner := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(MutedColor).
			Width(max(width-12, 40)).
			Padding(0, 1).
			Render(strings.Join(hints, "\n"))
		lines = append(lines, inner, "")
	}
	return boxStyle(lipgloss.DoubleBorder(), color, width).Render(strings.Join(lines, "\n"))
}

func renderFields(fields []Field, indent string) string {
	keyWidth := 0
	for _, f := range fields {
		keyWidth = max(keyWidth, lipgloss.Width(f.Key)+1)
	}
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		key := keyStyle.Width(keyWidth).Render(f.Key + ":")
		lines = append(lines, indent+key+" "+valueStyle.Render(f.Value))
	}
	return strings.Join(lines, "\n")
}
