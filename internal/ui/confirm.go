package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Confirm shows a warning box and reads one line from in. It returns true
// only when the line equals phrase.
func Confirm(in io.Reader, out io.Writer, title string, warnings []string, disclaimer, phrase string) bool {
	width := TerminalWidth()

	lines := []string{"", promptStyle.Render(" " + MarkerWarning + "  WARNING  ─  " + title), ""}
	for _, w := range warnings {
		lines = append(lines, valueStyle.Render(" • "+w))
	}
	lines = append(lines, "")
	if disclaimer != "" {
		lines = append(lines, disclaimerStyle.Width(width-12).Render(disclaimer), "")
	}
	box := boxStyle(lipgloss.DoubleBorder(), WarningColor, width).Render(strings.Join(lines, "\n"))

	fmt.Fprintln(out, box)
	fmt.Fprintln(out)
	fmt.Fprint(out, promptStyle.Render(fmt.Sprintf("To proceed, type %q and press Enter: ", phrase)))

	input, err := bufio.NewReader(in).ReadString('\n')
	fmt.Fprintln(out)
	if err != nil && input == "" {
		return false
	}
	if strings.TrimSpace(input) == phrase {
		return true
	}
	fmt.Fprintln(out, mutedStyle.Render("  Operation cancelled."))
	return false
}
