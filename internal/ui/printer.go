package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Printer writes styled components to a writer.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter returns a printer for w, or stdout when w is nil.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w, width: TerminalWidth()}
}

// SetWidth overrides the detected terminal width.
func (p *Printer) SetWidth(width int) *Printer {
	p.width = clampWidth(width, nil)
	return p
}

func (p *Printer) Width() int { return p.width }

func (p *Printer) Println(a ...any) {
	_, _ = fmt.Fprintln(p.out, a...)
}

func (p *Printer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(p.out, format, a...)
}

// Note prints a muted, indented line.
func (p *Printer) Note(format string, a ...any) {
	p.Println(mutedStyle.Render("  " + fmt.Sprintf(format, a...)))
}

func (p *Printer) Header(title, command string, params ...Field) {
	p.Println(RenderHeader(title, command, params, p.width))
	p.Println()
}

func (p *Printer) Result(r Result) {
	p.Println(r.Render(p.width))
}

func (p *Printer) Success(title string, details ...Field) {
	p.Result(Result{Kind: KindSuccess, Title: title, Details: details})
}

func (p *Printer) Failure(title string, err error, hints ...string) {
	p.Result(Result{Kind: KindFailure, Title: title, Err: err, Hints: hints})
}

func (p *Printer) Warning(title string, details ...Field) {
	p.Result(Result{Kind: KindWarning, Title: title, Details: details})
}

// Fields prints aligned key/value rows without a box.
func (p *Printer) Fields(fields ...Field) {
	p.Println(renderFields(fields, "  "))
}

// Table prints rows under a header line. Rows for which highlight returns
// true are emphasised; highlight may be nil.
func (p *Printer) Table(head []string, rows [][]string, highlight func(i int) bool) {
	p.Println(RenderTable(head, rows, highlight))
}

// RenderTable lays rows out in left-aligned columns.
func RenderTable(head []string, rows [][]string, highlight func(i int) bool) string {
	widths := make([]int, len(head))
	for i, h := range head {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	line := func(cells []string) string {
		padded := make([]string, len(widths))
		for i := range widths {
			var c string
			if i < len(cells) {
				c = cells[i]
			}
			padded[i] = c + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
		}
		return "  " + strings.TrimRight(strings.Join(padded, "  "), " ")
	}

	out := []string{tableHeadStyle.Render(line(head))}
	for i, row := range rows {
		style := valueStyle
		if highlight != nil && highlight(i) {
			style = highlightStyle
		}
		out = append(out, style.Render(line(row)))
	}
	return strings.Join(out, "\n")
}
