package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
)

// StepStatus is the state of one step of a multi-step operation.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepDone
	StepFailed
	StepSkipped
)

// Step is one line of a step list.
type Step struct {
	Name   string
	Status StepStatus
	Note   string
}

// Steps tracks an ordered list of steps and renders it with a progress bar.
type Steps struct {
	Label string
	items []Step
	bar   progress.Model
}

// NewSteps returns a list of pending steps.
func NewSteps(label string, names ...string) *Steps {
	s := &Steps{
		Label: label,
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
	for _, n := range names {
		s.items = append(s.items, Step{Name: n})
	}
	return s
}

// Set updates step i (0-based). Out-of-range indexes are ignored.
func (s *Steps) Set(i int, status StepStatus, note string) {
	if i < 0 || i >= len(s.items) {
		return
	}
	s.items[i].Status = status
	s.items[i].Note = note
}

func (s *Steps) Start(i int, note string) { s.Set(i, StepRunning, note) }
func (s *Steps) Done(i int, note string)  { s.Set(i, StepDone, note) }
func (s *Steps) Fail(i int, note string)  { s.Set(i, StepFailed, note) }

// Items returns a copy of the steps.
func (s *Steps) Items() []Step {
	return append([]Step(nil), s.items...)
}

// Percent is the share of steps that are done or skipped.
func (s *Steps) Percent() float64 {
	if len(s.items) == 0 {
		return 0
	}
	n := 0
	for _, st := range s.items {
		if st.Status == StepDone || st.Status == StepSkipped {
			n++
		}
	}
	return float64(n) / float64(len(s.items))
}

// Line renders step i on its own.
func (s *Steps) Line(i int) string {
	if i < 0 || i >= len(s.items) {
		return ""
	}
	st := s.items[i]
	marker, style := MarkerPending, mutedStyle
	switch st.Status {
	case StepDone:
		marker, style = MarkerDone, doneStyle
	case StepRunning:
		marker, style = MarkerRunning, runningStyle
	case StepFailed:
		marker, style = MarkerFailed, failedStyle
	case StepSkipped:
		marker = "⊘"
	}
	line := fmt.Sprintf("  [%d/%d] %s %s", i+1, len(s.items), style.Render(marker), style.Render(st.Name))
	if st.Note != "" {
		line += "  " + noteStyle.Render("("+st.Note+")")
	}
	return line
}

// Render draws the label, bar and every step.
func (s *Steps) Render() string {
	var b strings.Builder
	if s.Label != "" {
		b.WriteString(titleStyle.Render(s.Label))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "  %s  %3.0f%%\n\n", s.bar.ViewAs(s.Percent()), s.Percent()*100)
	for i := range s.items {
		b.WriteString(s.Line(i))
		b.WriteString("\n")
	}
	return b.String()
}
