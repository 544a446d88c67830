package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestClampWidth(t *testing.T) {
	tests := []struct {
		name  string
		width int
		err   error
		want  int
	}{
		{"not a terminal", 0, errors.New("ioctl"), MinTerminalWidth},
		{"narrow", 40, nil, MinTerminalWidth},
		{"normal", 80, nil, 80},
		{"wide", 200, nil, MaxContentWidth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampWidth(tt.width, tt.err); got != tt.want {
				t.Errorf("clampWidth(%d) = %d, want %d", tt.width, got, tt.want)
			}
		})
	}
}

func TestHeaderKeepsParamOrder(t *testing.T) {
	out := RenderHeader("Save credentials", "wifiportal-cfg save", []Field{
		{"Device", "192.168.4.1:80"},
		{"Network", "home"},
	}, 80)
	if !strings.Contains(out, "SAVE CREDENTIALS") {
		t.Error("title should be upper-cased")
	}
	d, n := strings.Index(out, "Device"), strings.Index(out, "Network")
	if d < 0 || n < 0 || d > n {
		t.Errorf("params out of order:\n%s", out)
	}
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name string
		r    Result
		want []string
	}{
		{"success", Result{Kind: KindSuccess, Title: "Connected", Details: []Field{{"IP", "192.168.1.77"}}}, []string{"SUCCESS", "Connected", "192.168.1.77"}},
		{"failure", Result{Kind: KindFailure, Title: "Save failed", Err: errors.New("portal closed"), Hints: []string{"Rejoin the AP"}}, []string{"FAILED", "portal closed", "Troubleshooting:", "Rejoin the AP"}},
		{"warning", Result{Kind: KindWarning, Title: "No networks"}, []string{"WARNING", "No networks"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.r.Render(80)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("render missing %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestRenderTableAlignsColumns(t *testing.T) {
	out := RenderTable([]string{"SSID", "SIGNAL"}, [][]string{
		{"home", "90%"},
		{"a-much-longer-name", "40%"},
	}, nil)
	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	col := strings.Index(lines[1], "90%")
	if col < 0 || strings.Index(lines[2], "40%") != col {
		t.Errorf("columns not aligned:\n%s", out)
	}
}

func TestSteps(t *testing.T) {
	s := NewSteps("Saving", "Validate", "Submit", "Wait")
	s.Done(0, "")
	s.Start(1, "192.168.4.1")
	s.Set(9, StepDone, "") // ignored

	if got := s.Percent(); got < 0.33 || got > 0.34 {
		t.Errorf("Percent = %v, want 1/3", got)
	}
	if !strings.Contains(s.Line(0), MarkerDone) {
		t.Error("done step lacks marker")
	}
	if !strings.Contains(s.Line(1), "(192.168.4.1)") {
		t.Error("note missing")
	}
	s.Fail(2, "timed out")
	if items := s.Items(); items[2].Status != StepFailed {
		t.Errorf("step 3 = %v", items[2].Status)
	}
	if out := s.Render(); !strings.Contains(out, "[3/3]") || !strings.Contains(out, "Saving") {
		t.Errorf("render:\n%s", out)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"REBOOT\n", true},
		{"  REBOOT  \n", true},
		{"reboot\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := Confirm(strings.NewReader(tt.input), &out, "Reboot", []string{"The portal goes away"}, "", "REBOOT")
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !tt.want && tt.input != "" && !strings.Contains(out.String(), "cancelled") {
			t.Errorf("Confirm(%q) should report cancellation", tt.input)
		}
	}
}
