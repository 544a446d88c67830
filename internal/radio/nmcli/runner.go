package nmcli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.Bytes(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(redact(args), " "), err, msg)
	}
	return stdout.Bytes(), nil
}

// redact hides passphrases from error messages and logs.
func redact(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i := 0; i < len(out)-1; i++ {
		switch out[i] {
		case "wifi-sec.psk", "password":
			out[i+1] = "******"
		}
	}
	return out
}

// CheckAvailable reports whether nmcli can be executed.
func CheckAvailable(ctx context.Context, r Runner) error {
	if _, err := r.Run(ctx, "nmcli", "--version"); err != nil {
		return fmt.Errorf("'nmcli' is not installed or not found in PATH: %w", err)
	}
	return nil
}
