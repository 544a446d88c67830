package system

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/logging"
)

// Rebooter restarts the device.
type Rebooter interface {
	// Reboot schedules a restart after delay and returns immediately so
	// the caller can finish its HTTP response.
	Reboot(delay time.Duration) error
}

// CommandRebooter runs a command such as "systemctl reboot".
type CommandRebooter struct {
	Command []string
	// Run executes the command; nil uses os/exec.
	Run func(ctx context.Context, name string, args ...string) error
	// After schedules fn; nil uses time.AfterFunc.
	After func(d time.Duration, fn func())
}

// NewCommandRebooter returns a rebooter for the given command line.
func NewCommandRebooter(command []string) *CommandRebooter {
	return &CommandRebooter{Command: command}
}

func (r *CommandRebooter) Reboot(delay time.Duration) error {
	if len(r.Command) == 0 {
		return fmt.Errorf("no reboot command configured")
	}
	run := r.Run
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		}
	}
	after := r.After
	if after == nil {
		after = func(d time.Duration, fn func()) { time.AfterFunc(d, fn) }
	}

	cmd := append([]string(nil), r.Command...)
	logging.Info("Reboot scheduled", zap.Duration("delay", delay), zap.String("command", strings.Join(cmd, " ")))
	after(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		logging.Sync()
		if err := run(ctx, cmd[0], cmd[1:]...); err != nil {
			logging.Error("Reboot command failed", zap.Error(err))
		}
	})
	return nil
}

// FuncRebooter adapts a function, used in simulation mode and tests.
type FuncRebooter func(delay time.Duration) error

func (f FuncRebooter) Reboot(delay time.Duration) error { return f(delay) }
