package system

import (
	"context"
	"net"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/muurk/wifiportal/internal/radio/simradio"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{512 * 1024 * 1024, "512.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{42 * time.Second, "1m"},
		{3*time.Hour + 5*time.Minute, "3h 5m"},
		{50*time.Hour + 30*time.Minute, "2d 2h 30m"},
	}
	for _, tt := range tests {
		if got := FormatUptime(tt.in); got != tt.want {
			t.Errorf("FormatUptime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCollectFacts(t *testing.T) {
	f := CollectFacts(context.Background())
	if f.Arch != runtime.GOARCH || f.CPUCount < 1 {
		t.Errorf("CollectFacts() = %+v", f)
	}
}

func TestIdentityOf(t *testing.T) {
	id := IdentityOf(simradio.New(nil))
	if id.ChipID != "240AC4123456" {
		t.Errorf("ChipID = %q", id.ChipID)
	}
	if id.StationMAC != "24:0a:c4:12:34:56" || id.APMAC != "24:0a:c4:12:34:57" {
		t.Errorf("IdentityOf() = %+v", id)
	}
}

func TestCommandRebooter(t *testing.T) {
	var gotName string
	var gotArgs []string
	var gotDelay time.Duration

	r := NewCommandRebooter([]string{"systemctl", "reboot", "--no-wall"})
	r.Run = func(_ context.Context, name string, args ...string) error {
		gotName, gotArgs = name, args
		return nil
	}
	r.After = func(d time.Duration, fn func()) {
		gotDelay = d
		fn()
	}

	if err := r.Reboot(500 * time.Millisecond); err != nil {
		t.Fatalf("Reboot() error = %v", err)
	}
	if gotName != "systemctl" || len(gotArgs) != 2 || gotArgs[1] != "--no-wall" {
		t.Errorf("ran %q %v", gotName, gotArgs)
	}
	if gotDelay != 500*time.Millisecond {
		t.Errorf("delay = %v", gotDelay)
	}

	if err := NewCommandRebooter(nil).Reboot(0); err == nil {
		t.Error("expected error without a command")
	}
}

func TestSystemdWatchdog(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("unixgram sockets")
	}
	sock := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sock, Net: "unixgram"})
	if err != nil {
		t.Fatalf("ListenUnixgram() error = %v", err)
	}
	defer conn.Close()

	t.Setenv("NOTIFY_SOCKET", sock)
	t.Setenv("WATCHDOG_USEC", "10000000")

	w, ok := NewSystemdWatchdog()
	if !ok {
		t.Fatal("NewSystemdWatchdog() = false")
	}
	if w.Interval() != 10*time.Second {
		t.Errorf("Interval() = %v", w.Interval())
	}

	now := time.Unix(1000, 0)
	w.now = func() time.Time { return now }

	w.Feed()
	w.Feed() // rate limited
	now = now.Add(6 * time.Second)
	w.Feed()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	count := 0
	for {
		n, _, err := conn.ReadFromUnix(buf)
		if err != nil {
			break
		}
		if string(buf[:n]) != "WATCHDOG=1" {
			t.Errorf("datagram = %q", buf[:n])
		}
		count++
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	}
	if count != 2 {
		t.Errorf("received %d notifications, want 2", count)
	}
}

func TestSystemdWatchdogAbsent(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	if _, ok := NewSystemdWatchdog(); ok {
		t.Error("watchdog reported without NOTIFY_SOCKET")
	}
}
