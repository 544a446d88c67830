package system

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/logging"
)

// Watchdog is fed from long-running loops to prove liveness.
type Watchdog interface {
	Feed()
}

// SystemdWatchdog speaks the sd_notify datagram protocol. Feeds are rate
// limited to half the watchdog interval.
type SystemdWatchdog struct {
	socket   string
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastFeed time.Time
}

// NewSystemdWatchdog reads NOTIFY_SOCKET and WATCHDOG_USEC. It returns
// false when the process is not supervised by systemd.
func NewSystemdWatchdog() (*SystemdWatchdog, bool) {
	socket := os.Getenv("NOTIFY_SOCKET")
	if socket == "" {
		return nil, false
	}
	w := &SystemdWatchdog{socket: socket, now: time.Now}
	if usec, err := strconv.ParseInt(os.Getenv("WATCHDOG_USEC"), 10, 64); err == nil && usec > 0 {
		w.interval = time.Duration(usec) * time.Microsecond
	}
	return w, true
}

// Interval returns the supervisor's watchdog period, zero when disabled.
func (w *SystemdWatchdog) Interval() time.Duration { return w.interval }

// Notify sends a raw state string such as "READY=1".
func (w *SystemdWatchdog) Notify(state string) error {
	name := w.socket
	if strings.HasPrefix(name, "@") {
		name = "\x00" + name[1:]
	}
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: name, Net: "unixgram"})
	if err != nil {
		return fmt.Errorf("failed to dial notify socket: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(state)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}

// Feed sends WATCHDOG=1 unless one was sent within half the interval.
func (w *SystemdWatchdog) Feed() {
	if w.interval == 0 {
		return
	}
	now := w.now()
	w.mu.Lock()
	if !w.lastFeed.IsZero() && now.Sub(w.lastFeed) < w.interval/2 {
		w.mu.Unlock()
		return
	}
	w.lastFeed = now
	w.mu.Unlock()

	if err := w.Notify("WATCHDOG=1"); err != nil {
		logging.Debug("Watchdog notification failed", zap.Error(err))
	}
}
