package wifi

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/clock"
	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/radio"
)

// DefaultPollInterval is how often the station status is sampled while
// waiting for a join with an explicit timeout.
const DefaultPollInterval = 100 * time.Millisecond

// Outcome is the result class of a connection attempt.
type Outcome int

const (
	OutcomeConnected Outcome = iota
	OutcomeFailed
	OutcomeTimedOut
)

// String returns a human-readable outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeConnected:
		return "connected"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Credentials are the station settings for one connection attempt.
type Credentials struct {
	SSID     string
	Password string
	Static   radio.IPConfig
}

// Watchdog is serviced on every poll iteration of a blocking wait.
type Watchdog interface {
	Feed()
}

// NopWatchdog ignores feeds.
type NopWatchdog struct{}

// Feed implements Watchdog.
func (NopWatchdog) Feed() {}

// Result describes a finished connection attempt.
type Result struct {
	Outcome Outcome
	// Status is the last station status observed.
	Status   radio.Status
	FastPath bool
	UsedWPS  bool
	Elapsed  time.Duration
	// Err classifies failures and timeouts; nil on success.
	Err error
}

// Connector drives single connect-and-wait operations against a radio.
type Connector struct {
	Radio radio.Radio
	Clock clock.Clock

	// Timeout bounds the wait. Zero delegates to the radio's own wait.
	Timeout time.Duration

	// PollInterval is the status sampling period (default 100ms).
	PollInterval time.Duration

	// TryWPS enables one WPS negotiation when a password-less join fails.
	TryWPS bool

	Watchdog Watchdog
}

// NewConnector returns a connector with default polling.
func NewConnector(r radio.Radio, c clock.Clock, timeout time.Duration) *Connector {
	if c == nil {
		c = clock.Real{}
	}
	return &Connector{
		Radio:        r,
		Clock:        c,
		Timeout:      timeout,
		PollInterval: DefaultPollInterval,
		Watchdog:     NopWatchdog{},
	}
}

func (c *Connector) reset() {
	if err := c.Radio.Disconnect(false); err != nil {
		logging.Debug("Disconnect before join failed", zap.Error(err))
	}
}

// Connect joins the network in creds, or the stored one when creds.SSID is
// empty, and waits for the result.
func (c *Connector) Connect(ctx context.Context, creds Credentials) Result {
	start := c.Clock.Now()
	res := Result{}

	if creds.Static.IsSet() {
		if err := c.Radio.Config(creds.Static); err != nil {
			logging.Warn("Failed to apply static station address", zap.Error(err))
		}
	}

	var err error
	switch {
	case creds.SSID != "":
		// Transient reset; stored credentials survive.
		c.reset()
		err = c.Radio.Begin(creds.SSID, creds.Password)
	case c.Radio.SSID() != "":
		logging.Debug("Using last saved station credentials")
		res.FastPath = true
		c.reset()
		err = c.Radio.Begin("", "")
	default:
		logging.Debug("Trying to connect with driver-stored credentials")
		err = c.Radio.Begin("", "")
	}
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Status = radio.StatusConnectFailed
		res.Err = NewRadioFailedError("connect", int(res.Status), "failed to start join", err)
		res.Elapsed = c.Clock.Now().Sub(start)
		return res
	}

	res.Status = c.wait(ctx)

	if res.Status != radio.StatusConnected && creds.Password == "" && c.TryWPS {
		if w, ok := radio.SupportsWPS(c.Radio); ok {
			logging.Info("Starting WPS negotiation")
			if werr := w.StartWPS(); werr != nil {
				logging.Warn("WPS negotiation failed", zap.Error(werr))
			} else {
				res.UsedWPS = true
				res.Status = c.wait(ctx)
			}
		}
	}

	res.Elapsed = c.Clock.Now().Sub(start)
	switch res.Status {
	case radio.StatusConnected:
		res.Outcome = OutcomeConnected
	case radio.StatusIdle, radio.StatusDisconnected:
		res.Outcome = OutcomeTimedOut
		res.Err = NewTimeoutError("connect", fmt.Sprintf("no result after %s", res.Elapsed))
	default:
		res.Outcome = OutcomeFailed
		res.Err = NewRadioFailedError("connect", int(res.Status), res.Status.String(), nil)
	}

	ssid := creds.SSID
	if ssid == "" {
		ssid = c.Radio.SSID()
	}
	logging.LogConnectResult(ssid, res.Status.String(), res.Elapsed)
	return res
}

func (c *Connector) wait(ctx context.Context) radio.Status {
	if c.Timeout == 0 {
		return c.Radio.WaitForConnectResult()
	}

	interval := c.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	watchdog := c.Watchdog
	if watchdog == nil {
		watchdog = NopWatchdog{}
	}

	deadline := c.Clock.Now().Add(c.Timeout)
	var status radio.Status
	for {
		watchdog.Feed()
		status = c.Radio.Status()
		if status == radio.StatusConnected || status == radio.StatusConnectFailed {
			return status
		}
		if c.Clock.Now().After(deadline) {
			logging.Debug("Connection timed out")
			return status
		}
		if ctx.Err() != nil {
			return status
		}
		c.Clock.Sleep(interval)
	}
}
