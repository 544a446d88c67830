package portal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/radio"
	"github.com/muurk/wifiportal/internal/wifi"
)

const retryPollInterval = 100 * time.Millisecond

// AutoConnect joins the stored network, retrying up to maxRetries times
// with retryDelay between attempts, and falls back to a blocking portal
// when every attempt fails.
func (s *Session) AutoConnect(ctx context.Context, apName, apPassword string, maxRetries int, retryDelay time.Duration) (bool, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	logging.Info("AutoConnect", zap.Int("retries", maxRetries), zap.Duration("delay", retryDelay))

	if s.cfg.APStatic.IsSet() {
		if err := s.radio.SoftAPConfig(s.cfg.APStatic); err != nil {
			logging.Warn("Failed to apply AP address", zap.Error(err))
		}
	}
	if err := s.radio.SetMode(radio.ModeAPStation); err != nil {
		logging.Warn("Failed to switch to AP+STA mode", zap.Error(err))
	}

	for try := 0; try < maxRetries; try++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		res := s.connector.Connect(ctx, wifi.Credentials{Static: s.cfg.STAStatic})
		if res.Outcome == wifi.OutcomeConnected {
			logging.Info("Connected with stored credentials",
				zap.String("ssid", s.radio.SSID()),
				zap.Int("attempt", try+1))
			return true, nil
		}
		if try+1 < maxRetries && s.waitForLink(ctx, retryDelay) {
			return true, nil
		}
	}

	logging.Info("Stored credentials did not connect, starting portal")
	return s.StartPortal(ctx, apName, apPassword)
}

// waitForLink sleeps for d in short steps, feeding the watchdog, and
// returns early when the station comes up.
func (s *Session) waitForLink(ctx context.Context, d time.Duration) bool {
	for d > 0 {
		s.watchdog.Feed()
		if s.radio.Status() == radio.StatusConnected {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		step := retryPollInterval
		if d < step {
			step = d
		}
		s.clock.Sleep(step)
		d -= step
	}
	return s.radio.Status() == radio.StatusConnected
}
