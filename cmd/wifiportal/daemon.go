package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/captivedns"
	"github.com/muurk/wifiportal/internal/clock"
	"github.com/muurk/wifiportal/internal/config"
	"github.com/muurk/wifiportal/internal/discovery"
	"github.com/muurk/wifiportal/internal/kvstore"
	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/portal"
	"github.com/muurk/wifiportal/internal/radio"
	"github.com/muurk/wifiportal/internal/radio/nmcli"
	"github.com/muurk/wifiportal/internal/radio/simradio"
	"github.com/muurk/wifiportal/internal/system"
	"github.com/muurk/wifiportal/internal/version"
	"github.com/muurk/wifiportal/internal/web"
	"github.com/muurk/wifiportal/internal/wifi"
)

const (
	// stationFeedInterval paces watchdog feeds and link checks once the
	// portal is gone.
	stationFeedInterval = 5 * time.Second
	closeTimeout        = 3 * time.Second
)

// errNoConnection ends a run when the portal closes without a network, so
// the supervisor restarts the daemon and with it the portal.
var errNoConnection = errors.New("portal closed without a network connection")

// components are the backends a daemon is built from.
type components struct {
	Radio    radio.Radio
	Store    kvstore.Store
	Clock    clock.Clock
	Watchdog wifi.Watchdog
	Rebooter system.Rebooter
	DNS      portal.DNSResponder
}

// daemon holds the wired components for one process lifetime.
type daemon struct {
	cfg       *config.Config
	radio     radio.Radio
	store     kvstore.Store
	watchdog  wifi.Watchdog
	facade    *web.Facade
	session   *portal.Session
	advertise discovery.Advertiser
}

func withDaemon(cmd *cobra.Command, fn func(*daemon, context.Context) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	if err := logging.Initialize(level); err != nil {
		return err
	}
	for _, verr := range cfg.Validate() {
		logging.Warn("Configuration problem", zap.Error(verr))
	}
	sim := simulate || cfg.Radio.Backend == "sim"

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var r radio.Radio
	if sim {
		logging.Info("Using the simulated radio")
		r = simradio.Demo()
	} else {
		runner := nmcli.ExecRunner{}
		if err := nmcli.CheckAvailable(ctx, runner); err != nil {
			return fmt.Errorf("radio backend unavailable: %w", err)
		}
		r = nmcli.New(nmcli.Options{
			STAInterface:   cfg.Radio.STAInterface,
			APInterface:    cfg.Radio.APInterface,
			CommandTimeout: cfg.Radio.CommandTimeout,
			Runner:         runner,
		})
	}

	store, err := kvstore.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	d := newDaemon(cfg, components{
		Radio:    r,
		Store:    store,
		Clock:    clock.Real{},
		Watchdog: watchdogFor(cfg),
		Rebooter: rebooterFor(cfg, sim, stop),
		DNS:      captivedns.New(),
	})
	defer d.shutdown()

	return fn(d, ctx)
}

// rebooterFor restarts the host, or in simulation ends the process.
func rebooterFor(cfg *config.Config, sim bool, stop context.CancelFunc) system.Rebooter {
	if sim || len(cfg.System.RebootCommand) == 0 {
		return system.FuncRebooter(func(delay time.Duration) error {
			logging.Info("Restart requested, stopping", zap.Duration("delay", delay))
			time.AfterFunc(delay, stop)
			return nil
		})
	}
	return system.NewCommandRebooter(cfg.System.RebootCommand)
}

func watchdogFor(cfg *config.Config) wifi.Watchdog {
	if !cfg.System.Watchdog {
		return wifi.NopWatchdog{}
	}
	wd, ok := system.NewSystemdWatchdog()
	if !ok {
		return wifi.NopWatchdog{}
	}
	if err := wd.Notify("READY=1"); err != nil {
		logging.Warn("Failed to notify systemd", zap.Error(err))
	}
	logging.Info("systemd watchdog enabled", zap.Duration("interval", wd.Interval()))
	return wd
}

func newDaemon(cfg *config.Config, c components) *daemon {
	d := &daemon{
		cfg:      cfg,
		radio:    c.Radio,
		store:    c.Store,
		watchdog: c.Watchdog,
	}
	if d.watchdog == nil {
		d.watchdog = wifi.NopWatchdog{}
	}
	d.facade = web.NewFacade(web.Options{
		Addr:     cfg.Portal.HTTPAddr,
		Rebooter: c.Rebooter,
		Clock:    c.Clock,
	})
	d.session = portal.New(portal.Options{
		Config:   cfg.PortalConfig(),
		Radio:    c.Radio,
		DNS:      c.DNS,
		Frontend: d.facade,
		Store:    c.Store,
		Clock:    c.Clock,
		Watchdog: d.watchdog,
	})
	d.loadParameters()
	d.session.SetSaveCallback(d.persist)
	d.session.SetAPCallback(func(s *portal.Session) {
		logging.Info("Entered configuration mode",
			zap.String("ap", s.APName()),
			zap.String("ip", c.Radio.SoftAPIP().String()))
	})
	return d
}

// loadParameters declares the configured form fields. Values saved by an
// earlier portal replace the configured defaults.
func (d *daemon) loadParameters() {
	for _, p := range d.cfg.Parameters {
		var param *portal.Parameter
		if p.ID == "" {
			param = portal.NewCustomParameter(p.CustomHTML)
		} else {
			def := p.Default
			if v := d.store.GetString(kvstore.ParamKey(p.ID)); v != "" {
				def = v
			}
			param = portal.NewParameter(p.ID, p.Placeholder, def, p.Length, p.CustomHTML)
		}
		if err := d.session.AddParameter(param); err != nil {
			logging.Warn("Parameter dropped", zap.String("id", p.ID), zap.Error(err))
		}
	}
}

// persist records the joined network and the parameter values.
func (d *daemon) persist() {
	ssid := d.radio.SSID()
	if ssid != "" {
		if err := d.store.SetString(kvstore.KeyNetwork, ssid); err != nil {
			logging.Error("Failed to store network", zap.Error(err))
		}
	}
	n := 0
	for _, p := range d.session.Parameters().All() {
		if p.IsCustom() {
			continue
		}
		if err := d.store.SetString(kvstore.ParamKey(p.ID()), p.Value()); err != nil {
			logging.Error("Failed to store parameter", zap.String("id", p.ID()), zap.Error(err))
			continue
		}
		n++
	}
	logging.Info("Settings saved", zap.String("ssid", ssid), zap.Int("parameters", n))
}

func (d *daemon) apName() string {
	return d.cfg.APName(radio.ChipID(d.radio.MACAddress()))
}

// runBlocking tries the stored network and falls back to the portal.
func (d *daemon) runBlocking(ctx context.Context) error {
	ok, err := d.session.AutoConnect(ctx, d.apName(), d.cfg.AP.Password,
		d.cfg.Portal.AutoConnectRetries, d.cfg.Portal.AutoConnectDelay)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	if !ok {
		logging.Warn("No network connection", zap.String("state", d.session.State().String()))
		return errNoConnection
	}
	return d.serveStation(ctx)
}

// runModeless keeps the portal up next to the daemon loop until a network
// is joined, then hands over to the station API.
func (d *daemon) runModeless(ctx context.Context) error {
	d.session.StartModeless(ctx, d.apName(), d.cfg.AP.Password)

	ticker := time.NewTicker(d.session.Config().TickInterval)
	defer ticker.Stop()
	for {
		switch d.session.Tick(ctx) {
		case portal.StateConnected:
			d.session.Stop()
			return d.serveStation(ctx)
		case portal.StateTimedOut:
			return errNoConnection
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// serveStation mounts the station API, announces the device and keeps the
// watchdog fed until ctx ends.
func (d *daemon) serveStation(ctx context.Context) error {
	if d.store.GetString(kvstore.KeyNetwork) == "" {
		d.persist()
	}
	st := &web.Station{
		Radio:          d.radio,
		Store:          d.store,
		MinimumQuality: d.cfg.Portal.MinimumQuality,
	}
	if err := d.facade.ServeStation(st); err != nil {
		return err
	}
	logging.Info("Connected",
		zap.String("ssid", d.radio.SSID()),
		zap.String("ip", d.radio.LocalIP().String()))

	if d.cfg.Discovery.Enabled {
		err := d.advertise.Advertise(discovery.Announcement{
			ChipID:  radio.ChipID(d.radio.MACAddress()),
			Port:    d.cfg.Discovery.Port,
			Version: version.Version,
		})
		if err != nil {
			logging.Warn("mDNS announcement failed", zap.Error(err))
		}
	}

	ticker := time.NewTicker(stationFeedInterval)
	defer ticker.Stop()
	linked := true
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		d.watchdog.Feed()
		up := d.radio.Status() == radio.StatusConnected
		switch {
		case linked && !up:
			logging.Warn("Station link lost", zap.String("status", d.radio.Status().String()))
		case !linked && up:
			logging.Info("Station link restored", zap.String("ip", d.radio.LocalIP().String()))
		}
		linked = up
	}
}

// reset erases the station credentials. With all set every stored key goes.
func (d *daemon) reset(all bool) error {
	if err := d.session.ResetSettings(); err != nil {
		return err
	}
	if !all {
		return nil
	}
	for _, key := range d.store.Keys() {
		if err := d.store.Delete(key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	logging.Info("All stored settings erased")
	return nil
}

func (d *daemon) shutdown() {
	d.advertise.Shutdown()
	d.session.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := d.facade.Close(ctx); err != nil {
		logging.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
}
