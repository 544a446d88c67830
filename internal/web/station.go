package web

import (
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/clock"
	"github.com/muurk/wifiportal/internal/kvstore"
	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/portal"
	"github.com/muurk/wifiportal/internal/radio"
	"github.com/muurk/wifiportal/internal/wifi"
)

// StateStation is reported by the status API while the station-mode API
// is mounted.
const StateStation = "Station"

// DefaultStationSettle is the pause between answering a station-mode save
// and rejoining with the new credentials.
const DefaultStationSettle = 2 * time.Second

// Station is the backend of the station-mode API, mounted once the device
// has joined a network and no portal session is running.
type Station struct {
	Radio          radio.Radio
	Store          kvstore.Store
	MinimumQuality int
	// SettleDelay defaults to DefaultStationSettle.
	SettleDelay time.Duration

	scans   *wifi.ScanCache
	clock   clock.Clock
	mu      sync.Mutex
	started time.Time
	saved   bool
}

// ServeStation mounts the station-mode routes and starts listening. Any
// portal routes are dropped first.
func (f *Facade) ServeStation(st *Station) error {
	f.detach()

	if st.SettleDelay <= 0 {
		st.SettleDelay = DefaultStationSettle
	}
	st.scans = wifi.NewScanCache(st.Radio, wifi.ScanCacheConfig{
		RemoveDuplicates: true,
		ConfiguredSSID:   func() string { return st.Store.GetString(kvstore.KeyNetwork) },
		Clock:            f.opts.Clock,
	})
	st.clock = f.opts.Clock
	st.started = st.clock.Now()

	f.router.On(PathStationRoot, f.handleStationRoot)
	f.router.On(PathScan, f.handleStationScan)
	f.router.On(PathSave, f.handleStationSave)
	f.router.On(PathInfo, f.handleStationInfo)
	f.router.OnMethod(http.MethodPost, PathReset, f.handleReset)
	f.router.OnMethod(http.MethodGet, PathStandAlone, f.handleStandAlone)
	f.router.OnMethod(http.MethodGet, PathStandAloneYes, f.handleStandAloneYes)
	f.router.OnMethod(http.MethodGet, PathStandAloneNo, f.handleStandAloneNo)
	f.router.OnMethod(http.MethodGet, PathStatus, f.handleStatus)
	f.router.OnMethod(http.MethodGet, PathNetworks, f.handleNetworks)
	f.router.OnMethod(http.MethodGet, PathEvents, f.handleEvents)

	f.mu.Lock()
	f.station = st
	f.mu.Unlock()

	f.router.Begin()
	logging.Info("Station routes mounted", zap.String("ssid", st.Radio.SSID()))
	return f.listen()
}

func (f *Facade) currentStation() *Station {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.station
}

func (st *Station) snapshot() portal.Status {
	now := st.clock.Now()
	out := portal.Status{
		State:          StateStation,
		ChipID:         radio.ChipID(st.Radio.MACAddress()),
		APIP:           st.Radio.SoftAPIP().String(),
		APMAC:          st.Radio.SoftAPMACAddress().String(),
		StationSSID:    st.Radio.SSID(),
		StationMAC:     st.Radio.MACAddress().String(),
		StandAlone:     st.Store.GetInt(kvstore.KeyStandAlone) == 1,
		ConfiguredSSID: st.Store.GetString(kvstore.KeyNetwork),
	}
	status := st.Radio.Status()
	out.StationStatus = status.String()
	out.Connected = status == radio.StatusConnected
	if out.Connected {
		out.StationIP = st.Radio.LocalIP().String()
	}
	st.mu.Lock()
	if !st.started.IsZero() {
		out.Uptime = now.Sub(st.started).Seconds()
	}
	st.mu.Unlock()
	if b := st.scans.Latest(); b != nil {
		at := b.ScannedAt
		out.LastScan = &at
		out.ScanAgeSeconds = now.Sub(at).Seconds()
		out.Networks = b.Len()
		out.FoundConfigured = b.FoundConfigured
	}
	return out
}

func (st *Station) scan() {
	code := st.Radio.ScanNetworks(false)
	b, err := st.scans.Refresh(code)
	if err != nil {
		logging.Warn("Station scan failed", zap.Int("code", code), zap.Error(err))
		return
	}
	logging.LogScan(code, b.Len(), b.FoundConfigured)
}

func (st *Station) consumeSaved() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	v := st.saved
	st.saved = false
	return v
}

func (f *Facade) handleStationRoot(w http.ResponseWriter, r *http.Request) {
	st := f.currentStation()
	if st == nil {
		http.NotFound(w, r)
		return
	}
	v := view{Title: "Options"}
	v.Data = rootData{
		Brand:      f.opts.Brand,
		StandAlone: st.Store.GetInt(kvstore.KeyStandAlone) == 1,
	}
	render(w, http.StatusOK, rootPage, v)
}

// handleStationScan scans synchronously; there is no loop to do it.
func (f *Facade) handleStationScan(w http.ResponseWriter, r *http.Request) {
	st := f.currentStation()
	if st == nil {
		http.NotFound(w, r)
		return
	}
	st.scan()
	v := view{Title: "Configure WiFi"}
	v.Data = wifiData{
		Scanned:  true,
		Networks: st.scans.Listing(st.MinimumQuality, portal.MaxListedNetworks),
	}
	render(w, http.StatusOK, wifiPage, v)
}

// handleStationSave answers first, then joins the new network. A device
// that was already connected restarts so every service rebinds.
func (f *Facade) handleStationSave(w http.ResponseWriter, r *http.Request) {
	st := f.currentStation()
	if st == nil {
		http.NotFound(w, r)
		return
	}
	sub, ok := submission(r, nil)
	if !ok {
		http.Error(w, "missing ssid", http.StatusBadRequest)
		return
	}
	if err := st.Store.SetInt(kvstore.KeyStandAlone, 0); err != nil {
		logging.Warn("Failed to clear stand-alone flag", zap.Error(err))
	}
	st.mu.Lock()
	st.saved = true
	st.mu.Unlock()

	v := view{Title: "Credentials Saved", Refresh: PathInfo}
	render(w, http.StatusOK, savedPage, v)
	flush(w)

	f.opts.Clock.Sleep(st.SettleDelay)
	wasConnected := st.Radio.Status() == radio.StatusConnected
	if err := st.Radio.Begin(sub.SSID, sub.Password); err != nil {
		logging.Error("Failed to join network", zap.String("ssid", sub.SSID), zap.Error(err))
		return
	}
	logging.Info("Joining network from station API", zap.String("ssid", sub.SSID))
	if wasConnected {
		logging.Info("Device was connected before, restarting")
		if err := f.opts.Rebooter.Reboot(st.SettleDelay); err != nil {
			logging.Error("Failed to schedule reboot", zap.Error(err))
		}
	}
}

func (f *Facade) handleStationInfo(w http.ResponseWriter, r *http.Request) {
	st := f.currentStation()
	if st == nil {
		http.NotFound(w, r)
		return
	}
	status := st.snapshot()
	data := infoData{Rows: f.infoRows(r.Context(), status)}
	if st.consumeSaved() {
		data.Result = &saveResult{Connected: status.Connected, SSID: status.StationSSID, IP: status.StationIP}
	}
	v := view{Title: "Info", Data: data}
	render(w, http.StatusOK, infoPage, v)
}
