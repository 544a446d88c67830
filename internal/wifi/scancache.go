package wifi

import (
	"sort"
	"sync/atomic"
	"time"

	"github.com/muurk/wifiportal/internal/clock"
	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/radio"
)

// Batch is the result of one scan: observations sorted by descending signal
// strength with duplicates flagged. A Batch is never mutated once published.
type Batch struct {
	Observations []radio.Observation
	ScannedAt    time.Time
	// FoundConfigured is set when the configured station SSID was seen.
	FoundConfigured bool
}

// Len returns the number of observations, duplicates included.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Observations)
}

// ListEntry is one renderable row of a network listing.
type ListEntry struct {
	SSID       string
	Quality    int
	RSSI       int
	Channel    int
	Secured    bool
	Encryption radio.Encryption
}

// ScanCacheConfig configures a ScanCache.
type ScanCacheConfig struct {
	// RemoveDuplicates flags every weaker entry sharing an SSID.
	RemoveDuplicates bool
	// ConfiguredSSID returns the station SSID the device is meant to join.
	ConfiguredSSID func() string
	Clock          clock.Clock
}

// ScanCache holds the latest scan batch. Refresh is called from the portal
// tick; readers on the HTTP path only ever see whole batches.
type ScanCache struct {
	scanner radio.Scanner
	cfg     ScanCacheConfig
	batch   atomic.Pointer[Batch]
}

// NewScanCache returns an empty cache reading results from scanner.
func NewScanCache(scanner radio.Scanner, cfg ScanCacheConfig) *ScanCache {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.ConfiguredSSID == nil {
		cfg.ConfiguredSSID = func() string { return "" }
	}
	return &ScanCache{scanner: scanner, cfg: cfg}
}

// Refresh ingests the count returned by a scan. Sentinel or negative counts
// return a RadioBusy or RadioFailed error and leave the stored batch as is.
// Otherwise exactly count observations are read, ranked and published.
func (c *ScanCache) Refresh(count int) (*Batch, error) {
	switch {
	case count == radio.ScanRunning:
		logging.LogScan(count, c.Latest().Len(), false)
		return nil, NewRadioBusyError("scan", count)
	case count == radio.ScanFailed:
		logging.LogScan(count, c.Latest().Len(), false)
		return nil, NewRadioFailedError("scan", count, "scan failed", nil)
	case count < 0:
		logging.LogScan(count, c.Latest().Len(), false)
		return nil, NewRadioFailedError("scan", count, "unknown scan error code", nil)
	}

	configured := c.cfg.ConfiguredSSID()
	obs := make([]radio.Observation, 0, count)
	found := false
	for i := 0; i < count; i++ {
		o, ok := c.scanner.NetworkInfo(i)
		if !ok {
			continue
		}
		o.Duplicate = false
		if configured != "" && o.SSID == configured {
			found = true
		}
		obs = append(obs, o)
	}

	rank(obs, c.cfg.RemoveDuplicates)

	b := &Batch{
		Observations:    obs,
		ScannedAt:       c.cfg.Clock.Now(),
		FoundConfigured: found,
	}
	c.batch.Store(b)
	logging.LogScan(count, len(obs), found)
	return b, nil
}

// rank sorts by descending RSSI and, when dedup is set, flags every later
// entry that repeats an earlier SSID.
func rank(obs []radio.Observation, dedup bool) {
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].RSSI > obs[j].RSSI
	})
	if !dedup {
		return
	}
	seen := make(map[string]struct{}, len(obs))
	for i := range obs {
		if _, dup := seen[obs[i].SSID]; dup {
			obs[i].Duplicate = true
			continue
		}
		seen[obs[i].SSID] = struct{}{}
	}
}

// Latest returns the most recent batch, or nil before the first scan.
func (c *ScanCache) Latest() *Batch {
	return c.batch.Load()
}

// Listing returns the latest batch in rank order without duplicates and
// without entries whose quality is below minQuality. A positive limit caps
// the number of rows.
func (c *ScanCache) Listing(minQuality, limit int) []ListEntry {
	b := c.Latest()
	if b == nil {
		return nil
	}
	var rows []ListEntry
	for _, o := range b.Observations {
		if o.Duplicate {
			continue
		}
		q := Quality(o.RSSI)
		if q < minQuality {
			logging.Debug("Skipping network due to quality")
			continue
		}
		rows = append(rows, ListEntry{
			SSID:       o.SSID,
			Quality:    q,
			RSSI:       o.RSSI,
			Channel:    o.Channel,
			Secured:    o.Encryption.Secured(),
			Encryption: o.Encryption,
		})
		if limit > 0 && len(rows) == limit {
			break
		}
	}
	return rows
}
