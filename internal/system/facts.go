package system

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/radio"
)

// Facts describes the host for the info page. Fields the platform cannot
// report are left zero.
type Facts struct {
	Hostname        string        `json:"hostname"`
	Platform        string        `json:"platform"`
	PlatformVersion string        `json:"platform_version"`
	KernelVersion   string        `json:"kernel_version"`
	Arch            string        `json:"arch"`
	Uptime          time.Duration `json:"uptime"`
	BootTime        time.Time     `json:"boot_time"`
	CPUModel        string        `json:"cpu_model"`
	CPUCount        int           `json:"cpu_count"`
	Load1           float64       `json:"load1"`
	MemTotal        uint64        `json:"mem_total"`
	MemAvailable    uint64        `json:"mem_available"`
	MemUsedPercent  float64       `json:"mem_used_percent"`
	DiskTotal       uint64        `json:"disk_total"`
	DiskFree        uint64        `json:"disk_free"`
}

// CollectFacts gathers host facts. Individual probe failures are logged at
// debug level and leave the field empty.
func CollectFacts(ctx context.Context) Facts {
	f := Facts{Arch: runtime.GOARCH, CPUCount: runtime.NumCPU()}

	if info, err := host.InfoWithContext(ctx); err == nil {
		f.Hostname = info.Hostname
		f.Platform = info.Platform
		f.PlatformVersion = info.PlatformVersion
		f.KernelVersion = info.KernelVersion
		f.Uptime = time.Duration(info.Uptime) * time.Second
		f.BootTime = time.Unix(int64(info.BootTime), 0)
	} else {
		logging.Debug("host info unavailable", zap.Error(err))
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		f.CPUModel = infos[0].ModelName
	}

	if avg, err := load.AvgWithContext(ctx); err == nil {
		f.Load1 = avg.Load1
	}

	if v, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		f.MemTotal = v.Total
		f.MemAvailable = v.Available
		f.MemUsedPercent = v.UsedPercent
	} else {
		logging.Debug("memory stats unavailable", zap.Error(err))
	}

	if u, err := disk.UsageWithContext(ctx, "/"); err == nil {
		f.DiskTotal = u.Total
		f.DiskFree = u.Free
	}

	return f
}

// Identity is the device identity shown on the info page.
type Identity struct {
	ChipID     string `json:"chip_id"`
	StationMAC string `json:"station_mac"`
	APMAC      string `json:"ap_mac"`
}

// IdentityOf reads the identity from a radio.
func IdentityOf(r radio.Radio) Identity {
	return Identity{
		ChipID:     radio.ChipID(r.MACAddress()),
		StationMAC: macString(r.MACAddress()),
		APMAC:      macString(r.SoftAPMACAddress()),
	}
}

func macString(mac net.HardwareAddr) string {
	if len(mac) == 0 {
		return ""
	}
	return mac.String()
}

// FormatBytes renders a byte count with a binary unit.
func FormatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

// FormatUptime renders d as days, hours and minutes.
func FormatUptime(d time.Duration) string {
	d = d.Round(time.Minute)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
