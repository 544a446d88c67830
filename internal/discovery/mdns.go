package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/logging"
)

const (
	ServiceType   = "_http._tcp"
	ServiceDomain = "local."

	// InstancePrefix marks instances registered by this daemon.
	InstancePrefix = "wifiportal-"

	DefaultScanTimeout = 5 * time.Second
	DefaultPort        = 80

	TXTPath    = "path"
	TXTChip    = "chip"
	TXTVersion = "ver"

	// DefaultPath is the station API entry point advertised in TXT.
	DefaultPath = "/wifi"
)

// InstanceName returns the mDNS instance name for a chip id.
func InstanceName(chipID string) string {
	return InstancePrefix + chipID
}

// Announcement describes what a device publishes.
type Announcement struct {
	ChipID  string
	Port    int
	Path    string
	Version string
	// Interfaces restricts publication; nil publishes on all multicast
	// interfaces.
	Interfaces []string
}

// TXT returns the TXT records of the announcement.
func (a Announcement) TXT() []string {
	path := a.Path
	if path == "" {
		path = DefaultPath
	}
	txt := []string{TXTPath + "=" + path, TXTChip + "=" + a.ChipID}
	if a.Version != "" {
		txt = append(txt, TXTVersion+"="+a.Version)
	}
	return txt
}

// Advertiser publishes the device while it is on a network.
type Advertiser struct {
	mu     sync.Mutex
	server *zeroconf.Server
	name   string
}

// Advertise registers the announcement, replacing any previous one.
func (a *Advertiser) Advertise(ann Announcement) error {
	if ann.ChipID == "" {
		return fmt.Errorf("announcement needs a chip id")
	}
	port := ann.Port
	if port == 0 {
		port = DefaultPort
	}
	ifaces, err := lookupInterfaces(ann.Interfaces)
	if err != nil {
		return err
	}

	a.Shutdown()

	name := InstanceName(ann.ChipID)
	srv, err := zeroconf.Register(name, ServiceType, ServiceDomain, port, ann.TXT(), ifaces)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	a.mu.Lock()
	a.server, a.name = srv, name
	a.mu.Unlock()

	logging.Info("mDNS service registered",
		zap.String("instance", name),
		zap.String("service", ServiceType),
		zap.Int("port", port),
		zap.Strings("txt", ann.TXT()))
	return nil
}

// Active reports whether a registration is live.
func (a *Advertiser) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Shutdown withdraws the registration. It is safe to call repeatedly.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	srv, name := a.server, a.name
	a.server, a.name = nil, ""
	a.mu.Unlock()
	if srv == nil {
		return
	}
	srv.Shutdown()
	logging.Info("mDNS service withdrawn", zap.String("instance", name))
}

func lookupInterfaces(names []string) ([]net.Interface, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]net.Interface, 0, len(names))
	for _, n := range names {
		iface, err := net.InterfaceByName(n)
		if err != nil {
			return nil, fmt.Errorf("interface %s: %w", n, err)
		}
		out = append(out, *iface)
	}
	return out, nil
}

// Scanner browses for advertised devices.
type Scanner struct {
	// Timeout bounds one browse.
	Timeout time.Duration
}

// NewScanner returns a scanner with the default timeout.
func NewScanner() *Scanner {
	return &Scanner{Timeout: DefaultScanTimeout}
}

// Scan collects every device answering within the timeout.
func (s *Scanner) Scan(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	var devices []*Device
	seen := make(map[string]bool)
	err := s.browse(ctx, func(d *Device) bool {
		if !seen[d.Instance] {
			seen[d.Instance] = true
			devices = append(devices, d)
		}
		return true
	})
	return devices, err
}

// WaitForDevice returns the device with the given chip id, or an error if
// it does not answer within the timeout.
func (s *Scanner) WaitForDevice(ctx context.Context, chipID string) (*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	var found *Device
	err := s.browse(ctx, func(d *Device) bool {
		if strings.EqualFold(d.ChipID, chipID) {
			found = d
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("device %s not found within %s", chipID, s.timeout())
	}
	return found, nil
}

func (s *Scanner) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultScanTimeout
	}
	return s.Timeout
}

// browse feeds parsed devices to fn until ctx ends or fn returns false.
// fn runs on a single goroutine and browse returns only after it is done.
func (s *Scanner) browse(ctx context.Context, fn func(*Device) bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				d := parseServiceEntry(entry)
				if d == nil {
					continue
				}
				if !fn(d) {
					cancel()
					return
				}
			}
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, ServiceDomain, entries); err != nil {
		cancel()
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}

	<-ctx.Done()
	<-done
	return nil
}

// parseServiceEntry converts a service entry to a Device. It returns nil
// for foreign instances and entries without an address.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Device {
	if entry == nil || !strings.HasPrefix(entry.Instance, InstancePrefix) {
		return nil
	}

	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string, len(entry.Text))
	for _, txt := range entry.Text {
		k, v, _ := strings.Cut(txt, "=")
		metadata[k] = v
	}

	chip := metadata[TXTChip]
	if chip == "" {
		chip = strings.TrimPrefix(entry.Instance, InstancePrefix)
	}

	return &Device{
		ChipID:       chip,
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
