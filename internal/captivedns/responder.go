// Package captivedns answers every DNS query on the access point network
// with the portal address, so that clients probing for connectivity land
// on the configuration pages.
//
// The responder is polled: a reader goroutine queues incoming packets and
// ProcessNextRequest answers at most one per call without blocking. This
// lets the portal loop bound the work it does per tick.
package captivedns

import (
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/logging"
)

const (
	// DefaultTTL is the TTL of synthesised answers.
	DefaultTTL = 60
	queueDepth = 32
	maxPacket  = 512
)

type packet struct {
	data []byte
	addr *net.UDPAddr
}

// Responder is a polled captive DNS server.
type Responder struct {
	// ListenAddr is the local address to bind; empty binds all interfaces.
	ListenAddr string
	// TTL of answers; zero uses DefaultTTL.
	TTL uint32
	// ErrorCode is returned for names outside the served domain.
	ErrorCode int

	mu     sync.Mutex
	conn   *net.UDPConn
	queue  chan packet
	done   chan struct{}
	wg     sync.WaitGroup
	domain string
	ip     net.IP
}

// New returns a stopped responder that answers NXDOMAIN outside its domain.
func New() *Responder {
	return &Responder{ErrorCode: dns.RcodeNameError}
}

// Start binds the UDP port and begins queueing requests. Names matching
// domain, or every name when domain is "*", resolve to ip. It reports
// whether the responder is running.
func (r *Responder) Start(port int, domain string, ip net.IP) bool {
	r.Stop()

	addr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(r.ListenAddr, strconv.Itoa(port)))
	if err != nil {
		logging.Warn("Invalid DNS listen address", zap.String("addr", r.ListenAddr), zap.Error(err))
		return false
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		logging.Warn("Failed to bind DNS port", zap.Int("port", port), zap.Error(err))
		return false
	}

	r.mu.Lock()
	r.conn = conn
	r.queue = make(chan packet, queueDepth)
	r.done = make(chan struct{})
	r.domain = normalise(domain)
	r.ip = ip.To4()
	queue, done := r.queue, r.done
	r.mu.Unlock()

	r.wg.Add(1)
	go r.readLoop(conn, queue, done)

	logging.Info("Captive DNS responder started",
		zap.String("addr", conn.LocalAddr().String()),
		zap.String("domain", domain),
		zap.String("answer", ip.String()))
	return true
}

// Addr returns the bound address, or nil when stopped.
func (r *Responder) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

func (r *Responder) readLoop(conn *net.UDPConn, queue chan<- packet, done <-chan struct{}) {
	defer r.wg.Done()
	buf := make([]byte, maxPacket)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			logging.Debug("DNS read failed", zap.Error(err))
			continue
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		select {
		case queue <- packet{data: data, addr: addr}:
		case <-done:
			return
		default:
			logging.Debug("DNS queue full, dropping request", zap.String("remote", addr.String()))
		}
	}
}

// ProcessNextRequest answers one queued request, if any. It never blocks.
func (r *Responder) ProcessNextRequest() {
	r.mu.Lock()
	conn, queue := r.conn, r.queue
	domain, ip := r.domain, r.ip
	r.mu.Unlock()
	if conn == nil {
		return
	}

	var p packet
	select {
	case p = <-queue:
	default:
		return
	}

	req := new(dns.Msg)
	if err := req.Unpack(p.data); err != nil {
		logging.Debug("Ignoring malformed DNS packet", zap.String("remote", p.addr.String()), zap.Error(err))
		return
	}
	resp := r.reply(req, p.addr.String(), domain, ip)
	if resp == nil {
		return
	}
	out, err := resp.Pack()
	if err != nil {
		logging.Warn("Failed to pack DNS reply", zap.Error(err))
		return
	}
	if _, err := conn.WriteToUDP(out, p.addr); err != nil {
		logging.Debug("Failed to send DNS reply", zap.String("remote", p.addr.String()), zap.Error(err))
	}
}

// reply builds the answer for req. Only standard queries with a single
// question are answered.
func (r *Responder) reply(req *dns.Msg, remote, domain string, ip net.IP) *dns.Msg {
	if req.Response || req.Opcode != dns.OpcodeQuery || len(req.Question) != 1 {
		return nil
	}
	q := req.Question[0]
	resp := new(dns.Msg)
	resp.SetReply(req)
	resp.Authoritative = true
	resp.RecursionAvailable = false

	if !matches(domain, q.Name) {
		resp.Rcode = r.ErrorCode
		logging.LogDNSQuery(remote, q.Name, false)
		return resp
	}

	// Other record types get an empty NOERROR so resolvers fall back to A.
	if q.Qtype == dns.TypeA && q.Qclass == dns.ClassINET && ip != nil {
		ttl := r.TTL
		if ttl == 0 {
			ttl = DefaultTTL
		}
		resp.Answer = append(resp.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
			A:   ip,
		})
	}
	logging.LogDNSQuery(remote, q.Name, len(resp.Answer) > 0)
	return resp
}

// Stop closes the socket and drops queued requests. It is safe to call on
// a stopped responder.
func (r *Responder) Stop() {
	r.mu.Lock()
	conn, done := r.conn, r.done
	r.conn, r.queue, r.done = nil, nil, nil
	r.mu.Unlock()
	if conn == nil {
		return
	}
	close(done)
	conn.Close()
	r.wg.Wait()
	logging.Info("Captive DNS responder stopped")
}

func normalise(domain string) string {
	if domain == "" || domain == "*" {
		return "*"
	}
	return strings.TrimPrefix(strings.ToLower(dns.Fqdn(domain)), "www.")
}

func matches(domain, name string) bool {
	if domain == "*" {
		return true
	}
	return strings.TrimPrefix(strings.ToLower(name), "www.") == domain
}
