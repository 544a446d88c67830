package captivedns

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func query(name string, qtype uint16) *dns.Msg {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	return m
}

func TestReplyWildcard(t *testing.T) {
	r := New()
	ip := net.IPv4(4, 3, 2, 1).To4()

	tests := []struct {
		name      string
		qtype     uint16
		wantRcode int
		wantA     bool
	}{
		{"connectivitycheck.gstatic.com", dns.TypeA, dns.RcodeSuccess, true},
		{"captive.apple.com", dns.TypeA, dns.RcodeSuccess, true},
		{"example.org", dns.TypeAAAA, dns.RcodeSuccess, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := r.reply(query(tt.name, tt.qtype), "test", "*", ip)
			if resp == nil {
				t.Fatal("no reply")
			}
			if resp.Rcode != tt.wantRcode {
				t.Errorf("Rcode = %d, want %d", resp.Rcode, tt.wantRcode)
			}
			if got := len(resp.Answer) == 1; got != tt.wantA {
				t.Fatalf("answers = %v", resp.Answer)
			}
			if tt.wantA {
				a := resp.Answer[0].(*dns.A)
				if !a.A.Equal(ip) || a.Hdr.Ttl != DefaultTTL {
					t.Errorf("answer = %v", a)
				}
			}
		})
	}
}

func TestReplySpecificDomain(t *testing.T) {
	r := New()
	ip := net.IPv4(192, 168, 4, 1).To4()
	domain := normalise("Portal.Local")

	if resp := r.reply(query("www.portal.local", dns.TypeA), "test", domain, ip); len(resp.Answer) != 1 {
		t.Errorf("www-prefixed name not answered: %v", resp)
	}
	resp := r.reply(query("other.local", dns.TypeA), "test", domain, ip)
	if resp.Rcode != dns.RcodeNameError || len(resp.Answer) != 0 {
		t.Errorf("foreign name = %v", resp)
	}
}

func TestReplyIgnoresResponses(t *testing.T) {
	m := query("example.org", dns.TypeA)
	m.Response = true
	if New().reply(m, "test", "*", net.IPv4(1, 2, 3, 4)) != nil {
		t.Error("answered a response packet")
	}
}

func TestResponderOverUDP(t *testing.T) {
	r := New()
	r.ListenAddr = "127.0.0.1"
	if !r.Start(0, "*", net.IPv4(4, 3, 2, 1)) {
		t.Fatal("Start() = false")
	}
	defer r.Stop()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				r.ProcessNextRequest()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	defer func() {
		close(stop)
		wg.Wait()
	}()

	c := &dns.Client{Net: "udp", Timeout: 2 * time.Second}
	resp, _, err := c.Exchange(query("neverssl.com", dns.TypeA), r.Addr().String())
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if len(resp.Answer) != 1 || !resp.Answer[0].(*dns.A).A.Equal(net.IPv4(4, 3, 2, 1)) {
		t.Errorf("answer = %v", resp.Answer)
	}
}

func TestProcessWithoutStartIsNoop(t *testing.T) {
	r := New()
	r.ProcessNextRequest()
	r.Stop()
	if r.Addr() != nil {
		t.Error("Addr() on stopped responder")
	}
}
