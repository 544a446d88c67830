package portalclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/wifiportal/internal/portal"
	"github.com/muurk/wifiportal/internal/web"
)

// record collects values written by handlers for the test goroutine.
type record struct {
	mu   sync.Mutex
	vals []string
}

func (r *record) add(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vals = append(r.vals, v)
}

func (r *record) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.vals...)
}

func newTestClient(srv *httptest.Server) *Client {
	c := NewClientWithURL(srv.URL)
	c.RetryDelay = time.Millisecond
	c.MaxRetryDelay = 5 * time.Millisecond
	return c
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"192.168.4.1", 80, "http://192.168.4.1:80"},
		{"192.168.4.1", 0, "http://192.168.4.1:80"},
		{"fe80::1", 8080, "http://[fe80::1]:8080"},
	}
	for _, tt := range tests {
		if got := NewClient(tt.host, tt.port).BaseURL; got != tt.want {
			t.Errorf("NewClient(%q, %d).BaseURL = %q, want %q", tt.host, tt.port, got, tt.want)
		}
	}
	if got := NewClientWithURL("http://4.3.2.1/").BaseURL; got != "http://4.3.2.1" {
		t.Errorf("trailing slash kept: %q", got)
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != web.PathStatus {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(portal.Status{State: "ApActive", APName: "ESP1A2B3C", Networks: 4})
	}))
	defer srv.Close()

	st, err := newTestClient(srv).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != "ApActive" || st.APName != "ESP1A2B3C" || st.Networks != 4 {
		t.Errorf("status = %+v", st)
	}
}

func TestStatusRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(portal.Status{State: "Connected"})
	}))
	defer srv.Close()

	st, err := newTestClient(srv).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != "Connected" || calls.Load() != 3 {
		t.Errorf("state = %s after %d calls", st.State, calls.Load())
	}
}

func TestStatusGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.MaxRetries = 2
	_, err := c.Status(context.Background())
	if !IsHTTPError(err) {
		t.Fatalf("err = %v, want HTTP error", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Networks(context.Background(), false)
	var ce *ClientError
	if !asClientError(err, &ce) || ce.StatusCode != http.StatusNotFound {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestNetworksRescan(t *testing.T) {
	var query record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.add(r.URL.RawQuery)
		_ = json.NewEncoder(w).Encode([]web.Network{{SSID: "home", Quality: 100, Secured: true}})
	}))
	defer srv.Close()

	nets, err := newTestClient(srv).Networks(context.Background(), true)
	if err != nil {
		t.Fatalf("Networks: %v", err)
	}
	if len(nets) != 1 || nets[0].SSID != "home" {
		t.Errorf("networks = %+v", nets)
	}
	if q := query.get(); len(q) != 1 || q[0] != "scan=1" {
		t.Errorf("query = %q", q)
	}
}

func TestMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json"))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv).Status(context.Background()); !IsParseError(err) {
		t.Errorf("err = %v, want parse error", err)
	}
}

func TestSave(t *testing.T) {
	var calls atomic.Int32
	var fields record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != web.PathSave {
			http.Error(w, "unexpected", http.StatusMethodNotAllowed)
			return
		}
		_ = r.ParseForm()
		for k := range r.PostForm {
			fields.add(k + "=" + r.PostForm.Get(k))
		}
		_, _ = w.Write([]byte("Credentials Saved"))
	}))
	defer srv.Close()

	err := newTestClient(srv).Save(context.Background(), Credentials{
		SSID:     "home",
		Password: "secret123",
		Static:   &StaticIP{IP: "10.0.0.9", Gateway: "10.0.0.1", Netmask: "255.255.255.0"},
		Params:   map[string]string{"broker": "mqtt.local"},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	form := map[string]string{}
	for _, kv := range fields.get() {
		k, v, _ := strings.Cut(kv, "=")
		form[k] = v
	}
	want := map[string]string{
		"s": "home", "p": "secret123", "ip": "10.0.0.9", "gw": "10.0.0.1",
		"sn": "255.255.255.0", "broker": "mqtt.local",
	}
	for k, v := range want {
		if form[k] != v {
			t.Errorf("form[%s] = %q, want %q", k, form[k], v)
		}
	}
	if _, ok := form["dns1"]; ok {
		t.Error("empty static field sent")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d", calls.Load())
	}
}

func TestSaveIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := newTestClient(srv).Save(context.Background(), Credentials{SSID: "cafe"}); !IsHTTPError(err) {
		t.Errorf("err = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestSaveToClosedPortal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "portal closed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := newTestClient(srv).Save(context.Background(), Credentials{SSID: "cafe"})
	if !IsClosedError(err) {
		t.Errorf("err = %v, want closed", err)
	}
}

func TestSaveValidatesFirst(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	err := newTestClient(srv).Save(context.Background(), Credentials{SSID: "home", Password: "short"})
	if !IsValidationError(err) {
		t.Errorf("err = %v", err)
	}
	if calls.Load() != 0 {
		t.Error("invalid credentials were sent")
	}
}

func TestStandAloneAndReboot(t *testing.T) {
	var seen record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.add(r.Method + " " + r.URL.Path)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	ctx := context.Background()
	if err := c.SetStandAlone(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := c.SetStandAlone(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := c.Reboot(ctx); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"GET " + web.PathStandAloneYes,
		"GET " + web.PathStandAloneNo,
		"POST " + web.PathReset,
	}
	if got := seen.get(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("requests = %v, want %v", got, want)
	}
}

func TestWaitFor(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		st := portal.Status{State: "ConnectPending"}
		if n >= 3 {
			st = portal.Status{State: "Connected", Connected: true}
		}
		_ = json.NewEncoder(w).Encode(st)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := newTestClient(srv).WaitFor(ctx, 5*time.Millisecond, func(s *portal.Status) bool { return s.Connected })
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if st.State != "Connected" {
		t.Errorf("state = %s", st.State)
	}
}

func TestWaitForHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(portal.Status{State: "ApActive"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := newTestClient(srv).WaitFor(ctx, 5*time.Millisecond, func(s *portal.Status) bool { return s.Connected })
	if err == nil {
		t.Fatal("expected a context error")
	}
}

func TestWatch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != web.PathEvents {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(web.Message{Type: web.MessageStatus, Status: &portal.Status{State: "ApActive"}})
		_ = conn.WriteJSON(web.Message{
			Type:   web.MessageTransition,
			Event:  &portal.Event{From: "ApActive", To: "ConnectPending"},
			Status: &portal.Status{State: "ConnectPending"},
		})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "portal closed"))
	}))
	defer srv.Close()

	var got []string
	err := newTestClient(srv).Watch(context.Background(), func(m web.Message) bool {
		got = append(got, m.Type+":"+m.Status.State)
		return true
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	want := "status:ApActive,transition:ConnectPending"
	if strings.Join(got, ",") != want {
		t.Errorf("messages = %v, want %s", got, want)
	}
}

func TestWatchStopsWhenCallbackDeclines(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 10; i++ {
			if conn.WriteJSON(web.Message{Type: web.MessageStatus, Status: &portal.Status{}}) != nil {
				return
			}
		}
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	n := 0
	err := newTestClient(srv).Watch(context.Background(), func(web.Message) bool {
		n++
		return n < 2
	})
	if err != nil || n != 2 {
		t.Errorf("err = %v, messages = %d", err, n)
	}
}

func TestWatchUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	err := newTestClient(srv).Watch(context.Background(), func(web.Message) bool { return true })
	if !IsHTTPError(err) {
		t.Errorf("err = %v, want HTTP error", err)
	}
}

func asClientError(err error, target **ClientError) bool {
	ce, ok := err.(*ClientError)
	if ok {
		*target = ce
	}
	return ok
}
