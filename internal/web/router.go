package web

import (
	"net"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/muurk/wifiportal/internal/logging"
)

// Router is a route registrar whose table can be rebuilt while the server
// keeps running. Routes added with On are staged until Begin publishes
// them; Reset drops every route at once.
type Router struct {
	staged  *chi.Mux
	current atomic.Pointer[chi.Mux]
}

// NewRouter returns a router that answers 404 until Begin is called.
func NewRouter() *Router {
	r := &Router{staged: newMux()}
	r.current.Store(newMux())
	return r
}

func newMux() *chi.Mux {
	m := chi.NewRouter()
	m.Use(logRequests)
	return m
}

// On registers h for every method on pattern.
func (r *Router) On(pattern string, h http.HandlerFunc) {
	r.staged.HandleFunc(pattern, h)
}

// OnMethod registers h for one method on pattern.
func (r *Router) OnMethod(method, pattern string, h http.HandlerFunc) {
	r.staged.MethodFunc(method, pattern, h)
}

// OnNotFound sets the handler for unmatched paths.
func (r *Router) OnNotFound(h http.HandlerFunc) {
	r.staged.NotFound(h)
}

// Begin publishes the staged routes and starts staging a fresh table.
func (r *Router) Begin() {
	r.current.Store(r.staged)
	r.staged = newMux()
}

// Reset tears down all published routes.
func (r *Router) Reset() {
	r.current.Store(newMux())
	r.staged = newMux()
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.current.Load().ServeHTTP(w, req)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, r.Host)
		next.ServeHTTP(w, r)
	})
}

// IsIP reports whether host consists only of digits and dots. Anything
// else is treated as a name and triggers the captive redirect. Callers
// strip any port first.
func IsIP(host string) bool {
	for i := 0; i < len(host); i++ {
		c := host[i]
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

// localHost returns the address the request arrived on, used as the
// redirect target. Port 80 is omitted.
func localHost(r *http.Request, fallback net.IP) string {
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		if host, port, err := net.SplitHostPort(addr.String()); err == nil {
			if port == "80" {
				return host
			}
			return net.JoinHostPort(host, port)
		}
	}
	if fallback == nil {
		return "localhost"
	}
	return fallback.String()
}
