package portalclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/portal"
	"github.com/muurk/wifiportal/internal/version"
	"github.com/muurk/wifiportal/internal/web"
)

const (
	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the number of retries after the first attempt
	// for idempotent requests.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the initial backoff interval.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay caps the backoff interval.
	DefaultMaxRetryDelay = 5 * time.Second

	// DefaultPollInterval is used by WaitFor between status polls.
	DefaultPollInterval = time.Second

	// maxErrorBody limits how much of an error response is kept.
	maxErrorBody = 512
)

// Client talks to one portal.
type Client struct {
	// BaseURL is the portal root, e.g. "http://192.168.4.1".
	BaseURL string

	HTTPClient *http.Client

	// Dialer opens the events websocket. Nil uses websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// MaxRetries is the number of retries for idempotent requests. Zero
	// disables retrying.
	MaxRetries int

	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewClient returns a client for the portal at host:port.
func NewClient(host string, port int) *Client {
	if port == 0 {
		port = 80
	}
	return NewClientWithURL("http://" + net.JoinHostPort(host, strconv.Itoa(port)))
}

// NewClientWithURL returns a client for a full base URL.
func NewClientWithURL(baseURL string) *Client {
	return &Client{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		HTTPClient:    &http.Client{Timeout: DefaultTimeout},
		MaxRetries:    DefaultMaxRetries,
		RetryDelay:    DefaultRetryDelay,
		MaxRetryDelay: DefaultMaxRetryDelay,
	}
}

// SetTimeout changes the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.HTTPClient.Timeout = d
}

// Credentials are the fields of one save submission.
type Credentials struct {
	SSID     string
	Password string
	// Static is sent only when non-nil.
	Static *StaticIP
	// Params holds custom parameter values keyed by parameter id.
	Params map[string]string
}

// StaticIP holds the optional static station fields. Empty fields are
// omitted from the form.
type StaticIP struct {
	IP      string
	Gateway string
	Netmask string
	DNS1    string
	DNS2    string
}

// Form encodes the credentials as the save endpoint expects them.
func (c Credentials) Form() url.Values {
	v := url.Values{}
	v.Set("s", c.SSID)
	v.Set("p", c.Password)
	if c.Static != nil {
		for k, val := range map[string]string{
			"ip": c.Static.IP, "gw": c.Static.Gateway, "sn": c.Static.Netmask,
			"dns1": c.Static.DNS1, "dns2": c.Static.DNS2,
		} {
			if val != "" {
				v.Set(k, val)
			}
		}
	}
	for k, val := range c.Params {
		v.Set(k, val)
	}
	return v
}

func (c *Client) host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return c.BaseURL
	}
	return u.Host
}

// Ping checks that the status endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Status(ctx)
	return err
}

// Status fetches the portal status snapshot.
func (c *Client) Status(ctx context.Context) (*portal.Status, error) {
	var st portal.Status
	if err := c.getJSON(ctx, web.PathStatus, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Networks returns the networks the portal last saw, strongest first.
// With rescan set the portal is asked to scan again; in AP mode the result
// only shows once the next tick has run.
func (c *Client) Networks(ctx context.Context, rescan bool) ([]web.Network, error) {
	path := web.PathNetworks
	if rescan {
		path += "?scan=1"
	}
	var out []web.Network
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Save submits credentials. It is not retried.
func (c *Client) Save(ctx context.Context, creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	logging.Info("Submitting credentials", zap.String("host", c.host()), zap.String("ssid", creds.SSID))
	resp, err := c.do(ctx, http.MethodPost, web.PathSave, creds.Form())
	if err != nil {
		return err
	}
	return discard(resp)
}

// SetStandAlone switches stand-alone mode. The device restarts afterwards.
func (c *Client) SetStandAlone(ctx context.Context, on bool) error {
	path := web.PathStandAloneNo
	if on {
		path = web.PathStandAloneYes
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return discard(resp)
}

// Reboot asks the device to restart.
func (c *Client) Reboot(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, web.PathReset, url.Values{})
	if err != nil {
		return err
	}
	return discard(resp)
}

// WaitFor polls Status until cond holds, ctx ends or a non-retryable error
// occurs. Transient failures while the device switches networks are
// tolerated.
func (c *Client) WaitFor(ctx context.Context, interval time.Duration, cond func(*portal.Status) bool) (*portal.Status, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		st, err := c.Status(ctx)
		switch {
		case err == nil && cond(st):
			return st, nil
		case err != nil && !IsRetryable(err):
			return nil, err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			if lastErr != nil {
				return nil, fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Watch follows the events feed, passing each message to fn until fn
// returns false, the portal closes the feed or ctx ends. The first message
// is always a status snapshot. A close initiated by the portal returns nil.
func (c *Client) Watch(ctx context.Context, fn func(web.Message) bool) error {
	u, err := url.Parse(c.BaseURL + web.PathEvents)
	if err != nil {
		return NewValidationError(fmt.Sprintf("invalid base URL %q", c.BaseURL))
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{"User-Agent": []string{version.UserAgent()}}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return NewHTTPError(c.host(), resp.StatusCode, "events feed unavailable")
		}
		return NewNetworkError(c.host(), "failed to open events feed", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var m web.Message
		if err := conn.ReadJSON(&m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Events feed closed by portal", zap.String("host", c.host()))
				return nil
			}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				return NewParseError("malformed event", err)
			}
			return NewNetworkError(c.host(), "events feed interrupted", err)
		}
		if !fn(m) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.retry(ctx, func() error {
		resp, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return NewParseError("failed to decode "+path, err)
		}
		return nil
	})
}

// retry runs op with exponential backoff while it fails with retryable
// errors.
func (c *Client) retry(ctx context.Context, op func() error) error {
	if c.MaxRetries <= 0 {
		return op()
	}
	b := backoff.NewExponentialBackOff()
	if c.RetryDelay > 0 {
		b.InitialInterval = c.RetryDelay
	}
	if c.MaxRetryDelay > 0 {
		b.MaxInterval = c.MaxRetryDelay
	}
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.MaxRetries)), ctx),
		func(err error, wait time.Duration) {
			logging.Debug("Retrying portal request",
				zap.String("host", c.host()),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err))
		})
}

// do sends one request. A non-2xx response is returned as a ClientError
// with the body closed.
func (c *Client) do(ctx context.Context, method, path string, form url.Values) (*http.Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid request %s %s: %v", method, path, err))
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, NewNetworkError(c.host(), method+" "+path+" failed", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	text := strings.TrimSpace(string(msg))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	if resp.StatusCode == http.StatusServiceUnavailable && path == web.PathSave {
		return nil, NewClosedError(c.host())
	}
	return nil, NewHTTPError(c.host(), resp.StatusCode, text)
}

func discard(resp *http.Response) error {
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}
