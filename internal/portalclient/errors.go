package portalclient

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType categorizes client failures.
type ErrorType int

const (
	// ErrorTypeNetwork covers transport failures that fit no finer type.
	ErrorTypeNetwork ErrorType = iota
	// ErrorTypeHTTP is an unexpected HTTP status from the portal.
	ErrorTypeHTTP
	// ErrorTypeParse is a response body that could not be decoded.
	ErrorTypeParse
	// ErrorTypeValidation is input rejected before anything was sent.
	ErrorTypeValidation
	// ErrorTypeTimeout is a request or dial that ran out of time.
	ErrorTypeTimeout
	// ErrorTypeConnectionRefused means nothing listens on the port.
	ErrorTypeConnectionRefused
	// ErrorTypeDNS is a host name that did not resolve.
	ErrorTypeDNS
	// ErrorTypeClosed means the portal session has already ended.
	ErrorTypeClosed
	ErrorTypeUnknown
)

func (e ErrorType) String() string {
	switch e {
	case ErrorTypeNetwork:
		return "Network"
	case ErrorTypeHTTP:
		return "HTTP"
	case ErrorTypeParse:
		return "Parse"
	case ErrorTypeValidation:
		return "Validation"
	case ErrorTypeTimeout:
		return "Timeout"
	case ErrorTypeConnectionRefused:
		return "ConnectionRefused"
	case ErrorTypeDNS:
		return "DNS"
	case ErrorTypeClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ClientError is the error type returned by Client methods.
type ClientError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Err        error
	// Host is the portal host the request was sent to, when known.
	Host      string
	Retryable bool
}

func (e *ClientError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s error", e.Type)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ClientError) Unwrap() error { return e.Err }

// ClassifyNetworkError maps a transport error to an ErrorType and reports
// whether retrying could help.
func ClassifyNetworkError(err error) (ErrorType, bool) {
	if err == nil {
		return ErrorTypeUnknown, false
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && urlErr.Err != err {
		if t, retry := ClassifyNetworkError(urlErr.Err); t != ErrorTypeUnknown {
			return t, retry
		}
	}

	if os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrorTypeTimeout, true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout, true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrorTypeDNS, dnsErr.IsTemporary
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorTypeConnectionRefused, true
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return ErrorTypeNetwork, true
	case errors.Is(err, syscall.ECONNRESET):
		return ErrorTypeNetwork, true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrorTypeNetwork, true
	}
	return ErrorTypeUnknown, false
}

// NewNetworkError wraps a transport failure, classifying it.
func NewNetworkError(host, message string, err error) *ClientError {
	t, retry := ClassifyNetworkError(err)
	if t == ErrorTypeUnknown {
		t = ErrorTypeNetwork
	}
	return &ClientError{Type: t, Message: message, Err: err, Host: host, Retryable: retry}
}

// NewHTTPError reports an unexpected status. Server errors are retryable.
func NewHTTPError(host string, status int, message string) *ClientError {
	return &ClientError{
		Type:       ErrorTypeHTTP,
		Message:    message,
		StatusCode: status,
		Host:       host,
		Retryable:  status >= 500 && status != 503,
	}
}

// NewClosedError reports a submission to a portal that has stopped.
func NewClosedError(host string) *ClientError {
	return &ClientError{Type: ErrorTypeClosed, Message: "portal session has ended", StatusCode: 503, Host: host}
}

func NewParseError(message string, err error) *ClientError {
	return &ClientError{Type: ErrorTypeParse, Message: message, Err: err}
}

func NewValidationError(message string) *ClientError {
	return &ClientError{Type: ErrorTypeValidation, Message: message}
}

func typeOf(err error) (ErrorType, bool) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type, true
	}
	return ErrorTypeUnknown, false
}

func isType(err error, t ErrorType) bool {
	got, ok := typeOf(err)
	return ok && got == t
}

func IsNetworkError(err error) bool           { return isType(err, ErrorTypeNetwork) }
func IsHTTPError(err error) bool              { return isType(err, ErrorTypeHTTP) }
func IsParseError(err error) bool             { return isType(err, ErrorTypeParse) }
func IsValidationError(err error) bool        { return isType(err, ErrorTypeValidation) }
func IsTimeoutError(err error) bool           { return isType(err, ErrorTypeTimeout) }
func IsConnectionRefusedError(err error) bool { return isType(err, ErrorTypeConnectionRefused) }
func IsDNSError(err error) bool               { return isType(err, ErrorTypeDNS) }
func IsClosedError(err error) bool            { return isType(err, ErrorTypeClosed) }

// IsRetryable reports whether err is a ClientError marked retryable.
func IsRetryable(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce) && ce.Retryable
}

// TroubleshootingHint returns a short suggestion for the user, or "" when
// there is nothing useful to add.
func TroubleshootingHint(err error) string {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return ""
	}
	switch ce.Type {
	case ErrorTypeTimeout:
		return "The device did not answer in time. Check that you are joined to its access point or the same network."
	case ErrorTypeConnectionRefused:
		return "Nothing is listening on that port. The portal may have closed after a successful connection; try the station address or run 'scan'."
	case ErrorTypeDNS:
		return "The host name did not resolve. Use the device IP or run 'scan' to find it over mDNS."
	case ErrorTypeNetwork:
		return "The device is unreachable. Join the portal access point (default address 192.168.4.1) and retry."
	case ErrorTypeClosed:
		return "The portal is no longer accepting credentials. Reset the device to start a new session."
	case ErrorTypeHTTP:
		switch {
		case ce.StatusCode == 404:
			return "The endpoint is not mounted. The device may be in the other mode; check 'status'."
		case ce.StatusCode == 400:
			return "The request was rejected. An SSID is required."
		case ce.StatusCode >= 500:
			return "The portal reported an internal error. Check the device logs."
		}
	case ErrorTypeParse:
		return "The response was not understood. The device may run an incompatible version."
	case ErrorTypeValidation:
		return "Fix the input and retry."
	}
	return ""
}

// ShortErrorMessage returns a one-line description suitable for a status
// bar or CLI error line.
func ShortErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *ClientError
	if !errors.As(err, &ce) {
		return err.Error()
	}
	switch ce.Type {
	case ErrorTypeTimeout:
		return "device timed out"
	case ErrorTypeConnectionRefused:
		return "connection refused"
	case ErrorTypeDNS:
		return "host not found"
	case ErrorTypeNetwork:
		return "device unreachable"
	case ErrorTypeClosed:
		return "portal closed"
	case ErrorTypeHTTP:
		return fmt.Sprintf("HTTP %d: %s", ce.StatusCode, ce.Message)
	default:
		return ce.Message
	}
}
