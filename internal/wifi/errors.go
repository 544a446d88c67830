package wifi

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a provisioning failure. None of them
// is fatal to the portal; they are reported as status and the loop carries on.
type ErrorType int

const (
	// ErrTypeRadioBusy indicates a scan is already running. Retry later.
	ErrTypeRadioBusy ErrorType = iota
	// ErrTypeRadioFailed indicates the driver reported a scan or connect failure.
	ErrTypeRadioFailed
	// ErrTypeInvalidConfig indicates a configuration value was rejected and downgraded.
	ErrTypeInvalidConfig
	// ErrTypeCapacityExceeded indicates a bounded collection is full.
	ErrTypeCapacityExceeded
	// ErrTypeTimeout indicates a connect or portal timeout elapsed.
	ErrTypeTimeout
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeRadioBusy:
		return "Radio Busy"
	case ErrTypeRadioFailed:
		return "Radio Failed"
	case ErrTypeInvalidConfig:
		return "Invalid Config"
	case ErrTypeCapacityExceeded:
		return "Capacity Exceeded"
	case ErrTypeTimeout:
		return "Timeout"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is a classified provisioning failure.
type Error struct {
	Type      ErrorType // Category of error
	Op        string    // Operation that failed, e.g. "scan", "connect"
	Message   string    // Human-readable error message
	Code      int       // Driver code or status, when one exists
	Err       error     // Underlying error (if any)
	Retryable bool      // Whether the next tick may succeed
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Type.String()
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// NewRadioBusyError creates an error for a scan that is still running
func NewRadioBusyError(op string, code int) *Error {
	return &Error{
		Type:      ErrTypeRadioBusy,
		Op:        op,
		Message:   "scan already in progress",
		Code:      code,
		Retryable: true,
	}
}

// NewRadioFailedError creates an error for a driver-reported failure
func NewRadioFailedError(op string, code int, message string, err error) *Error {
	return &Error{
		Type:      ErrTypeRadioFailed,
		Op:        op,
		Message:   message,
		Code:      code,
		Err:       err,
		Retryable: true,
	}
}

// NewInvalidConfigError creates an error for a rejected configuration value
func NewInvalidConfigError(field, message string) *Error {
	return &Error{
		Type:    ErrTypeInvalidConfig,
		Op:      field,
		Message: message,
	}
}

// NewCapacityError creates an error for a full bounded collection
func NewCapacityError(op string, capacity int) *Error {
	return &Error{
		Type:    ErrTypeCapacityExceeded,
		Op:      op,
		Message: fmt.Sprintf("capacity of %d reached", capacity),
		Code:    capacity,
	}
}

// NewTimeoutError creates an error for an elapsed timeout
func NewTimeoutError(op string, message string) *Error {
	return &Error{
		Type:      ErrTypeTimeout,
		Op:        op,
		Message:   message,
		Retryable: true,
	}
}

func isType(err error, t ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsRadioBusy checks if an error reports a running scan
func IsRadioBusy(err error) bool { return isType(err, ErrTypeRadioBusy) }

// IsRadioFailed checks if an error reports a driver failure
func IsRadioFailed(err error) bool { return isType(err, ErrTypeRadioFailed) }

// IsInvalidConfig checks if an error reports a rejected configuration value
func IsInvalidConfig(err error) bool { return isType(err, ErrTypeInvalidConfig) }

// IsCapacityExceeded checks if an error reports a full collection
func IsCapacityExceeded(err error) bool { return isType(err, ErrTypeCapacityExceeded) }

// IsTimeout checks if an error reports an elapsed timeout
func IsTimeout(err error) bool { return isType(err, ErrTypeTimeout) }

// IsRetryable checks if an error can be retried on a later tick
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
