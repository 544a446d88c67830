package portal

import "time"

// State is the lifecycle phase of a portal session.
type State int

const (
	StateIdle State = iota
	StateAPActive
	StateScanPending
	StateConnectPending
	StateConnected
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAPActive:
		return "ApActive"
	case StateScanPending:
		return "ScanPending"
	case StateConnectPending:
		return "ConnectPending"
	case StateConnected:
		return "Connected"
	case StateTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions happen from s.
func (s State) Terminal() bool {
	return s == StateConnected || s == StateTimedOut
}

// Event describes one state transition.
type Event struct {
	Time   time.Time `json:"time"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	Reason string    `json:"reason"`
}
