package coordinator

import (
	"time"
)

// Status represents the lifecycle state of a login attempt.
type Status int

const (
	// StatusIdle - attempt created, listener not yet bound.
	StatusIdle Status = iota
	// StatusListening - listener bound, browser opened, waiting for a token.
	StatusListening
	// StatusSucceeded - a token was received from the browser.
	StatusSucceeded
	// StatusTimedOut - the deadline elapsed with no token.
	StatusTimedOut
	// StatusPeerClosed - the browser disconnected before sending a token.
	StatusPeerClosed
	// StatusFailed - port allocation, bind or a runtime error ended the attempt.
	StatusFailed
	// StatusCancelled - the attempt was cancelled by the caller.
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusListening:
		return "LISTENING"
	case StatusSucceeded:
		return "SUCCEEDED"
	case StatusTimedOut:
		return "TIMED_OUT"
	case StatusPeerClosed:
		return "PEER_CLOSED"
	case StatusFailed:
		return "FAILED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusTimedOut, StatusPeerClosed, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Attempt is a snapshot of one run of the login handshake.
type Attempt struct {
	ID        string
	Port      int
	Status    Status
	Token     string // set only when Status == StatusSucceeded
	Err       error  // cause for Failed, TimedOut and PeerClosed
	LoginURL  string
	StartedAt time.Time
	Deadline  time.Time
	EndedAt   time.Time
}

// Duration returns how long the attempt ran, or has been running.
func (a Attempt) Duration() time.Duration {
	if a.StartedAt.IsZero() {
		return 0
	}
	if a.EndedAt.IsZero() {
		return time.Since(a.StartedAt)
	}
	return a.EndedAt.Sub(a.StartedAt)
}

// Outcome is the terminal report for an attempt, delivered exactly once.
type Outcome struct {
	Attempt
}

// Succeeded reports whether the attempt produced a token.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// StatusUpdate is a user-facing progress report for an attempt.
type StatusUpdate struct {
	AttemptID     string
	Status        Status
	Text          string
	LoginURL      string
	ButtonEnabled bool
}

// Status texts shown at the UI boundary.
const (
	TextStarting   = "Starting login..."
	TextWaiting    = "Complete the login in your browser..."
	TextSucceeded  = "Login succeeded!"
	TextTimedOut   = "Login timed out, please retry"
	TextPeerClosed = "Browser closed before login completed, please retry"
)

// statusText maps a terminal attempt to the text shown to the user.
// Cancelled attempts reset silently.
func statusText(a Attempt) string {
	switch a.Status {
	case StatusListening:
		return TextWaiting
	case StatusSucceeded:
		return TextSucceeded
	case StatusTimedOut:
		return TextTimedOut
	case StatusPeerClosed:
		return TextPeerClosed
	case StatusFailed:
		if a.Err != nil {
			return "Error: " + a.Err.Error()
		}
		return "Error: login failed"
	default:
		return ""
	}
}
