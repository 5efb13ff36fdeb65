package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrResourceUnavailable indicates no free local port could be found.
	ErrResourceUnavailable = errors.New("no free local port available")

	// ErrListenerBind indicates the callback listener could not be bound.
	ErrListenerBind = errors.New("callback listener bind failed")

	// ErrMalformedMessage indicates an inbound frame could not be decoded.
	// It never ends an attempt.
	ErrMalformedMessage = errors.New("malformed login message")

	// ErrPeerClosed indicates the browser disconnected before sending a token.
	ErrPeerClosed = errors.New("peer closed before login completed")

	// ErrTimeout indicates the attempt deadline elapsed.
	ErrTimeout = errors.New("login timed out")

	// ErrCancelled indicates the attempt was cancelled by the caller.
	ErrCancelled = errors.New("login cancelled")

	// ErrAlreadyInProgress is returned by Start under PolicyReject when an
	// attempt is active.
	ErrAlreadyInProgress = errors.New("login already in progress")

	// ErrAttemptReset is returned by Start under PolicyReset: the active
	// attempt was torn down and the coordinator is idle again.
	ErrAttemptReset = errors.New("active login reset")
)

// AttemptError ties a failure kind (one of the sentinels above) and its
// underlying cause to an attempt.
type AttemptError struct {
	AttemptID string
	Kind      error
	Err       error
}

func (e *AttemptError) Error() string {
	if e == nil {
		return "login attempt failed"
	}

	kind := "login attempt failed"
	if e.Kind != nil {
		kind = e.Kind.Error()
	}

	switch {
	case e.Err == nil:
		return kind
	case e.Kind == nil || errors.Is(e.Err, e.Kind):
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s: %v", kind, e.Err)
	}
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AttemptError) Unwrap() []error {
	if e == nil {
		return nil
	}
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func attemptError(id string, kind, cause error) error {
	return &AttemptError{AttemptID: id, Kind: kind, Err: cause}
}
