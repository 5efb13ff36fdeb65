package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyToken is returned when there is no token to verify.
var ErrEmptyToken = errors.New("empty token")

// ErrRejected indicates the token was refused by the verifier.
var ErrRejected = errors.New("token rejected")

// RejectedError is returned when a verifier refuses a token.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	if e == nil || e.Reason == "" {
		return "token rejected"
	}
	return fmt.Sprintf("token rejected: %s", e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// UserInfo describes the user a token belongs to.
type UserInfo struct {
	// Fingerprint identifies the token without revealing it.
	Fingerprint string
	// Subject is the user identity reported by the verifier.
	Subject    string
	VerifiedAt time.Time
}

// Verifier checks a token issued by the browser login.
type Verifier interface {
	Verify(ctx context.Context, token string) (UserInfo, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (UserInfo, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, token string) (UserInfo, error) {
	return f(ctx, token)
}

// PassthroughVerifier accepts every non-empty token. It stands in until the
// auth server exposes a verification endpoint.
type PassthroughVerifier struct {
	// Delay simulates a round trip.
	Delay time.Duration
}

// Verify implements Verifier.
func (v PassthroughVerifier) Verify(ctx context.Context, token string) (UserInfo, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return UserInfo{}, ErrEmptyToken
	}

	if v.Delay > 0 {
		t := time.NewTimer(v.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return UserInfo{}, fmt.Errorf("verify token: %w", ctx.Err())
		case <-t.C:
		}
	}

	fp := Fingerprint(token)
	return UserInfo{
		Fingerprint: fp,
		Subject:     "user-" + fp,
		VerifiedAt:  time.Now(),
	}, nil
}
