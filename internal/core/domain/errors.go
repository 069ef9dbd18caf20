package domain

import "errors"

// Failure taxonomy for call attempts. Every failure is terminal for that
// attempt; a new user action is required to try again.
var (
	// ErrInvalidState rejects an operation issued in a state that does not
	// allow it, e.g. placing a call while one is already pending.
	ErrInvalidState = errors.New("operation not allowed in current call state")

	// ErrTokenRequest wraps a failed media-token request.
	ErrTokenRequest = errors.New("media token request failed")

	// ErrCallPlacement wraps a failed call-placement request.
	ErrCallPlacement = errors.New("call placement failed")

	// ErrMediaJoin wraps a failed media session join.
	ErrMediaJoin = errors.New("media join failed")

	// ErrPublish wraps a failure to publish local tracks after a join.
	ErrPublish = errors.New("publishing local tracks failed")
)
