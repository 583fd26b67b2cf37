package model

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine.
var (
	// ErrUnknownPlatform is returned when a platform name does not match
	// any registered adapter.
	ErrUnknownPlatform = errors.New("unknown platform")

	// ErrCredentialNotFound is returned when a credential id does not exist.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrNoCredential is returned when a sync is requested for a platform
	// that has no valid credential configured.
	ErrNoCredential = errors.New("no valid credential for platform")

	// ErrSyncInProgress is returned when a job for the same platform is
	// already running.
	ErrSyncInProgress = errors.New("sync already in progress for platform")
)

// NetworkError wraps a transient transport failure from a platform adapter.
// It is not proof that the credential itself is bad, so callers must not
// invalidate the credential on it.
type NetworkError struct {
	Platform Platform
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Platform, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthRejectedError indicates the platform explicitly refused the credential
// (a 401/403-class response). Unlike NetworkError it is authoritative proof
// of invalidity.
type AuthRejectedError struct {
	Platform Platform
	Reason   string
}

func (e *AuthRejectedError) Error() string {
	return fmt.Sprintf("%s: credential rejected: %s", e.Platform, e.Reason)
}

// IsAuthRejected reports whether err is (or wraps) an AuthRejectedError.
func IsAuthRejected(err error) bool {
	var authErr *AuthRejectedError
	return errors.As(err, &authErr)
}
