package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for remote-service conditions.
var (
	// ErrNotFound indicates the requested resource does not exist
	// server-side (e.g. a transcript that was never produced).
	ErrNotFound = errors.New("client: not found")

	// ErrNotAuthenticated indicates credentials are absent or unusable.
	ErrNotAuthenticated = errors.New("client: not authenticated")

	// ErrNoAudio indicates the item has no downloadable audio.
	ErrNoAudio = errors.New("client: no audio available")
)

// AuthError indicates credentials were rejected by the service. It is fatal
// to the current pass and recoverable only by external re-authentication.
type AuthError struct {
	// Op is the operation during which authentication failed.
	Op string
	// Reason is the service-provided detail, if any.
	Reason string
}

// Error returns a string representation of the auth error.
func (e *AuthError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("client: %s: authentication rejected: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("client: %s: authentication rejected", e.Op)
}

// ServiceError indicates an error response from the remote service.
type ServiceError struct {
	// Op is the logical operation ("list", "transcript", "audio-url", "stream").
	Op string
	// StatusCode is the HTTP status code, 0 for transport-level failures.
	StatusCode int
	// Err is the underlying error, if any.
	Err error
}

// Error returns a string representation of the service error.
func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("client: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("client: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *ServiceError) Unwrap() error { return e.Err }

// Temporary reports whether the failure indicates rate limiting or a
// server-side fault and is therefore worth retrying.
func (e *ServiceError) Temporary() bool {
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500 {
		return true
	}
	// Transport-level failures (no response at all) are transient.
	return e.StatusCode == 0 && e.Err != nil
}

// IsAuthError reports whether err is an authentication-class failure.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.Is(err, ErrNotAuthenticated) || errors.As(err, &authErr)
}

// IsRetryable classifies err for the retry policy: only rate-limiting and
// server-side faults are retryable. Auth rejections, not-found conditions,
// and context cancellation propagate immediately.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if IsAuthError(err) || errors.Is(err, ErrNotFound) {
		return false
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Temporary()
	}
	return false
}
