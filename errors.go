package recsync

import (
	"recsync/client"
	"recsync/retry"
	"recsync/storage"
)

// Error surface re-exported for library users.
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, recsync.ErrNotAuthenticated) {
//		// refresh credentials and retry
//	}
//
// Using errors.As() for wrapped errors:
//
//	var authErr *recsync.AuthError
//	if errors.As(err, &authErr) {
//		fmt.Printf("%s rejected: %s\n", authErr.Op, authErr.Reason)
//	}

// Type aliases for convenient error handling.
type (
	// AuthError reports a rejected or expired credential.
	AuthError = client.AuthError
	// ServiceError wraps a remote service failure with its status code.
	ServiceError = client.ServiceError
	// AttemptsError wraps an error that persisted through all retry attempts.
	AttemptsError = retry.AttemptsError
	// StorageError wraps errors during local storage operations.
	StorageError = storage.StorageError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrNotAuthenticated indicates missing or invalid credentials.
	ErrNotAuthenticated = client.ErrNotAuthenticated
	// ErrNoAudio indicates the remote item has no audio stream.
	ErrNoAudio = client.ErrNoAudio

	// Storage errors
	// ErrNotFound indicates an entity was not found in local storage.
	ErrNotFound = storage.ErrNotFound
	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = storage.ErrInvalidInput
	// ErrStorageCorrupt indicates data corruption was detected.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates a timeout acquiring the run lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsRetryable reports whether an error is transient and worth retrying.
// Authentication failures and missing items are permanent.
func IsRetryable(err error) bool {
	return client.IsRetryable(err)
}

// IsAuthError reports whether an error stems from rejected credentials.
func IsAuthError(err error) bool {
	return client.IsAuthError(err)
}
