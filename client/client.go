// Package client defines the boundary to the remote recording service:
// the validated Item and Transcript shapes the rest of recsync consumes,
// the collaborator interfaces, and the service error taxonomy. A thin
// REST adapter and a streaming HTTP client implement the interfaces.
package client

import (
	"context"
	"io"
	"time"
)

// Item is one remote recording record as seen by the sync core.
// The core never mutates an Item; it only reads it to decide whether
// local state is stale.
type Item struct {
	// ID is the immutable remote identifier.
	ID string
	// Source namespaces IDs across services ("recorder" by default).
	Source string
	// Title is the user-visible title, may be empty.
	Title string
	// RecordedAt is fixed at creation and buckets the storage location.
	RecordedAt time.Time
	// UpdatedAt changes whenever the remote record is modified.
	UpdatedAt time.Time
	// Duration is the recording length in seconds.
	Duration int
	// HasTranscript reports whether the service advertises a transcript.
	HasTranscript bool
	// TranscriptStatus is the service-side processing state ("done",
	// "processing", "failed", or empty when unknown).
	TranscriptStatus string
}

// Transcript is the validated transcript of a single recording.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Text     string    `json:"text"`
	Segments []Segment `json:"segments,omitempty"`
}

// Segment is a timed transcript segment.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker,omitempty"`
	Text    string  `json:"text"`
}

// ListOptions bounds a recording listing.
type ListOptions struct {
	// Since filters to items updated at or after this time. The adapter
	// applies the filter locally when the backend lacks server-side date
	// filtering. Zero means no lower bound.
	Since time.Time
	// Limit caps the number of items returned. Zero means no cap.
	Limit int
}

// RecordingClient is the remote-service collaborator consumed by the core.
// Implementations page server-side internally; each call is restartable.
type RecordingClient interface {
	// IsAuthenticated reports whether the client holds usable credentials.
	IsAuthenticated(ctx context.Context) (bool, error)

	// ListRecordings returns the finite candidate set bounded by opts.
	ListRecordings(ctx context.Context, opts ListOptions) ([]Item, error)

	// GetTranscript fetches the transcript for id. Fails with ErrNotFound
	// if the item has no transcript server-side.
	GetTranscript(ctx context.Context, id string) (*Transcript, error)

	// GetAudioDownloadURL returns a download URL for the item's audio,
	// or "" if no audio is available.
	GetAudioDownloadURL(ctx context.Context, id string) (string, error)
}

// StreamClient is the streaming HTTP collaborator consumed by the core.
type StreamClient interface {
	// GetStream opens a byte stream from url with service auth headers.
	GetStream(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadExternalURL opens a byte stream from url without any
	// service-specific auth headers. Required when the URL is a
	// pre-signed third-party storage link.
	DownloadExternalURL(ctx context.Context, url string) (io.ReadCloser, error)
}

// Authenticator is the optional re-authentication capability. Callers that
// hold a non-nil Authenticator may re-acquire credentials once after an
// auth-class failure and invoke the orchestrator again; the orchestrator
// itself never retries across passes.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}
