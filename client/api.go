package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// APIConfig configures the REST adapter.
type APIConfig struct {
	// BaseURL is the service API root, e.g. "https://api.example.com".
	BaseURL string
	// TokenFile is the path the external credential flow writes the
	// bearer token to. Re-read on Authenticate().
	TokenFile string
	// Source namespaces item IDs; defaults to "recorder".
	Source string
	// UserAgent for HTTP requests.
	UserAgent string
	// Timeout for individual HTTP requests.
	Timeout time.Duration
	// PageSize is the server-side page size for listing.
	PageSize int
}

// DefaultAPIConfig returns sensible defaults.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		Source:    "recorder",
		UserAgent: "recsync/1.0",
		Timeout:   30 * time.Second,
		PageSize:  100,
	}
}

// API is a REST adapter implementing RecordingClient and Authenticator.
// It pages through the listing endpoint internally and validates every
// payload at the boundary: records that do not parse into a strict Item
// are logged and dropped, never passed through.
type API struct {
	cfg    APIConfig
	base   *http.Client
	token  string
	logger *slog.Logger
}

// NewAPI creates a REST adapter. The token file is read lazily on first use.
func NewAPI(cfg APIConfig, logger *slog.Logger) *API {
	def := DefaultAPIConfig()
	if cfg.Source == "" {
		cfg.Source = def.Source
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	return &API{
		cfg:    cfg,
		base:   &http.Client{Timeout: cfg.Timeout, Transport: newTransport()},
		logger: logger,
	}
}

// Authenticate re-reads the bearer token written by the external
// credential acquisition flow.
func (a *API) Authenticate(ctx context.Context) error {
	data, err := os.ReadFile(a.cfg.TokenFile)
	if err != nil {
		return ErrNotAuthenticated
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return ErrNotAuthenticated
	}
	a.token = token
	return nil
}

// IsAuthenticated reports whether the service accepts the current token.
func (a *API) IsAuthenticated(ctx context.Context) (bool, error) {
	if a.token == "" {
		if err := a.Authenticate(ctx); err != nil {
			return false, nil
		}
	}
	resp, err := a.do(ctx, "me", "/v1/me")
	if err != nil {
		if IsAuthError(err) {
			return false, nil
		}
		return false, err
	}
	resp.Body.Close()
	return true, nil
}

// recordingPayload is the loose wire shape of one listing entry. Optional
// fields are pointers so absence is distinguishable from zero values.
type recordingPayload struct {
	ID               string  `json:"id"`
	Title            *string `json:"title"`
	RecordedAt       string  `json:"recorded_at"`
	UpdatedAt        *string `json:"updated_at"`
	DurationSeconds  *int    `json:"duration_seconds"`
	HasTranscript    *bool   `json:"has_transcript"`
	TranscriptStatus *string `json:"transcript_status"`
}

// toItem validates the payload into the strict Item shape.
func (p recordingPayload) toItem(source string) (Item, error) {
	if p.ID == "" {
		return Item{}, fmt.Errorf("missing id")
	}
	recordedAt, err := time.Parse(time.RFC3339, p.RecordedAt)
	if err != nil {
		return Item{}, fmt.Errorf("invalid recorded_at %q: %w", p.RecordedAt, err)
	}

	item := Item{
		ID:         p.ID,
		Source:     source,
		RecordedAt: recordedAt.UTC(),
		UpdatedAt:  recordedAt.UTC(),
	}
	if p.Title != nil {
		item.Title = *p.Title
	}
	if p.UpdatedAt != nil {
		updatedAt, err := time.Parse(time.RFC3339, *p.UpdatedAt)
		if err != nil {
			return Item{}, fmt.Errorf("invalid updated_at %q: %w", *p.UpdatedAt, err)
		}
		item.UpdatedAt = updatedAt.UTC()
	}
	if p.DurationSeconds != nil {
		item.Duration = *p.DurationSeconds
	}
	if p.HasTranscript != nil {
		item.HasTranscript = *p.HasTranscript
	}
	if p.TranscriptStatus != nil {
		item.TranscriptStatus = *p.TranscriptStatus
	}
	return item, nil
}

// listPage is one page of the listing endpoint.
type listPage struct {
	Items      []recordingPayload `json:"items"`
	NextCursor string             `json:"next_cursor"`
}

// ListRecordings pages through the listing endpoint and returns validated
// items. The since filter is applied locally: the backend has no
// server-side date filtering.
func (a *API) ListRecordings(ctx context.Context, opts ListOptions) ([]Item, error) {
	var items []Item
	cursor := ""

	for {
		path := "/v1/recordings?page_size=" + strconv.Itoa(a.cfg.PageSize)
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}

		resp, err := a.do(ctx, "list", path)
		if err != nil {
			return nil, err
		}

		var page listPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, &ServiceError{Op: "list", Err: fmt.Errorf("decode page: %w", err)}
		}

		for _, p := range page.Items {
			item, err := p.toItem(a.cfg.Source)
			if err != nil {
				a.logger.Warn("dropping unparseable recording payload", "id", p.ID, "error", err)
				continue
			}
			if !opts.Since.IsZero() && item.UpdatedAt.Before(opts.Since) {
				continue
			}
			items = append(items, item)
			if opts.Limit > 0 && len(items) >= opts.Limit {
				return items, nil
			}
		}

		if page.NextCursor == "" {
			return items, nil
		}
		cursor = page.NextCursor
	}
}

// GetTranscript fetches and validates the transcript for id.
func (a *API) GetTranscript(ctx context.Context, id string) (*Transcript, error) {
	resp, err := a.do(ctx, "transcript", "/v1/recordings/"+url.PathEscape(id)+"/transcript")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tr Transcript
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, &ServiceError{Op: "transcript", Err: fmt.Errorf("decode transcript: %w", err)}
	}
	if tr.Text == "" && len(tr.Segments) > 0 {
		// Some payloads carry only segments; derive the joined text.
		parts := make([]string, 0, len(tr.Segments))
		for _, s := range tr.Segments {
			if s.Text != "" {
				parts = append(parts, s.Text)
			}
		}
		tr.Text = strings.Join(parts, " ")
	}
	return &tr, nil
}

// GetAudioDownloadURL returns the (possibly pre-signed) audio URL for id,
// or "" when the item has no audio.
func (a *API) GetAudioDownloadURL(ctx context.Context, id string) (string, error) {
	resp, err := a.do(ctx, "audio-url", "/v1/recordings/"+url.PathEscape(id)+"/audio-url")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	defer resp.Body.Close()

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", &ServiceError{Op: "audio-url", Err: fmt.Errorf("decode audio url: %w", err)}
	}
	return payload.URL, nil
}

// do performs an authenticated GET and maps the status code onto the
// error taxonomy. The caller owns the response body on success.
func (a *API) do(ctx context.Context, op, path string) (*http.Response, error) {
	if a.token == "" {
		if err := a.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(a.cfg.BaseURL, "/")+path, nil)
	if err != nil {
		return nil, &ServiceError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("User-Agent", a.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := a.base.Do(req)
	if err != nil {
		return nil, &ServiceError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &AuthError{Op: op, Reason: strings.TrimSpace(string(body))}
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, &ServiceError{Op: op, StatusCode: resp.StatusCode, Err: ErrNotFound}
	default:
		resp.Body.Close()
		return nil, &ServiceError{Op: op, StatusCode: resp.StatusCode}
	}
}
