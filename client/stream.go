package client

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// newTransport returns an http.Transport tuned for a small number of
// long-lived streaming connections to one service.
func newTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
}

// Stream is the streaming HTTP collaborator. GetStream attaches service
// auth headers; DownloadExternalURL deliberately omits them so pre-signed
// third-party storage links are fetched clean.
type Stream struct {
	api  *API
	http *http.Client
}

// NewStream creates a streaming client sharing the API adapter's
// credentials. Streaming requests carry no overall timeout: audio
// downloads can legitimately outlast any fixed request deadline, and the
// caller's context bounds the transfer instead.
func NewStream(api *API) *Stream {
	return &Stream{
		api:  api,
		http: &http.Client{Transport: newTransport()},
	}
}

// GetStream opens a byte stream from url with service auth headers.
// The caller must close the returned stream.
func (s *Stream) GetStream(ctx context.Context, url string) (io.ReadCloser, error) {
	if s.api.token == "" {
		if err := s.api.Authenticate(ctx); err != nil {
			return nil, err
		}
	}
	return s.open(ctx, url, map[string]string{
		"Authorization": "Bearer " + s.api.token,
		"User-Agent":    s.api.cfg.UserAgent,
	})
}

// DownloadExternalURL opens a byte stream from url without service
// headers. The caller must close the returned stream.
func (s *Stream) DownloadExternalURL(ctx context.Context, url string) (io.ReadCloser, error) {
	return s.open(ctx, url, map[string]string{
		"User-Agent": s.api.cfg.UserAgent,
	})
}

// readCloserWithType pairs the response body with its Content-Type so the
// recording store can pick a file extension.
type readCloserWithType struct {
	io.ReadCloser
	contentType string
}

// ContentType returns the response Content-Type, without parameters.
func (r *readCloserWithType) ContentType() string { return r.contentType }

func (s *Stream) open(ctx context.Context, url string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &ServiceError{Op: "stream", Err: err}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, &ServiceError{Op: "stream", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		ct := resp.Header.Get("Content-Type")
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
		return &readCloserWithType{ReadCloser: resp.Body, contentType: strings.TrimSpace(ct)}, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, &AuthError{Op: "stream"}
	default:
		resp.Body.Close()
		return nil, &ServiceError{Op: "stream", StatusCode: resp.StatusCode}
	}
}

// ContentTyper is implemented by streams that know their media type.
type ContentTyper interface {
	ContentType() string
}
