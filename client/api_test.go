package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTokenFile(t *testing.T, token string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte(token+"\n"), 0600))
	return path
}

func newTestAPI(t *testing.T, srv *httptest.Server) *API {
	t.Helper()
	return NewAPI(APIConfig{
		BaseURL:   srv.URL,
		TokenFile: writeTokenFile(t, "secret-token"),
		PageSize:  2,
	}, testLogger())
}

func TestAuthenticateReadsTokenFile(t *testing.T) {
	api := NewAPI(APIConfig{TokenFile: writeTokenFile(t, "tok")}, testLogger())
	require.NoError(t, api.Authenticate(context.Background()))
}

func TestAuthenticateMissingToken(t *testing.T) {
	api := NewAPI(APIConfig{TokenFile: filepath.Join(t.TempDir(), "absent")}, testLogger())
	assert.ErrorIs(t, api.Authenticate(context.Background()), ErrNotAuthenticated)
}

func TestAuthenticateEmptyToken(t *testing.T) {
	api := NewAPI(APIConfig{TokenFile: writeTokenFile(t, "")}, testLogger())
	assert.ErrorIs(t, api.Authenticate(context.Background()), ErrNotAuthenticated)
}

func TestListRecordingsPagesAndValidates(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprint(w, `{"items":[
				{"id":"rec-1","recorded_at":"2026-03-01T09:00:00Z","title":"First","duration_seconds":60,"has_transcript":true,"transcript_status":"done"},
				{"id":"","recorded_at":"2026-03-01T10:00:00Z"}
			],"next_cursor":"p2"}`)
		case "p2":
			fmt.Fprint(w, `{"items":[
				{"id":"rec-2","recorded_at":"not-a-time"},
				{"id":"rec-3","recorded_at":"2026-03-02T09:00:00Z","updated_at":"2026-03-02T12:00:00Z"}
			]}`)
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	}))
	defer srv.Close()

	items, err := newTestAPI(t, srv).ListRecordings(context.Background(), ListOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret-token", gotAuth)
	require.Len(t, items, 2, "payloads that fail validation are dropped")

	assert.Equal(t, "rec-1", items[0].ID)
	assert.Equal(t, "recorder", items[0].Source)
	assert.Equal(t, "First", items[0].Title)
	assert.Equal(t, 60, items[0].Duration)
	assert.True(t, items[0].HasTranscript)
	assert.Equal(t, "done", items[0].TranscriptStatus)
	assert.Equal(t, items[0].RecordedAt, items[0].UpdatedAt,
		"updated_at defaults to recorded_at when absent")

	assert.Equal(t, "rec-3", items[1].ID)
	assert.Equal(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), items[1].UpdatedAt)
}

func TestListRecordingsAppliesSinceAndLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items":[
			{"id":"old","recorded_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-01T00:00:00Z"},
			{"id":"new-1","recorded_at":"2026-06-01T00:00:00Z","updated_at":"2026-06-01T00:00:00Z"},
			{"id":"new-2","recorded_at":"2026-06-02T00:00:00Z","updated_at":"2026-06-02T00:00:00Z"}
		]}`)
	}))
	defer srv.Close()

	api := newTestAPI(t, srv)
	since := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	items, err := api.ListRecordings(context.Background(), ListOptions{Since: since})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "new-1", items[0].ID)

	limited, err := api.ListRecordings(context.Background(), ListOptions{Since: since, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "new-1", limited[0].ID)
}

func TestGetTranscriptDerivesTextFromSegments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/recordings/rec-1/transcript", r.URL.Path)
		fmt.Fprint(w, `{"language":"en","segments":[
			{"start":0,"end":2,"text":"hello"},
			{"start":2,"end":4,"text":""},
			{"start":4,"end":6,"text":"world"}
		]}`)
	}))
	defer srv.Close()

	tr, err := newTestAPI(t, srv).GetTranscript(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "hello world", tr.Text)
	assert.Len(t, tr.Segments, 3)
}

func TestGetTranscriptNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestAPI(t, srv).GetTranscript(context.Background(), "rec-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsRetryable(err))
}

func TestGetAudioDownloadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"url":"https://storage.example.net/rec-1.m4a?sig=x"}`)
	}))
	defer srv.Close()

	url, err := newTestAPI(t, srv).GetAudioDownloadURL(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example.net/rec-1.m4a?sig=x", url)
}

func TestGetAudioDownloadURLAbsentAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	url, err := newTestAPI(t, srv).GetAudioDownloadURL(context.Background(), "rec-1")
	require.NoError(t, err, "absent audio is a normal condition, not an error")
	assert.Empty(t, url)
}

func TestDoMapsAuthFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "token expired")
	}))
	defer srv.Close()

	_, err := newTestAPI(t, srv).ListRecordings(context.Background(), ListOptions{})
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "list", authErr.Op)
	assert.Equal(t, "token expired", authErr.Reason)
}

func TestDoMapsServerFaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestAPI(t, srv).ListRecordings(context.Background(), ListOptions{})
	require.Error(t, err)

	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusServiceUnavailable, svcErr.StatusCode)
	assert.True(t, svcErr.Temporary())
}

func TestIsAuthenticatedChecksService(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v1/me", r.URL.Path)
		if calls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	api := newTestAPI(t, srv)

	ok, err := api.IsAuthenticated(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "a rejected token reads as unauthenticated, not as an error")

	ok, err = api.IsAuthenticated(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsAuthenticatedWithoutTokenFile(t *testing.T) {
	api := NewAPI(APIConfig{
		BaseURL:   "http://127.0.0.1:0",
		TokenFile: filepath.Join(t.TempDir(), "absent"),
	}, testLogger())

	ok, err := api.IsAuthenticated(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
