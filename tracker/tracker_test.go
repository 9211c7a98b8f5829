package tracker

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recsync/client"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testItem() client.Item {
	return client.Item{
		ID:               "rec-1",
		Source:           "recorder",
		Title:            "Standup",
		RecordedAt:       time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		Duration:         900,
		HasTranscript:    true,
		TranscriptStatus: "done",
	}
}

func TestContentHashDeterministic(t *testing.T) {
	a := testItem()
	b := testItem()
	assert.Equal(t, ContentHash(a), ContentHash(b))
	assert.Len(t, ContentHash(a), 64)
}

func TestContentHashChangesWithVolatileFields(t *testing.T) {
	base := ContentHash(testItem())

	tests := []struct {
		name   string
		mutate func(*client.Item)
	}{
		{"id", func(i *client.Item) { i.ID = "rec-2" }},
		{"updated_at", func(i *client.Item) { i.UpdatedAt = i.UpdatedAt.Add(time.Minute) }},
		{"has_transcript", func(i *client.Item) { i.HasTranscript = false }},
		{"transcript_status", func(i *client.Item) { i.TranscriptStatus = "processing" }},
		{"duration", func(i *client.Item) { i.Duration = 901 }},
		{"title", func(i *client.Item) { i.Title = "Renamed" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := testItem()
			tt.mutate(&item)
			assert.NotEqual(t, base, ContentHash(item))
		})
	}
}

func TestContentHashIgnoresNonVolatileFields(t *testing.T) {
	base := ContentHash(testItem())

	item := testItem()
	item.Source = "other"
	item.RecordedAt = item.RecordedAt.Add(time.Hour)
	assert.Equal(t, base, ContentHash(item))
}

func TestNeedsDownload(t *testing.T) {
	root := t.TempDir()
	tr := Load(root, testLogger())
	item := testItem()

	assert.True(t, tr.NeedsDownload(item), "unseen items always need work")

	tr.MarkComplete(item.ID, item.RecordedAt, Completion{
		HasAudio:      true,
		HasTranscript: true,
		ContentHash:   ContentHash(item),
	})
	assert.False(t, tr.NeedsDownload(item), "completed unchanged items are skipped")

	changed := item
	changed.Title = "Edited remotely"
	assert.True(t, tr.NeedsDownload(changed), "a changed fingerprint forces re-processing")
}

func TestNeedsDownloadWhenTranscriptAppears(t *testing.T) {
	root := t.TempDir()
	tr := Load(root, testLogger())

	item := testItem()
	item.HasTranscript = false
	item.TranscriptStatus = "processing"
	tr.MarkComplete(item.ID, item.RecordedAt, Completion{
		HasAudio:    true,
		ContentHash: ContentHash(item),
	})
	require.False(t, tr.NeedsDownload(item))

	// Remote transcription finished: both the flag and the fingerprint
	// move, either alone is sufficient to trigger a re-download.
	item.HasTranscript = true
	item.TranscriptStatus = "done"
	assert.True(t, tr.NeedsDownload(item))
}

func TestPersistAndReload(t *testing.T) {
	root := t.TempDir()
	item := testItem()

	tr := Load(root, testLogger())
	tr.MarkComplete(item.ID, item.RecordedAt, Completion{
		HasAudio:      true,
		HasTranscript: true,
		ContentHash:   ContentHash(item),
	})
	tr.MarkSuccessfulSync()
	require.NoError(t, tr.Persist())

	reloaded := Load(root, testLogger())
	assert.Equal(t, 1, reloaded.Len())
	assert.False(t, reloaded.NeedsDownload(item))
	assert.False(t, reloaded.Since().IsZero())

	state, ok := reloaded.State(item.ID)
	require.True(t, ok)
	assert.True(t, state.HasAudio)
	assert.True(t, state.HasTranscript)
	assert.NotNil(t, state.DownloadedAt)
}

func TestLoadMissingStateStartsFresh(t *testing.T) {
	tr := Load(t.TempDir(), testLogger())
	assert.Equal(t, 0, tr.Len())
	assert.True(t, tr.Since().IsZero())
}

func TestLoadCorruptStateStartsFresh(t *testing.T) {
	root := t.TempDir()
	path := StatePath(root)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0644))

	tr := Load(root, testLogger())
	assert.Equal(t, 0, tr.Len())
}

func TestLoadSchemaMismatchStartsFresh(t *testing.T) {
	root := t.TempDir()
	path := StatePath(root)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	state := `{"version":"999","recordings":{"rec-1":{"recorded_at":"2026-03-10T09:00:00Z","content_hash":"x","has_audio":true,"has_transcript":true,"verified":false}}}`
	require.NoError(t, os.WriteFile(path, []byte(state), 0644))

	tr := Load(root, testLogger())
	assert.Equal(t, 0, tr.Len())
}

func TestMarkCompleteResetsVerification(t *testing.T) {
	tr := Load(t.TempDir(), testLogger())
	item := testItem()

	tr.MarkComplete(item.ID, item.RecordedAt, Completion{ContentHash: ContentHash(item)})
	tr.MarkVerified(item.ID, true)

	state, ok := tr.State(item.ID)
	require.True(t, ok)
	require.True(t, state.Verified)

	tr.MarkComplete(item.ID, item.RecordedAt, Completion{ContentHash: ContentHash(item)})
	state, ok = tr.State(item.ID)
	require.True(t, ok)
	assert.False(t, state.Verified, "a fresh file set is unverified until the next checksum pass")
	assert.Nil(t, state.VerifiedAt)
}

func TestMarkVerifiedUnknownIDIgnored(t *testing.T) {
	tr := Load(t.TempDir(), testLogger())
	tr.MarkVerified("ghost", true)
	assert.Equal(t, 0, tr.Len())
}

func TestMarkVerifiedFailureClearsTimestamp(t *testing.T) {
	tr := Load(t.TempDir(), testLogger())
	item := testItem()
	tr.MarkComplete(item.ID, item.RecordedAt, Completion{ContentHash: ContentHash(item)})

	tr.MarkVerified(item.ID, true)
	tr.MarkVerified(item.ID, false)

	state, ok := tr.State(item.ID)
	require.True(t, ok)
	assert.False(t, state.Verified)
	assert.Nil(t, state.VerifiedAt)
}
