package dataset

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recsync/client"
	"recsync/recording"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func datasetItem(id string) client.Item {
	return client.Item{
		ID:            id,
		Source:        "recorder",
		Title:         "Entry " + id,
		RecordedAt:    time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		Duration:      120,
		HasTranscript: true,
	}
}

func readLines(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestAppendWritesOneLinePerEntry(t *testing.T) {
	root := t.TempDir()
	exporter, err := Open(root, "recordings")
	require.NoError(t, err)

	tr := &client.Transcript{
		Language: "en",
		Text:     "hello world",
		Segments: []client.Segment{{Text: "hello"}, {Text: "world"}},
	}
	itemDir := filepath.Join(root, "recordings", "2026", "01", "20260115T100000Z__recorder_rec-1")

	require.NoError(t, exporter.Append(datasetItem("rec-1"), tr, itemDir))
	require.NoError(t, exporter.Append(datasetItem("rec-2"), tr, itemDir))
	require.NoError(t, exporter.Close())

	entries := readLines(t, Path(root, "recordings"))
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "recorder_rec-1", first.ID)
	assert.Equal(t, "Entry rec-1", first.Title)
	assert.Equal(t, "en", first.Language)
	assert.Equal(t, "hello world", first.Text)
	assert.Equal(t, 120, first.DurationSeconds)
	assert.Equal(t, 2, first.SegmentCount)
	assert.Equal(t,
		"recordings/2026/01/20260115T100000Z__recorder_rec-1/transcript.txt",
		first.Path, "paths are root-relative with forward slashes")
}

func TestAppendSurvivesReopen(t *testing.T) {
	root := t.TempDir()
	tr := &client.Transcript{Text: "one"}
	itemDir := filepath.Join(root, "recordings", "2026", "01", "x")

	exporter, err := Open(root, "recordings")
	require.NoError(t, err)
	require.NoError(t, exporter.Append(datasetItem("rec-1"), tr, itemDir))
	require.NoError(t, exporter.Close())

	exporter, err = Open(root, "recordings")
	require.NoError(t, err)
	require.NoError(t, exporter.Append(datasetItem("rec-2"), tr, itemDir))
	require.NoError(t, exporter.Close())

	entries := readLines(t, Path(root, "recordings"))
	assert.Len(t, entries, 2, "reopening appends, never truncates")
}

func TestExportRederivesFromDisk(t *testing.T) {
	root := t.TempDir()
	store := recording.NewStore(root, nil, "", testLogger())

	transcribed := datasetItem("rec-1")
	require.NoError(t, store.WriteMetadata(transcribed))
	require.NoError(t, store.WriteTranscript(transcribed,
		&client.Transcript{Text: "spoken words"}, []recording.Format{recording.FormatJSON, recording.FormatText}))

	// An item without a structured transcript contributes no line.
	audioOnly := datasetItem("rec-2")
	audioOnly.HasTranscript = false
	require.NoError(t, store.WriteMetadata(audioOnly))

	count, err := Export(root, "rebuilt", testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	entries := readLines(t, Path(root, "rebuilt"))
	require.Len(t, entries, 1)
	assert.Equal(t, "recorder_rec-1", entries[0].ID)
	assert.Equal(t, "spoken words", entries[0].Text)
}

func TestExportSkipsCorruptItems(t *testing.T) {
	root := t.TempDir()
	store := recording.NewStore(root, nil, "", testLogger())

	good := datasetItem("rec-1")
	require.NoError(t, store.WriteMetadata(good))
	require.NoError(t, store.WriteTranscript(good,
		&client.Transcript{Text: "fine"}, []recording.Format{recording.FormatJSON}))

	bad := datasetItem("rec-2")
	require.NoError(t, store.WriteMetadata(bad))
	require.NoError(t, os.WriteFile(
		filepath.Join(store.Dir(bad), "meta.json"), []byte("{broken"), 0644))

	count, err := Export(root, "rebuilt", testLogger())
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a corrupt item never aborts the export")
}

func TestExportEmptyTree(t *testing.T) {
	count, err := Export(t.TempDir(), "empty", testLogger())
	require.NoError(t, err)
	assert.Zero(t, count)
}
