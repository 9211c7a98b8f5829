package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeItemDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestWriteAndVerifyManifestClean(t *testing.T) {
	dir := writeItemDir(t, map[string]string{
		"meta.json":       `{"id":"rec-1"}`,
		"transcript.txt":  "hello world\n",
		"transcript.json": `{"text":"hello world"}`,
		"audio.m4a":       "fake audio bytes",
	})

	require.NoError(t, WriteManifest(dir, "rec-1"))

	m, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", m.RecordingID)
	assert.Len(t, m.Files, 4)
	assert.NotContains(t, m.Files, ManifestName, "the manifest must not hash itself")
	assert.Equal(t, int64(len("fake audio bytes")), m.Files["audio.m4a"].SizeBytes)

	mismatches, err := VerifyManifest(dir)
	require.NoError(t, err)
	assert.Empty(t, mismatches)
}

func TestVerifyManifestDetectsSingleByteTamper(t *testing.T) {
	dir := writeItemDir(t, map[string]string{
		"meta.json":      `{"id":"rec-2"}`,
		"transcript.txt": "original text\n",
	})
	require.NoError(t, WriteManifest(dir, "rec-2"))

	path := filepath.Join(dir, "transcript.txt")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0x01
	require.NoError(t, os.WriteFile(path, data, 0644))

	mismatches, err := VerifyManifest(dir)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "transcript.txt", mismatches[0].File)
	assert.NotEqual(t, mismatches[0].Expected, mismatches[0].Actual)
	assert.NotEqual(t, MissingFile, mismatches[0].Actual)
}

func TestVerifyManifestReportsMissingFile(t *testing.T) {
	dir := writeItemDir(t, map[string]string{
		"meta.json": `{"id":"rec-3"}`,
		"audio.m4a": "bytes",
	})
	require.NoError(t, WriteManifest(dir, "rec-3"))
	require.NoError(t, os.Remove(filepath.Join(dir, "audio.m4a")))

	mismatches, err := VerifyManifest(dir)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "audio.m4a", mismatches[0].File)
	assert.Equal(t, MissingFile, mismatches[0].Actual)
}

func TestVerifyManifestSortsMismatches(t *testing.T) {
	dir := writeItemDir(t, map[string]string{
		"meta.json": `{"id":"rec-4"}`,
		"audio.m4a": "bytes",
		"zz.txt":    "more",
	})
	require.NoError(t, WriteManifest(dir, "rec-4"))
	require.NoError(t, os.Remove(filepath.Join(dir, "audio.m4a")))
	require.NoError(t, os.Remove(filepath.Join(dir, "zz.txt")))

	mismatches, err := VerifyManifest(dir)
	require.NoError(t, err)
	require.Len(t, mismatches, 2)
	assert.Equal(t, "audio.m4a", mismatches[0].File)
	assert.Equal(t, "zz.txt", mismatches[1].File)
}

func TestVerifyManifestAbsentManifestIsClean(t *testing.T) {
	dir := writeItemDir(t, map[string]string{"meta.json": `{"id":"rec-5"}`})

	mismatches, err := VerifyManifest(dir)
	assert.NoError(t, err)
	assert.Nil(t, mismatches)
}

func TestReadManifestCorrupt(t *testing.T) {
	dir := writeItemDir(t, map[string]string{ManifestName: "not json"})

	_, err := ReadManifest(dir)
	assert.ErrorIs(t, err, ErrStorageCorrupt)
}

func TestWriteManifestRecomputesFully(t *testing.T) {
	dir := writeItemDir(t, map[string]string{"meta.json": `{"id":"rec-6"}`})
	require.NoError(t, WriteManifest(dir, "rec-6"))

	// A second file appears and the old one goes away; the rewritten
	// manifest must reflect only the live file set.
	require.NoError(t, os.Remove(filepath.Join(dir, "meta.json")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audio.mp3"), []byte("a"), 0644))
	require.NoError(t, WriteManifest(dir, "rec-6"))

	m, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Len(t, m.Files, 1)
	assert.Contains(t, m.Files, "audio.mp3")
}
