// Package recording writes the on-disk artifact set for one remote item:
// metadata, transcript renditions, streamed audio, and the checksum
// manifest. Directory placement is a pure function of the item's
// recordedAt and id, so re-processing always targets the same directory.
package recording

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"recsync/client"
	"recsync/storage"
)

const (
	// RecordingsDirName is the year/month-partitioned tree under the root.
	RecordingsDirName = "recordings"

	// MetadataName is the per-item metadata filename.
	MetadataName = "meta.json"

	// compactTimeLayout names item directories by recording time.
	compactTimeLayout = "20060102T150405Z"
)

// audioExtensions maps MIME types to file extensions. The MP4/M4A family
// is the default for anything unrecognized.
var audioExtensions = map[string]string{
	"audio/mp4":   "m4a",
	"audio/x-m4a": "m4a",
	"audio/aac":   "m4a",
	"video/mp4":   "mp4",
	"audio/mpeg":  "mp3",
	"audio/mp3":   "mp3",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/webm":  "webm",
	"audio/ogg":   "ogg",
	"audio/flac":  "flac",
}

const defaultAudioExtension = "m4a"

// Metadata is the meta.json shape: the item's fields plus an import
// timestamp and a stable dedupe key.
type Metadata struct {
	ID               string    `json:"id"`
	Source           string    `json:"source"`
	DedupeKey        string    `json:"dedupe_key"`
	Title            string    `json:"title,omitempty"`
	RecordedAt       time.Time `json:"recorded_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	DurationSeconds  int       `json:"duration_seconds"`
	HasTranscript    bool      `json:"has_transcript"`
	TranscriptStatus string    `json:"transcript_status,omitempty"`
	ImportedAt       time.Time `json:"imported_at"`
}

// Store writes all files for one item's directory on top of the atomic
// writer and the checksum manager.
type Store struct {
	root        string
	streams     client.StreamClient
	serviceHost string
	logger      *slog.Logger
}

// NewStore creates a recording store rooted at root. serviceHost is the
// remote service's host; audio URLs on any other host are treated as
// pre-signed third-party links and fetched without service auth headers.
func NewStore(root string, streams client.StreamClient, serviceHost string, logger *slog.Logger) *Store {
	return &Store{root: root, streams: streams, serviceHost: serviceHost, logger: logger}
}

// Dir returns the deterministic directory for item:
// recordings/<year>/<month>/<compactUTC>__<source>_<id>.
func (s *Store) Dir(item client.Item) string {
	recordedAt := item.RecordedAt.UTC()
	name := fmt.Sprintf("%s__%s_%s",
		recordedAt.Format(compactTimeLayout), item.Source, sanitizeID(item.ID))
	return filepath.Join(s.root, RecordingsDirName,
		fmt.Sprintf("%04d", recordedAt.Year()),
		fmt.Sprintf("%02d", int(recordedAt.Month())),
		name)
}

// DedupeKey derives the stable, namespaced dedupe key for an item.
// Identical source+id always yields the same key.
func DedupeKey(item client.Item) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("recsync://"+item.Source+"/"+item.ID)).String()
}

// WriteMetadata writes meta.json for item atomically.
func (s *Store) WriteMetadata(item client.Item) error {
	meta := Metadata{
		ID:               item.ID,
		Source:           item.Source,
		DedupeKey:        DedupeKey(item),
		Title:            item.Title,
		RecordedAt:       item.RecordedAt.UTC(),
		UpdatedAt:        item.UpdatedAt.UTC(),
		DurationSeconds:  item.Duration,
		HasTranscript:    item.HasTranscript,
		TranscriptStatus: item.TranscriptStatus,
		ImportedAt:       time.Now().UTC(),
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return &storage.StorageError{Op: "write", Path: s.Dir(item), Err: err}
	}
	data = append(data, '\n')

	return storage.WriteFileAtomic(filepath.Join(s.Dir(item), MetadataName), data)
}

// ReadMetadata loads meta.json from an item directory.
func ReadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataName))
	if err != nil {
		return nil, &storage.StorageError{Op: "read", Path: dir, Err: err}
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, &storage.StorageError{Op: "read", Path: dir, Err: storage.ErrStorageCorrupt}
	}
	return &meta, nil
}

// WriteTranscript writes the requested renditions of tr into the item's
// directory, each atomically.
func (s *Store) WriteTranscript(item client.Item, tr *client.Transcript, formats []Format) error {
	dir := s.Dir(item)
	for _, format := range formats {
		content, err := Render(item, tr, format)
		if err != nil {
			return err
		}
		if err := storage.WriteFileAtomic(filepath.Join(dir, "transcript."+string(format)), content); err != nil {
			return err
		}
	}
	return nil
}

// ReadTranscript loads the structured transcript.json rendition from an
// item directory, or storage.ErrNotFound if the item has none.
func ReadTranscript(dir string) (*client.Transcript, error) {
	data, err := os.ReadFile(filepath.Join(dir, "transcript."+string(FormatJSON)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &storage.StorageError{Op: "read", Path: dir, Err: storage.ErrNotFound}
		}
		return nil, &storage.StorageError{Op: "read", Path: dir, Err: err}
	}
	var tr client.Transcript
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, &storage.StorageError{Op: "read", Path: dir, Err: storage.ErrStorageCorrupt}
	}
	return &tr, nil
}

// WriteAudio streams the item's audio from downloadURL through the atomic
// writer, guessing the extension from the stream's MIME type. Returns the
// written filename.
func (s *Store) WriteAudio(ctx context.Context, item client.Item, downloadURL string) (string, error) {
	var (
		stream io.ReadCloser
		err    error
	)
	if s.isServiceURL(downloadURL) {
		stream, err = s.streams.GetStream(ctx, downloadURL)
	} else {
		stream, err = s.streams.DownloadExternalURL(ctx, downloadURL)
	}
	if err != nil {
		return "", err
	}
	defer stream.Close()

	name := "audio." + extensionFor(stream, downloadURL)
	path := filepath.Join(s.Dir(item), name)

	n, err := storage.WriteStreamAtomic(path, stream)
	if err != nil {
		return "", err
	}
	s.logger.Debug("audio written", "id", item.ID, "file", name, "bytes", n)
	return name, nil
}

// WriteChecksums recomputes the item directory's checksum manifest.
func (s *Store) WriteChecksums(item client.Item) error {
	return storage.WriteManifest(s.Dir(item), item.ID)
}

// ItemDirs returns every item directory under root's recordings tree,
// sorted lexically (which is also chronological, given the layout).
func ItemDirs(root string) ([]string, error) {
	pattern := filepath.Join(root, RecordingsDirName, "*", "*", "*")
	dirs, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	out := dirs[:0]
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		out = append(out, dir)
	}
	return out, nil
}

// isServiceURL reports whether rawURL points at the remote service itself
// (as opposed to a pre-signed third-party storage link).
func (s *Store) isServiceURL(rawURL string) bool {
	if s.serviceHost == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, s.serviceHost)
}

// extensionFor picks a file extension from the stream's Content-Type,
// falling back to the URL path, then to the M4A default.
func extensionFor(stream any, rawURL string) string {
	if ct, ok := stream.(client.ContentTyper); ok {
		if ext, found := audioExtensions[strings.ToLower(ct.ContentType())]; found {
			return ext
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if ext := strings.TrimPrefix(filepath.Ext(u.Path), "."); ext != "" && len(ext) <= 4 {
			return strings.ToLower(ext)
		}
	}
	return defaultAudioExtension
}

// sanitizeID removes path-hostile characters from remote identifiers.
func sanitizeID(id string) string {
	replacements := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", " "}
	result := id
	for _, char := range replacements {
		result = strings.ReplaceAll(result, char, "_")
	}
	return result
}
