// Package dataset maintains the append-only JSON-Lines export: one line
// per successfully transcribed recording. Lines are never rewritten in
// place. Re-export walks the on-disk recordings and re-derives entries,
// so repeated exports may produce duplicate lines for previously exported
// items — consumers that need uniqueness must dedupe by id.
package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"recsync/client"
	"recsync/recording"
	"recsync/storage"
)

// DatasetsDirName is the directory under the output root holding exports.
const DatasetsDirName = "datasets"

// Entry is one immutable dataset line.
type Entry struct {
	// ID is the namespaced item id ("<source>_<id>").
	ID              string    `json:"id"`
	Title           string    `json:"title,omitempty"`
	RecordedAt      time.Time `json:"recorded_at"`
	DurationSeconds int       `json:"duration_seconds"`
	Language        string    `json:"language,omitempty"`
	Text            string    `json:"text"`
	// Path is the root-relative path to the canonical plain-text
	// transcript rendition.
	Path         string `json:"path"`
	SegmentCount int    `json:"segment_count"`
}

// Path returns the dataset file location for an output root and name.
func Path(root, name string) string {
	return filepath.Join(root, DatasetsDirName, name+".jsonl")
}

// Exporter is an append-mode JSONL sink. Appends are serialized behind a
// mutex so concurrent item tasks never interleave partial lines.
type Exporter struct {
	root string
	path string

	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

// Open acquires an append-mode handle on the dataset file, creating
// parent directories as needed.
func Open(root, name string) (*Exporter, error) {
	path := Path(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, &storage.StorageError{Op: "write", Path: path, Err: err}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &storage.StorageError{Op: "write", Path: path, Err: err}
	}
	return &Exporter{root: root, path: path, file: file, w: bufio.NewWriter(file)}, nil
}

// FilePath returns the dataset file this exporter appends to.
func (e *Exporter) FilePath() string { return e.path }

// Append serializes one entry as a single JSON line and flushes it before
// returning, so a returned nil means the line is handed to the OS whole.
func (e *Exporter) Append(item client.Item, tr *client.Transcript, itemDir string) error {
	entry, err := e.entryFor(item.Source, item.ID, item.Title, item.RecordedAt, item.Duration, tr, itemDir)
	if err != nil {
		return err
	}
	return e.write(entry)
}

// AppendMetadata appends an entry re-derived from an on-disk item during
// re-export.
func (e *Exporter) AppendMetadata(meta *recording.Metadata, tr *client.Transcript, itemDir string) error {
	entry, err := e.entryFor(meta.Source, meta.ID, meta.Title, meta.RecordedAt, meta.DurationSeconds, tr, itemDir)
	if err != nil {
		return err
	}
	return e.write(entry)
}

func (e *Exporter) entryFor(source, id, title string, recordedAt time.Time, duration int, tr *client.Transcript, itemDir string) (Entry, error) {
	relPath, err := filepath.Rel(e.root, filepath.Join(itemDir, "transcript.txt"))
	if err != nil {
		return Entry{}, &storage.StorageError{Op: "write", Path: e.path, Err: err}
	}
	return Entry{
		ID:              fmt.Sprintf("%s_%s", source, id),
		Title:           title,
		RecordedAt:      recordedAt.UTC(),
		DurationSeconds: duration,
		Language:        tr.Language,
		Text:            tr.Text,
		Path:            filepath.ToSlash(relPath),
		SegmentCount:    len(tr.Segments),
	}, nil
}

func (e *Exporter) write(entry Entry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return &storage.StorageError{Op: "write", Path: e.path, Err: err}
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(line); err != nil {
		return &storage.StorageError{Op: "write", Path: e.path, Err: err}
	}
	if err := e.w.Flush(); err != nil {
		return &storage.StorageError{Op: "write", Path: e.path, Err: err}
	}
	return nil
}

// Close flushes and releases the handle.
func (e *Exporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.w.Flush(); err != nil {
		e.file.Close()
		return &storage.StorageError{Op: "write", Path: e.path, Err: err}
	}
	return e.file.Close()
}

// Export walks every on-disk item under root and appends a re-derived
// entry for each one that has a structured transcript. Items whose
// metadata or transcript fails to parse are skipped with a warning, never
// fatal to the export as a whole. Returns the number of lines appended.
func Export(root, name string, logger *slog.Logger) (int, error) {
	dirs, err := recording.ItemDirs(root)
	if err != nil {
		return 0, &storage.StorageError{Op: "read", Path: root, Err: err}
	}

	exporter, err := Open(root, name)
	if err != nil {
		return 0, err
	}
	defer exporter.Close()

	appended := 0
	for _, dir := range dirs {
		meta, err := recording.ReadMetadata(dir)
		if err != nil {
			logger.Warn("skipping item with unreadable metadata", "dir", dir, "error", err)
			continue
		}
		tr, err := recording.ReadTranscript(dir)
		if err != nil {
			// Untranscribed items are expected; only real parse
			// failures are worth a warning.
			if !errors.Is(err, storage.ErrNotFound) {
				logger.Warn("skipping item with unreadable transcript", "dir", dir, "error", err)
			}
			continue
		}
		if err := exporter.AppendMetadata(meta, tr, dir); err != nil {
			return appended, err
		}
		appended++
	}
	return appended, nil
}
