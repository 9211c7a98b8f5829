// Package tracker keeps the persistent per-item sync state that makes
// recsync incremental: it decides which remote items need (re)downloading
// by comparing a content fingerprint of each item's volatile fields
// against the state recorded after the last successful processing.
//
// The state lives in a single JSON file per output root
// (_state/sync_state.json). It is loaded once at the start of a run and
// persisted exactly once at the end; on-disk recording content is durable
// independently of it, so a crash mid-run only costs re-checking work.
package tracker

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"recsync/client"
	"recsync/storage"
)

const (
	stateSchemaVersion = "1"

	// StateDirName is the directory under the output root holding
	// recsync's own bookkeeping files.
	StateDirName = "_state"

	stateFileName = "sync_state.json"
)

// RecordingState is the tracked state of one remote item.
type RecordingState struct {
	RecordedAt  time.Time `json:"recorded_at"`
	ContentHash string    `json:"content_hash"`
	// DownloadedAt is set only after a full item-processing attempt
	// completes; audio/transcript fetch failures are recorded in the
	// Has* flags instead of failing the attempt as a unit.
	DownloadedAt  *time.Time `json:"downloaded_at,omitempty"`
	HasAudio      bool       `json:"has_audio"`
	HasTranscript bool       `json:"has_transcript"`
	// Verified implies a prior successful checksum pass.
	Verified   bool       `json:"verified"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// syncState is the persisted top-level structure.
type syncState struct {
	Version              string                     `json:"version"`
	LastSuccessfulSyncAt *time.Time                 `json:"last_successful_sync_at,omitempty"`
	LastAttemptAt        *time.Time                 `json:"last_attempt_at,omitempty"`
	Recordings           map[string]*RecordingState `json:"recordings"`
}

// Tracker owns the in-memory sync state for one output root.
// Methods are safe for concurrent use by item-processing tasks; no two
// tasks ever touch the same key, so a single mutex suffices.
type Tracker struct {
	root   string
	logger *slog.Logger

	mu    sync.Mutex
	state *syncState
}

// StatePath returns the sync state file location for an output root.
func StatePath(root string) string {
	return filepath.Join(root, StateDirName, stateFileName)
}

// Load hydrates the tracker from the persisted state file. A missing file
// or a schema-validation failure yields an empty state: logged at warning
// level, never fatal.
func Load(root string, logger *slog.Logger) *Tracker {
	t := &Tracker{
		root:   root,
		logger: logger,
		state: &syncState{
			Version:    stateSchemaVersion,
			Recordings: make(map[string]*RecordingState),
		},
	}

	path := StatePath(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("sync state unreadable, starting fresh", "path", path, "error", err)
		}
		return t
	}

	var loaded syncState
	if err := json.Unmarshal(data, &loaded); err != nil {
		logger.Warn("sync state corrupt, starting fresh", "path", path, "error", err)
		return t
	}
	if loaded.Version != stateSchemaVersion {
		logger.Warn("sync state schema mismatch, starting fresh",
			"path", path, "got", loaded.Version, "want", stateSchemaVersion)
		return t
	}
	if loaded.Recordings == nil {
		loaded.Recordings = make(map[string]*RecordingState)
	}

	t.state = &loaded
	return t
}

// ContentHash returns the deterministic fingerprint of an item's volatile
// fields. The subset — id, updatedAt, hasTranscript, transcriptStatus,
// duration, title — covers every remote-side change that would alter the
// locally stored artifact; fields with no artifact impact are excluded so
// they never force a re-download.
func ContentHash(item client.Item) string {
	h := sha256.New()
	for i, field := range []string{
		item.ID,
		item.UpdatedAt.UTC().Format(time.RFC3339),
		strconv.FormatBool(item.HasTranscript),
		item.TranscriptStatus,
		strconv.Itoa(item.Duration),
		item.Title,
	} {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NeedsDownload reports whether item requires (re)processing: no prior
// state, a changed content fingerprint, a transcript newly available
// remotely, or no completed download recorded yet.
func (t *Tracker) NeedsDownload(item client.Item) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.state.Recordings[item.ID]
	if !ok {
		return true
	}
	if state.ContentHash != ContentHash(item) {
		return true
	}
	if item.HasTranscript && !state.HasTranscript {
		return true
	}
	return state.DownloadedAt == nil
}

// State returns a copy of the tracked state for id, if any.
func (t *Tracker) State(id string) (RecordingState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.state.Recordings[id]
	if !ok {
		return RecordingState{}, false
	}
	return *state, true
}

// Completion describes the outcome of one full item-processing attempt.
type Completion struct {
	HasAudio      bool
	HasTranscript bool
	ContentHash   string
}

// MarkComplete overwrites the per-item state after a processing attempt.
// Verification flags reset: the new file set has not been checksummed-
// verified yet.
func (t *Tracker) MarkComplete(id string, recordedAt time.Time, c Completion) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	t.state.Recordings[id] = &RecordingState{
		RecordedAt:    recordedAt,
		ContentHash:   c.ContentHash,
		DownloadedAt:  &now,
		HasAudio:      c.HasAudio,
		HasTranscript: c.HasTranscript,
	}
}

// MarkVerified records the outcome of a checksum pass for id. Unknown ids
// are ignored: verification of untracked directories is reported by the
// orchestrator, not tracked here.
func (t *Tracker) MarkVerified(id string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, exists := t.state.Recordings[id]
	if !exists {
		return
	}
	state.Verified = ok
	if ok {
		now := time.Now().UTC()
		state.VerifiedAt = &now
	} else {
		state.VerifiedAt = nil
	}
}

// MarkSuccessfulSync advances the incremental lower bound. Callers invoke
// this only after a pass with zero item failures.
func (t *Tracker) MarkSuccessfulSync() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	t.state.LastSuccessfulSyncAt = &now
}

// Since returns the default lower bound for the next incremental pass:
// the last zero-failure sync time, or zero when none is recorded.
func (t *Tracker) Since() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state.LastSuccessfulSyncAt == nil {
		return time.Time{}
	}
	return *t.state.LastSuccessfulSyncAt
}

// Len returns the number of tracked recordings.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.state.Recordings)
}

// Persist writes the whole state file atomically, stamping LastAttemptAt.
// Called exactly once at the end of a run.
func (t *Tracker) Persist() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now().UTC()
	t.state.LastAttemptAt = &now

	data, err := json.MarshalIndent(t.state, "", "  ")
	if err != nil {
		return &storage.StorageError{Op: "write", Path: StatePath(t.root), Err: err}
	}
	data = append(data, '\n')

	return storage.WriteFileAtomic(StatePath(t.root), data)
}
