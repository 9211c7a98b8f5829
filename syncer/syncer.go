// Package syncer composes the tracker, queue, retry policy, recording
// store, and dataset exporter into the sync, backfill, and verify
// operations, and owns the run's success/failure bookkeeping.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"recsync/client"
	"recsync/dataset"
	"recsync/queue"
	"recsync/recording"
	"recsync/retry"
	"recsync/storage"
	"recsync/tracker"
)

// DefaultConcurrency is the in-flight item bound when none is configured.
const DefaultConcurrency = 3

const lockTimeout = 5 * time.Second

// Options configures one sync or backfill pass.
type Options struct {
	// Root is the output directory.
	Root string
	// Since overrides the incremental lower bound. Zero means "use the
	// tracker's last successful sync time".
	Since time.Time
	// Limit caps the number of candidate items considered. Zero = no cap.
	Limit int
	// Concurrency bounds in-flight item tasks. Zero = DefaultConcurrency.
	Concurrency int
	// Backfill processes every candidate regardless of tracker state.
	Backfill bool
	// DryRun reports the candidate set without performing any writes.
	DryRun bool
	// Formats is the transcript rendition subset. Nil = all renditions.
	Formats []recording.Format
	// DatasetName enables dataset appends when non-empty.
	DatasetName string
	// Retry is the per-item retry policy. Zero value = retry defaults.
	Retry retry.Config
}

// ItemError records one failed item.
type ItemError struct {
	ID  string
	Err error
}

// Result is the aggregate outcome of a pass.
type Result struct {
	Attempted   int           `json:"attempted"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Duration    time.Duration `json:"duration"`
	Errors      []ItemError   `json:"errors,omitempty"`
	DatasetPath string        `json:"dataset_path,omitempty"`
	// Candidates carries the would-be work set on dry runs.
	Candidates []client.Item `json:"-"`
}

// Syncer orchestrates sync passes against one remote service.
type Syncer struct {
	client      client.RecordingClient
	streams     client.StreamClient
	serviceHost string
	logger      *slog.Logger
}

// New creates a Syncer. serviceHost distinguishes service audio URLs from
// pre-signed third-party links (see recording.NewStore).
func New(rc client.RecordingClient, sc client.StreamClient, serviceHost string, logger *slog.Logger) *Syncer {
	return &Syncer{client: rc, streams: sc, serviceHost: serviceHost, logger: logger}
}

// Sync runs one pass: Init → ListCandidates → (DryRunReport | Process) →
// Finalize. Authentication failures abort the pass and propagate; the
// caller may re-authenticate externally and invoke Sync again, once.
func (s *Syncer) Sync(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()

	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Formats == nil {
		opts.Formats = recording.DefaultFormats
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}

	// Init: fail fast when unauthenticated. Not retried.
	ok, err := s.client.IsAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, client.ErrNotAuthenticated
	}

	unlock, err := lockRoot(opts.Root)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tr := tracker.Load(opts.Root, s.logger)

	since := opts.Since
	if since.IsZero() && !opts.Backfill {
		since = tr.Since()
	}

	items, err := s.client.ListRecordings(ctx, client.ListOptions{Since: since, Limit: opts.Limit})
	if err != nil {
		return nil, err
	}

	var candidates []client.Item
	skipped := 0
	if opts.Backfill {
		candidates = items
	} else {
		for _, item := range items {
			if tr.NeedsDownload(item) {
				candidates = append(candidates, item)
			} else {
				skipped++
			}
		}
	}

	s.logger.Info("candidates listed",
		"total", len(items), "needs_work", len(candidates), "skipped", skipped,
		"backfill", opts.Backfill, "dry_run", opts.DryRun)

	if opts.DryRun {
		return &Result{
			Skipped:    skipped,
			Duration:   time.Since(start),
			Candidates: candidates,
		}, nil
	}

	var exporter *dataset.Exporter
	var datasetPath string
	if opts.DatasetName != "" {
		exporter, err = dataset.Open(opts.Root, opts.DatasetName)
		if err != nil {
			return nil, err
		}
		datasetPath = exporter.FilePath()
		// Dataset entries point at the plain-text rendition, so the sink
		// forces it into the written format set.
		opts.Formats = withTextRendition(opts.Formats)
	}

	store := recording.NewStore(opts.Root, s.streams, s.serviceHost, s.logger)

	// An auth failure mid-run cancels sibling work; the run as a whole
	// fails and propagates the auth error below.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	process := func(ctx context.Context, item client.Item) error {
		err := retry.Do(ctx, opts.Retry, client.IsRetryable, func(ctx context.Context) error {
			return s.processItem(ctx, store, tr, exporter, item, opts.Formats)
		})
		if err != nil && client.IsAuthError(err) {
			cancel()
		}
		return err
	}

	succeeded, failed := queue.Run(runCtx, candidates, opts.Concurrency, process)

	result := &Result{
		Attempted:   len(candidates),
		Succeeded:   len(succeeded),
		Failed:      len(failed),
		Skipped:     skipped,
		DatasetPath: datasetPath,
	}

	var authErr error
	for _, f := range failed {
		result.Errors = append(result.Errors, ItemError{ID: f.Item.ID, Err: f.Err})
		s.logger.Error("item failed", "id", f.Item.ID, "error", f.Err)
		if authErr == nil && client.IsAuthError(f.Err) {
			authErr = f.Err
		}
	}

	// Finalize: the sync timestamp advances only on a zero-failure pass,
	// and the tracker persists exactly once regardless of outcome.
	if len(failed) == 0 {
		tr.MarkSuccessfulSync()
	}
	if err := tr.Persist(); err != nil {
		s.logger.Error("failed to persist sync state", "error", err)
		if authErr == nil {
			authErr = err
		}
	}
	if exporter != nil {
		if err := exporter.Close(); err != nil {
			s.logger.Error("failed to close dataset", "error", err)
		}
	}

	result.Duration = time.Since(start)
	s.logger.Info("pass finished",
		"attempted", result.Attempted, "succeeded", result.Succeeded,
		"failed", result.Failed, "skipped", result.Skipped,
		"duration", result.Duration)

	if authErr != nil {
		return result, authErr
	}
	return result, nil
}

// processItem performs one full item attempt: metadata → transcript →
// audio → checksums → dataset append → tracker update, in that order.
// Checksum writing depends on the full file set existing first, and the
// tracker update comes last so every earlier failure leaves the item
// eligible for the next pass.
func (s *Syncer) processItem(ctx context.Context, store *recording.Store, tr *tracker.Tracker, exporter *dataset.Exporter, item client.Item, formats []recording.Format) error {
	if err := store.WriteMetadata(item); err != nil {
		return err
	}

	var transcript *client.Transcript
	if item.HasTranscript {
		t, err := s.client.GetTranscript(ctx, item.ID)
		switch {
		case err == nil:
			if err := store.WriteTranscript(item, t, formats); err != nil {
				return err
			}
			transcript = t
		case errors.Is(err, client.ErrNotFound):
			// The service advertised a transcript it cannot produce.
			// Recorded as "no transcript" rather than failing the item.
			s.logger.Warn("advertised transcript not found", "id", item.ID)
		default:
			return err
		}
	}

	hasAudio := false
	audioURL, err := s.client.GetAudioDownloadURL(ctx, item.ID)
	if err != nil {
		return err
	}
	if audioURL != "" {
		if _, err := store.WriteAudio(ctx, item, audioURL); err != nil {
			if client.IsAuthError(err) {
				return err
			}
			// Audio is recorded independently in the has_audio flag;
			// a failed fetch does not lose the transcript work.
			s.logger.Warn("audio download failed", "id", item.ID, "error", err)
		} else {
			hasAudio = true
		}
	}

	if err := store.WriteChecksums(item); err != nil {
		return err
	}

	// The dataset append precedes the tracker update: a failed item must
	// never carry completed state, or the next incremental pass would
	// skip it with its dataset line permanently missing.
	if exporter != nil && transcript != nil {
		if err := exporter.Append(item, transcript, store.Dir(item)); err != nil {
			return err
		}
	}

	tr.MarkComplete(item.ID, item.RecordedAt, tracker.Completion{
		HasAudio:      hasAudio,
		HasTranscript: transcript != nil,
		ContentHash:   tracker.ContentHash(item),
	})

	s.logger.Debug("item processed", "id", item.ID,
		"transcript", transcript != nil, "audio", hasAudio)
	return nil
}

// VerifyResult is the aggregate outcome of a verification walk.
type VerifyResult struct {
	Items    int
	Verified int
	Corrupt  int
	// Mismatches maps root-relative item directories to their divergent
	// files.
	Mismatches map[string][]storage.Mismatch
	Duration   time.Duration
}

// Verify re-hashes every on-disk item against its checksum manifest and
// records the outcome in the tracker. It never mutates recording files;
// repair is a re-fetch decision left to the caller.
func (s *Syncer) Verify(ctx context.Context, root string) (*VerifyResult, error) {
	start := time.Now()

	unlock, err := lockRoot(root)
	if err != nil {
		return nil, err
	}
	defer unlock()

	dirs, err := recording.ItemDirs(root)
	if err != nil {
		return nil, &storage.StorageError{Op: "read", Path: root, Err: err}
	}

	tr := tracker.Load(root, s.logger)
	result := &VerifyResult{Mismatches: make(map[string][]storage.Mismatch)}

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Items++

		mismatches, err := storage.VerifyManifest(dir)
		if err != nil {
			return nil, err
		}

		rel, relErr := filepath.Rel(root, dir)
		if relErr != nil {
			rel = dir
		}

		id := ""
		if meta, err := recording.ReadMetadata(dir); err == nil {
			id = meta.ID
		}

		if len(mismatches) == 0 {
			result.Verified++
			if id != "" {
				tr.MarkVerified(id, true)
			}
			continue
		}

		result.Corrupt++
		result.Mismatches[rel] = mismatches
		if id != "" {
			tr.MarkVerified(id, false)
		}
		for _, m := range mismatches {
			s.logger.Warn("checksum mismatch",
				"dir", rel, "file", m.File, "expected", m.Expected, "actual", m.Actual)
		}
	}

	if err := tr.Persist(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

// withTextRendition returns formats extended with the plain-text
// rendition if it is not already requested.
func withTextRendition(formats []recording.Format) []recording.Format {
	for _, f := range formats {
		if f == recording.FormatText {
			return formats
		}
	}
	return append(formats[:len(formats):len(formats)], recording.FormatText)
}

// lockRoot takes the output root's advisory run lock, enforcing the
// single-writer discipline.
func lockRoot(root string) (func(), error) {
	stateDir := filepath.Join(root, tracker.StateDirName)
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, &storage.StorageError{Op: "lock", Path: stateDir, Err: err}
	}
	lock := storage.NewFileLock(filepath.Join(stateDir, "run"))
	if err := lock.Lock(lockTimeout); err != nil {
		return nil, fmt.Errorf("another recsync process holds %s: %w", root, err)
	}
	return func() { _ = lock.Unlock() }, nil
}
