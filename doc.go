// Package recsync mirrors a remote voice-recording service into a
// local, content-addressed, append-safe directory tree.
//
// Overview
//
// recsync is built from small composable packages; the root package
// only re-exports the error surface. A sync pass lists remote
// recordings, filters them against a persisted change tracker, and
// downloads each changed item's metadata, transcript renditions, and
// audio with a per-item checksum manifest. Transcripts additionally
// flow into a JSONL dataset for downstream consumers.
//
// Quick Start
//
// Run an incremental pass against a configured service:
//
//	api := client.NewAPI(client.APIConfig{
//		BaseURL:   "https://recorder.example.com",
//		TokenFile: tokenPath,
//		Source:    "recorder",
//	}, logger)
//	s := syncer.New(api, client.NewStream(api), "recorder.example.com", logger)
//	result, err := s.Sync(ctx, syncer.Options{Root: outputDir})
//
// Verify stored items against their checksum manifests:
//
//	report, err := s.Verify(ctx, outputDir)
//
// Configuration
//
// The recsync command loads settings from three sources, highest
// priority first:
//
//   1. RECSYNC_* environment variables
//   2. Config file (~/.config/recsync/config.yaml)
//   3. Built-in defaults
//
// Error Handling
//
// All operations return errors that support the standard patterns:
//
//	if errors.Is(err, recsync.ErrNotFound) {
//		// item or file absent
//	}
//
//	var storErr *recsync.StorageError
//	if errors.As(err, &storErr) {
//		fmt.Printf("%s on %s failed: %v\n", storErr.Op, storErr.Path, storErr.Err)
//	}
//
// Sub-packages
//
//   - client: remote service adapter and transfer streams
//   - syncer: the sync, backfill, and verify orchestrator
//   - tracker: persisted incremental sync state
//   - recording: on-disk item layout and transcript renditions
//   - dataset: JSONL export sink
//   - storage: atomic writes, checksums, and file locking
//   - retry: bounded retry with geometric backoff
//
package recsync
