package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"recsync/client"
	"recsync/jobs"
	"recsync/recording"
	"recsync/retry"
	"recsync/storage"
	"recsync/syncer"
)

var (
	syncSince       string
	syncLimit       int
	syncConcurrency int
	syncFormats     string
	syncDataset     string
	syncNoDataset   bool
	syncDryRun      bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Incrementally mirror changed or missing recordings",
	Long: `Sync lists remote recordings, filters to those changed or missing since
the last successful pass, and downloads metadata, transcripts, and audio
with checksums. The sync timestamp only advances on a zero-failure pass,
so failed items are retried on the next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(cmd.Context(), "sync", false)
	},
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-process every remote recording regardless of tracker state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass(cmd.Context(), "backfill", true)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{syncCmd, backfillCmd} {
		cmd.Flags().StringVar(&syncSince, "since", "", "lower time bound (RFC3339 or YYYY-MM-DD)")
		cmd.Flags().IntVar(&syncLimit, "limit", 0, "max items to consider (0 = all)")
		cmd.Flags().IntVar(&syncConcurrency, "concurrency", 0, "concurrent downloads (default from config)")
		cmd.Flags().StringVar(&syncFormats, "formats", "", "transcript renditions, e.g. json,txt,md")
		cmd.Flags().StringVar(&syncDataset, "dataset", "", "dataset name (default from config)")
		cmd.Flags().BoolVar(&syncNoDataset, "no-dataset", false, "skip the dataset export sink")
		cmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "report candidates without writing")
	}
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(backfillCmd)
}

func runPass(ctx context.Context, kind string, backfill bool) error {
	opts, err := buildOptions(backfill)
	if err != nil {
		return err
	}

	s, auth, err := newSyncer()
	if err != nil {
		return err
	}

	jobStore := jobs.NewStore(opts.Root)
	var job *jobs.Job
	if !opts.DryRun {
		if job, err = jobStore.Start(kind); err != nil {
			logger.Warn("could not persist job snapshot", "error", err)
		}
	}

	result, err := s.Sync(ctx, opts)
	if err != nil && client.IsAuthError(err) && auth != nil {
		// One re-authentication attempt, then one more pass. The
		// orchestrator itself never retries across passes.
		logger.Warn("authentication failed, re-acquiring credentials", "error", err)
		if authErr := auth.Authenticate(ctx); authErr == nil {
			result, err = s.Sync(ctx, opts)
		}
	}

	if job != nil {
		if err != nil {
			if saveErr := jobStore.Fail(job, result, err); saveErr != nil {
				logger.Warn("could not persist job snapshot", "error", saveErr)
			}
		} else if saveErr := jobStore.Complete(job, result); saveErr != nil {
			logger.Warn("could not persist job snapshot", "error", saveErr)
		}
	}

	if err != nil {
		code := exitPartial
		switch {
		case client.IsAuthError(err):
			code = exitAuth
		case isStorageError(err):
			code = exitStorage
		}
		return &exitError{code: code, err: err}
	}

	printResult(result, opts.DryRun)
	if result.Failed > 0 {
		return &exitError{code: exitPartial, err: fmt.Errorf("%d of %d items failed", result.Failed, result.Attempted)}
	}
	return nil
}

func buildOptions(backfill bool) (syncer.Options, error) {
	opts := syncer.Options{
		Root:        cfg.OutputDir,
		Limit:       syncLimit,
		Concurrency: cfg.Concurrency,
		Backfill:    backfill,
		DryRun:      syncDryRun,
		Retry: retry.Config{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.InitialDelay,
			Multiplier:   2.0,
		},
	}
	if syncConcurrency > 0 {
		opts.Concurrency = syncConcurrency
	}

	if syncSince != "" {
		since, err := parseTimeFlag(syncSince)
		if err != nil {
			return opts, err
		}
		opts.Since = since
	}

	formats, err := recording.ParseFormats(syncFormats)
	if err != nil {
		return opts, err
	}
	opts.Formats = formats

	if !syncNoDataset {
		opts.DatasetName = cfg.Dataset
		if syncDataset != "" {
			opts.DatasetName = syncDataset
		}
	}
	return opts, nil
}

func parseTimeFlag(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or YYYY-MM-DD", s)
}

func isStorageError(err error) bool {
	var storErr *storage.StorageError
	return errors.As(err, &storErr)
}

func printResult(result *syncer.Result, dryRun bool) {
	if dryRun {
		fmt.Printf("Dry run: %d candidate(s), %d skipped\n", len(result.Candidates), result.Skipped)
		if len(result.Candidates) > 0 {
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tRECORDED\tDURATION\tTRANSCRIPT\tTITLE")
			for _, item := range result.Candidates {
				fmt.Fprintf(w, "%s\t%s\t%ds\t%v\t%s\n",
					item.ID, item.RecordedAt.Format("2006-01-02 15:04"),
					item.Duration, item.HasTranscript, item.Title)
			}
			w.Flush()
		}
		return
	}

	fmt.Printf("Attempted %d, succeeded %d, failed %d, skipped %d in %s\n",
		result.Attempted, result.Succeeded, result.Failed, result.Skipped,
		result.Duration.Round(time.Millisecond))
	if result.DatasetPath != "" {
		fmt.Printf("Dataset: %s\n", result.DatasetPath)
	}
	for _, itemErr := range result.Errors {
		fmt.Fprintf(os.Stderr, "  %s: %v\n", itemErr.ID, itemErr.Err)
	}
}
