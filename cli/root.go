// Package cli provides the command-line interface for recsync.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"recsync/client"
	"recsync/config"
	"recsync/syncer"
)

// Version is set at build time.
var Version = "0.1.0"

// Process exit codes. Partial failure is distinct from auth and storage
// failures so schedulers can tell "retry next run" from "fix credentials".
const (
	exitOK      = 0
	exitPartial = 1
	exitAuth    = 2
	exitStorage = 3
)

var (
	// Global flags
	cfgPath   string
	outputDir string
	verbose   bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "recsync",
	Short: "Mirror a remote recording service into a local dataset",
	Long: `recsync mirrors a remote collection of recordings and transcripts into
a local, content-addressed, append-safe directory tree. Runs are
incremental: unchanged items are never re-fetched, and partially-written
output is never left behind on crash or network failure.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if outputDir != "" {
			cfg.OutputDir = outputDir
		}

		level := config.ParseLogLevel(cfg.LogLevel)
		if verbose {
			level = slog.LevelDebug
		}
		logger = config.SetupLogger(cfg.LogFile, level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.config/recsync/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "output directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// Execute runs the command tree and returns the process exit code.
// Interrupt and termination signals cancel the command context so
// in-flight downloads abort and locks release cleanly.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return codeForError(err)
	}
	return exitOK
}

// exitError carries an explicit exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func codeForError(err error) int {
	if ee, ok := err.(*exitError); ok {
		return ee.code
	}
	if client.IsAuthError(err) {
		return exitAuth
	}
	return exitPartial
}

// newSyncer wires the REST adapter, stream client, and orchestrator from
// the loaded config. The returned Authenticator is the explicit optional
// re-auth capability; it is never nil here because the REST adapter
// supports token reloads, but callers must treat it as optional.
func newSyncer() (*syncer.Syncer, client.Authenticator, error) {
	if cfg.APIBaseURL == "" {
		return nil, nil, fmt.Errorf("api_base_url is not configured (set RECSYNC_API_BASE_URL or the config file)")
	}
	api := client.NewAPI(client.APIConfig{
		BaseURL:   cfg.APIBaseURL,
		TokenFile: cfg.TokenFile,
		Source:    cfg.Source,
	}, logger)

	host := ""
	if u, err := url.Parse(cfg.APIBaseURL); err == nil {
		host = u.Host
	}

	return syncer.New(api, client.NewStream(api), host, logger), api, nil
}
