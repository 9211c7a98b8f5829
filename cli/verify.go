package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"recsync/storage"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Re-hash every stored recording against its checksum manifest",
	Long: `Verify walks the local tree, recomputes SHA-256 digests for every file
in each recording directory, and compares them with the stored manifest.
Corrupt items are flagged in the tracker so a later sync can re-fetch
them. Nothing is modified or deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := newSyncer()
		if err != nil {
			return err
		}

		result, err := s.Verify(cmd.Context(), cfg.OutputDir)
		if err != nil {
			if isStorageError(err) {
				return &exitError{code: exitStorage, err: err}
			}
			return err
		}

		fmt.Printf("Checked %d item(s): %d verified, %d corrupt in %s\n",
			result.Items, result.Verified, result.Corrupt, result.Duration.Round(time.Millisecond))
		for dir, mismatches := range result.Mismatches {
			for _, m := range mismatches {
				if m.Actual == storage.MissingFile {
					fmt.Fprintf(os.Stderr, "  %s/%s: missing\n", dir, m.File)
					continue
				}
				fmt.Fprintf(os.Stderr, "  %s/%s: expected %s, got %s\n",
					dir, m.File, short(m.Expected), short(m.Actual))
			}
		}

		if result.Corrupt > 0 {
			return &exitError{code: exitPartial,
				err: fmt.Errorf("%d of %d items failed verification", result.Corrupt, result.Items)}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

// short truncates a digest for terminal output.
func short(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
