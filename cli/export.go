package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"recsync/dataset"
)

var exportDataset string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Regenerate a JSONL dataset from the local tree",
	Long: `Export walks every stored recording and rebuilds the dataset file from
scratch, one JSON object per transcript. Use it after manual cleanup or
to produce a dataset under a different name without re-syncing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name := cfg.Dataset
		if exportDataset != "" {
			name = exportDataset
		}
		if name == "" {
			return fmt.Errorf("no dataset name: set --dataset or the config file")
		}

		count, err := dataset.Export(cfg.OutputDir, name, logger)
		if err != nil {
			if isStorageError(err) {
				return &exitError{code: exitStorage, err: err}
			}
			return err
		}

		fmt.Printf("Wrote %d entries to %s\n", count, dataset.Path(cfg.OutputDir, name))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDataset, "dataset", "", "dataset name (default from config)")
	rootCmd.AddCommand(exportCmd)
}
