package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"recsync/jobs"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [id]",
	Short: "Show past sync runs",
	Long: `Jobs lists the persisted run snapshots for the output root, newest
first. With an id argument it prints that run's full snapshot as JSON.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := jobs.NewStore(cfg.OutputDir)

		if len(args) == 1 {
			job, err := store.Get(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(job)
		}

		list, err := store.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No runs recorded.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tSTATUS\tSTARTED\tSUCCEEDED\tFAILED")
		for _, job := range list {
			succeeded, failed := "-", "-"
			if job.Result != nil {
				succeeded = fmt.Sprintf("%d", job.Result.Succeeded)
				failed = fmt.Sprintf("%d", job.Result.Failed)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				job.ID, job.Kind, job.Status,
				job.StartedAt.Local().Format(time.DateTime),
				succeeded, failed)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}
