package cmd

import (
	"fmt"

	"painscope/internal/model"

	"github.com/spf13/cobra"
)

var extractLimit int

// extractCmd runs one extraction pass over admitted items and exits.
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract pain points from admitted items and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		initLogging(cfg.App.LogLevel)

		sched, cleanup, err := buildScheduler(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		job, err := sched.ExtractionWait(extractLimit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %d %s: seen=%d extracted=%d duplicates=%d failed=%d\n",
			job.ID, job.Status, job.ItemsSeen, job.PainPointsExtracted, job.ItemsSkippedDuplicate, job.ItemsFailed)
		if job.Status == model.JobFailed {
			return fmt.Errorf("extraction failed: %s", job.ErrorDetail)
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().IntVar(&extractLimit, "limit", 50, "maximum admitted items to extract")
	rootCmd.AddCommand(extractCmd)
}
