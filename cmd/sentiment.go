package cmd

import (
	"fmt"

	"painscope/internal/model"

	"github.com/spf13/cobra"
)

var sentimentLimit int

// sentimentCmd runs one sentiment pass over unchecked items and exits.
var sentimentCmd = &cobra.Command{
	Use:   "sentiment",
	Short: "Classify unchecked items through the sentiment gate and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		initLogging(cfg.App.LogLevel)

		sched, cleanup, err := buildScheduler(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		job, err := sched.SentimentWait(sentimentLimit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %d %s: seen=%d admitted=%d failed=%d\n",
			job.ID, job.Status, job.ItemsSeen, job.ItemsAdmitted, job.ItemsFailed)
		if job.Status == model.JobFailed {
			return fmt.Errorf("sentiment pass failed: %s", job.ErrorDetail)
		}
		return nil
	},
}

func init() {
	sentimentCmd.Flags().IntVar(&sentimentLimit, "limit", 100, "maximum items to classify")
	rootCmd.AddCommand(sentimentCmd)
}
