package cmd

import (
	"fmt"

	"painscope/internal/model"
	"painscope/worker"

	"github.com/spf13/cobra"
)

var scrapeFlags struct {
	community       string
	sortMode        string
	keywords        []string
	limit           int
	timeWindow      string
	includeComments bool
	commentsPerPost int
	minCommentScore int
}

// scrapeCmd runs one ingest job for a single community and waits for it.
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Ingest posts from one community and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		initLogging(cfg.App.LogLevel)

		sort, err := model.ParseSortMode(scrapeFlags.sortMode)
		if err != nil {
			return err
		}
		window, err := model.ParseTimeWindow(scrapeFlags.timeWindow)
		if err != nil {
			return err
		}

		sched, cleanup, err := buildScheduler(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		job, err := sched.IngestWait(worker.IngestParams{
			Community:       scrapeFlags.community,
			SortMode:        sort,
			Keywords:        scrapeFlags.keywords,
			Limit:           scrapeFlags.limit,
			TimeWindow:      window,
			IncludeComments: scrapeFlags.includeComments,
			CommentsPerPost: scrapeFlags.commentsPerPost,
			MinCommentScore: scrapeFlags.minCommentScore,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %d %s: seen=%d duplicates=%d failed=%d\n",
			job.ID, job.Status, job.ItemsSeen, job.ItemsSkippedDuplicate, job.ItemsFailed)
		if job.Status == model.JobFailed {
			return fmt.Errorf("ingest failed: %s", job.ErrorDetail)
		}
		return nil
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeFlags.community, "community", "", "community name, e.g. r/selfhosted without the prefix")
	scrapeCmd.Flags().StringVar(&scrapeFlags.sortMode, "sort", "hot", "listing sort: hot, new, top, rising, controversial")
	scrapeCmd.Flags().StringSliceVar(&scrapeFlags.keywords, "keyword", nil, "keep only posts matching any keyword (repeatable)")
	scrapeCmd.Flags().IntVar(&scrapeFlags.limit, "limit", 50, "maximum posts to fetch")
	scrapeCmd.Flags().StringVar(&scrapeFlags.timeWindow, "window", "", "time window for top/controversial: hour, day, week, month, year, all")
	scrapeCmd.Flags().BoolVar(&scrapeFlags.includeComments, "comments", false, "also scan comment trees for complaints")
	scrapeCmd.Flags().IntVar(&scrapeFlags.commentsPerPost, "comments-per-post", 100, "maximum comments stored per post")
	scrapeCmd.Flags().IntVar(&scrapeFlags.minCommentScore, "min-comment-score", 1, "minimum comment score to keep")
	_ = scrapeCmd.MarkFlagRequired("community")
	rootCmd.AddCommand(scrapeCmd)
}
