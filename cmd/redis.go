package cmd

import "github.com/spf13/cobra"

// redisCmd groups commands for the Redis side store, which holds the
// community-metadata cache and the classifier's daily quota counter.
var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Inspect the Redis side store",
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
