package cmd

import (
	"context"
	"fmt"
	"time"

	"painscope/internal/redisclient"

	"github.com/spf13/cobra"
)

// pingCmd checks that the side store is reachable before the pipeline
// starts depending on it.
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to the Redis side store",
	Long:  "Sends a PING to the configured Redis server and prints the reply. The side store backs the community-metadata cache and the sentiment pass's daily request quota, so a failing ping means those degrade to uncached reads and an unenforced quota.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		rdb := redisclient.New(cfg.Redis)
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		res, err := rdb.Ping(ctx).Result()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	redisCmd.AddCommand(pingCmd)
}
