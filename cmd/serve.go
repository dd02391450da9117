package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"painscope/internal/ai"
	"painscope/internal/api"
	"painscope/internal/config"
	"painscope/internal/reddit"
	"painscope/internal/redisclient"
	"painscope/internal/sentiment"
	"painscope/internal/storage"
	"painscope/worker"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and scheduled pipeline workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		initLogging(cfg.App.LogLevel)

		store, err := storage.Open(cfg.Database.DSN)
		if err != nil {
			return err
		}

		rdb := redisclient.New(cfg.Redis)
		defer rdb.Close()
		side := storage.NewRedisStore(rdb)

		source := reddit.NewClient(reddit.Config{
			ClientID:     cfg.Reddit.ClientID,
			ClientSecret: cfg.Reddit.ClientSecret,
			UserAgent:    cfg.Reddit.UserAgent,
			BaseURL:      cfg.Reddit.BaseURL,
			TokenURL:     cfg.Reddit.TokenURL,
		})

		var classifier sentiment.Classifier
		if cfg.Sentiment.APIToken != "" {
			classifier = sentiment.NewCloudflare(sentiment.Config{
				AccountID: cfg.Sentiment.AccountID,
				APIToken:  cfg.Sentiment.APIToken,
				Model:     cfg.Sentiment.Model,
				BaseURL:   cfg.Sentiment.BaseURL,
			})
		}

		var extractor ai.Extractor
		if cfg.OpenAI.APIKey != "" {
			extractor = ai.NewOpenAI(ai.Config{
				APIKey:  cfg.OpenAI.APIKey,
				Model:   cfg.OpenAI.Model,
				BaseURL: cfg.OpenAI.BaseURL,
			})
		}

		sched := worker.NewScheduler(store, side, source, classifier, extractor, worker.Options{
			SentimentThreshold:  cfg.Sentiment.Threshold,
			SentimentDailyQuota: cfg.Sentiment.DailyQuota,
			ExtractConcurrency:  cfg.OpenAI.Concurrency,
		})

		ingestInterval, err := time.ParseDuration(cfg.Pipeline.IngestInterval)
		if err != nil {
			return err
		}
		sentimentInterval, err := time.ParseDuration(cfg.Pipeline.SentimentInterval)
		if err != nil {
			return err
		}
		extractInterval, err := time.ParseDuration(cfg.Pipeline.ExtractInterval)
		if err != nil {
			return err
		}
		extractOffset, err := time.ParseDuration(cfg.Pipeline.ExtractOffset)
		if err != nil {
			return err
		}

		watchlist, err := config.LoadWatchlist(cfg.Pipeline.WatchlistPath)
		if err != nil {
			slog.Warn("serve: no watchlist loaded, scheduled ingest disabled", "path", cfg.Pipeline.WatchlistPath, "error", err)
		}

		ws := []worker.Worker{sched}
		if watchlist != nil && len(watchlist.Communities) > 0 {
			slog.Info("serve: scheduling ingest", "communities", len(watchlist.Communities), "interval", ingestInterval)
			ws = append(ws, &worker.IngestWorker{
				Sched:     sched,
				Watchlist: watchlist,
				Interval:  ingestInterval,
			})
		}
		if classifier != nil {
			ws = append(ws, &worker.SentimentWorker{
				Sched:    sched,
				Interval: sentimentInterval,
				Batch:    cfg.Pipeline.SentimentBatch,
			})
		}
		if extractor != nil {
			ws = append(ws, &worker.ExtractWorker{
				Sched:    sched,
				Interval: extractInterval,
				Offset:   extractOffset,
				Batch:    cfg.Pipeline.ExtractBatch,
			})
		}
		ws = append(ws, &api.Server{
			Addr:    cfg.Server.Addr,
			Handler: api.NewHandler(store, side, sched, source),
		})

		mgr := worker.NewManager(ws...)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Signal handling for systemd
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			s := <-sigc
			log.Printf("received signal: %s, shutting down", s)
			cancel()
		}()

		if err := mgr.Start(ctx); err != nil {
			return err
		}
		return nil
	},
}

func initLogging(level string) {
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(level)); err != nil {
		lv = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})))
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
