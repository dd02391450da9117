package cmd

import (
	"painscope/internal/ai"
	"painscope/internal/config"
	"painscope/internal/reddit"
	"painscope/internal/redisclient"
	"painscope/internal/sentiment"
	"painscope/internal/storage"
	"painscope/worker"
)

// buildScheduler wires the full pipeline for one-shot commands. The returned
// cleanup closes the redis connection.
func buildScheduler(cfg config.Config) (*worker.Scheduler, func(), error) {
	store, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}

	rdb := redisclient.New(cfg.Redis)
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
	cleanup := func() { _ = rdb.Close() }
	return sched, cleanup, nil
}
