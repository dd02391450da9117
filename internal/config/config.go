package config

// AppConfig holds application-level settings.
type AppConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RedditConfig controls the Reddit source adapter.
type RedditConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	UserAgent    string `mapstructure:"user_agent"`
	BaseURL      string `mapstructure:"base_url"`  // OAuth API host
	TokenURL     string `mapstructure:"token_url"` // access-token endpoint
}

// SentimentConfig controls the Cloudflare Workers AI classifier.
type SentimentConfig struct {
	AccountID  string  `mapstructure:"account_id"`
	APIToken   string  `mapstructure:"api_token"`
	Model      string  `mapstructure:"model"`
	BaseURL    string  `mapstructure:"base_url"`
	Threshold  float64 `mapstructure:"threshold"`   // negative-confidence cutoff, inclusive
	DailyQuota int     `mapstructure:"daily_quota"` // classifier request ceiling per UTC day; 0 disables
}

// OpenAIConfig controls the extraction model.
type OpenAIConfig struct {
	APIKey      string `mapstructure:"api_key"`
	Model       string `mapstructure:"model"`
	BaseURL     string `mapstructure:"base_url"`
	Concurrency int    `mapstructure:"concurrency"` // hard cap on in-flight extraction calls
}

// PipelineConfig controls scheduled runs.
type PipelineConfig struct {
	WatchlistPath     string `mapstructure:"watchlist_path"`
	IngestInterval    string `mapstructure:"ingest_interval"`    // duration string, e.g. "24h"
	SentimentInterval string `mapstructure:"sentiment_interval"` // e.g. "1h"
	ExtractInterval   string `mapstructure:"extract_interval"`   // e.g. "1h"
	ExtractOffset     string `mapstructure:"extract_offset"`     // initial delay so the pass trails sentiment
	SentimentBatch    int    `mapstructure:"sentiment_batch"`
	ExtractBatch      int    `mapstructure:"extract_batch"`
}

// Config is the top-level configuration structure.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Reddit    RedditConfig    `mapstructure:"reddit"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
}

// FillDefaults applies default values if not provided.
func (c *Config) FillDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "host=localhost user=postgres password=postgres dbname=painscope port=5432 sslmode=disable"
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}
	if c.Reddit.BaseURL == "" {
		c.Reddit.BaseURL = "https://oauth.reddit.com"
	}
	if c.Reddit.TokenURL == "" {
		c.Reddit.TokenURL = "https://www.reddit.com/api/v1/access_token"
	}
	if c.Reddit.UserAgent == "" {
		c.Reddit.UserAgent = "painscope/1.0"
	}
	if c.Sentiment.Model == "" {
		c.Sentiment.Model = "@cf/huggingface/distilbert-sst-2-int8"
	}
	if c.Sentiment.BaseURL == "" {
		c.Sentiment.BaseURL = "https://api.cloudflare.com"
	}
	if c.Sentiment.Threshold == 0 {
		c.Sentiment.Threshold = 0.5
	}
	if c.OpenAI.Concurrency <= 0 {
		c.OpenAI.Concurrency = 2
	}
	if c.Pipeline.WatchlistPath == "" {
		c.Pipeline.WatchlistPath = "watchlist.yaml"
	}
	if c.Pipeline.IngestInterval == "" {
		c.Pipeline.IngestInterval = "24h"
	}
	if c.Pipeline.SentimentInterval == "" {
		c.Pipeline.SentimentInterval = "1h"
	}
	if c.Pipeline.ExtractInterval == "" {
		c.Pipeline.ExtractInterval = "1h"
	}
	if c.Pipeline.ExtractOffset == "" {
		c.Pipeline.ExtractOffset = "30m"
	}
	if c.Pipeline.SentimentBatch <= 0 {
		c.Pipeline.SentimentBatch = 100
	}
	if c.Pipeline.ExtractBatch <= 0 {
		c.Pipeline.ExtractBatch = 50
	}
}
