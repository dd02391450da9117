package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WatchedCommunity is one community the scheduled ingest walks.
type WatchedCommunity struct {
	Name            string   `yaml:"name"`
	SortMode        string   `yaml:"sort_mode"`
	TimeWindow      string   `yaml:"time_window"`
	Keywords        []string `yaml:"keywords"`
	Limit           int      `yaml:"limit"`
	IncludeComments bool     `yaml:"include_comments"`
	CommentsPerPost int      `yaml:"comments_per_post"`
	MinCommentScore int      `yaml:"min_comment_score"`
}

// Watchlist is the set of communities monitored by the daily ingest run.
type Watchlist struct {
	Communities []WatchedCommunity `yaml:"communities"`
}

// LoadWatchlist reads and validates the watchlist YAML file.
func LoadWatchlist(path string) (*Watchlist, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	var wl Watchlist
	if err := yaml.Unmarshal(b, &wl); err != nil {
		return nil, fmt.Errorf("parse watchlist: %w", err)
	}
	for i := range wl.Communities {
		c := &wl.Communities[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, fmt.Errorf("watchlist entry %d: missing community name", i)
		}
		if c.SortMode == "" {
			c.SortMode = "hot"
		}
		if c.Limit <= 0 {
			c.Limit = 50
		}
		if c.CommentsPerPost <= 0 {
			c.CommentsPerPost = 100
		}
		if c.MinCommentScore == 0 {
			c.MinCommentScore = 1
		}
	}
	return &wl, nil
}
