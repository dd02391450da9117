package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"painscope/internal/config"
	"painscope/internal/fault"
	"painscope/internal/model"
)

// commentScanPosts bounds how many stored posts get their comment trees
// walked per run, to stay inside the provider's rate limits.
const commentScanPosts = 10

// IngestParams is the recognized configuration of one ingest run. Unknown
// fields are rejected at the boundary before a params value is built.
type IngestParams struct {
	Community       string
	SortMode        model.SortMode
	Keywords        []string
	Limit           int
	TimeWindow      model.TimeWindow
	IncludeComments bool
	CommentsPerPost int
	MinCommentScore int
}

func (p IngestParams) validate() error {
	if p.Community == "" {
		return fmt.Errorf("ingest: community is required")
	}
	if _, err := model.ParseSortMode(string(p.SortMode)); err != nil {
		return err
	}
	if p.TimeWindow != "" {
		if _, err := model.ParseTimeWindow(string(p.TimeWindow)); err != nil {
			return err
		}
	}
	return nil
}

func (p IngestParams) asMap() map[string]any {
	m := map[string]any{
		"community": p.Community,
		"sort_mode": string(p.SortMode),
		"limit":     p.Limit,
	}
	if len(p.Keywords) > 0 {
		m["keywords"] = p.Keywords
	}
	if p.TimeWindow != "" {
		m["time_window"] = string(p.TimeWindow)
	}
	if p.IncludeComments {
		m["include_comments"] = true
		m["comments_per_post"] = p.CommentsPerPost
		m["min_comment_score"] = p.MinCommentScore
	}
	return m
}

// runIngest fetches posts (and optionally complaint comments) from the
// source and persists them. Duplicates are counted, not errored; listing
// fetch failures abort the run.
func (s *Scheduler) runIngest(ctx context.Context, job *model.Job, params IngestParams) error {
	posts, err := s.source.FetchPosts(ctx, params.Community, params.SortMode, params.Keywords, params.Limit, params.TimeWindow)
	if err != nil {
		return err
	}

	var firstErr error
	for _, item := range posts {
		select {
		case <-ctx.Done():
			return fmt.Errorf("cancelled: %w", ctx.Err())
		default:
		}
		job.ItemsSeen++
		item := item
		inserted, err := s.store.InsertRawItem(ctx, &item)
		if err != nil {
			job.ItemsFailed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !inserted {
			job.ItemsSkippedDuplicate++
		}
	}

	if params.IncludeComments {
		scanned := 0
		for _, post := range posts {
			if scanned >= commentScanPosts {
				break
			}
			select {
			case <-ctx.Done():
				return fmt.Errorf("cancelled: %w", ctx.Err())
			default:
			}
			scanned++
			comments, err := s.source.FetchComments(ctx, post.SourceID, params.CommentsPerPost, params.MinCommentScore)
			if err != nil {
				if fault.IsAuth(err) {
					return err
				}
				slog.Error("ingest: comment fetch failed", "post", post.SourceID, "error", err)
				job.ItemsFailed++
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			for _, cm := range comments {
				select {
				case <-ctx.Done():
					return fmt.Errorf("cancelled: %w", ctx.Err())
				default:
				}
				job.ItemsSeen++
				cm := cm
				inserted, err := s.store.InsertRawItem(ctx, &cm)
				if err != nil {
					job.ItemsFailed++
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if !inserted {
					job.ItemsSkippedDuplicate++
				}
			}
		}
	}
	return firstErr
}

// IngestWorker walks the watchlist on a fixed cadence, triggering one ingest
// job per community. A community whose job type is already running is
// skipped until the next tick.
type IngestWorker struct {
	Sched     *Scheduler
	Watchlist *config.Watchlist
	Interval  time.Duration
}

func (w *IngestWorker) Start(ctx context.Context) error {
	if w.Interval <= 0 {
		w.Interval = 24 * time.Hour
	}

	// initial run
	w.runOnce(ctx)

	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.runOnce(ctx)
		}
	}
}

func (w *IngestWorker) runOnce(ctx context.Context) {
	if w.Watchlist == nil {
		return
	}
	for _, c := range w.Watchlist.Communities {
		select {
		case <-ctx.Done():
			return
		default:
		}
		sort, err := model.ParseSortMode(c.SortMode)
		if err != nil {
			slog.Error("ingest-worker: bad watchlist entry", "community", c.Name, "error", err)
			continue
		}
		window, err := model.ParseTimeWindow(c.TimeWindow)
		if err != nil {
			slog.Error("ingest-worker: bad watchlist entry", "community", c.Name, "error", err)
			continue
		}
		job, err := w.Sched.IngestWait(IngestParams{
			Community:       c.Name,
			SortMode:        sort,
			Keywords:        c.Keywords,
			Limit:           c.Limit,
			TimeWindow:      window,
			IncludeComments: c.IncludeComments,
			CommentsPerPost: c.CommentsPerPost,
			MinCommentScore: c.MinCommentScore,
		})
		if err == fault.ErrJobRunning {
			slog.Info("ingest-worker: an ingest is already running, skipping community", "community", c.Name)
			continue
		}
		if err != nil {
			slog.Error("ingest-worker: trigger failed", "community", c.Name, "error", err)
			continue
		}
		slog.Info("ingest-worker: run complete", "community", c.Name, "job", job.ID, "status", job.Status)
	}
}
