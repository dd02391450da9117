package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"painscope/internal/fault"
	"painscope/internal/model"
	"painscope/internal/sentiment"
)

// runSentiment classifies a bounded batch of unchecked items in scrape
// order. A single item's failure is isolated: its sentiment_checked flag
// stays false for the next pass. If any item failed, the job ends FAILED
// with the first failure as detail; processed items keep their verdicts.
func (s *Scheduler) runSentiment(ctx context.Context, job *model.Job, limit int) error {
	if s.classifier == nil {
		return fmt.Errorf("sentiment: no classifier configured")
	}
	items, err := s.store.UncheckedSentiment(ctx, limit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		slog.Info("sentiment: nothing to classify")
		return nil
	}

	var firstErr error
	for _, item := range items {
		select {
		case <-ctx.Done():
			return fmt.Errorf("cancelled: %w", ctx.Err())
		default:
		}

		if s.side != nil && s.opts.SentimentDailyQuota > 0 {
			ok, err := s.side.ReserveClassification(ctx, s.opts.SentimentDailyQuota)
			if err != nil {
				return fault.Transient(fmt.Errorf("sentiment: quota check: %w", err))
			}
			if !ok {
				if firstErr == nil {
					firstErr = fault.Transientf("sentiment: daily classifier quota of %d exhausted", s.opts.SentimentDailyQuota)
				}
				break
			}
		}

		res, err := s.classifier.Classify(ctx, item.Content)
		if err != nil {
			if fault.IsAuth(err) {
				return err
			}
			slog.Error("sentiment: classify failed", "item", item.ID, "error", err)
			job.ItemsFailed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		job.ItemsSeen++
		if err := s.store.MarkSentiment(ctx, item.ID, res.Label, res.Confidence); err != nil {
			job.ItemsFailed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if sentiment.Admitted(res, s.opts.SentimentThreshold) {
			job.ItemsAdmitted++
		}
	}
	slog.Info("sentiment: pass complete", "seen", job.ItemsSeen, "admitted", job.ItemsAdmitted, "failed", job.ItemsFailed)
	return firstErr
}

// SentimentWorker runs the gate on a fixed cadence.
type SentimentWorker struct {
	Sched    *Scheduler
	Interval time.Duration
	Batch    int
}

func (w *SentimentWorker) Start(ctx context.Context) error {
	if w.Interval <= 0 {
		w.Interval = time.Hour
	}

	w.runOnce()

	t := time.NewTicker(w.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.runOnce()
		}
	}
}

func (w *SentimentWorker) runOnce() {
	job, err := w.Sched.SentimentWait(w.Batch)
	if err == fault.ErrJobRunning {
		slog.Info("sentiment-worker: pass already running, skipping tick")
		return
	}
	if err != nil {
		slog.Error("sentiment-worker: trigger failed", "error", err)
		return
	}
	slog.Info("sentiment-worker: run complete", "job", job.ID, "status", job.Status)
}
