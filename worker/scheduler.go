// Package worker drives the pipeline stages: it runs scheduled and on-demand
// jobs, tracks per-run state in the store, and enforces single-flight
// execution per job type.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"painscope/internal/ai"
	"painscope/internal/fault"
	"painscope/internal/model"
	"painscope/internal/reddit"
	"painscope/internal/sentiment"
	"painscope/internal/storage"
)

// Worker is a long-running component supervised by the Manager.
type Worker interface {
	Start(ctx context.Context) error
}

// Options tunes the scheduler's runs.
type Options struct {
	SentimentThreshold  float64 // negative-confidence cutoff, inclusive
	SentimentDailyQuota int     // classifier request ceiling per UTC day; 0 disables
	ExtractConcurrency  int     // hard cap on in-flight extraction calls
}

// Scheduler owns job lifecycles. For each job type at most one RUNNING job
// exists at a time; a new trigger while one is RUNNING is rejected with
// fault.ErrJobRunning.
type Scheduler struct {
	store      *storage.Store
	side       *storage.RedisStore
	source     *reddit.Client
	classifier sentiment.Classifier
	extractor  ai.Extractor
	opts       Options

	mu      sync.Mutex
	running map[model.JobType]bool
	base    context.Context
	wg      sync.WaitGroup
}

// NewScheduler wires the pipeline stages together. classifier and extractor
// may be nil when the corresponding stage is not configured; triggering a
// stage without its collaborator fails the job immediately.
func NewScheduler(store *storage.Store, side *storage.RedisStore, source *reddit.Client, classifier sentiment.Classifier, extractor ai.Extractor, opts Options) *Scheduler {
	if opts.SentimentThreshold <= 0 {
		opts.SentimentThreshold = 0.5
	}
	if opts.ExtractConcurrency <= 0 {
		opts.ExtractConcurrency = 2
	}
	return &Scheduler{
		store:      store,
		side:       side,
		source:     source,
		classifier: classifier,
		extractor:  extractor,
		opts:       opts,
		running:    map[model.JobType]bool{},
	}
}

// Start blocks until ctx is cancelled, then drains in-flight jobs. Jobs
// triggered after cancellation observe the cancelled context and stop at
// item granularity.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()
	<-ctx.Done()
	s.wg.Wait()
	return nil
}

func (s *Scheduler) baseCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base != nil {
		return s.base
	}
	return context.Background()
}

// acquire reserves the single-flight slot for a job type.
func (s *Scheduler) acquire(t model.JobType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[t] {
		return false
	}
	s.running[t] = true
	return true
}

func (s *Scheduler) release(t model.JobType) {
	s.mu.Lock()
	delete(s.running, t)
	s.mu.Unlock()
}

// TriggerIngest starts an ingest run. The returned Job is PENDING; progress
// and failure detail are retrievable via its id.
func (s *Scheduler) TriggerIngest(params IngestParams) (*model.Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return s.trigger(model.JobIngest, params.asMap(), s.ingestRunner(params), true)
}

// IngestWait runs an ingest job on the calling goroutine. Used by the ticker
// worker and one-shot commands; the single-flight rule still applies.
func (s *Scheduler) IngestWait(params IngestParams) (*model.Job, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	return s.trigger(model.JobIngest, params.asMap(), s.ingestRunner(params), false)
}

func (s *Scheduler) ingestRunner(params IngestParams) runFunc {
	return func(ctx context.Context, job *model.Job) error {
		return s.runIngest(ctx, job, params)
	}
}

// TriggerSentiment starts a sentiment pass over up to limit unchecked items.
func (s *Scheduler) TriggerSentiment(limit int) (*model.Job, error) {
	return s.triggerSentiment(limit, true)
}

// SentimentWait runs a sentiment pass on the calling goroutine.
func (s *Scheduler) SentimentWait(limit int) (*model.Job, error) {
	return s.triggerSentiment(limit, false)
}

func (s *Scheduler) triggerSentiment(limit int, async bool) (*model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.trigger(model.JobSentiment, map[string]any{"limit": limit}, func(ctx context.Context, job *model.Job) error {
		return s.runSentiment(ctx, job, limit)
	}, async)
}

// TriggerExtraction starts an extraction pass over up to limit admitted items.
func (s *Scheduler) TriggerExtraction(limit int) (*model.Job, error) {
	return s.triggerExtraction(limit, true)
}

// ExtractionWait runs an extraction pass on the calling goroutine.
func (s *Scheduler) ExtractionWait(limit int) (*model.Job, error) {
	return s.triggerExtraction(limit, false)
}

func (s *Scheduler) triggerExtraction(limit int, async bool) (*model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.trigger(model.JobExtraction, map[string]any{"limit": limit}, func(ctx context.Context, job *model.Job) error {
		return s.runExtraction(ctx, job, limit)
	}, async)
}

type runFunc func(context.Context, *model.Job) error

// trigger creates the job row and runs the stage under the scheduler's base
// context, on a goroutine when async. A rejected trigger creates no job row:
// it is not a run.
func (s *Scheduler) trigger(t model.JobType, params map[string]any, run runFunc, async bool) (*model.Job, error) {
	if !s.acquire(t) {
		return nil, fault.ErrJobRunning
	}
	job := &model.Job{
		JobType:    t,
		Parameters: params,
		Status:     model.JobPending,
		StartedAt:  time.Now().UTC(),
	}
	ctx := s.baseCtx()
	if err := s.store.CreateJob(ctx, job); err != nil {
		s.release(t)
		return nil, err
	}
	if !async {
		defer s.release(t)
		s.execute(ctx, job, run)
		return job, nil
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(t)
		s.execute(ctx, job, run)
	}()
	return job, nil
}

// Wait blocks until all in-flight async jobs have finished.
func (s *Scheduler) Wait() { s.wg.Wait() }

// execute drives one job through the state machine. The job row is always
// finalized, including on failure and cancellation paths.
func (s *Scheduler) execute(ctx context.Context, job *model.Job, run func(context.Context, *model.Job) error) {
	job.Status = model.JobRunning
	if err := s.store.SaveJob(ctx, job); err != nil {
		slog.Error("scheduler: mark job running failed", "job", job.ID, "error", err)
	}
	slog.Info("scheduler: job started", "job", job.ID, "type", job.JobType)

	err := run(ctx, job)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("cancelled: %w", ctx.Err())
	}

	// Finalize under a fresh context: the base context may be the reason the
	// run stopped.
	finCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	now := time.Now().UTC()
	job.CompletedAt = &now
	if err != nil {
		job.Status = model.JobFailed
		job.ErrorDetail = err.Error()
	} else {
		job.Status = model.JobSucceeded
	}
	if serr := s.store.SaveJob(finCtx, job); serr != nil {
		slog.Error("scheduler: finalize job failed", "job", job.ID, "error", serr)
	}
	slog.Info("scheduler: job finished",
		"job", job.ID,
		"type", job.JobType,
		"status", job.Status,
		"seen", job.ItemsSeen,
		"duplicates", job.ItemsSkippedDuplicate,
		"failed", job.ItemsFailed,
	)
}
