package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"painscope/internal/ai"
	"painscope/internal/fault"
	"painscope/internal/model"
)

// runExtraction turns admitted items into pain points under a hard
// concurrency cap. Validation failures skip the single item without failing
// the batch; transient failures leave the item unchecked and fail the job at
// the end so the next pass retries it.
func (s *Scheduler) runExtraction(ctx context.Context, job *model.Job, limit int) error {
	if s.extractor == nil {
		return fmt.Errorf("extraction: no extractor configured")
	}
	items, err := s.store.AdmittedUnextracted(ctx, s.opts.SentimentThreshold, limit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		slog.Info("extraction: nothing to extract")
		return nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		firstErr error
		fatal    bool
	)
	sem := make(chan struct{}, s.opts.ExtractConcurrency)

	record := func(err error, isFatal bool) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
		if isFatal {
			fatal = true
		}
	}
	stopped := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fatal
	}

	for _, item := range items {
		select {
		case <-ctx.Done():
			wg.Wait()
			return fmt.Errorf("cancelled: %w", ctx.Err())
		case sem <- struct{}{}:
		}
		if stopped() {
			<-sem
			break
		}
		wg.Add(1)
		go func(item model.RawItem) {
			defer wg.Done()
			defer func() { <-sem }()
			s.extractOne(ctx, job, &mu, item, record)
		}(item)
	}
	wg.Wait()
	return firstErr
}

// extractOne processes a single raw item end to end. Counter mutations are
// serialized through mu because workers run concurrently.
func (s *Scheduler) extractOne(ctx context.Context, job *model.Job, mu *sync.Mutex, item model.RawItem, record func(error, bool)) {
	// Idempotence: an existing pain point for this raw item makes the call a
	// no-op; never invoke the paid model twice for the same item.
	existing, err := s.store.PainPointByRawItem(ctx, item.ID)
	if err != nil {
		mu.Lock()
		job.ItemsFailed++
		mu.Unlock()
		record(err, false)
		return
	}
	if existing != nil {
		if err := s.store.MarkExtracted(ctx, item.ID); err != nil {
			record(err, false)
			return
		}
		mu.Lock()
		job.ItemsSeen++
		job.ItemsSkippedDuplicate++
		mu.Unlock()
		return
	}

	ex, err := s.extractor.Extract(ctx, item.Content)
	if err != nil {
		mu.Lock()
		job.ItemsFailed++
		mu.Unlock()
		if fault.IsAuth(err) {
			record(err, true)
			return
		}
		if fault.IsValidation(err) {
			// Malformed model output: skip and log, leave the item
			// unchecked for a later pass; not a batch failure.
			slog.Warn("extraction: unparseable model output", "item", item.ID, "error", err)
			return
		}
		record(err, false)
		return
	}

	mu.Lock()
	job.ItemsSeen++
	mu.Unlock()

	if !ex.Found {
		if err := s.store.MarkExtracted(ctx, item.ID); err != nil {
			record(err, false)
		}
		return
	}

	point := buildPainPoint(ex, item)
	created, _, err := s.store.InsertPainPoint(ctx, &point)
	if err != nil {
		mu.Lock()
		job.ItemsFailed++
		mu.Unlock()
		record(err, false)
		return
	}
	if err := s.store.MarkExtracted(ctx, item.ID); err != nil {
		record(err, false)
		return
	}
	mu.Lock()
	if created {
		job.PainPointsExtracted++
	} else {
		job.ItemsSkippedDuplicate++
	}
	mu.Unlock()
}

// buildPainPoint repairs the model output into a valid record: the
// opportunity score is clamped into [0,100], an unknown category becomes
// "other" with the original value kept in tags for traceability, and an
// unknown severity is normalized to medium.
func buildPainPoint(ex ai.Extraction, item model.RawItem) model.PainPoint {
	tags := make([]string, 0, len(ex.Tags)+1)
	for _, t := range ex.Tags {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}

	category := strings.ToLower(strings.TrimSpace(ex.Category))
	if !model.ValidCategory(category) {
		if category != "" {
			tags = append(tags, category)
		}
		category = string(model.CategoryOther)
	}

	severity := strings.ToLower(strings.TrimSpace(ex.Severity))
	if !model.ValidSeverity(severity) {
		severity = string(model.SeverityMedium)
	}

	score := ex.OpportunityScore
	if score <= 0 {
		score = heuristicOpportunity(model.Severity(severity), item)
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	return model.PainPoint{
		RawItemID:        item.ID,
		ProblemStatement: strings.TrimSpace(ex.ProblemStatement),
		Category:         model.Category(category),
		Severity:         model.Severity(severity),
		OpportunityScore: score,
		Tags:             tags,
		Context:          strings.TrimSpace(ex.Context),
		CreatedAt:        time.Now().UTC(),
	}
}

// heuristicOpportunity estimates a score when the model omits one: a base of
// 50 plus a severity bonus, a social-proof bonus from the provider's own vote
// count, and an engagement bonus from the comment count, capped at 100.
func heuristicOpportunity(sev model.Severity, item model.RawItem) int {
	score := 50
	switch sev {
	case model.SeverityCritical:
		score += 30
	case model.SeverityHigh:
		score += 20
	case model.SeverityMedium:
		score += 10
	case model.SeverityLow:
		score += 5
	}
	proof := item.UpstreamScore / 10
	if proof > 15 {
		proof = 15
	}
	if proof > 0 {
		score += proof
	}
	engagement := metadataInt(item.SourceMetadata, "num_comments") / 5
	if engagement > 10 {
		engagement = 10
	}
	if engagement > 0 {
		score += engagement
	}
	if score > 100 {
		score = 100
	}
	return score
}

// metadataInt reads an integer-valued metadata field. Values arrive as int
// when set in-process and as float64 after a JSON round-trip through the
// store, so both are accepted.
func metadataInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// ExtractWorker runs the extraction pass on a fixed cadence, offset from the
// sentiment pass so freshly admitted items are picked up the same hour.
type ExtractWorker struct {
	Sched    *Scheduler
	Interval time.Duration
	Offset   time.Duration
	Batch    int
}

func (w *ExtractWorker) Start(ctx context.Context) error {
	if w.Interval <= 0 {
		w.Interval = time.Hour
	}
	if w.Offset > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.Offset):
		}
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

func (w *ExtractWorker) runOnce() {
	job, err := w.Sched.ExtractionWait(w.Batch)
	if err == fault.ErrJobRunning {
		slog.Info("extract-worker: pass already running, skipping tick")
		return
	}
	if err != nil {
		slog.Error("extract-worker: trigger failed", "error", err)
		return
	}
	slog.Info("extract-worker: run complete", "job", job.ID, "status", job.Status, "extracted", job.PainPointsExtracted)
}
