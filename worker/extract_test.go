package worker

import (
	"context"
	"strings"
	"testing"
	"time"

	"painscope/internal/ai"
	"painscope/internal/fault"
	"painscope/internal/model"
	"painscope/internal/storage"
)

func TestBuildPainPointRepair(t *testing.T) {
	item := model.RawItem{ID: 7, UpstreamScore: 42}

	t.Run("valid output passes through", func(t *testing.T) {
		p := buildPainPoint(ai.Extraction{
			Found:            true,
			ProblemStatement: " Backups fail silently ",
			Category:         "bugs",
			Severity:         "high",
			OpportunityScore: 72,
			Tags:             []string{"backup", " data-loss "},
		}, item)
		if p.ProblemStatement != "Backups fail silently" {
			t.Errorf("statement = %q", p.ProblemStatement)
		}
		if p.Category != model.CategoryBugs || p.Severity != model.SeverityHigh || p.OpportunityScore != 72 {
			t.Errorf("repaired a valid record: %+v", p)
		}
		if len(p.Tags) != 2 || p.Tags[1] != "data-loss" {
			t.Errorf("tags = %v", p.Tags)
		}
	})

	t.Run("unknown category becomes other and is kept as tag", func(t *testing.T) {
		p := buildPainPoint(ai.Extraction{
			Found:            true,
			ProblemStatement: "x",
			Category:         "Onboarding",
			Severity:         "low",
			OpportunityScore: 10,
		}, item)
		if p.Category != model.CategoryOther {
			t.Errorf("category = %s, want other", p.Category)
		}
		found := false
		for _, tag := range p.Tags {
			if tag == "onboarding" {
				found = true
			}
		}
		if !found {
			t.Errorf("original category not preserved in tags: %v", p.Tags)
		}
	})

	t.Run("unknown severity becomes medium", func(t *testing.T) {
		p := buildPainPoint(ai.Extraction{
			Found:            true,
			ProblemStatement: "x",
			Category:         "bugs",
			Severity:         "catastrophic",
			OpportunityScore: 10,
		}, item)
		if p.Severity != model.SeverityMedium {
			t.Errorf("severity = %s, want medium", p.Severity)
		}
	})

	t.Run("score above range is clamped", func(t *testing.T) {
		p := buildPainPoint(ai.Extraction{
			Found:            true,
			ProblemStatement: "x",
			Category:         "bugs",
			Severity:         "low",
			OpportunityScore: 250,
		}, item)
		if p.OpportunityScore != 100 {
			t.Errorf("score = %d, want 100", p.OpportunityScore)
		}
	})

	t.Run("missing score falls back to heuristic", func(t *testing.T) {
		p := buildPainPoint(ai.Extraction{
			Found:            true,
			ProblemStatement: "x",
			Category:         "bugs",
			Severity:         "critical",
		}, item)
		// base 50 + critical 30 + social proof min(42/10, 15) = 84
		if p.OpportunityScore != 84 {
			t.Errorf("score = %d, want 84", p.OpportunityScore)
		}
	})
}

func TestHeuristicOpportunity(t *testing.T) {
	cases := []struct {
		sev      model.Severity
		votes    int
		comments any
		want     int
	}{
		{model.SeverityCritical, 0, nil, 80},
		{model.SeverityHigh, 0, nil, 70},
		{model.SeverityMedium, 0, nil, 60},
		{model.SeverityLow, 0, nil, 55},
		{model.SeverityLow, 100, nil, 65},
		{model.SeverityCritical, 1000, nil, 95},  // social proof capped at 15
		{model.SeverityCritical, 100000, nil, 95},
		{model.SeverityLow, 0, 25, 60},           // engagement 25/5 = 5
		{model.SeverityLow, 0, 200, 65},          // engagement capped at 10
		{model.SeverityLow, 0, float64(25), 60},  // metadata after a DB round-trip
		{model.SeverityCritical, 1000, 200, 100}, // overall cap at 100
	}
	for _, tc := range cases {
		item := model.RawItem{UpstreamScore: tc.votes}
		if tc.comments != nil {
			item.SourceMetadata = map[string]any{"num_comments": tc.comments}
		}
		got := heuristicOpportunity(tc.sev, item)
		if got != tc.want {
			t.Errorf("heuristicOpportunity(%s, %d votes, %v comments) = %d, want %d", tc.sev, tc.votes, tc.comments, got, tc.want)
		}
	}
}

// admit marks an item as a high-confidence negative so extraction picks it up.
func admit(t *testing.T, store *storage.Store, id uint) {
	t.Helper()
	if err := store.MarkSentiment(context.Background(), id, model.SentimentNegative, 0.9); err != nil {
		t.Fatal(err)
	}
}

func TestExtractionRunCreatesPainPoints(t *testing.T) {
	store := newTestStore(t)
	ext := &stubExtractor{extractions: map[string]ai.Extraction{
		"complaint": {
			Found:            true,
			ProblemStatement: "setup takes hours",
			Category:         "usability",
			Severity:         "high",
			OpportunityScore: 65,
			Tags:             []string{"setup"},
		},
		"no pain here": {Found: false},
	}}
	s := NewScheduler(store, nil, nil, nil, ext, Options{ExtractConcurrency: 2})

	a := seedRawItem(t, store, "p1", "complaint")
	b := seedRawItem(t, store, "p2", "no pain here")
	admit(t, store, a.ID)
	admit(t, store, b.ID)

	job, err := s.ExtractionWait(10)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobSucceeded {
		t.Fatalf("status = %s, detail = %s", job.Status, job.ErrorDetail)
	}
	if job.PainPointsExtracted != 1 {
		t.Errorf("extracted = %d, want 1", job.PainPointsExtracted)
	}

	point, err := store.PainPointByRawItem(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if point == nil || point.ProblemStatement != "setup takes hours" {
		t.Errorf("pain point = %+v", point)
	}

	// Both items are done; a found=false verdict still marks the item checked.
	remaining, err := store.AdmittedUnextracted(context.Background(), 0.5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("%d items still queued", len(remaining))
	}

	// A second pass finds nothing and never re-extracts.
	job2, err := s.ExtractionWait(10)
	if err != nil {
		t.Fatal(err)
	}
	if job2.PainPointsExtracted != 0 {
		t.Errorf("second pass extracted %d", job2.PainPointsExtracted)
	}
}

func TestExtractionValidationFailureSkipsItem(t *testing.T) {
	store := newTestStore(t)
	ext := &stubExtractor{
		extractions: map[string]ai.Extraction{
			"good": {Found: true, ProblemStatement: "x", Category: "bugs", Severity: "low", OpportunityScore: 10},
		},
		errs: map[string]error{
			"garbled": fault.Validationf("unparseable model output"),
		},
	}
	s := NewScheduler(store, nil, nil, nil, ext, Options{ExtractConcurrency: 1})

	a := seedRawItem(t, store, "p1", "good")
	b := seedRawItem(t, store, "p2", "garbled")
	admit(t, store, a.ID)
	admit(t, store, b.ID)

	job, err := s.ExtractionWait(10)
	if err != nil {
		t.Fatal(err)
	}
	// Malformed output is not a batch failure.
	if job.Status != model.JobSucceeded {
		t.Fatalf("status = %s, detail = %s", job.Status, job.ErrorDetail)
	}
	if job.PainPointsExtracted != 1 {
		t.Errorf("extracted = %d, want 1", job.PainPointsExtracted)
	}

	// The garbled item stays queued for a later pass.
	remaining, err := store.AdmittedUnextracted(context.Background(), 0.5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 || remaining[0].ID != b.ID {
		t.Errorf("remaining = %+v", remaining)
	}
}

func TestExtractionTransientFailureFailsRun(t *testing.T) {
	store := newTestStore(t)
	ext := &stubExtractor{
		errs: map[string]error{
			"flaky": fault.Transientf("model timeout"),
		},
	}
	s := NewScheduler(store, nil, nil, nil, ext, Options{ExtractConcurrency: 1})

	a := seedRawItem(t, store, "p1", "flaky")
	admit(t, store, a.ID)

	job, err := s.ExtractionWait(10)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobFailed {
		t.Fatalf("status = %s, want FAILED", job.Status)
	}
	if !strings.Contains(job.ErrorDetail, "model timeout") {
		t.Errorf("error detail = %q", job.ErrorDetail)
	}

	// The item was not marked, so the next pass retries it.
	remaining, err := store.AdmittedUnextracted(context.Background(), 0.5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 {
		t.Errorf("remaining = %+v", remaining)
	}
}

func TestExtractionSkipsExistingPainPoint(t *testing.T) {
	store := newTestStore(t)
	ext := &stubExtractor{extractions: map[string]ai.Extraction{}}
	s := NewScheduler(store, nil, nil, nil, ext, Options{ExtractConcurrency: 1})

	a := seedRawItem(t, store, "p1", "already handled")
	admit(t, store, a.ID)
	prior := model.PainPoint{
		RawItemID:        a.ID,
		ProblemStatement: "from an earlier run",
		Category:         model.CategoryOther,
		Severity:         model.SeverityLow,
		OpportunityScore: 20,
		CreatedAt:        time.Now().UTC(),
	}
	if _, _, err := store.InsertPainPoint(context.Background(), &prior); err != nil {
		t.Fatal(err)
	}

	job, err := s.ExtractionWait(10)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobSucceeded {
		t.Fatalf("status = %s", job.Status)
	}
	if job.ItemsSkippedDuplicate != 1 || job.PainPointsExtracted != 0 {
		t.Errorf("duplicates=%d extracted=%d", job.ItemsSkippedDuplicate, job.PainPointsExtracted)
	}

	point, err := store.PainPointByRawItem(context.Background(), a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if point.ProblemStatement != "from an earlier run" {
		t.Errorf("existing pain point was replaced: %+v", point)
	}
}
