package worker

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"painscope/internal/config"
	"painscope/internal/model"
	"painscope/internal/reddit"
)

func newIngestScheduler(t *testing.T, handler http.HandlerFunc) (*Scheduler, *httptest.Server) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token":"tok","token_type":"bearer","expires_in":3600}`)
	})
	mux.HandleFunc("/", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	source := reddit.NewClient(reddit.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/api/v1/access_token",
	})
	store := newTestStore(t)
	return NewScheduler(store, nil, source, nil, nil, Options{}), srv
}

func TestIngestRunStoresAndDeduplicates(t *testing.T) {
	listing := `{"kind":"Listing","data":{"after":"","children":[
		{"kind":"t3","data":{"id":"p1","title":"the sync is broken","author":"u1","permalink":"/r/x/p1","subreddit":"x","score":10,"created_utc":1700000000}},
		{"kind":"t3","data":{"id":"p2","title":"another broken thing","author":"u2","permalink":"/r/x/p2","subreddit":"x","score":3,"created_utc":1700000100}}
	]}}`
	s, _ := newIngestScheduler(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listing)
	})

	params := IngestParams{Community: "x", SortMode: model.SortHot, Limit: 10}
	job, err := s.IngestWait(params)
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobSucceeded {
		t.Fatalf("status = %s, detail = %s", job.Status, job.ErrorDetail)
	}
	if job.ItemsSeen != 2 || job.ItemsSkippedDuplicate != 0 {
		t.Errorf("seen=%d dup=%d, want 2/0", job.ItemsSeen, job.ItemsSkippedDuplicate)
	}

	// A second run over the same listing is a clean no-op: every item is a
	// duplicate, the run still succeeds.
	job2, err := s.IngestWait(params)
	if err != nil {
		t.Fatal(err)
	}
	if job2.Status != model.JobSucceeded {
		t.Fatalf("second run status = %s", job2.Status)
	}
	if job2.ItemsSeen != 2 || job2.ItemsSkippedDuplicate != 2 {
		t.Errorf("second run seen=%d dup=%d, want 2/2", job2.ItemsSeen, job2.ItemsSkippedDuplicate)
	}

	got, err := s.store.RawItemBySourceID(context.Background(), model.SourceRedditPost, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Community != "x" || got.UpstreamScore != 10 {
		t.Errorf("stored item = %+v", got)
	}
}

func TestIngestPreservesScrapeOrder(t *testing.T) {
	// Provider order for a hot listing is not creation order: the first post
	// is the newest. The sentiment queue must follow the order items were
	// scraped in, not when their content was written.
	listing := `{"kind":"Listing","data":{"after":"","children":[
		{"kind":"t3","data":{"id":"newest","title":"a","created_utc":1700009999}},
		{"kind":"t3","data":{"id":"oldest","title":"b","created_utc":1700000000}},
		{"kind":"t3","data":{"id":"middle","title":"c","created_utc":1700005000}}
	]}}`
	s, _ := newIngestScheduler(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listing)
	})

	job, err := s.IngestWait(IngestParams{Community: "x", SortMode: model.SortHot, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobSucceeded {
		t.Fatalf("status = %s", job.Status)
	}

	queued, err := s.store.UncheckedSentiment(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 3 {
		t.Fatalf("got %d queued items", len(queued))
	}
	for i, want := range []string{"newest", "oldest", "middle"} {
		if queued[i].SourceID != want {
			t.Fatalf("queue position %d = %s, want %s", i, queued[i].SourceID, want)
		}
	}
}

func TestIngestRunFailsWhenListingUnavailable(t *testing.T) {
	s, _ := newIngestScheduler(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	job, err := s.IngestWait(IngestParams{Community: "nope", SortMode: model.SortHot, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobFailed {
		t.Fatalf("status = %s, want FAILED", job.Status)
	}
	if job.ErrorDetail == "" {
		t.Error("no error detail recorded")
	}
}

func TestIngestWorkerWalksPastRunningCommunity(t *testing.T) {
	// An ingest job already holds the single-flight slot; the watchlist walk
	// must still visit every community instead of abandoning the tick.
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	s, _ := newIngestScheduler(t, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(entered) })
		<-release
		fmt.Fprint(w, `{"kind":"Listing","data":{"after":"","children":[]}}`)
	})

	if _, err := s.TriggerIngest(IngestParams{Community: "held", SortMode: model.SortHot, Limit: 5}); err != nil {
		t.Fatal(err)
	}
	<-entered

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))

	w := &IngestWorker{Sched: s, Watchlist: &config.Watchlist{Communities: []config.WatchedCommunity{
		{Name: "alpha", SortMode: "hot", Limit: 5},
		{Name: "beta", SortMode: "hot", Limit: 5},
	}}}
	w.runOnce(context.Background())

	slog.SetDefault(prev)
	close(release)
	s.Wait()

	logs := buf.String()
	for _, name := range []string{"alpha", "beta"} {
		if !strings.Contains(logs, "community="+name) {
			t.Errorf("walk never reached community %s:\n%s", name, logs)
		}
	}
}

func TestIngestParamsValidate(t *testing.T) {
	good := IngestParams{Community: "x", SortMode: model.SortHot}
	if err := good.validate(); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
	if err := (IngestParams{SortMode: model.SortHot}).validate(); err == nil {
		t.Error("missing community accepted")
	}
	if err := (IngestParams{Community: "x", SortMode: "trending"}).validate(); err == nil {
		t.Error("bad sort mode accepted")
	}
	if err := (IngestParams{Community: "x", SortMode: model.SortTop, TimeWindow: "fortnight"}).validate(); err == nil {
		t.Error("bad time window accepted")
	}
}
