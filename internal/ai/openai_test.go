package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"painscope/internal/fault"
)

// newTestExtractor points the client at a stub chat-completions endpoint that
// always replies with content.
func newTestExtractor(t *testing.T, content string) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return NewOpenAI(Config{APIKey: "test", Model: "gpt-4o-mini", BaseURL: srv.URL})
}

func TestExtractParsesStructuredReply(t *testing.T) {
	c := newTestExtractor(t, `{"found":true,"problem_statement":"Backups fail silently","category":"bugs","severity":"high","opportunity_score":72,"tags":["backup","data-loss"],"context":"restores fail after upgrade"}`)

	ex, err := c.Extract(context.Background(), "my backups keep failing")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !ex.Found {
		t.Fatal("Found = false, want true")
	}
	if ex.ProblemStatement != "Backups fail silently" || ex.Category != "bugs" || ex.OpportunityScore != 72 {
		t.Errorf("bad extraction: %+v", ex)
	}
}

func TestExtractNoPainPoint(t *testing.T) {
	c := newTestExtractor(t, `{"found": false}`)
	ex, err := c.Extract(context.Background(), "I love this product")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if ex.Found {
		t.Error("Found = true, want false")
	}
}

func TestExtractUpstreamFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer srv.Close()
	c := NewOpenAI(Config{APIKey: "test", Model: "gpt-4o-mini", BaseURL: srv.URL})

	_, err := c.Extract(context.Background(), "anything")
	if !fault.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestParseExtraction(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
		found   bool
	}{
		{
			name:  "plain json",
			raw:   `{"found":true,"problem_statement":"x","category":"other","severity":"low"}`,
			found: true,
		},
		{
			name:  "json fenced",
			raw:   "```json\n{\"found\":true,\"problem_statement\":\"x\"}\n```",
			found: true,
		},
		{
			name:  "bare fence",
			raw:   "```\n{\"found\":false}\n```",
			found: false,
		},
		{
			name:    "prose instead of json",
			raw:     "The user seems frustrated about pricing.",
			wantErr: true,
		},
		{
			name:    "found without statement",
			raw:     `{"found":true,"problem_statement":"  "}`,
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ex, err := parseExtraction(tc.raw)
			if tc.wantErr {
				if !fault.IsValidation(err) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseExtraction: %v", err)
			}
			if ex.Found != tc.found {
				t.Errorf("Found = %v, want %v", ex.Found, tc.found)
			}
		})
	}
}
