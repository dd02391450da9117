package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"unicode/utf8"

	"painscope/internal/fault"
	"painscope/internal/model"
)

func newTestClassifier(t *testing.T, handler http.HandlerFunc) *CloudflareClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCloudflare(Config{
		AccountID: "acc-1",
		APIToken:  "tok-1",
		Model:     "@cf/huggingface/distilbert-sst-2-int8",
		BaseURL:   srv.URL,
	})
}

func TestClassifyPicksBestLabel(t *testing.T) {
	c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		want := "/client/v4/accounts/acc-1/ai/run/@cf/huggingface/distilbert-sst-2-int8"
		if r.URL.Path != want {
			t.Errorf("path = %s, want %s", r.URL.Path, want)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("auth header = %q", got)
		}
		fmt.Fprint(w, `{"success":true,"result":[
			{"label":"NEGATIVE","score":0.91},
			{"label":"POSITIVE","score":0.09}
		]}`)
	})

	res, err := c.Classify(context.Background(), "this product is terrible")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Label != model.SentimentNegative {
		t.Errorf("label = %s, want negative", res.Label)
	}
	if res.Confidence != 0.91 {
		t.Errorf("confidence = %v, want 0.91", res.Confidence)
	}
}

func TestClassifyNormalizesUnknownLabel(t *testing.T) {
	c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"result":[{"label":"MIXED","score":0.6}]}`)
	})
	res, err := c.Classify(context.Background(), "meh")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Label != model.SentimentNeutral {
		t.Errorf("label = %s, want neutral", res.Label)
	}
}

func TestClassifyTruncatesInput(t *testing.T) {
	c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var req struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(b, &req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if n := utf8.RuneCountInString(req.Text); n != 1000 {
			t.Errorf("input length = %d runes, want 1000", n)
		}
		fmt.Fprint(w, `{"success":true,"result":[{"label":"NEGATIVE","score":0.8}]}`)
	})
	long := make([]byte, 0, 5000)
	for i := 0; i < 5000; i++ {
		long = append(long, 'x')
	}
	if _, err := c.Classify(context.Background(), string(long)); err != nil {
		t.Fatalf("Classify: %v", err)
	}
}

func TestClassifyErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, "", fault.IsAuth},
		{"rate limited", http.StatusTooManyRequests, "", fault.IsTransient},
		{"server error", http.StatusBadGateway, "", fault.IsTransient},
		{"provider failure envelope", http.StatusOK, `{"success":false,"errors":[{"code":7009,"message":"model overloaded"}]}`, fault.IsValidation},
		{"empty result", http.StatusOK, `{"success":true,"result":[]}`, fault.IsValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				if tc.body != "" {
					fmt.Fprint(w, tc.body)
				}
			})
			_, err := c.Classify(context.Background(), "text")
			if err == nil || !tc.check(err) {
				t.Errorf("got %v, wrong error class", err)
			}
		})
	}
}

func TestAdmittedThresholdInclusive(t *testing.T) {
	cases := []struct {
		res  Result
		want bool
	}{
		{Result{Label: model.SentimentNegative, Confidence: 0.5}, true},
		{Result{Label: model.SentimentNegative, Confidence: 0.49}, false},
		{Result{Label: model.SentimentNegative, Confidence: 0.99}, true},
		{Result{Label: model.SentimentPositive, Confidence: 0.99}, false},
		{Result{Label: model.SentimentNeutral, Confidence: 0.99}, false},
	}
	for _, tc := range cases {
		if got := Admitted(tc.res, 0.5); got != tc.want {
			t.Errorf("Admitted(%+v, 0.5) = %v, want %v", tc.res, got, tc.want)
		}
	}
}
