// Package sentiment classifies text via Cloudflare Workers AI and decides
// which items are admitted to extraction.
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"painscope/internal/fault"
	"painscope/internal/model"
)

const (
	maxInputChars  = 1000 // classifier input ceiling
	requestTimeout = 30 * time.Second
)

// Result is one classification verdict.
type Result struct {
	Label      string  // positive | negative | neutral
	Confidence float64 // 0..1
}

// Classifier turns free text into a sentiment verdict.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// CloudflareClient calls the Cloudflare Workers AI text-classification API.
// Endpoint: https://api.cloudflare.com/client/v4/accounts/<ACCOUNT_ID>/ai/run/<MODEL>
type CloudflareClient struct {
	runURL string
	token  string
	http   *http.Client
}

// Config carries the Workers AI account settings.
type Config struct {
	AccountID string
	APIToken  string
	Model     string // e.g. @cf/huggingface/distilbert-sst-2-int8
	BaseURL   string // override for tests; defaults to api.cloudflare.com
}

// NewCloudflare creates a Workers AI classifier client.
func NewCloudflare(cfg Config) *CloudflareClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.cloudflare.com"
	}
	m := cfg.Model
	if m == "" {
		m = "@cf/huggingface/distilbert-sst-2-int8"
	}
	return &CloudflareClient{
		runURL: fmt.Sprintf("%s/client/v4/accounts/%s/ai/run/%s", base, strings.TrimSpace(cfg.AccountID), m),
		token:  cfg.APIToken,
		http:   &http.Client{Timeout: requestTimeout},
	}
}

type runRequest struct {
	Text string `json:"text"`
}

type runResponse struct {
	Success bool `json:"success"`
	Result  []struct {
		Label string  `json:"label"`
		Score float64 `json:"score"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Classify runs the model over text (truncated to the input ceiling) and maps
// the provider labels onto the pipeline's positive/negative/neutral set.
func (c *CloudflareClient) Classify(ctx context.Context, text string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	text = strings.TrimSpace(text)
	if r := []rune(text); len(r) > maxInputChars {
		text = string(r[:maxInputChars])
	}
	body, _ := json.Marshal(runRequest{Text: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.runURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fault.Transient(err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{}, fault.Auth(fmt.Errorf("workers-ai: status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return Result{}, fault.Transientf("workers-ai: rate limited")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Result{}, fault.Transientf("workers-ai: status %d", resp.StatusCode)
	}

	var envelope runResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return Result{}, fault.Validation(fmt.Errorf("workers-ai: decode response: %w", err))
	}
	if !envelope.Success || len(envelope.Result) == 0 {
		msg := "empty result"
		if len(envelope.Errors) > 0 {
			msg = envelope.Errors[0].Message
		}
		return Result{}, fault.Validationf("workers-ai: %s", msg)
	}

	// The model returns one entry per label; take the highest-scoring one.
	best := envelope.Result[0]
	for _, r := range envelope.Result[1:] {
		if r.Score > best.Score {
			best = r
		}
	}
	return Result{Label: normalizeLabel(best.Label), Confidence: best.Score}, nil
}

func normalizeLabel(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "negative":
		return model.SentimentNegative
	case "positive":
		return model.SentimentPositive
	default:
		return model.SentimentNeutral
	}
}

// Admitted reports whether a verdict passes the gate: negative label with
// confidence at or above the threshold. The comparison is inclusive at the
// cutoff.
func Admitted(r Result, threshold float64) bool {
	return r.Label == model.SentimentNegative && r.Confidence >= threshold
}
