// Package ai invokes the generative extraction model under a strict output
// schema and parses its responses defensively.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"painscope/internal/fault"

	openai "github.com/sashabaranov/go-openai"
)

// Extraction is the model's raw output shape. Enum and range repair happens
// in the extraction run, not here; this package only guarantees the shape.
type Extraction struct {
	Found            bool     `json:"found"`
	ProblemStatement string   `json:"problem_statement"`
	Category         string   `json:"category"`
	Severity         string   `json:"severity"`
	OpportunityScore int      `json:"opportunity_score"`
	Tags             []string `json:"tags"`
	Context          string   `json:"context"`
}

// Extractor defines the extraction-model interface used by the pipeline.
type Extractor interface {
	// Extract analyzes one complaint and returns the structured pain point,
	// or Found=false when the model reports none.
	Extract(ctx context.Context, content string) (Extraction, error)
}

// OpenAIClient implements Extractor using the OpenAI Chat Completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string // optional
}

func NewOpenAI(cfg Config) *OpenAIClient {
	var c *openai.Client
	if cfg.BaseURL != "" {
		cc := openai.DefaultConfig(cfg.APIKey)
		cc.BaseURL = cfg.BaseURL
		c = openai.NewClientWithConfig(cc)
	} else {
		c = openai.NewClient(cfg.APIKey)
	}
	model := cfg.Model
	if model == "" {
		panic("OpenAI model must be specified")
	}
	return &OpenAIClient{client: c, model: model}
}

const systemPrompt = `You analyze customer complaints and extract structured pain points.
Respond ONLY with valid JSON matching exactly this structure:
{
  "found": true,
  "problem_statement": "one clear sentence describing the core problem",
  "category": "one of: pricing, usability, features, support, performance, bugs, integration, other",
  "severity": "one of: critical, high, medium, low",
  "opportunity_score": 0,
  "tags": ["2-5 relevant keywords"],
  "context": "supporting excerpt or context about when/why this is a problem"
}
opportunity_score is an integer 0-100 estimating business potential.
If the text contains no actionable pain point, respond with {"found": false}.`

// Extract sends one complaint to the model and parses the structured reply.
func (o *OpenAIClient) Extract(ctx context.Context, content string) (Extraction, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	content = strings.TrimSpace(content)
	if r := []rune(content); len(r) > 4000 {
		content = string(r[:4000])
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "COMPLAINT:\n" + content},
		},
		Temperature: 0.2,
	})
	if err != nil {
		slog.Error("openai: extraction call failed", "err", err)
		return Extraction{}, fault.Transient(err)
	}
	if len(resp.Choices) == 0 {
		return Extraction{}, fault.Validationf("openai: empty completion")
	}
	return parseExtraction(resp.Choices[0].Message.Content)
}

// parseExtraction decodes the model reply, tolerating markdown code fences
// around the JSON but nothing else.
func parseExtraction(raw string) (Extraction, error) {
	payload := stripFences(raw)
	var ex Extraction
	if err := json.Unmarshal([]byte(payload), &ex); err != nil {
		return Extraction{}, fault.Validation(fmt.Errorf("openai: parse extraction: %w (content: %.120s)", err, payload))
	}
	if ex.Found && strings.TrimSpace(ex.ProblemStatement) == "" {
		return Extraction{}, fault.Validationf("openai: extraction missing problem_statement")
	}
	return ex, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```json"); idx != -1 {
		s = s[idx+len("```json"):]
	} else if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
