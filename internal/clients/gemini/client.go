// Package gemini provides a sentiment scorer backed by the Google Gemini API
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/models"
)

const (
	DefaultModel   = "gemini-2.0-flash"
	maxPromptInput = 4000
)

// Client implements SentimentScorer using a Gemini model
type Client struct {
	client *genai.Client
	model  string
	logger *common.Logger

	// generate is swapped in tests
	generate func(ctx context.Context, prompt string) (string, error)
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithModel sets the model to use
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		client: genaiClient,
		model:  DefaultModel,
		logger: common.NewSilentLogger(),
	}
	c.generate = c.generateContent

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Client) generateContent(ctx context.Context, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return extractTextFromResponse(result)
}

func extractTextFromResponse(result *genai.GenerateContentResponse) (string, error) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

// Score classifies financial text into positive/neutral/negative probabilities
func (c *Client) Score(ctx context.Context, text string) (models.SentimentScore, error) {
	if len(text) > maxPromptInput {
		text = text[:maxPromptInput]
	}

	c.logger.Debug().Str("model", c.model).Int("chars", len(text)).Msg("Scoring sentiment")

	out, err := c.generate(ctx, buildSentimentPrompt(text))
	if err != nil {
		return models.SentimentScore{}, err
	}
	return parseSentiment(out)
}

func buildSentimentPrompt(text string) string {
	return fmt.Sprintf(`You are a financial sentiment classifier. Classify the sentiment of the
following news text for an equity investor. Respond with JSON only, in the form
{"label": "positive|neutral|negative", "positive": p, "neutral": n, "negative": q}
where p, n and q are probabilities that sum to 1.

Text:
%s`, text)
}

type sentimentPayload struct {
	Label    string  `json:"label"`
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// parseSentiment decodes the model reply, tolerating markdown fences, and
// renormalises the probabilities
func parseSentiment(out string) (models.SentimentScore, error) {
	out = strings.TrimSpace(out)
	out = strings.TrimPrefix(out, "```json")
	out = strings.TrimPrefix(out, "```")
	out = strings.TrimSuffix(out, "```")

	var p sentimentPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &p); err != nil {
		return models.SentimentScore{}, fmt.Errorf("failed to parse sentiment reply: %w", err)
	}
	if p.Positive < 0 || p.Neutral < 0 || p.Negative < 0 {
		return models.SentimentScore{}, fmt.Errorf("negative probability in sentiment reply")
	}

	sum := p.Positive + p.Neutral + p.Negative
	if sum <= 0 {
		return models.SentimentScore{}, fmt.Errorf("empty probabilities in sentiment reply")
	}

	score := models.SentimentScore{
		Positive: p.Positive / sum,
		Neutral:  p.Neutral / sum,
		Negative: p.Negative / sum,
	}
	score.Label = labelFor(score)
	return score, nil
}

func labelFor(s models.SentimentScore) models.SentimentLabel {
	switch {
	case s.Positive >= s.Neutral && s.Positive >= s.Negative:
		return models.SentimentPositive
	case s.Negative >= s.Neutral:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

// Ensure Client implements SentimentScorer
var _ interfaces.SentimentScorer = (*Client)(nil)
