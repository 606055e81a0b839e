// Package sentiment provides a client for an HTTP financial-sentiment
// inference service (a FinBERT-style model behind POST /sentiment).
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/quorum/internal/clients/shared"
	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/models"
)

const (
	SourceID       = "sentiment"
	DefaultTimeout = 10 * time.Second
)

// Client implements SentimentScorer over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the transport
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a client for the inference service at baseURL
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: shared.NewHTTPClient(DefaultTimeout, 1),
		logger:     common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type scoreRequest struct {
	Text string `json:"text"`
}

type scoreResponse struct {
	Label    string  `json:"label"`
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Score classifies text
func (c *Client) Score(ctx context.Context, text string) (models.SentimentScore, error) {
	payload, err := json.Marshal(scoreRequest{Text: text})
	if err != nil {
		return models.SentimentScore{}, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sentiment", bytes.NewReader(payload))
	if err != nil {
		return models.SentimentScore{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := shared.Do(c.httpClient, SourceID, req)
	if err != nil {
		return models.SentimentScore{}, err
	}

	var resp scoreResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.SentimentScore{}, fmt.Errorf("failed to decode response: %w", err)
	}

	label := models.SentimentLabel(strings.ToLower(resp.Label))
	switch label {
	case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative:
	default:
		return models.SentimentScore{}, fmt.Errorf("unknown sentiment label %q", resp.Label)
	}

	return models.SentimentScore{
		Label:    label,
		Positive: resp.Positive,
		Neutral:  resp.Neutral,
		Negative: resp.Negative,
	}, nil
}

// Ensure Client implements SentimentScorer
var _ interfaces.SentimentScorer = (*Client)(nil)
