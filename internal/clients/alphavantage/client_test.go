package alphavantage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/quorum/internal/models"
)

func newTestClient(t *testing.T, body string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/query", r.URL.Path)
		assert.Equal(t, "av-key", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := NewClient("av-key", WithBaseURL(srv.URL))
	c.now = func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestFetch_GlobalQuote(t *testing.T) {
	c := newTestClient(t, `{"Global Quote":{"01. symbol":"AAPL","05. price":"102.0000","08. previous close":"100.5000","10. change percent":"1.49%"}}`)

	q, err := c.Fetch(context.Background(), models.QuoteRequest{Symbol: "AAPL", Metric: models.MetricPrice})
	require.NoError(t, err)
	assert.InDelta(t, 102.0, q.Value, 1e-9)
	assert.Equal(t, SourceID, q.SourceID)

	q, err = c.Fetch(context.Background(), models.QuoteRequest{Symbol: "AAPL", Metric: models.MetricPreviousClose})
	require.NoError(t, err)
	assert.InDelta(t, 100.5, q.Value, 1e-9)
}

func TestFetch_InBandErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind error
	}{
		{"empty quote", `{"Global Quote":{}}`, models.ErrInvalidSymbol},
		{"error message", `{"Error Message":"Invalid API call."}`, models.ErrInvalidSymbol},
		{"quota note", `{"Note":"Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute"}`, models.ErrRateLimitExceeded},
		{"information", `{"Information":"We have detected your API key and our standard API rate limit is 25 requests per day."}`, models.ErrRateLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.body)
			_, err := c.Fetch(context.Background(), models.QuoteRequest{Symbol: "AAPL", Metric: models.MetricPrice})
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)
		})
	}
}

func TestGetHistory_SortedAndWindowed(t *testing.T) {
	c := newTestClient(t, `{
		"Meta Data": {"2. Symbol": "AAPL"},
		"Time Series (Daily)": {
			"2026-03-09": {"1. open":"101","2. high":"103","3. low":"100","4. close":"102","5. volume":"1000"},
			"2026-03-06": {"1. open":"100","2. high":"102","3. low":"99","4. close":"101","5. volume":"900"},
			"2025-12-01": {"1. open":"90","2. high":"91","3. low":"89","4. close":"90","5. volume":"800"}
		}
	}`)

	bars, err := c.GetHistory(context.Background(), "AAPL", "1mo")
	require.NoError(t, err)
	require.Len(t, bars, 2, "bars older than the timeframe are dropped")
	assert.InDelta(t, 101, bars[0].Close, 1e-9)
	assert.InDelta(t, 102, bars[1].Close, 1e-9)
	assert.InDelta(t, 1000, bars[1].Volume, 1e-9)
}
