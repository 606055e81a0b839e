package finnhub

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

func newTestClient(t *testing.T, routes map[string]string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.URL.Query().Get("token"))
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := NewClient("test-key", WithBaseURL(srv.URL))
	c.now = func() time.Time { return time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC) }
	return c
}

func TestFetch_Quote(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/quote": `{"c":103,"d":1.2,"dp":1.18,"h":104,"l":101,"o":102,"pc":101.8,"t":1741618800}`,
	})

	q, err := c.Fetch(context.Background(), models.QuoteRequest{Symbol: "AAPL", Metric: models.MetricPrice})
	require.NoError(t, err)
	assert.InDelta(t, 103, q.Value, 1e-9)
	assert.InDelta(t, 1.5, q.Weight, 1e-9)
	assert.Equal(t, 1, q.Priority)

	q, err = c.Fetch(context.Background(), models.QuoteRequest{Symbol: "AAPL", Metric: models.MetricPreviousClose})
	require.NoError(t, err)
	assert.InDelta(t, 101.8, q.Value, 1e-9)
}

func TestFetch_UnknownSymbolIsInvalid(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/quote": `{"c":0,"d":null,"dp":null,"h":0,"l":0,"o":0,"pc":0,"t":0}`,
	})

	_, err := c.Fetch(context.Background(), models.QuoteRequest{Symbol: "ZZZZ", Metric: models.MetricPrice})
	assert.True(t, errors.Is(err, models.ErrInvalidSymbol), "got %v", err)
}

func TestSupports(t *testing.T) {
	c := NewClient("k")
	assert.True(t, c.Supports("AAPL", models.MetricPrice))
	assert.False(t, c.Supports("^GSPC", models.MetricPrice))
	assert.False(t, c.Supports("BTC-USD", models.MetricPrice))
	assert.False(t, c.Supports("AAPL", models.Metric("volume")))
}

func TestGetCompanyNews_Limit(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/company-news": `[
			{"datetime":1741600000,"headline":"Apple beats estimates","source":"Reuters","summary":"Strong quarter","url":"https://example.com/1"},
			{"datetime":1741500000,"headline":"","source":"Blog"},
			{"datetime":1741400000,"headline":"Apple unveils device","source":"CNBC"},
			{"datetime":1741300000,"headline":"Third story","source":"WSJ"}
		]`,
	})

	items, err := c.GetCompanyNews(context.Background(), "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Apple beats estimates", items[0].Headline)
	assert.Equal(t, "Apple beats estimates. Strong quarter", items[0].Text())
	assert.Equal(t, "Apple unveils device", items[1].Headline)
}

func TestGetFundamentals(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/stock/metric": `{"metric":{"peTTM":28.5,"roeTTM":150.2,"totalDebt/totalEquityQuarterly":1.8,"revenueGrowthTTMYoy":null},"symbol":"AAPL"}`,
	})

	f, err := c.GetFundamentals(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, f.PE)
	assert.InDelta(t, 28.5, *f.PE, 1e-9)
	require.NotNil(t, f.DebtToEquity)
	assert.InDelta(t, 1.8, *f.DebtToEquity, 1e-9)
	assert.Nil(t, f.RevenueGrowth, "null metrics stay nil")
	assert.False(t, f.IsEmpty())
}

func TestGetAnalystData_LatestPeriod(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/stock/recommendation": `[
			{"period":"2026-02-01","strongBuy":10,"buy":20,"hold":5,"sell":1,"strongSell":0},
			{"period":"2026-03-01","strongBuy":12,"buy":18,"hold":6,"sell":2,"strongSell":1}
		]`,
	})

	a, err := c.GetAnalystData(context.Background(), "AAPL")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "2026-03-01", a.Period)
	assert.Equal(t, 39, a.Total())
}

func TestGetAnalystData_NoCoverage(t *testing.T) {
	c := newTestClient(t, map[string]string{"/stock/recommendation": `[]`})

	a, err := c.GetAnalystData(context.Background(), "TINY")
	require.NoError(t, err)
	assert.Nil(t, a)
}
