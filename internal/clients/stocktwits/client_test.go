package stocktwits

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/quorum/internal/models"
)

func TestGetSocialSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/streams/symbol/AAPL.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"response":{"status":200},"messages":[
			{"id":1,"entities":{"sentiment":{"basic":"Bullish"}}},
			{"id":2,"entities":{"sentiment":null}},
			{"id":3,"entities":{"sentiment":{"basic":"Bearish"}}},
			{"id":4,"entities":{"sentiment":{"basic":"Bullish"}}},
			{"id":5,"entities":{"sentiment":{"basic":"Bullish"}}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))

	s, err := c.GetSocialSummary(context.Background(), "AAPL", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Messages)
	assert.Equal(t, 2, s.Bullish)
	assert.Equal(t, 1, s.Bearish)

	_, err = c.GetSocialSummary(context.Background(), "NOPE", 10)
	assert.True(t, errors.Is(err, models.ErrInvalidSymbol))
}
