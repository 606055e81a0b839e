package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/quorum/internal/models"
)

func TestScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/sentiment", r.URL.Path)

		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Shares surge on record revenue", req.Text)

		_, _ = w.Write([]byte(`{"label":"Positive","positive":0.91,"neutral":0.07,"negative":0.02}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	s, err := c.Score(context.Background(), "Shares surge on record revenue")
	require.NoError(t, err)
	assert.Equal(t, models.SentimentPositive, s.Label)
	assert.InDelta(t, 0.91, s.Positive, 1e-9)
}

func TestScore_UnknownLabel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"label":"LABEL_7","positive":0.3,"neutral":0.3,"negative":0.4}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Score(context.Background(), "x")
	assert.Error(t, err)
}
