package shared

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/quorum/internal/models"
)

func TestDo_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   error
	}{
		{"rate limited", http.StatusTooManyRequests, models.ErrRateLimitExceeded},
		{"not found", http.StatusNotFound, models.ErrInvalidSymbol},
		{"forbidden", http.StatusForbidden, models.ErrSourceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer srv.Close()

			req, err := http.NewRequest(http.MethodGet, srv.URL+"/quote", nil)
			require.NoError(t, err)

			_, err = Do(NewHTTPClient(time.Second, 0), "test", req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "got %v", err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, "/quote", apiErr.Endpoint)
		})
	}
}

func TestNewHTTPClient_RetriesServerErrorsNot429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path == "/limited" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(2*time.Second, 2)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/flaky", nil)
	body, err := Do(client, "test", req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(2), calls.Load())

	calls.Store(0)
	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/limited", nil)
	_, err = Do(client, "test", req)
	assert.True(t, errors.Is(err, models.ErrRateLimitExceeded))
	assert.Equal(t, int32(1), calls.Load(), "429 is not retried")
}
