package shared

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/bobmcallan/quorum/internal/models"
)

// NewHTTPClient returns a standard client backed by retryablehttp. Transient
// 5xx and network errors are retried up to retries times; 429 is returned
// immediately so callers can report the source as rate limited.
func NewHTTPClient(timeout time.Duration, retries int) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 1 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc.StandardClient()
}

func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// APIError represents a non-2xx provider response
type APIError struct {
	Source     string
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s (status: %d, endpoint: %s)", e.Source, e.Message, e.StatusCode, e.Endpoint)
}

// Do executes req and returns the body of a 2xx response. Failures are
// returned as *models.SourceError carrying the matching taxonomy kind.
func Do(client *http.Client, source string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, models.NewSourceError(source, models.ErrSourceUnavailable, err)
		}
		return nil, models.NewSourceError(source, models.ErrSourceUnavailable, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, models.NewSourceError(source, models.ErrSourceUnavailable, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{
			Source:     source,
			StatusCode: resp.StatusCode,
			Message:    truncate(string(body), 200),
			Endpoint:   req.URL.Path,
		}
		return nil, models.NewSourceError(source, KindForStatus(resp.StatusCode), apiErr)
	}

	return body, nil
}

// KindForStatus maps an HTTP status to a failure kind
func KindForStatus(status int) error {
	switch status {
	case http.StatusTooManyRequests:
		return models.ErrRateLimitExceeded
	case http.StatusNotFound:
		return models.ErrInvalidSymbol
	default:
		return models.ErrSourceUnavailable
	}
}

// RateLimited is the error returned when the local budget refuses a call
func RateLimited(source string) error {
	return models.NewSourceError(source, models.ErrRateLimitExceeded, errors.New("local budget exhausted"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
