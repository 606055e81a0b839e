package shared

import (
	"fmt"

	"github.com/bobmcallan/quorum/internal/models"
)

// CheckMetric rejects metrics other than price and previous close
func CheckMetric(source string, metric models.Metric) error {
	if metric != models.MetricPrice && metric != models.MetricPreviousClose {
		return models.NewSourceError(source, models.ErrSourceUnavailable, fmt.Errorf("unsupported metric %s", metric))
	}
	return nil
}

// PickQuote selects the requested metric from a FetchQuotes result
func PickQuote(source string, quotes map[models.Metric]models.Quote, req models.QuoteRequest) (models.Quote, error) {
	q, ok := quotes[req.Metric]
	if !ok {
		return models.Quote{}, models.NewSourceError(source, models.ErrNoDataAvailable, fmt.Errorf("no %s for %s", req.Metric, req.Symbol))
	}
	return q, nil
}
