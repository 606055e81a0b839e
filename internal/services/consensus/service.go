package consensus

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/metrics"
	"github.com/bobmcallan/quorum/internal/models"
)

// Service collects quotes and aggregates them
type Service struct {
	collector  *Collector
	aggregator *Aggregator
	logger     *common.Logger
	recorder   *metrics.Recorder
}

// NewService creates a consensus service
func NewService(collector *Collector, aggregator *Aggregator, logger *common.Logger, recorder *metrics.Recorder) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Service{
		collector:  collector,
		aggregator: aggregator,
		logger:     logger,
		recorder:   recorder,
	}
}

// Consensus returns the reconciled value for one metric. When no quote
// arrives the error is models.ErrInvalidSymbol if every failing source said
// so, otherwise models.ErrNoDataAvailable.
func (s *Service) Consensus(ctx context.Context, req models.QuoteRequest) (*models.ConsensusResult, []models.SourceFailure, error) {
	quotes, failures := s.collector.Collect(ctx, req)
	return s.reconcile(req, quotes, failures)
}

func (s *Service) reconcile(req models.QuoteRequest, quotes []models.Quote, failures []models.SourceFailure) (*models.ConsensusResult, []models.SourceFailure, error) {
	result, err := s.aggregator.Aggregate(quotes)
	if err != nil {
		if allInvalid(failures) {
			return nil, failures, fmt.Errorf("%s: %w", req.Symbol, models.ErrInvalidSymbol)
		}
		return nil, failures, fmt.Errorf("%s %s from %d source(s): %w", req.Symbol, req.Metric, len(failures), err)
	}

	s.recorder.RecordConsensus(result)

	event := s.logger.Debug()
	if result.Severity == models.SeverityHigh || result.OutlierSourceID != "" {
		event = s.logger.Warn()
	}
	event.
		Str("symbol", req.Symbol).
		Str("metric", string(req.Metric)).
		Float64("consensus", result.ConsensusValue).
		Float64("discrepancy_pct", result.DiscrepancyPct).
		Str("severity", string(result.Severity)).
		Str("outlier", result.OutlierSourceID).
		Float64("confidence", result.Confidence).
		Int("sources", result.SourceCount).
		Msg("Consensus computed")

	return result, failures, nil
}

// PriceConsensus collects price and previous close in one fan-out and
// derives the change percentage from the two consensus values. The previous
// close is optional; a price failure fails the whole call.
func (s *Service) PriceConsensus(ctx context.Context, symbol, currency string) (*models.PriceConsensus, error) {
	got := s.collector.CollectMetrics(ctx, symbol, currency, models.MetricPrice, models.MetricPreviousClose)
	pc, prevc := got[models.MetricPrice], got[models.MetricPreviousClose]

	price, priceFailures, priceErr := s.reconcile(models.QuoteRequest{Symbol: symbol, Metric: models.MetricPrice, Currency: currency}, pc.Quotes, pc.Failures)
	prev, prevFailures, prevErr := s.reconcile(models.QuoteRequest{Symbol: symbol, Metric: models.MetricPreviousClose, Currency: currency}, prevc.Quotes, prevc.Failures)

	out := &models.PriceConsensus{
		Price:    price,
		Failures: append(priceFailures, prevFailures...),
	}
	if priceErr != nil {
		return out, priceErr
	}
	if prevErr == nil {
		out.PreviousClose = prev
		change := (price.ConsensusValue - prev.ConsensusValue) / prev.ConsensusValue * 100
		out.ChangePct = &change
	} else if !errors.Is(prevErr, models.ErrNoDataAvailable) && !errors.Is(prevErr, models.ErrInvalidSymbol) {
		s.logger.Warn().Str("symbol", symbol).Err(prevErr).Msg("Previous close consensus failed")
	}
	return out, nil
}

func allInvalid(failures []models.SourceFailure) bool {
	if len(failures) == 0 {
		return false
	}
	for _, f := range failures {
		if f.Kind != "invalid_symbol" {
			return false
		}
	}
	return true
}
