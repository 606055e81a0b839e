package consensus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bobmcallan/quorum/internal/common"
	"github.com/bobmcallan/quorum/internal/interfaces"
	"github.com/bobmcallan/quorum/internal/metrics"
	"github.com/bobmcallan/quorum/internal/models"
)

// grace is how long past the per-source timeout the barrier waits for a
// source that ignores its context
const grace = 250 * time.Millisecond

// Collector fans a quote request out to every source that supports it
type Collector struct {
	sources  []interfaces.MarketDataSource
	timeout  time.Duration
	logger   *common.Logger
	recorder *metrics.Recorder
}

// NewCollector creates a collector with a per-source timeout
func NewCollector(sources []interfaces.MarketDataSource, timeout time.Duration, logger *common.Logger, recorder *metrics.Recorder) *Collector {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Collector{
		sources:  sources,
		timeout:  timeout,
		logger:   logger,
		recorder: recorder,
	}
}

// Collection holds the quotes and failures gathered for one metric, both
// sorted by source id
type Collection struct {
	Quotes   []models.Quote
	Failures []models.SourceFailure
}

// job is one upstream call: a QuoteSetSource answers all its metrics at
// once, any other source gets one job per metric
type job struct {
	src     interfaces.MarketDataSource
	metrics []models.Metric
}

type outcome struct {
	job    int
	quotes map[models.Metric]models.Quote
	err    error
}

// Collect fetches one metric concurrently and waits until every source has
// answered or timed out.
func (c *Collector) Collect(ctx context.Context, req models.QuoteRequest) ([]models.Quote, []models.SourceFailure) {
	col := c.CollectMetrics(ctx, req.Symbol, req.Currency, req.Metric)[req.Metric]
	return col.Quotes, col.Failures
}

// CollectMetrics fetches several metrics of one symbol in a single fan-out,
// so a source that returns them together is called once per symbol.
func (c *Collector) CollectMetrics(ctx context.Context, symbol, currency string, metrics ...models.Metric) map[models.Metric]*Collection {
	out := make(map[models.Metric]*Collection, len(metrics))
	for _, m := range metrics {
		out[m] = &Collection{}
	}

	var jobs []job
	for _, src := range c.sources {
		var supported []models.Metric
		for _, m := range metrics {
			if src.Supports(symbol, m) {
				supported = append(supported, m)
			}
		}
		if len(supported) == 0 {
			continue
		}
		if _, ok := src.(interfaces.QuoteSetSource); ok {
			jobs = append(jobs, job{src: src, metrics: supported})
			continue
		}
		for _, m := range supported {
			jobs = append(jobs, job{src: src, metrics: []models.Metric{m}})
		}
	}
	if len(jobs) == 0 {
		return out
	}

	results := make(chan outcome, len(jobs))
	for i, j := range jobs {
		go func(i int, j job) {
			fctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			quotes, err := c.run(fctx, j, symbol, currency)
			if err == nil && fctx.Err() != nil {
				err = fctx.Err()
			}
			results <- outcome{job: i, quotes: quotes, err: err}
		}(i, j)
	}

	pending := make(map[int]bool, len(jobs))
	for i := range jobs {
		pending[i] = true
	}

	barrier := time.NewTimer(c.timeout + grace)
	defer barrier.Stop()

wait:
	for len(pending) > 0 {
		select {
		case o := <-results:
			delete(pending, o.job)
			c.record(out, jobs[o.job], symbol, currency, o.quotes, o.err)
		case <-barrier.C:
			break wait
		case <-ctx.Done():
			break wait
		}
	}

	for i := range pending {
		c.record(out, jobs[i], symbol, currency, nil, fmt.Errorf("abandoned: %w", context.DeadlineExceeded))
	}

	for _, col := range out {
		sort.Slice(col.Quotes, func(i, j int) bool { return col.Quotes[i].SourceID < col.Quotes[j].SourceID })
		sort.Slice(col.Failures, func(i, j int) bool { return col.Failures[i].Source < col.Failures[j].Source })
	}
	return out
}

func (c *Collector) run(ctx context.Context, j job, symbol, currency string) (map[models.Metric]models.Quote, error) {
	if set, ok := j.src.(interfaces.QuoteSetSource); ok {
		return set.FetchQuotes(ctx, symbol, currency)
	}
	metric := j.metrics[0]
	q, err := j.src.Fetch(ctx, models.QuoteRequest{Symbol: symbol, Metric: metric, Currency: currency})
	if err != nil {
		return nil, err
	}
	return map[models.Metric]models.Quote{metric: q}, nil
}

// record files a job's result under each metric it was asked for
func (c *Collector) record(out map[models.Metric]*Collection, j job, symbol, currency string, quotes map[models.Metric]models.Quote, err error) {
	source := j.src.ID()
	for _, m := range j.metrics {
		req := models.QuoteRequest{Symbol: symbol, Metric: m, Currency: currency}
		if err != nil {
			out[m].Failures = append(out[m].Failures, c.failure(req, source, err))
			continue
		}
		q, ok := quotes[m]
		if !ok {
			out[m].Failures = append(out[m].Failures, c.failure(req, source, models.NewSourceError(source, models.ErrNoDataAvailable, fmt.Errorf("no %s for %s", m, symbol))))
			continue
		}
		c.recorder.RecordSourceRequest(source, "ok")
		out[m].Quotes = append(out[m].Quotes, q)
	}
}

func (c *Collector) failure(req models.QuoteRequest, source string, err error) models.SourceFailure {
	kind := models.ErrorKind(err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = "timeout"
	}

	c.recorder.RecordSourceRequest(source, kind)
	c.logger.Warn().
		Str("source", source).
		Str("symbol", req.Symbol).
		Str("metric", string(req.Metric)).
		Str("kind", kind).
		Err(err).
		Msg("Source excluded from consensus")

	return models.SourceFailure{Source: source, Kind: kind, Reason: err.Error()}
}
