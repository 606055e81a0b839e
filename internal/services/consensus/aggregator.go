package consensus

import (
	"math"
	"sort"

	"github.com/bobmcallan/quorum/internal/models"
)

// Aggregator combines quotes for one metric. It holds no mutable state and
// is safe for concurrent use.
type Aggregator struct {
	cfg Config
}

// NewAggregator creates an aggregator after validating cfg
func NewAggregator(cfg Config) (*Aggregator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{cfg: cfg}, nil
}

// Config returns the aggregator policy
func (a *Aggregator) Config() Config {
	return a.cfg
}

// Aggregate reconciles the quotes into one result. It never mutates quotes
// and the result does not depend on their order. Zero usable quotes return
// models.ErrNoDataAvailable.
func (a *Aggregator) Aggregate(quotes []models.Quote) (*models.ConsensusResult, error) {
	valid := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		if math.IsNaN(q.Value) || math.IsInf(q.Value, 0) || q.Value <= 0 {
			continue
		}
		valid = append(valid, q)
	}
	if len(valid) == 0 {
		return nil, models.ErrNoDataAvailable
	}

	// Summation order fixed by source so float results are order independent
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].SourceID != valid[j].SourceID {
			return valid[i].SourceID < valid[j].SourceID
		}
		if valid[i].Priority != valid[j].Priority {
			return valid[i].Priority < valid[j].Priority
		}
		return valid[i].Value < valid[j].Value
	})

	result := &models.ConsensusResult{
		Symbol:       valid[0].Symbol,
		Metric:       valid[0].Metric,
		BandsVersion: a.cfg.Bands.Version,
	}

	if len(valid) == 1 {
		result.ConsensusValue = valid[0].Value
		result.ContributingQuotes = valid
		result.Deviations = map[string]float64{valid[0].SourceID: 0}
		result.Severity = a.cfg.Bands.Classify(0)
		result.SourceCount = 1
		result.Confidence = a.confidence(1, 0)
		return result, nil
	}

	contributing := valid
	if len(valid) >= 3 {
		if idx := a.detectOutlier(valid); idx >= 0 {
			result.OutlierSourceID = valid[idx].SourceID
			if a.cfg.ExcludeOutliers {
				contributing = make([]models.Quote, 0, len(valid)-1)
				contributing = append(contributing, valid[:idx]...)
				contributing = append(contributing, valid[idx+1:]...)
				result.ExcludedQuotes = []models.Quote{valid[idx]}
			}
		}
	}

	consensus := weightedMean(contributing)

	// Discrepancy covers every received quote, including an excluded outlier
	result.Deviations = make(map[string]float64, len(valid))
	for _, q := range valid {
		d := math.Abs(q.Value-consensus) / consensus
		result.Deviations[q.SourceID] = d
		if d > result.DiscrepancyPct {
			result.DiscrepancyPct = d
		}
	}

	result.ConsensusValue = consensus
	result.ContributingQuotes = contributing
	result.SourceCount = len(contributing)
	result.Severity = a.cfg.Bands.Classify(result.DiscrepancyPct)
	result.Confidence = a.confidence(len(contributing), result.DiscrepancyPct)
	return result, nil
}

// weightedMean renormalises the weights of quotes to sum to 1. Non-positive
// weights count as zero; if every weight is zero the mean is unweighted.
func weightedMean(quotes []models.Quote) float64 {
	var sum, total float64
	for _, q := range quotes {
		w := math.Max(q.Weight, 0)
		sum += q.Value * w
		total += w
	}
	if total == 0 {
		for _, q := range quotes {
			sum += q.Value
		}
		return sum / float64(len(quotes))
	}
	return sum / total
}

// detectOutlier returns the index of the single reported outlier, or -1.
// Deviations are measured from the median of all quotes so that one bad
// reading cannot drag the reference toward itself.
func (a *Aggregator) detectOutlier(quotes []models.Quote) int {
	n := len(quotes)
	values := make([]float64, n)
	for i, q := range quotes {
		values[i] = q.Value
	}
	ref := median(values)

	devs := make([]float64, n)
	for i, q := range quotes {
		devs[i] = math.Abs(q.Value-ref) / ref
	}

	best := -1
	rest := make([]float64, 0, n-1)
	for i := range quotes {
		rest = rest[:0]
		rest = append(rest, devs[:i]...)
		rest = append(rest, devs[i+1:]...)

		if devs[i] <= a.cfg.OutlierMultiplier*median(rest) || devs[i] < a.cfg.OutlierMinDeviation {
			continue
		}
		if best < 0 || outranks(quotes[i], devs[i], quotes[best], devs[best]) {
			best = i
		}
	}
	return best
}

// outranks orders flagged candidates: larger deviation first, then the less
// preferred source (higher priority number), then source id.
func outranks(q models.Quote, d float64, other models.Quote, otherD float64) bool {
	if d != otherD {
		return d > otherD
	}
	if q.Priority != other.Priority {
		return q.Priority > other.Priority
	}
	return q.SourceID < other.SourceID
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// confidence rises with the number of contributing sources and falls with
// discrepancy: n/(n+1) * 1/(1 + d/decay), capped for a single source.
func (a *Aggregator) confidence(n int, discrepancy float64) float64 {
	if n <= 0 {
		return 0
	}
	c := float64(n) / float64(n+1) / (1 + discrepancy/a.cfg.ConfidenceDecay)
	if n == 1 {
		c = math.Min(c, a.cfg.SingleSourceCap)
	}
	return math.Max(0, math.Min(1, c))
}
