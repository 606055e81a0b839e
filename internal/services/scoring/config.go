// Package scoring combines factor scores into a recommendation
package scoring

import (
	"fmt"
	"math"

	"github.com/bobmcallan/quorum/internal/models"
)

// Weights are the base factor weights; they must sum to 1
type Weights struct {
	Version     string
	News        float64
	Social      float64
	Technical   float64
	Fundamental float64
	Analyst     float64
}

// DefaultWeights returns the canonical factor weights
func DefaultWeights() Weights {
	return Weights{
		Version:     "2024.1",
		News:        0.15,
		Social:      0.10,
		Technical:   0.35,
		Fundamental: 0.30,
		Analyst:     0.10,
	}
}

// Of returns the base weight of a factor
func (w Weights) Of(f models.Factor) float64 {
	switch f {
	case models.FactorNews:
		return w.News
	case models.FactorSocial:
		return w.Social
	case models.FactorTechnical:
		return w.Technical
	case models.FactorFundamental:
		return w.Fundamental
	case models.FactorAnalyst:
		return w.Analyst
	}
	return 0
}

// Validate checks the weights are non-negative and sum to 1
func (w Weights) Validate() error {
	sum := 0.0
	for _, f := range models.AllFactors {
		v := w.Of(f)
		if v < 0 {
			return fmt.Errorf("weight for %s must be >= 0, got %g", f, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("factor weights must sum to 1, got %g", sum)
	}
	if w.News+w.Social+w.Technical <= 0 {
		return fmt.Errorf("news, social and technical weights cannot all be zero")
	}
	return nil
}

// Thresholds are the lower bounds of the SELL, HOLD, BUY and STRONG_BUY
// buckets. Anything below Sell is STRONG_SELL and a score equal to a bound
// belongs to the higher bucket.
type Thresholds struct {
	Sell      float64
	Hold      float64
	Buy       float64
	StrongBuy float64
}

// DefaultThresholds returns the canonical bucket bounds
func DefaultThresholds() Thresholds {
	return Thresholds{Sell: 0.2, Hold: 0.4, Buy: 0.6, StrongBuy: 0.8}
}

// Validate checks 0 < Sell < Hold < Buy < StrongBuy < 1
func (t Thresholds) Validate() error {
	if !(0 < t.Sell && t.Sell < t.Hold && t.Hold < t.Buy && t.Buy < t.StrongBuy && t.StrongBuy < 1) {
		return fmt.Errorf("thresholds must satisfy 0 < sell(%g) < hold(%g) < buy(%g) < strong_buy(%g) < 1",
			t.Sell, t.Hold, t.Buy, t.StrongBuy)
	}
	return nil
}

// Classify maps a score in [0,1] to its bucket
func (t Thresholds) Classify(score float64) models.Recommendation {
	switch {
	case score >= t.StrongBuy:
		return models.RecommendationStrongBuy
	case score >= t.Buy:
		return models.RecommendationBuy
	case score >= t.Hold:
		return models.RecommendationHold
	case score >= t.Sell:
		return models.RecommendationSell
	default:
		return models.RecommendationStrongSell
	}
}
