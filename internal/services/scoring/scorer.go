package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/bobmcallan/quorum/internal/models"
)

// Scorer computes combined scores. It is immutable and safe for
// concurrent use.
type Scorer struct {
	weights    Weights
	thresholds Thresholds
}

// NewScorer validates and wraps the weights and thresholds
func NewScorer(w Weights, t Thresholds) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{weights: w, thresholds: t}, nil
}

// Thresholds returns the bucket bounds in use
func (s *Scorer) Thresholds() Thresholds {
	return s.thresholds
}

// Score combines factors into a value and recommendation. The weight of any
// missing factor is spread over the present ones in proportion to their base
// weights, so effective weights always sum to 1.
func (s *Scorer) Score(factors models.FactorScores) (*models.CombinedScore, error) {
	present := 0.0
	var missing []models.Factor
	for _, f := range models.AllFactors {
		if factors.Value(f) == nil {
			missing = append(missing, f)
			continue
		}
		present += s.weights.Of(f)
	}
	if present <= 0 {
		return nil, fmt.Errorf("no weighted factor available")
	}

	out := &models.CombinedScore{
		WeightsUsed: make(map[models.Factor]float64, len(models.AllFactors)),
		Explanation: models.ScoreExplanation{
			Redistributed:  missing,
			WeightsVersion: s.weights.Version,
		},
	}

	total := 0.0
	for _, f := range models.AllFactors {
		base := s.weights.Of(f)
		line := models.FactorContribution{Factor: f, BaseWeight: base}

		if raw := factors.Value(f); raw != nil {
			v := clamp(*raw)
			eff := base / present
			line.RawScore = &v
			line.EffectiveWeight = eff
			line.Contribution = v * eff
			total += line.Contribution
			out.WeightsUsed[f] = eff
		}
		out.Explanation.Factors = append(out.Explanation.Factors, line)
	}

	out.Value = clamp(total)
	out.Recommendation = s.thresholds.Classify(out.Value)
	out.Explanation.Summary = summarize(out)
	return out, nil
}

func summarize(score *models.CombinedScore) string {
	var top models.FactorContribution
	for _, f := range score.Explanation.Factors {
		if f.Contribution > top.Contribution {
			top = f
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s at %.3f", score.Recommendation, score.Value)
	if top.Factor != "" {
		fmt.Fprintf(&b, ", led by %s (%.3f)", top.Factor, top.Contribution)
	}
	if len(score.Explanation.Redistributed) > 0 {
		names := make([]string, len(score.Explanation.Redistributed))
		for i, f := range score.Explanation.Redistributed {
			names[i] = string(f)
		}
		fmt.Fprintf(&b, "; no %s data, weight redistributed", strings.Join(names, " or "))
	}
	return b.String()
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0.5
	}
	return math.Max(0, math.Min(1, v))
}
