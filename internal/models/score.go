package models

// Factor names a scoring input dimension
type Factor string

const (
	FactorNews        Factor = "news"
	FactorSocial      Factor = "social"
	FactorTechnical   Factor = "technical"
	FactorFundamental Factor = "fundamental"
	FactorAnalyst     Factor = "analyst"
)

// AllFactors lists factors in explanation order
var AllFactors = []Factor{FactorNews, FactorSocial, FactorTechnical, FactorFundamental, FactorAnalyst}

// FactorScores are normalised [0,1] inputs. Fundamental and Analyst are
// nil when no data was available for them.
type FactorScores struct {
	News        float64  `json:"news"`
	Social      float64  `json:"social"`
	Technical   float64  `json:"technical"`
	Fundamental *float64 `json:"fundamental"`
	Analyst     *float64 `json:"analyst"`
}

// Value returns the raw score for a factor, nil when unavailable
func (f FactorScores) Value(factor Factor) *float64 {
	switch factor {
	case FactorNews:
		v := f.News
		return &v
	case FactorSocial:
		v := f.Social
		return &v
	case FactorTechnical:
		v := f.Technical
		return &v
	case FactorFundamental:
		return f.Fundamental
	case FactorAnalyst:
		return f.Analyst
	}
	return nil
}

// Recommendation is the bucketed verdict of a combined score
type Recommendation string

const (
	RecommendationStrongSell Recommendation = "STRONG_SELL"
	RecommendationSell       Recommendation = "SELL"
	RecommendationHold       Recommendation = "HOLD"
	RecommendationBuy        Recommendation = "BUY"
	RecommendationStrongBuy  Recommendation = "STRONG_BUY"
)

// IsBuy reports BUY or STRONG_BUY
func (r Recommendation) IsBuy() bool {
	return r == RecommendationBuy || r == RecommendationStrongBuy
}

// IsSell reports SELL or STRONG_SELL
func (r Recommendation) IsSell() bool {
	return r == RecommendationSell || r == RecommendationStrongSell
}

// FactorContribution is one line of a score explanation
type FactorContribution struct {
	Factor          Factor   `json:"factor"`
	RawScore        *float64 `json:"raw_score"`
	BaseWeight      float64  `json:"base_weight"`
	EffectiveWeight float64  `json:"effective_weight"`
	Contribution    float64  `json:"contribution"`
}

// ScoreExplanation makes a recommendation auditable
type ScoreExplanation struct {
	Factors        []FactorContribution `json:"factors"`
	Redistributed  []Factor             `json:"redistributed,omitempty"`
	Summary        string               `json:"summary"`
	WeightsVersion string               `json:"weights_version,omitempty"`
}

// CombinedScore is the weighted result of all factors
type CombinedScore struct {
	Value          float64            `json:"value"`
	Recommendation Recommendation     `json:"recommendation"`
	WeightsUsed    map[Factor]float64 `json:"weights_used"`
	Explanation    ScoreExplanation   `json:"explanation"`
}
