package scoring

import (
	"github.com/bobmcallan/quorum/internal/models"
)

// NewsScore averages positive + 0.5*neutral over the scored articles;
// with nothing scored it is neutral.
func NewsScore(results []models.SentimentResult) float64 {
	if len(results) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, r := range results {
		sum += r.Sentiment.Positive + 0.5*r.Sentiment.Neutral
	}
	return clamp(sum / float64(len(results)))
}

// SocialScore is the Laplace-smoothed bullish share
func SocialScore(s *models.SocialSummary) float64 {
	if s == nil {
		return 0.5
	}
	return float64(s.Bullish+1) / float64(s.Bullish+s.Bearish+2)
}

// AnalystScore weights the recommendation trend from 1 (strong buy) down to
// 0 (strong sell). Nil when no analyst has an opinion.
func AnalystScore(a *models.AnalystData) *float64 {
	total := a.Total()
	if total == 0 {
		return nil
	}
	v := (float64(a.StrongBuy) + 0.75*float64(a.Buy) + 0.5*float64(a.Hold) + 0.25*float64(a.Sell)) / float64(total)
	return &v
}

// FundamentalScore averages the sub-scores of the metrics present; nil
// when none are.
func FundamentalScore(f *models.Fundamentals) *float64 {
	if f.IsEmpty() {
		return nil
	}
	var parts []float64
	if f.PE != nil {
		parts = append(parts, peScore(*f.PE))
	}
	if f.ROE != nil {
		parts = append(parts, roeScore(*f.ROE))
	}
	if f.DebtToEquity != nil {
		parts = append(parts, debtScore(*f.DebtToEquity))
	}
	if f.RevenueGrowth != nil {
		parts = append(parts, growthScore(*f.RevenueGrowth))
	}
	sum := 0.0
	for _, p := range parts {
		sum += p
	}
	v := sum / float64(len(parts))
	return &v
}

func peScore(pe float64) float64 {
	switch {
	case pe <= 0:
		return 0.2 // negative earnings
	case pe < 15:
		return 0.8
	case pe < 25:
		return 0.6
	case pe < 40:
		return 0.4
	default:
		return 0.2
	}
}

func roeScore(roe float64) float64 {
	switch {
	case roe >= 20:
		return 0.9
	case roe >= 15:
		return 0.75
	case roe >= 10:
		return 0.6
	case roe >= 0:
		return 0.4
	default:
		return 0.1
	}
}

func debtScore(de float64) float64 {
	switch {
	case de < 0:
		return 0.2 // negative equity
	case de <= 0.5:
		return 0.8
	case de <= 1:
		return 0.65
	case de <= 2:
		return 0.45
	default:
		return 0.25
	}
}

func growthScore(g float64) float64 {
	switch {
	case g >= 20:
		return 0.9
	case g >= 10:
		return 0.75
	case g >= 0:
		return 0.55
	case g >= -10:
		return 0.35
	default:
		return 0.15
	}
}

// Factors assembles factor scores from the collected inputs
func Factors(news []models.SentimentResult, social *models.SocialSummary, technical *models.TechnicalSnapshot, fundamentals *models.Fundamentals, analyst *models.AnalystData) models.FactorScores {
	tech := 0.5
	if technical != nil {
		tech = technical.TechnicalScore
	}
	return models.FactorScores{
		News:        NewsScore(news),
		Social:      SocialScore(social),
		Technical:   tech,
		Fundamental: FundamentalScore(fundamentals),
		Analyst:     AnalystScore(analyst),
	}
}
