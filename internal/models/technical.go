package models

import "time"

// OHLCV is one bar of history. Series are ordered oldest first.
type OHLCV struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// TechnicalSignal is the textual verdict of the indicator rules
type TechnicalSignal string

const (
	SignalBullish          TechnicalSignal = "BULLISH"
	SignalBearish          TechnicalSignal = "BEARISH"
	SignalNeutral          TechnicalSignal = "NEUTRAL"
	SignalInsufficientData TechnicalSignal = "INSUFFICIENT_DATA"
)

// Indicator names used as TechnicalSnapshot.Indicators keys
const (
	IndicatorSMA20          = "sma_20"
	IndicatorSMA50          = "sma_50"
	IndicatorEMA12          = "ema_12"
	IndicatorRSI14          = "rsi_14"
	IndicatorMACD           = "macd"
	IndicatorMACDSignal     = "macd_signal"
	IndicatorMACDHistogram  = "macd_histogram"
	IndicatorBollingerUpper = "bollinger_upper"
	IndicatorBollingerMid   = "bollinger_middle"
	IndicatorBollingerLower = "bollinger_lower"
	IndicatorVWAP           = "vwap"
	IndicatorTenkan         = "ichimoku_tenkan"
	IndicatorKijun          = "ichimoku_kijun"
	IndicatorSenkouA        = "ichimoku_senkou_a"
	IndicatorSenkouB        = "ichimoku_senkou_b"
)

// Indicator groups that share one history window, used as Omitted keys
const (
	IndicatorGroupBollinger = "bollinger"
	IndicatorGroupIchimoku  = "ichimoku"
)

// TechnicalSnapshot holds the indicators that could be computed plus the
// derived signal. Omitted maps an indicator group to why it is missing; the
// same text is also listed in Reasons ahead of the rule outcomes.
type TechnicalSnapshot struct {
	Timeframe      string             `json:"timeframe"`
	Bars           int                `json:"bars"`
	LastClose      float64            `json:"last_close"`
	Indicators     map[string]float64 `json:"indicators"`
	Omitted        map[string]string  `json:"omitted,omitempty"`
	Signal         TechnicalSignal    `json:"signal"`
	Reasons        []string           `json:"reasons"`
	TechnicalScore float64            `json:"technical_score"`
	RulesVersion   string             `json:"rules_version,omitempty"`
	ComputedAt     time.Time          `json:"computed_at"`
}

// Has reports whether the named indicator was computed
func (s *TechnicalSnapshot) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.Indicators[name]
	return ok
}

// Timeframes maps a supported timeframe to its approximate calendar span
var Timeframes = map[string]time.Duration{
	"1mo": 31 * 24 * time.Hour,
	"3mo": 92 * 24 * time.Hour,
	"6mo": 183 * 24 * time.Hour,
	"1y":  366 * 24 * time.Hour,
	"2y":  731 * 24 * time.Hour,
}

// ValidTimeframe reports whether tf is supported
func ValidTimeframe(tf string) bool {
	_, ok := Timeframes[tf]
	return ok
}
