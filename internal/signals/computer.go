package signals

import (
	"fmt"
	"math"
	"time"

	"github.com/bobmcallan/quorum/internal/models"
)

// RuleWeights are the score contributions of each technical rule. A bullish
// reading adds the weight to the neutral 0.5 base, a bearish one subtracts it.
type RuleWeights struct {
	Version          string
	RSIExtreme       float64
	BollingerConfirm float64
	PriceVsSMA20     float64
	SMACross         float64
	MACDHistogram    float64
	PriceVsEMA12     float64
	PriceVsVWAP      float64
	PriceVsCloud     float64
	TenkanKijun      float64
}

// DefaultRuleWeights returns the current rule set
func DefaultRuleWeights() RuleWeights {
	return RuleWeights{
		Version:          "2024.1",
		RSIExtreme:       0.10,
		BollingerConfirm: 0.05,
		PriceVsSMA20:     0.05,
		SMACross:         0.10,
		MACDHistogram:    0.10,
		PriceVsEMA12:     0.05,
		PriceVsVWAP:      0.05,
		PriceVsCloud:     0.10,
		TenkanKijun:      0.05,
	}
}

// Signal thresholds on the technical score
const (
	BullishAt = 0.6
	BearishAt = 0.4
)

// Computer turns price history into a TechnicalSnapshot
type Computer struct {
	weights RuleWeights
	now     func() time.Time
}

// NewComputer creates a computer with the default rule weights
func NewComputer() *Computer {
	return NewComputerWithWeights(DefaultRuleWeights())
}

// NewComputerWithWeights creates a computer with custom rule weights
func NewComputerWithWeights(w RuleWeights) *Computer {
	return &Computer{weights: w, now: time.Now}
}

// SetClock overrides the time source used for ComputedAt
func (c *Computer) SetClock(now func() time.Time) {
	c.now = now
}

// Weights returns the rule weights in use
func (c *Computer) Weights() RuleWeights {
	return c.weights
}

// Compute calculates every indicator the history allows and scores them.
// history must be ordered oldest first. Indicators whose window is not met
// are left out, listed in Omitted and explained in Reasons.
func (c *Computer) Compute(history []models.OHLCV, timeframe string) *models.TechnicalSnapshot {
	snap := &models.TechnicalSnapshot{
		Timeframe:    timeframe,
		Bars:         len(history),
		Indicators:   make(map[string]float64),
		Omitted:      make(map[string]string),
		RulesVersion: c.weights.Version,
		ComputedAt:   c.now(),
	}

	bars := make([]models.OHLCV, 0, len(history))
	for _, b := range history {
		if b.Close > 0 && !math.IsNaN(b.Close) && !math.IsInf(b.Close, 0) {
			bars = append(bars, b)
		}
	}
	snap.Bars = len(bars)
	if len(bars) > 0 {
		snap.LastClose = bars[len(bars)-1].Close
	}

	c.collect(snap, bars)

	if len(snap.Indicators) == 0 {
		snap.Signal = models.SignalInsufficientData
		snap.TechnicalScore = 0.5
		snap.Reasons = append(snap.Reasons, "no indicator could be computed")
		return snap
	}

	c.score(snap)
	if len(snap.Omitted) == 0 {
		snap.Omitted = nil
	}
	return snap
}

func (c *Computer) collect(snap *models.TechnicalSnapshot, bars []models.OHLCV) {
	n := len(bars)
	skip := func(name, reason string) {
		snap.Omitted[name] = reason
		snap.Reasons = append(snap.Reasons, reason)
	}
	omit := func(name string, need int) {
		skip(name, fmt.Sprintf("%s: insufficient history (have %d bars, need %d)", name, n, need))
	}

	if v, ok := SMA(bars, 20); ok {
		snap.Indicators[models.IndicatorSMA20] = v
	} else {
		omit(models.IndicatorSMA20, MinBarsSMA20)
	}
	if v, ok := SMA(bars, 50); ok {
		snap.Indicators[models.IndicatorSMA50] = v
	} else {
		omit(models.IndicatorSMA50, MinBarsSMA50)
	}
	if v, ok := EMA(bars, 12); ok {
		snap.Indicators[models.IndicatorEMA12] = v
	} else {
		omit(models.IndicatorEMA12, MinBarsEMA12)
	}
	if v, ok := RSI(bars, 14); ok {
		snap.Indicators[models.IndicatorRSI14] = v
	} else {
		omit(models.IndicatorRSI14, MinBarsRSI14)
	}
	if line, sig, hist, ok := MACD(bars, 12, 26, 9); ok {
		snap.Indicators[models.IndicatorMACD] = line
		snap.Indicators[models.IndicatorMACDSignal] = sig
		snap.Indicators[models.IndicatorMACDHistogram] = hist
	} else {
		omit(models.IndicatorMACD, MinBarsMACD)
	}
	if upper, mid, lower, ok := Bollinger(bars, 20, 2); ok {
		snap.Indicators[models.IndicatorBollingerUpper] = upper
		snap.Indicators[models.IndicatorBollingerMid] = mid
		snap.Indicators[models.IndicatorBollingerLower] = lower
	} else {
		omit(models.IndicatorGroupBollinger, MinBarsBollinger)
	}
	if v, ok := VWAP(bars); ok {
		snap.Indicators[models.IndicatorVWAP] = v
	} else {
		skip(models.IndicatorVWAP, models.IndicatorVWAP+": no volume in history")
	}
	if cloud, ok := IchimokuCloud(bars); ok {
		snap.Indicators[models.IndicatorTenkan] = cloud.Tenkan
		snap.Indicators[models.IndicatorKijun] = cloud.Kijun
		snap.Indicators[models.IndicatorSenkouA] = cloud.SenkouA
		snap.Indicators[models.IndicatorSenkouB] = cloud.SenkouB
	} else {
		omit(models.IndicatorGroupIchimoku, MinBarsIchimoku)
	}
}

// score applies each rule whose inputs are present
func (c *Computer) score(snap *models.TechnicalSnapshot) {
	w := c.weights
	ind := snap.Indicators
	price := snap.LastClose
	total := 0.0
	triggered := 0

	apply := func(delta float64, reason string) {
		total += delta
		triggered++
		snap.Reasons = append(snap.Reasons, reason)
	}
	compare := func(name string, weight float64, label string) {
		ref, ok := ind[name]
		if !ok {
			return
		}
		switch {
		case price > ref:
			apply(weight, fmt.Sprintf("price above %s", label))
		case price < ref:
			apply(-weight, fmt.Sprintf("price below %s", label))
		}
	}

	if rsi, ok := ind[models.IndicatorRSI14]; ok {
		switch ClassifyRSI(rsi) {
		case "oversold":
			apply(w.RSIExtreme, fmt.Sprintf("RSI %.1f oversold", rsi))
			if lower, ok := ind[models.IndicatorBollingerLower]; ok && price < lower {
				apply(w.BollingerConfirm, "oversold: price below lower Bollinger band")
			}
		case "overbought":
			apply(-w.RSIExtreme, fmt.Sprintf("RSI %.1f overbought", rsi))
			if upper, ok := ind[models.IndicatorBollingerUpper]; ok && price > upper {
				apply(-w.BollingerConfirm, "overbought: price above upper Bollinger band")
			}
		}
	}

	compare(models.IndicatorSMA20, w.PriceVsSMA20, "SMA20")

	sma20, ok20 := ind[models.IndicatorSMA20]
	sma50, ok50 := ind[models.IndicatorSMA50]
	if ok20 && ok50 {
		switch {
		case sma20 > sma50:
			apply(w.SMACross, "SMA20 above SMA50")
		case sma20 < sma50:
			apply(-w.SMACross, "SMA20 below SMA50")
		}
	}

	if hist, ok := ind[models.IndicatorMACDHistogram]; ok {
		switch {
		case hist > 0:
			apply(w.MACDHistogram, "MACD histogram positive")
		case hist < 0:
			apply(-w.MACDHistogram, "MACD histogram negative")
		}
	}

	compare(models.IndicatorEMA12, w.PriceVsEMA12, "EMA12")
	compare(models.IndicatorVWAP, w.PriceVsVWAP, "VWAP")

	if a, ok := ind[models.IndicatorSenkouA]; ok {
		cloud := Ichimoku{
			Tenkan:  ind[models.IndicatorTenkan],
			Kijun:   ind[models.IndicatorKijun],
			SenkouA: a,
			SenkouB: ind[models.IndicatorSenkouB],
		}
		switch {
		case price > cloud.CloudTop():
			apply(w.PriceVsCloud, "price above Ichimoku cloud")
		case price < cloud.CloudBottom():
			apply(-w.PriceVsCloud, "price below Ichimoku cloud")
		}
		switch {
		case cloud.Tenkan > cloud.Kijun:
			apply(w.TenkanKijun, "Tenkan above Kijun")
		case cloud.Tenkan < cloud.Kijun:
			apply(-w.TenkanKijun, "Tenkan below Kijun")
		}
	}

	snap.TechnicalScore = math.Max(0, math.Min(1, 0.5+total))
	snap.Signal = ClassifyScore(snap.TechnicalScore)
	if triggered == 0 {
		snap.Reasons = append(snap.Reasons, "no rule triggered")
	}
}

// ClassifyScore maps a technical score to a signal
func ClassifyScore(score float64) models.TechnicalSignal {
	switch {
	case score >= BullishAt:
		return models.SignalBullish
	case score <= BearishAt:
		return models.SignalBearish
	default:
		return models.SignalNeutral
	}
}
