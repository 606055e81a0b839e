// Package signals computes technical indicators and the technical factor
package signals

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/bobmcallan/quorum/internal/models"
)

// Minimum bars required by each indicator group
const (
	MinBarsSMA20     = 20
	MinBarsSMA50     = 50
	MinBarsEMA12     = 12
	MinBarsRSI14     = 15
	MinBarsMACD      = 34
	MinBarsBollinger = 20
	MinBarsIchimoku  = 52
)

// Closes extracts closing prices, oldest first
func Closes(bars []models.OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// SMA returns the simple moving average of the last period closes
func SMA(bars []models.OHLCV, period int) (float64, bool) {
	if period <= 0 || len(bars) < period {
		return 0, false
	}
	return last(talib.Sma(Closes(bars), period))
}

// EMA returns the exponential moving average at the last bar
func EMA(bars []models.OHLCV, period int) (float64, bool) {
	if period <= 0 || len(bars) < period {
		return 0, false
	}
	return last(talib.Ema(Closes(bars), period))
}

// RSI returns Wilder's relative strength index; it needs period+1 bars.
// A window with no movement at all reads 50.
func RSI(bars []models.OHLCV, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}
	closes := Closes(bars)
	if flat(closes[len(closes)-period-1:]) {
		return 50, true
	}
	return last(talib.Rsi(closes, period))
}

// MACD returns the line, signal and histogram at the last bar
func MACD(bars []models.OHLCV, fast, slow, signal int) (line, sig, hist float64, ok bool) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(bars) < slow+signal-1 {
		return 0, 0, 0, false
	}
	m, s, h := talib.Macd(Closes(bars), fast, slow, signal)
	line, ok1 := last(m)
	sig, ok2 := last(s)
	hist, ok3 := last(h)
	return line, sig, hist, ok1 && ok2 && ok3
}

// Bollinger returns the bands around an SMA at k standard deviations
func Bollinger(bars []models.OHLCV, period int, k float64) (upper, middle, lower float64, ok bool) {
	if period <= 1 || len(bars) < period {
		return 0, 0, 0, false
	}
	u, m, l := talib.BBands(Closes(bars), period, k, k, talib.SMA)
	upper, ok1 := last(u)
	middle, ok2 := last(m)
	lower, ok3 := last(l)
	return upper, middle, lower, ok1 && ok2 && ok3
}

// VWAP returns the volume weighted typical price over all bars. It is
// unavailable when the series carries no volume.
func VWAP(bars []models.OHLCV) (float64, bool) {
	var pv, vol float64
	for _, b := range bars {
		if b.Volume <= 0 {
			continue
		}
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * b.Volume
		vol += b.Volume
	}
	if vol <= 0 {
		return 0, false
	}
	return pv / vol, true
}

// Ichimoku holds the cloud levels at the last bar
type Ichimoku struct {
	Tenkan  float64
	Kijun   float64
	SenkouA float64
	SenkouB float64
}

// CloudTop returns the upper edge of the cloud
func (i Ichimoku) CloudTop() float64 { return math.Max(i.SenkouA, i.SenkouB) }

// CloudBottom returns the lower edge of the cloud
func (i Ichimoku) CloudBottom() float64 { return math.Min(i.SenkouA, i.SenkouB) }

// IchimokuCloud computes the 9/26/52 lines at the last bar. Spans are not
// displaced forward; the cloud is compared against the current close.
func IchimokuCloud(bars []models.OHLCV) (Ichimoku, bool) {
	if len(bars) < MinBarsIchimoku {
		return Ichimoku{}, false
	}
	tenkan := midpoint(bars, 9)
	kijun := midpoint(bars, 26)
	return Ichimoku{
		Tenkan:  tenkan,
		Kijun:   kijun,
		SenkouA: (tenkan + kijun) / 2,
		SenkouB: midpoint(bars, 52),
	}, true
}

// midpoint is (highest high + lowest low) / 2 over the last n bars
func midpoint(bars []models.OHLCV, n int) float64 {
	window := bars[len(bars)-n:]
	hi, lo := window[0].High, window[0].Low
	for _, b := range window[1:] {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	return (hi + lo) / 2
}

// ClassifyRSI classifies RSI into overbought/oversold/neutral
func ClassifyRSI(rsi float64) string {
	if rsi >= 70 {
		return "overbought"
	}
	if rsi <= 30 {
		return "oversold"
	}
	return "neutral"
}

// DistanceToSMA calculates percentage distance from SMA
func DistanceToSMA(price, sma float64) float64 {
	if sma == 0 {
		return 0
	}
	return ((price - sma) / sma) * 100
}

func last(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func flat(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}
