// Package indicators computes the technical indicator set MarketState
// carries (spec.md §4.7). The five normative indicators (EMA, RSI,
// MACD, Bollinger, ATR) are hand-rolled with the mandated accumulation
// order so backtest and live runs agree bit-for-bit; volume-ratio and
// ADX are auxiliary, non-normative metrics computed with
// cinar/indicator/v2 and a hand-rolled Wilder smoother respectively.
package indicators

import "github.com/cryptoctl/tradeengine/internal/domain"

const (
	emaFastPeriod    = 12
	emaSlowPeriod    = 26
	rsiPeriod        = 14
	bollingerPeriod  = 20
	bollingerStdDevs = 2.0
	atrPeriod        = 14
	volumePeriod     = 20
)

// Compute derives the full Indicators set from a candle window, using
// each candle's close/high/low/volume in chronological order.
func Compute(candles []domain.Candle) domain.Indicators {
	if len(candles) == 0 {
		return domain.Indicators{}
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
		volumes[i] = c.Volume
	}

	emaFast := Last(EMA(closes, emaFastPeriod))
	emaSlow := Last(EMA(closes, emaSlowPeriod))
	rsi := Last(RSI(closes, rsiPeriod))
	macd := MACD(closes)
	boll := Bollinger(closes, bollingerPeriod, bollingerStdDevs)
	atr := Last(ATR(highs, lows, closes, atrPeriod))
	volumeRatio := VolumeRatio(volumes, volumePeriod)

	return domain.Indicators{
		EMAFast:     emaFast,
		EMASlow:     emaSlow,
		RSI:         rsi,
		MACD:        macd.MACD,
		MACDSignal:  macd.Signal,
		MACDHist:    macd.Histogram,
		BollUpper:   boll.Upper,
		BollMiddle:  boll.Middle,
		BollLower:   boll.Lower,
		ATR:         atr,
		VolumeRatio: volumeRatio,
	}
}

// TrendStrength classifies an ADX reading; auxiliary to Compute and
// consulted directly by the technical-analysis agent when it wants a
// trend-strength signal beyond the normative Indicators set.
func TrendStrength(candles []domain.Candle, period int) float64 {
	if len(candles) == 0 {
		return 0
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	return ADX(highs, lows, closes, period)
}
