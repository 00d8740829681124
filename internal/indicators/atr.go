package indicators

import "math"

// ATR computes the Average True Range using Wilder smoothing over
// period (spec.md §4.7: "ATR uses Wilder smoothing of true range over
// 14"), mirroring the same recursive-average shape RSI and ADX use.
func ATR(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	if n < period+1 {
		return nil
	}

	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		highLow := highs[i] - lows[i]
		highPrevClose := math.Abs(highs[i] - closes[i-1])
		lowPrevClose := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(highLow, math.Max(highPrevClose, lowPrevClose))
	}

	out := make([]float64, n)

	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	avg := sum / float64(period)
	out[period] = avg

	for i := period + 1; i < n; i++ {
		avg = (avg*float64(period-1) + tr[i]) / float64(period)
		out[i] = avg
	}

	return out[period:]
}
