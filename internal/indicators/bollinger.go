package indicators

import "math"

// BollingerResult holds the upper/middle/lower band values at the
// latest bar (spec.md §4.7: "Bollinger = SMA20 ± 2·stddev").
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger computes the bands over the trailing period (20) closes
// using the population standard deviation around the simple moving
// average.
func Bollinger(closes []float64, period int, stdDevMultiplier float64) BollingerResult {
	n := len(closes)
	if n < period {
		return BollingerResult{}
	}

	window := closes[n-period:]

	var sum float64
	for _, c := range window {
		sum += c
	}
	mean := sum / float64(period)

	var sqDiffSum float64
	for _, c := range window {
		d := c - mean
		sqDiffSum += d * d
	}
	stdDev := math.Sqrt(sqDiffSum / float64(period))

	return BollingerResult{
		Upper:  mean + stdDevMultiplier*stdDev,
		Middle: mean,
		Lower:  mean - stdDevMultiplier*stdDev,
	}
}
