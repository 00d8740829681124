package indicators

// EMA computes the exponential moving average series for period,
// seeded with the first price and multiplier 2/(N+1) (spec.md §4.7:
// "EMA uses the seed price[0] then multiplier 2/(N+1)"). The
// accumulation order is fixed left-to-right over closes so backtest
// and live runs produce bit-identical values from identical inputs.
func EMA(closes []float64, period int) []float64 {
	if len(closes) == 0 || period < 1 {
		return nil
	}

	out := make([]float64, len(closes))
	multiplier := 2.0 / (float64(period) + 1)

	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = (closes[i]-out[i-1])*multiplier + out[i-1]
	}
	return out
}

// Last returns the final value of a series, or 0 for an empty one.
func Last(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}
