package indicators

// RSI computes the Relative Strength Index using Wilder smoothing over
// period (spec.md §4.7: "RSI uses Wilder smoothing over 14"). The
// first averaged gain/loss is a simple mean over the first period
// deltas; subsequent values apply Wilder's recursive smoothing
// ((prevAvg*(period-1) + current) / period), matching the accumulation
// order the original Wilder formula specifies.
func RSI(closes []float64, period int) []float64 {
	n := len(closes)
	if n < period+1 {
		return nil
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	out := make([]float64, n)

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiFromAverages(avgGain, avgLoss)

	for i := period + 1; i < n; i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out[i] = rsiFromAverages(avgGain, avgLoss)
	}

	return out[period:]
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}
