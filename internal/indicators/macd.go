package indicators

// MACDResult holds the three MACD series values at the latest bar
// (spec.md §4.7: "MACD = EMA12-EMA26, signal = EMA9 of MACD,
// histogram = MACD-signal").
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the full MACD/signal/histogram triplet from closes
// using the fixed 12/26/9 periods.
func MACD(closes []float64) MACDResult {
	if len(closes) == 0 {
		return MACDResult{}
	}

	fast := EMA(closes, 12)
	slow := EMA(closes, 26)

	macdLine := make([]float64, len(closes))
	for i := range closes {
		macdLine[i] = fast[i] - slow[i]
	}

	signalLine := EMA(macdLine, 9)

	macd := Last(macdLine)
	signal := Last(signalLine)
	return MACDResult{MACD: macd, Signal: signal, Histogram: macd - signal}
}
