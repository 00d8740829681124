package indicators

import (
	"github.com/cinar/indicator/v2/trend"
)

// VolumeRatio returns the latest volume divided by its trailing
// simple moving average over period, an auxiliary momentum signal (not
// part of spec.md §4.7's normative set). Uses cinar/indicator/v2's SMA
// since volume-ratio has no fixed-accumulation-order correctness
// requirement the way the five normative indicators do.
func VolumeRatio(volumes []float64, period int) float64 {
	if len(volumes) < period || period < 1 {
		return 0
	}

	volChan := make(chan float64, len(volumes))
	for _, v := range volumes {
		volChan <- v
	}
	close(volChan)

	smaChan := trend.NewSmaWithPeriod[float64](period).Compute(volChan)

	var smaValues []float64
	for v := range smaChan {
		smaValues = append(smaValues, v)
	}
	if len(smaValues) == 0 {
		return 0
	}

	avg := smaValues[len(smaValues)-1]
	if avg == 0 {
		return 0
	}
	return volumes[len(volumes)-1] / avg
}
