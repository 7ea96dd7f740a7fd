package strategy

import "math"

// WilderRSI computes the relative strength index with Wilder smoothing over
// the whole series: the first length changes seed the averages, the rest are
// smoothed in. It returns NaN when fewer than length+1 closes are given.
func WilderRSI(closes []float64, length int) float64 {
	if length <= 0 || len(closes) < length+1 {
		return math.NaN()
	}

	var avgGain, avgLoss float64
	for i := 1; i <= length; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(length)
	avgLoss /= float64(length)

	for i := length + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(length-1) + gain) / float64(length)
		avgLoss = (avgLoss*float64(length-1) + loss) / float64(length)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// EMA returns the exponential moving average of the series, seeded with the
// simple average of the first length closes. NaN when the series is shorter.
func EMA(closes []float64, length int) float64 {
	if length <= 0 || len(closes) < length {
		return math.NaN()
	}

	var sum float64
	for _, c := range closes[:length] {
		sum += c
	}
	ema := sum / float64(length)

	k := 2 / float64(length+1)
	for _, c := range closes[length:] {
		ema = (c-ema)*k + ema
	}
	return ema
}
