// Package indicators computes technical indicators over a whole price series at once.
// Every output slice has the same length as its input; bars inside the warm-up window are NaN.
package indicators

import "math"

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA calculates the simple moving average.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA calculates the exponential moving average, seeded with the SMA of the first period values.
// Leading NaNs in the input are skipped so EMA can run over another indicator's output.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if period <= 0 || len(values)-start < period {
		return out
	}

	multiplier := 2.0 / (float64(period) + 1.0)
	sum := 0.0
	for i := start; i < start+period; i++ {
		sum += values[i]
	}
	ema := sum / float64(period)
	out[start+period-1] = ema

	for i := start + period; i < len(values); i++ {
		ema = (values[i] * multiplier) + (ema * (1 - multiplier))
		out[i] = ema
	}
	return out
}

// RSI calculates Wilder's relative strength index. A flat window reads 50.
func RSI(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period+1 {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := splitChange(values[i] - values[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		gain, loss := splitChange(values[i] - values[i-1])
		// Smoothed averages
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func splitChange(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	return 0, -change
}

func rsiValue(avgGain, avgLoss float64) float64 {
	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACD returns the MACD line, its signal line and the histogram.
func MACD(values []float64, fast, slow, signal int) (line, signalLine, hist []float64) {
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)

	line = nanSlice(len(values))
	for i := range values {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			line[i] = emaFast[i] - emaSlow[i]
		}
	}

	signalLine = EMA(line, signal)
	hist = nanSlice(len(values))
	for i := range values {
		if !math.IsNaN(line[i]) && !math.IsNaN(signalLine[i]) {
			hist[i] = line[i] - signalLine[i]
		}
	}
	return line, signalLine, hist
}

// Bollinger returns upper, middle and lower bands using the population standard deviation.
func Bollinger(values []float64, period int, k float64) (upper, middle, lower []float64) {
	middle = SMA(values, period)
	upper = nanSlice(len(values))
	lower = nanSlice(len(values))

	for i := period - 1; i < len(values) && period > 0; i++ {
		sma := middle[i]
		var variance float64
		for j := i - period + 1; j <= i; j++ {
			diff := values[j] - sma
			variance += diff * diff
		}
		variance /= float64(period)
		stdDev := math.Sqrt(variance)

		upper[i] = sma + k*stdDev
		lower[i] = sma - k*stdDev
	}
	return upper, middle, lower
}

// Sub returns a-b element-wise; NaN propagates.
func Sub(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}
