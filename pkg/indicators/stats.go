package indicators

import (
	"math"
	"sort"
)

// TradingDaysPerYear annualizes daily volatility.
const TradingDaysPerYear = 252

// SimpleReturns returns close-to-close percentage changes; len(out) == len(closes)-1.
func SimpleReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			out[i-1] = closes[i]/closes[i-1] - 1
		}
	}
	return out
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SampleStddev uses the n-1 denominator. Fewer than two values yields 0.
func SampleStddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

// MaxDrawdown returns the largest peak-to-trough decline as a fraction in [0, 1].
func MaxDrawdown(closes []float64) float64 {
	peak := math.Inf(-1)
	maxDD := 0.0
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			if dd := (peak - c) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return ClampFloat64(maxDD, 0, 1)
}

// Quantile returns the q-quantile with linear interpolation between order statistics.
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	q = ClampFloat64(q, 0, 1)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func ClampFloat64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
