package service

import (
	"math"
	"sort"
)

// returnsFromValuations converts a portfolio valuation series into
// per-period simple returns. Zero or negative valuations are skipped to
// avoid dividing by a meaningless base.
func returnsFromValuations(valuations []float64) []float64 {
	if len(valuations) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(valuations)-1)
	for i := 1; i < len(valuations); i++ {
		if valuations[i-1] <= 0 {
			continue
		}
		returns = append(returns, (valuations[i]-valuations[i-1])/valuations[i-1])
	}
	return returns
}

func meanStd(returns []float64) (mean, std float64) {
	if len(returns) == 0 {
		return 0, 0
	}
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	if len(returns) < 2 {
		return mean, 0
	}
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	return mean, math.Sqrt(variance)
}

// sharpeRatio is the per-period mean return over its standard deviation.
// Returns 0 when volatility is zero or the series is too short to measure.
func sharpeRatio(returns []float64) float64 {
	mean, std := meanStd(returns)
	if std == 0 {
		return 0
	}
	return mean / std
}

// maxDrawdown is the deepest trough of the cumulative-return curve,
// expressed as a negative number (0 when the curve never dips).
func maxDrawdown(returns []float64) float64 {
	cumulative := 1.0
	peak := 1.0
	worst := 0.0
	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > peak {
			peak = cumulative
		}
		dd := cumulative/peak - 1
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

// historicalCVaR is the expected loss beyond the Value-at-Risk threshold at
// the given confidence level, reported as a positive loss fraction.
// Returns 0 for an empty series or when the tail holds no losses.
func historicalCVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)

	tail := int(math.Ceil(float64(len(sorted)) * (1 - confidence)))
	if tail < 1 {
		tail = 1
	}

	var sum float64
	for _, r := range sorted[:tail] {
		sum += r
	}
	avg := sum / float64(tail)
	if avg >= 0 {
		return 0
	}
	return -avg
}
