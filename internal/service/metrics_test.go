package service

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestReturnsFromValuations(t *testing.T) {
	returns := returnsFromValuations([]float64{100, 110, 99})
	if len(returns) != 2 {
		t.Fatalf("len = %d, want 2", len(returns))
	}
	if !almostEqual(returns[0], 0.1) {
		t.Errorf("returns[0] = %f, want 0.1", returns[0])
	}
	if !almostEqual(returns[1], -0.1) {
		t.Errorf("returns[1] = %f, want -0.1", returns[1])
	}

	if got := returnsFromValuations([]float64{100}); got != nil {
		t.Errorf("single valuation should yield no returns, got %v", got)
	}
	if got := returnsFromValuations([]float64{0, 100}); len(got) != 0 {
		t.Errorf("zero base should be skipped, got %v", got)
	}
}

func TestSharpeRatio(t *testing.T) {
	if got := sharpeRatio(nil); got != 0 {
		t.Errorf("empty series sharpe = %f, want 0", got)
	}
	if got := sharpeRatio([]float64{0.01, 0.01, 0.01}); got != 0 {
		t.Errorf("zero-volatility sharpe = %f, want 0", got)
	}

	// Mean 0.01, sample std 0.02 over {−0.01, 0.01, 0.03}.
	got := sharpeRatio([]float64{-0.01, 0.01, 0.03})
	if !almostEqual(got, 0.5) {
		t.Errorf("sharpe = %f, want 0.5", got)
	}
}

func TestMaxDrawdown(t *testing.T) {
	if got := maxDrawdown([]float64{0.01, 0.02}); got != 0 {
		t.Errorf("rising curve drawdown = %f, want 0", got)
	}

	// 100 -> 110 -> 88 -> 96.8: trough is 20% below the 110 peak.
	got := maxDrawdown([]float64{0.10, -0.20, 0.10})
	if !almostEqual(got, -0.2) {
		t.Errorf("drawdown = %f, want -0.2", got)
	}
}

func TestHistoricalCVaR(t *testing.T) {
	if got := historicalCVaR(nil, 0.95); got != 0 {
		t.Errorf("empty series cvar = %f, want 0", got)
	}
	if got := historicalCVaR([]float64{0.01, 0.02, 0.03}, 0.95); got != 0 {
		t.Errorf("all-gains cvar = %f, want 0", got)
	}

	// 20 returns at 95%: the tail is the single worst observation.
	returns := make([]float64, 20)
	for i := range returns {
		returns[i] = 0.01
	}
	returns[7] = -0.08
	if got := historicalCVaR(returns, 0.95); !almostEqual(got, 0.08) {
		t.Errorf("cvar = %f, want 0.08", got)
	}

	// At 90% the tail widens to the two worst observations.
	returns[13] = -0.04
	if got := historicalCVaR(returns, 0.90); !almostEqual(got, 0.06) {
		t.Errorf("cvar = %f, want 0.06", got)
	}
}
