// Package metrics computes the four performance measures derived from a
// completed backtest's equity curve and trade log.
package metrics

import (
	"math"

	"fingraph-backtest/internal/portfolio"
)

// EquityPoint is one mark-to-market observation.
type EquityPoint struct {
	TimestampMs int64
	Value       float64
}

// TotalReturn is (last - first) / first, or 0 if first == 0 or the
// curve is empty.
func TotalReturn(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	first := curve[0].Value
	if first == 0 {
		return 0
	}
	last := curve[len(curve)-1].Value
	return (last - first) / first
}

// MaxDrawdown is the largest fractional decline from a running peak,
// always in [0, 1].
func MaxDrawdown(curve []EquityPoint) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Value
	maxDD := 0.0
	for _, pt := range curve {
		if pt.Value > peak {
			peak = pt.Value
		}
		dd := (peak - pt.Value) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// SharpeRatio annualizes the mean and population standard deviation of
// per-bar returns with factor 252, returning (mean*252 - rf) /
// (stddev*sqrt(252)). rf is the annualized risk-free rate. Returns 0 when
// fewer than two points exist, when all per-bar returns are skipped
// (every denominator is zero), or when the annualized denominator is
// zero.
func SharpeRatio(curve []EquityPoint, rf float64) float64 {
	if len(curve) < 2 {
		return 0
	}

	var returns []float64
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Value-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)

	annualizedMean := mean * 252
	annualizedStdDev := stdDev * math.Sqrt(252)
	if annualizedStdDev == 0 {
		return 0
	}
	return (annualizedMean - rf) / annualizedStdDev
}

// WinRate pairs trades by symbol in order — a BUY opens a slot, the next
// SELL for that symbol closes it and is profitable iff its price exceeds
// the opening BUY's price — and returns profitable pairs / completed
// pairs, 0 if no pair completed.
func WinRate(trades []portfolio.Trade) float64 {
	if len(trades) < 2 {
		return 0
	}

	openBuyPrice := make(map[string]float64)
	open := make(map[string]bool)
	profitable := 0
	completed := 0

	for _, t := range trades {
		switch t.Side {
		case portfolio.Buy:
			openBuyPrice[t.Symbol] = t.Price
			open[t.Symbol] = true
		case portfolio.Sell:
			if open[t.Symbol] {
				completed++
				if t.Price > openBuyPrice[t.Symbol] {
					profitable++
				}
				open[t.Symbol] = false
			}
		}
	}

	if completed == 0 {
		return 0
	}
	return float64(profitable) / float64(completed)
}
