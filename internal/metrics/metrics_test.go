package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"fingraph-backtest/internal/portfolio"
)

func TestTotalReturn_WorkedExample(t *testing.T) {
	curve := []EquityPoint{{Value: 1000}, {Value: 1180}}
	assert.InDelta(t, 0.18, TotalReturn(curve), 1e-9)
}

func TestTotalReturn_EmptyCurve(t *testing.T) {
	assert.Equal(t, 0.0, TotalReturn(nil))
}

func TestMaxDrawdown_LargestDeclineFromPeak(t *testing.T) {
	curve := []EquityPoint{{Value: 100}, {Value: 90}, {Value: 95}, {Value: 80}}
	assert.InDelta(t, 0.2, MaxDrawdown(curve), 1e-9)
}

func TestMaxDrawdown_ConstantIsZero(t *testing.T) {
	curve := []EquityPoint{{Value: 100}, {Value: 100}, {Value: 100}}
	assert.Equal(t, 0.0, MaxDrawdown(curve))
}

func TestSharpeRatio_ConstantReturnsZero(t *testing.T) {
	curve := []EquityPoint{{Value: 100}, {Value: 100}, {Value: 100}}
	assert.Equal(t, 0.0, SharpeRatio(curve, 0))
}

func TestSharpeRatio_TooShort(t *testing.T) {
	assert.Equal(t, 0.0, SharpeRatio([]EquityPoint{{Value: 100}}, 0))
}

func TestWinRate_NoTrades(t *testing.T) {
	assert.Equal(t, 0.0, WinRate(nil))
}

func TestWinRate_OneCompletedWinningPair(t *testing.T) {
	now := time.Now()
	trades := []portfolio.Trade{
		{Symbol: "DEFAULT", Side: portfolio.Buy, Quantity: 10, Price: 10, Timestamp: now},
		{Symbol: "DEFAULT", Side: portfolio.Sell, Quantity: 10, Price: 12, Timestamp: now},
	}
	assert.Equal(t, 1.0, WinRate(trades))
}

func TestWinRate_UnrealizedPositionNotCounted(t *testing.T) {
	trades := []portfolio.Trade{
		{Symbol: "DEFAULT", Side: portfolio.Buy, Quantity: 10, Price: 10, Timestamp: time.Now()},
	}
	assert.Equal(t, 0.0, WinRate(trades))
}
