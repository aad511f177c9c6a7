package kernel

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fingraph-backtest/internal/market"
	"fingraph-backtest/internal/strategy"
)

func seriesFromCloses(closes []float64) *market.Series {
	var b strings.Builder
	b.WriteString("timestamp,open,high,low,close,volume\n")
	for day, c := range closes {
		fmt.Fprintf(&b, "2023-%02d-%02d,%g,%g,%g,%g,100\n",
			day/28+1, day%28+1, c, c+1, c-1, c)
	}
	series, _, err := market.LoadFromReader(strings.NewReader(b.String()))
	if err != nil {
		panic(err)
	}
	return series
}

func TestRun_MACrossoverWorkedExample(t *testing.T) {
	series := seriesFromCloses([]float64{10, 10, 12, 11, 13})

	strat, ok := strategy.New("Moving Average Crossover")
	require.True(t, ok)
	strat.UpdateParameters(map[string]float64{"shortPeriod": 2, "longPeriod": 3})
	require.NoError(t, strat.Initialize(series))

	result, _, err := Run(series, strat, 1000, Options{})
	require.NoError(t, err)

	require.Len(t, result.Trades, 1)
	assert.Equal(t, 90.0, result.Trades[0].Quantity)
	assert.InDelta(t, 11, result.Trades[0].Price, 1e-9)

	require.Len(t, result.EquityCurve, 5)
	finalEquity := result.EquityCurve[4].Value
	assert.InDelta(t, 1180, finalEquity, 1e-9)
	assert.InDelta(t, 0.18, result.TotalReturn, 1e-9)
}

func TestRun_RSIConstantCloses_NoTrades(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 5
	}
	series := seriesFromCloses(closes)

	strat, _ := strategy.New("RSI Mean Reversion")
	strat.UpdateParameters(map[string]float64{"period": 14})
	require.NoError(t, strat.Initialize(series))

	result, _, err := Run(series, strat, 1000, Options{})
	require.NoError(t, err)

	assert.Empty(t, result.Trades)
	assert.Equal(t, 0.0, result.SharpeRatio)
	assert.Equal(t, 0.0, result.MaxDrawdown)
	assert.Equal(t, 0.0, result.WinRate)
	for _, pt := range result.EquityCurve {
		assert.InDelta(t, 1000, pt.Value, 1e-9)
	}
}

func TestRun_CashSmallerThanFirstClose_NoTrades(t *testing.T) {
	series := seriesFromCloses([]float64{10, 10, 12, 11, 13})
	strat, _ := strategy.New("Moving Average Crossover")
	strat.UpdateParameters(map[string]float64{"shortPeriod": 2, "longPeriod": 3})
	require.NoError(t, strat.Initialize(series))

	result, _, err := Run(series, strat, 5, Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Trades)
	for _, pt := range result.EquityCurve {
		assert.InDelta(t, 5, pt.Value, 1e-9)
	}
}

func TestRun_Determinism(t *testing.T) {
	series := seriesFromCloses([]float64{10, 10, 12, 11, 13, 14, 15, 9, 8, 10})

	run := func() *Result {
		strat, _ := strategy.New("Moving Average Crossover")
		strat.UpdateParameters(map[string]float64{"shortPeriod": 2, "longPeriod": 3})
		require.NoError(t, strat.Initialize(series))
		result, _, err := Run(series, strat, 1000, Options{})
		require.NoError(t, err)
		return result
	}

	first := run()
	for i := 0; i < 10; i++ {
		next := run()
		assert.Equal(t, first.TotalReturn, next.TotalReturn)
		assert.Equal(t, first.Trades, next.Trades)
		assert.Equal(t, first.EquityCurve, next.EquityCurve)
	}
}

func TestRun_InvariantsHoldPerBar(t *testing.T) {
	series := seriesFromCloses([]float64{10, 10, 12, 11, 13, 14, 15, 9, 8, 10, 11, 12})
	strat, _ := strategy.New("RSI Mean Reversion")
	strat.UpdateParameters(map[string]float64{"period": 5})
	require.NoError(t, strat.Initialize(series))

	result, _, err := Run(series, strat, 1000, Options{})
	require.NoError(t, err)
	for _, pt := range result.EquityCurve {
		assert.GreaterOrEqual(t, pt.Value, 0.0)
	}
	assert.GreaterOrEqual(t, result.MaxDrawdown, 0.0)
	assert.LessOrEqual(t, result.MaxDrawdown, 1.0)
	assert.GreaterOrEqual(t, result.WinRate, 0.0)
	assert.LessOrEqual(t, result.WinRate, 1.0)
}
