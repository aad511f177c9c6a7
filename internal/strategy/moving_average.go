package strategy

import (
	"fingraph-backtest/internal/market"
	"fingraph-backtest/internal/simerr"
)

func init() {
	register("Moving Average Crossover", func() Strategy {
		return &MovingAverageCrossover{shortPeriod: 10, longPeriod: 30}
	})
}

// MovingAverageCrossover signals BUY on a bullish crossover of the short
// SMA over the long SMA, and SELL on a bearish crossover.
type MovingAverageCrossover struct {
	shortPeriod int
	longPeriod  int

	shortMA []float64 // 0 where not ready
	longMA  []float64
}

func (m *MovingAverageCrossover) Name() string { return "Moving Average Crossover" }

func (m *MovingAverageCrossover) Description() string {
	return "Buys on a bullish crossover of the short SMA over the long SMA and sells on a bearish crossover."
}

func (m *MovingAverageCrossover) Describe() []ParamSpec {
	return []ParamSpec{
		{Name: "shortPeriod", Type: "int", Default: 10, Min: 1, Max: 500, Description: "short SMA window, in bars"},
		{Name: "longPeriod", Type: "int", Default: 30, Min: 2, Max: 1000, Description: "long SMA window, in bars"},
	}
}

func (m *MovingAverageCrossover) UpdateParameters(params map[string]float64) {
	if v, ok := params["shortPeriod"]; ok {
		m.shortPeriod = int(v)
	}
	if v, ok := params["longPeriod"]; ok {
		m.longPeriod = int(v)
	}
}

func (m *MovingAverageCrossover) Initialize(series *market.Series) error {
	if series.Len() < m.longPeriod {
		return simerr.New(simerr.CodeInsufficientData, "not enough data for long-period moving average")
	}

	closes := make([]float64, series.Len())
	for i, b := range series.Bars() {
		closes[i] = b.Close
	}

	m.shortMA = make([]float64, len(closes))
	m.longMA = make([]float64, len(closes))

	var shortSum, longSum float64
	for i, c := range closes {
		shortSum += c
		if i >= m.shortPeriod {
			shortSum -= closes[i-m.shortPeriod]
		}
		if i+1 >= m.shortPeriod {
			m.shortMA[i] = shortSum / float64(m.shortPeriod)
		}

		longSum += c
		if i >= m.longPeriod {
			longSum -= closes[i-m.longPeriod]
		}
		if i+1 >= m.longPeriod {
			m.longMA[i] = longSum / float64(m.longPeriod)
		}
	}
	return nil
}

func (m *MovingAverageCrossover) GenerateSignal(index int) Signal {
	if index < m.longPeriod || index >= len(m.shortMA) {
		return SignalNone
	}

	if index == m.longPeriod {
		// The long SMA became defined only one bar earlier (at
		// index-1), so there is no real prior relation to compare
		// against. Treat the first eligible bar as an entry signal in
		// whichever direction the two SMAs already sit.
		if m.shortMA[index] > m.longMA[index] {
			return SignalBuy
		}
		if m.shortMA[index] < m.longMA[index] {
			return SignalSell
		}
		return SignalNone
	}

	wasBelow := m.shortMA[index-1] < m.longMA[index-1]
	isAbove := m.shortMA[index] > m.longMA[index]
	if wasBelow && isAbove {
		return SignalBuy
	}

	wasAbove := m.shortMA[index-1] > m.longMA[index-1]
	isBelow := m.shortMA[index] < m.longMA[index]
	if wasAbove && isBelow {
		return SignalSell
	}

	return SignalNone
}
