package strategy

import (
	"fingraph-backtest/internal/market"
	"fingraph-backtest/internal/simerr"
)

func init() {
	register("RSI Mean Reversion", func() Strategy {
		return &RSIMeanReversion{period: 14, oversold: 30.0, overbought: 70.0}
	})
}

// RSIMeanReversion signals BUY when Wilder-style RSI drops to or below
// the oversold threshold, and SELL when it rises to or above the
// overbought threshold.
type RSIMeanReversion struct {
	period     int
	oversold   float64
	overbought float64

	rsi []float64 // 0 where not ready
}

func (r *RSIMeanReversion) Name() string { return "RSI Mean Reversion" }

func (r *RSIMeanReversion) Description() string {
	return "Buys when Wilder-style RSI drops to the oversold threshold and sells when it rises to the overbought threshold."
}

func (r *RSIMeanReversion) Describe() []ParamSpec {
	return []ParamSpec{
		{Name: "period", Type: "int", Default: 14, Min: 2, Max: 200, Description: "RSI lookback window, in bars"},
		{Name: "oversoldThreshold", Type: "float", Default: 30.0, Min: 0, Max: 100, Description: "RSI level at or below which to buy"},
		{Name: "overboughtThreshold", Type: "float", Default: 70.0, Min: 0, Max: 100, Description: "RSI level at or above which to sell"},
	}
}

func (r *RSIMeanReversion) UpdateParameters(params map[string]float64) {
	if v, ok := params["period"]; ok {
		r.period = int(v)
	}
	if v, ok := params["oversoldThreshold"]; ok {
		r.oversold = v
	}
	if v, ok := params["overboughtThreshold"]; ok {
		r.overbought = v
	}
}

func (r *RSIMeanReversion) Initialize(series *market.Series) error {
	if series.Len() < r.period {
		return simerr.New(simerr.CodeInsufficientData, "not enough data for RSI calculation")
	}

	bars := series.Bars()
	n := len(bars)
	gains := make([]float64, n)
	losses := make([]float64, n)

	for i := 1; i < n; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	r.rsi = make([]float64, n)

	var gainSum, lossSum float64
	for i := r.period; i < n; i++ {
		gainSum = 0
		lossSum = 0
		for j := i - r.period + 1; j <= i; j++ {
			gainSum += gains[j]
			lossSum += losses[j]
		}
		avgGain := gainSum / float64(r.period)
		avgLoss := lossSum / float64(r.period)

		if avgLoss == 0 {
			// RS diverges to infinity; RSI saturates at 100 regardless
			// of avgGain (including the all-flat case, avgGain == 0).
			r.rsi[i] = 100.0
			continue
		}
		rs := avgGain / avgLoss
		r.rsi[i] = 100.0 - (100.0 / (1.0 + rs))
	}
	return nil
}

func (r *RSIMeanReversion) GenerateSignal(index int) Signal {
	if index < r.period || index >= len(r.rsi) {
		return SignalNone
	}

	rsi := r.rsi[index]
	if rsi <= r.oversold {
		return SignalBuy
	}
	if rsi >= r.overbought {
		return SignalSell
	}
	return SignalNone
}
