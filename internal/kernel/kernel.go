// Package kernel implements the deterministic per-bar market replay
// loop: ask the strategy, apply the fixed all-in/all-out execution
// policy, mark to market.
package kernel

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"fingraph-backtest/internal/market"
	"fingraph-backtest/internal/metrics"
	"fingraph-backtest/internal/portfolio"
	"fingraph-backtest/internal/strategy"
)

const defaultSymbol = "DEFAULT"

// Result is the outcome of one backtest run.
type Result struct {
	TotalReturn float64
	SharpeRatio float64
	MaxDrawdown float64
	WinRate     float64
	Trades      []portfolio.Trade
	EquityCurve []metrics.EquityPoint
}

// DecisionState is one opt-in forensic trace entry recorded when a trade
// executes, adapted from a trade-replay recorder for debugging and audit
// rather than for any kernel decision itself.
type DecisionState struct {
	TradeID   string
	BarIndex  int
	Signal    strategy.Signal
	Trade     portfolio.Trade
	CashAfter float64
}

// Options tunes optional, purely observational kernel behavior. No field
// here changes trades, equity points, or metrics.
type Options struct {
	RecordDecisions bool
	Logger          *zap.Logger
	// Progress, if set, is called at bar-count milestones of
	// approximately 10% with a human-readable step description.
	Progress func(fraction float64, step string)
}

// Run replays series bar by bar against strategy, applying the fixed
// execution policy: ask the strategy for a signal; if BUY and the
// DEFAULT position is exactly 0, buy floor(cash/close) units all-in; else
// if SELL and position > 0, sell the entire position; then record an
// equity point. After the final bar it computes all four performance
// metrics.
func Run(series *market.Series, strat strategy.Strategy, initialCash float64, opts Options) (*Result, []DecisionState, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	port := portfolio.New(initialCash)
	bars := series.Bars()
	n := len(bars)

	curve := make([]metrics.EquityPoint, 0, n)
	var decisions []DecisionState

	milestone := n / 10
	if milestone == 0 {
		milestone = 1
	}

	for i, bar := range bars {
		signal := strat.GenerateSignal(i)

		switch {
		case signal == strategy.SignalBuy && port.Position(defaultSymbol) == 0:
			qty := floorDiv(port.Cash(), bar.Close)
			if qty >= 1 {
				trade := portfolio.Trade{
					Symbol:    defaultSymbol,
					Side:      portfolio.Buy,
					Quantity:  qty,
					Price:     bar.Close,
					Timestamp: bar.Timestamp,
				}
				if err := port.Apply(trade); err != nil {
					return nil, nil, err
				}
				if opts.RecordDecisions {
					decisions = append(decisions, DecisionState{
						TradeID:   uuid.NewString(),
						BarIndex:  i,
						Signal:    signal,
						Trade:     trade,
						CashAfter: port.Cash(),
					})
				}
			}
		case signal == strategy.SignalSell && port.Position(defaultSymbol) > 0:
			trade := portfolio.Trade{
				Symbol:    defaultSymbol,
				Side:      portfolio.Sell,
				Quantity:  port.Position(defaultSymbol),
				Price:     bar.Close,
				Timestamp: bar.Timestamp,
			}
			if err := port.Apply(trade); err != nil {
				return nil, nil, err
			}
			if opts.RecordDecisions {
				decisions = append(decisions, DecisionState{
					TradeID:   uuid.NewString(),
					BarIndex:  i,
					Signal:    signal,
					Trade:     trade,
					CashAfter: port.Cash(),
				})
			}
		}

		prices := map[string]float64{defaultSymbol: bar.Close}
		curve = append(curve, metrics.EquityPoint{
			TimestampMs: bar.Timestamp.UnixMilli(),
			Value:       port.TotalValue(prices),
		})

		if opts.Progress != nil && (i+1)%milestone == 0 {
			opts.Progress(float64(i+1)/float64(n), "Processing bars")
		}
	}

	if opts.Progress != nil {
		opts.Progress(1.0, "Backtest completed")
	}

	result := &Result{
		Trades:      port.Trades(),
		EquityCurve: curve,
		TotalReturn: metrics.TotalReturn(curve),
		MaxDrawdown: metrics.MaxDrawdown(curve),
		SharpeRatio: metrics.SharpeRatio(curve, 0),
		WinRate:     metrics.WinRate(port.Trades()),
	}
	return result, decisions, nil
}

func floorDiv(cash, price float64) float64 {
	if price <= 0 {
		return 0
	}
	q := cash / price
	return float64(int64(q))
}
