// Package strategy defines the signal-generating interface shared by all
// reference strategies and a name-keyed registry in place of class
// inheritance.
package strategy

import "fingraph-backtest/internal/market"

// Signal is a strategy's discrete output for a bar.
type Signal int

const (
	SignalNone Signal = iota
	SignalBuy
	SignalSell
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "BUY"
	case SignalSell:
		return "SELL"
	default:
		return "NONE"
	}
}

// ParamSpec describes one tunable parameter for the strategy parameter
// schema exposed by the service facade.
type ParamSpec struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Default     float64 `json:"default"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Description string  `json:"description"`
}

// Strategy is the capability set every reference strategy implements.
// Initialize must be idempotent and may pre-compute indicators;
// GenerateSignal(i) depends only on bars [0..i] (no lookahead) and may
// return SignalNone when indicators are undefined at i. UpdateParameters
// mutates configuration but does not recompute indicators — callers must
// re-Initialize.
type Strategy interface {
	Name() string
	Description() string
	Initialize(series *market.Series) error
	GenerateSignal(index int) Signal
	UpdateParameters(params map[string]float64)
	Describe() []ParamSpec
}

// Factory constructs a fresh, unconfigured strategy instance.
type Factory func() Strategy

var registry = map[string]Factory{}

func register(name string, f Factory) {
	registry[name] = f
}

// New constructs a new strategy instance by name, or reports false if no
// strategy is registered under that name.
func New(name string) (Strategy, bool) {
	f, ok := registry[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// Names returns the registered strategy names in a stable order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for _, n := range []string{"Moving Average Crossover", "RSI Mean Reversion"} {
		if _, ok := registry[n]; ok {
			names = append(names, n)
		}
	}
	for n := range registry {
		found := false
		for _, seen := range names {
			if seen == n {
				found = true
				break
			}
		}
		if !found {
			names = append(names, n)
		}
	}
	return names
}
