// Package portfolio tracks cash, positions and the trade ledger for a
// single backtest run.
package portfolio

import (
	"time"

	"fingraph-backtest/internal/simerr"
)

// Side identifies a trade's direction.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// Trade is an immutable fill: side, quantity, price, and the bar
// timestamp it executed at.
type Trade struct {
	Symbol    string
	Side      Side
	Quantity  float64
	Price     float64
	Timestamp time.Time
}

// Value returns quantity * price.
func (t Trade) Value() float64 { return t.Quantity * t.Price }

// Portfolio is a single-instrument cash + positions ledger. Positions
// and cash never go negative; trades are append-only and applied in
// timestamp order by the caller (the kernel).
type Portfolio struct {
	cash      float64
	positions map[string]float64
	trades    []Trade
}

// New returns a Portfolio seeded with initialCash.
func New(initialCash float64) *Portfolio {
	return &Portfolio{
		cash:      initialCash,
		positions: make(map[string]float64),
	}
}

// Cash returns current cash balance.
func (p *Portfolio) Cash() float64 { return p.cash }

// Position returns the held quantity for symbol, 0 if none is held.
func (p *Portfolio) Position(symbol string) float64 {
	return p.positions[symbol]
}

// Trades returns the append-only trade ledger. Callers must not mutate
// the result.
func (p *Portfolio) Trades() []Trade { return p.trades }

// Apply executes a trade against the ledger. A BUY deducts
// quantity*price from cash and adds quantity to the position, failing
// INSUFFICIENT_CASH if cash would go negative. A SELL adds
// quantity*price to cash and subtracts quantity from the position,
// failing INSUFFICIENT_POSITION if the position would go negative.
func (p *Portfolio) Apply(t Trade) error {
	value := t.Value()

	switch t.Side {
	case Buy:
		if p.cash < value {
			return simerr.New(simerr.CodeInsufficientCash, "insufficient cash for trade")
		}
		p.cash -= value
		p.positions[t.Symbol] += t.Quantity
	case Sell:
		if p.positions[t.Symbol] < t.Quantity {
			return simerr.New(simerr.CodeInsufficientPosition, "insufficient position for sell trade")
		}
		p.cash += value
		p.positions[t.Symbol] -= t.Quantity
	}

	p.trades = append(p.trades, t)
	return nil
}

// EquityValue returns the mark-to-market value of all open positions at
// the given prices.
func (p *Portfolio) EquityValue(prices map[string]float64) float64 {
	var total float64
	for symbol, qty := range p.positions {
		if price, ok := prices[symbol]; ok {
			total += qty * price
		}
	}
	return total
}

// TotalValue returns cash plus EquityValue(prices).
func (p *Portfolio) TotalValue(prices map[string]float64) float64 {
	return p.cash + p.EquityValue(prices)
}
