package portfolio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_BuyThenSell(t *testing.T) {
	p := New(1000)
	now := time.Now()

	require.NoError(t, p.Apply(Trade{Symbol: "DEFAULT", Side: Buy, Quantity: 90, Price: 11, Timestamp: now}))
	assert.InDelta(t, 10, p.Cash(), 1e-9)
	assert.Equal(t, 90.0, p.Position("DEFAULT"))

	require.NoError(t, p.Apply(Trade{Symbol: "DEFAULT", Side: Sell, Quantity: 90, Price: 13, Timestamp: now}))
	assert.InDelta(t, 10+90*13, p.Cash(), 1e-9)
	assert.Equal(t, 0.0, p.Position("DEFAULT"))
}

func TestApply_InsufficientCash(t *testing.T) {
	p := New(100)
	err := p.Apply(Trade{Symbol: "DEFAULT", Side: Buy, Quantity: 10, Price: 11, Timestamp: time.Now()})
	assert.Error(t, err)
	assert.Equal(t, 100.0, p.Cash())
}

func TestApply_InsufficientPosition(t *testing.T) {
	p := New(1000)
	err := p.Apply(Trade{Symbol: "DEFAULT", Side: Sell, Quantity: 1, Price: 11, Timestamp: time.Now()})
	assert.Error(t, err)
}

func TestTotalValue(t *testing.T) {
	p := New(1000)
	require.NoError(t, p.Apply(Trade{Symbol: "DEFAULT", Side: Buy, Quantity: 90, Price: 11, Timestamp: time.Now()}))
	total := p.TotalValue(map[string]float64{"DEFAULT": 13})
	assert.InDelta(t, 1180, total, 1e-9)
}
