package position

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/exchange/paper"
	"github.com/quantpulse/strangle-bot/internal/option"
)

func TestBookPendingInstructions_Signs(t *testing.T) {
	b := NewBook("strangle-test")
	callInst := testInstrument(option.Call, 20200)
	putInst := testInstrument(option.Put, 19800)

	b.Recommend(callInst, option.RolePrimary, 50, -100)
	b.Recommend(putInst, option.RolePrimary, 50, 100)

	instructions := b.PendingInstructions()
	require.Len(t, instructions, 2)

	assert.Equal(t, option.Sell, instructions[callInst].Action)
	assert.Equal(t, 100, instructions[callInst].Quantity)
	assert.Equal(t, option.Buy, instructions[putInst].Action)
	assert.Equal(t, 100, instructions[putInst].Quantity)
	assert.Equal(t, "strangle-test", instructions[callInst].Tag)
}

func TestBookPendingInstructions_SkipsSatisfiedLegs(t *testing.T) {
	b := NewBook("strangle-test")
	callInst := testInstrument(option.Call, 20200)
	l := b.Recommend(callInst, option.RolePrimary, 50, -100)
	l.ActiveQty = -100

	assert.Empty(t, b.PendingInstructions())
}

func TestBookExecute_AppliesFills(t *testing.T) {
	exch := paper.New()
	callInst := testInstrument(option.Call, 20200)
	putInst := testInstrument(option.Put, 19800)
	exch.SetOptionPrice(callInst, 20)
	exch.SetOptionPrice(putInst, 18)

	b := NewBook("strangle-test")
	b.Recommend(callInst, option.RolePrimary, 50, -100)
	b.Recommend(putInst, option.RolePrimary, 50, -100)

	prices, err := b.Execute(context.Background(), exch, exchange.StyleLimit)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, prices[callInst], 1e-9)
	assert.InDelta(t, 18.0, prices[putInst], 1e-9)

	assert.Equal(t, -100, b.Leg(callInst).ActiveQty)
	assert.Equal(t, -100, b.Leg(putInst).ActiveQty)
	assert.InDelta(t, 3800.0, b.TotalPremium(), 1e-9)
	assert.True(t, b.HasOpenPositions())

	// Nothing pending on a second call.
	prices, err = b.Execute(context.Background(), exch, exchange.StyleLimit)
	require.NoError(t, err)
	assert.Nil(t, prices)
}

func TestBookExecute_FailureLeavesLegsUntouched(t *testing.T) {
	exch := paper.New()
	callInst := testInstrument(option.Call, 20200)
	exch.SetOptionPrice(callInst, 20)
	exch.FailNextExecution = true

	b := NewBook("strangle-test")
	b.Recommend(callInst, option.RolePrimary, 50, -100)

	_, err := b.Execute(context.Background(), exch, exchange.StyleLimit)
	require.Error(t, err)
	assert.Equal(t, traderrors.ErrorCategoryExecution, traderrors.CategoryOf(err))
	assert.Equal(t, 0, b.Leg(callInst).ActiveQty)
	assert.Equal(t, -100, b.Leg(callInst).PendingQty())
}

func TestBookSquareOff(t *testing.T) {
	exch := paper.New()
	callInst := testInstrument(option.Call, 20200)
	putInst := testInstrument(option.Put, 19800)
	exch.SetOptionPrice(callInst, 20)
	exch.SetOptionPrice(putInst, 18)

	b := NewBook("strangle-test")
	b.Recommend(callInst, option.RolePrimary, 50, -100)
	b.Recommend(putInst, option.RolePrimary, 50, -100)
	_, err := b.Execute(context.Background(), exch, exchange.StyleLimit)
	require.NoError(t, err)

	exch.SetOptionPrice(callInst, 12)
	exch.SetOptionPrice(putInst, 10)

	prices, err := b.SquareOff(context.Background(), exch)
	require.NoError(t, err)
	assert.InDelta(t, 12.0, prices[callInst], 1e-9)
	assert.False(t, b.HasOpenPositions())
	// Collected 38 points, paid 22 to close, on 100 shares a side.
	assert.InDelta(t, 1600.0, b.TotalPremium(), 1e-9)

	trades := exch.Trades()
	require.Len(t, trades, 4)
	assert.True(t, trades[2].SquareOff)
	assert.True(t, trades[3].SquareOff)
	assert.Equal(t, option.Buy, trades[2].Action)
}

func TestBookSquareOff_NothingOpen(t *testing.T) {
	b := NewBook("strangle-test")
	prices, err := b.SquareOff(context.Background(), paper.New())
	require.NoError(t, err)
	assert.Nil(t, prices)
}

func TestBookRetainExisting(t *testing.T) {
	b := NewBook("strangle-test")
	callInst := testInstrument(option.Call, 20200)
	l := b.Recommend(callInst, option.RolePrimary, 50, -100)
	l.ActiveQty = -50

	b.RetainExisting()
	assert.Equal(t, -50, l.RecommendedQty)
	assert.Empty(t, b.PendingInstructions())
}

func TestBookMTMAndPremiumOutstanding(t *testing.T) {
	b := NewBook("strangle-test")
	callInst := testInstrument(option.Call, 20200)
	putInst := testInstrument(option.Put, 19800)
	call := b.Ensure(callInst, option.RolePrimary, 50)
	put := b.Ensure(putInst, option.RolePrimary, 50)
	call.ApplyFill(-100, 20)
	put.ApplyFill(-100, 18)

	prices := map[option.Instrument]float64{callInst: 15, putInst: 20}
	assert.InDelta(t, 300.0, b.MTM(prices), 1e-9)
	assert.InDelta(t, 3500.0, b.PremiumOutstanding(prices), 1e-9)
}

func TestBookAggregateGreeks(t *testing.T) {
	b := NewBook("strangle-test")
	callInst := testInstrument(option.Call, 20200)
	putInst := testInstrument(option.Put, 19800)
	b.Ensure(callInst, option.RolePrimary, 50).ApplyFill(-100, 20)
	b.Ensure(putInst, option.RolePrimary, 50).ApplyFill(-100, 18)

	greeks := map[option.Instrument]option.Greeks{
		callInst: {Delta: 0.4, Theta: -2, Vega: 9, IV: 0.12},
		putInst:  {Delta: -0.35, Theta: -1.8, Vega: 8, IV: 0.14},
	}

	total := b.AggregateGreeks(greeks)
	// Short both wings: the deltas flip sign and mostly cancel.
	assert.InDelta(t, -5.0, total.Delta, 1e-9)
	assert.InDelta(t, 380.0, total.Theta, 1e-9)
	assert.InDelta(t, 0.13, total.IV, 1e-9)
}

func TestBookLegsInsertionOrder(t *testing.T) {
	b := NewBook("strangle-test")
	callInst := testInstrument(option.Call, 20200)
	putInst := testInstrument(option.Put, 19800)
	b.Ensure(callInst, option.RolePrimary, 50)
	b.Ensure(putInst, option.RolePrimary, 50)
	b.Ensure(callInst, option.RolePrimary, 50)

	legs := b.Legs()
	require.Len(t, legs, 2)
	assert.Equal(t, callInst, legs[0].Instrument)
	assert.Equal(t, putInst, legs[1].Instrument)
}
