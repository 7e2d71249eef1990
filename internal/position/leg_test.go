package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantpulse/strangle-bot/internal/option"
)

func testInstrument(side option.Type, strike float64) option.Instrument {
	return option.Instrument{
		Underlying: "NIFTY",
		Strike:     strike,
		Expiry:     time.Date(2026, 3, 5, 15, 30, 0, 0, time.UTC),
		Type:       side,
	}
}

func TestLegApplyFill_ShortOpenAndAdd(t *testing.T) {
	l := &Leg{Instrument: testInstrument(option.Call, 20200), LotSize: 50}

	l.ApplyFill(-100, 20)
	assert.Equal(t, -100, l.ActiveQty)
	assert.True(t, l.IsShort())
	assert.InDelta(t, 20.0, l.AvgPrice, 1e-9)
	assert.InDelta(t, 2000.0, l.PremiumTotal, 1e-9)

	// Adding to the short re-weights the average.
	l.ApplyFill(-50, 26)
	assert.Equal(t, -150, l.ActiveQty)
	assert.InDelta(t, 22.0, l.AvgPrice, 1e-9)
	assert.InDelta(t, 3300.0, l.PremiumTotal, 1e-9)
}

func TestLegApplyFill_PartialCloseKeepsAverage(t *testing.T) {
	l := &Leg{Instrument: testInstrument(option.Call, 20200), LotSize: 50}
	l.ApplyFill(-100, 20)

	l.ApplyFill(50, 10)
	assert.Equal(t, -50, l.ActiveQty)
	assert.InDelta(t, 20.0, l.AvgPrice, 1e-9)
	assert.InDelta(t, 1500.0, l.PremiumTotal, 1e-9)

	l.ApplyFill(50, 10)
	assert.Equal(t, 0, l.ActiveQty)
	assert.False(t, l.IsOpen())
	assert.Zero(t, l.AvgPrice)
	// Sold 100 at 20, bought back at 10: realized 1000.
	assert.InDelta(t, 1000.0, l.PremiumTotal, 1e-9)
}

func TestLegApplyFill_LongSide(t *testing.T) {
	l := &Leg{Instrument: testInstrument(option.Put, 19800), LotSize: 50}

	l.ApplyFill(100, 15)
	assert.Equal(t, 100, l.ActiveQty)
	assert.False(t, l.IsShort())
	assert.InDelta(t, 15.0, l.AvgPrice, 1e-9)
	assert.InDelta(t, -1500.0, l.PremiumTotal, 1e-9)
}

func TestLegMTM(t *testing.T) {
	l := &Leg{Instrument: testInstrument(option.Call, 20200), LotSize: 50}
	l.ApplyFill(-100, 20)

	// Short 100 at 20, now trading 15: five points of decay captured.
	assert.InDelta(t, 500.0, l.MTM(15), 1e-9)
	assert.InDelta(t, -500.0, l.MTM(25), 1e-9)
}

func TestLegStopLossPrice(t *testing.T) {
	l := &Leg{AvgPrice: 20, StopLossPct: 0.5}
	assert.InDelta(t, 30.0, l.StopLossPrice(), 1e-9)

	l.StopLossPct = 0
	assert.Zero(t, l.StopLossPrice())
}

func TestLegPendingQty(t *testing.T) {
	l := &Leg{ActiveQty: -100, RecommendedQty: -150}
	assert.Equal(t, -50, l.PendingQty())

	l.RecommendedQty = 0
	assert.Equal(t, 100, l.PendingQty())
}
