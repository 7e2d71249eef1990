package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
)

func TestConversionBreakevenThreshold_PicksBetterSide(t *testing.T) {
	// Call stops at 1.5x: lose half the call credit, keep the put credit;
	// mirror for the put side. The threshold is the better of the two.
	assert.InDelta(t, 60.0, ConversionBreakevenThreshold(100, 80, 1.5, 1.5), 1e-9)
	assert.InDelta(t, 70.0, ConversionBreakevenThreshold(60, 100, 1.5, 1.2), 1e-9)
}

func TestConversionTriggered_Breakeven(t *testing.T) {
	p := ConversionPolicy{
		Method:             ConversionBreakeven,
		StrikeWidth:        50,
		BreakevenThreshold: 60,
	}

	// 180 credit - 70 hedge cost - 50 width = 60 locked >= 60 threshold.
	ok, err := p.Triggered(70, 180)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Triggered(71, 180)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConversionTriggered_PctRequiresBreakevenFirst(t *testing.T) {
	p := ConversionPolicy{
		Method:             ConversionPct,
		ThresholdPct:       0.25,
		StrikeWidth:        50,
		BreakevenThreshold: 60,
	}

	// Cheap hedge but locked profit below breakeven: no conversion.
	p2 := p
	p2.BreakevenThreshold = 200
	ok, err := p2.Triggered(40, 180)
	require.NoError(t, err)
	assert.False(t, ok)

	// Beats breakeven and hedge <= 25% of credit.
	ok, err = p.Triggered(40, 180)
	require.NoError(t, err)
	assert.True(t, ok)

	// Beats breakeven but hedge too expensive for the pct rule.
	ok, err = p.Triggered(50, 180)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConversionTriggered_InvalidMethod(t *testing.T) {
	p := ConversionPolicy{Method: "martingale"}

	_, err := p.Triggered(10, 100)
	require.Error(t, err)
	assert.Equal(t, traderrors.ErrorCategoryConfig, traderrors.CategoryOf(err))
}
