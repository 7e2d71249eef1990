package position

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quantpulse/strangle-bot/internal/option"
)

func TestIVSpike(t *testing.T) {
	s := IVSpike{EntryIV: 0.10}

	assert.False(t, s.Spiked(0.10))
	assert.False(t, s.Spiked(0.1099))
	assert.True(t, s.Spiked(0.11))
	assert.True(t, s.Spiked(0.25))
}

func TestIVSpike_UnsetEntryNeverDefers(t *testing.T) {
	s := IVSpike{}
	assert.False(t, s.Spiked(5))
}

func TestSyntheticHedge_Recommend(t *testing.T) {
	template := testInstrument(option.Call, 20200)
	h := NewSyntheticHedge(template, 20000, 50)

	assert.Equal(t, option.Call, h.Call.Type)
	assert.Equal(t, option.Put, h.Put.Type)
	assert.InDelta(t, 20000.0, h.Call.Strike, 1e-9)
	assert.Equal(t, h.Call.Expiry, h.Put.Expiry)

	b := NewBook("hedge-test")
	h.Recommend(b, 100)
	assert.Equal(t, 100, b.Leg(h.Call).RecommendedQty)
	assert.Equal(t, -100, b.Leg(h.Put).RecommendedQty)
	assert.InDelta(t, 100.0, h.Delta(), 1e-9)

	// Flipping short reverses both legs.
	h.Recommend(b, -150)
	assert.Equal(t, -50, b.Leg(h.Call).RecommendedQty)
	assert.Equal(t, 50, b.Leg(h.Put).RecommendedQty)
	assert.InDelta(t, -50.0, h.Delta(), 1e-9)

	// Zero increments leave the book alone.
	h.Recommend(b, 0)
	assert.InDelta(t, -50.0, h.Delta(), 1e-9)
}
