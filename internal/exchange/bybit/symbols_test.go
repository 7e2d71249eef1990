package bybit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantpulse/strangle-bot/internal/option"
)

func TestSpotSymbol(t *testing.T) {
	assert.Equal(t, "BTCUSDT", SpotSymbol("BTC"))
	assert.Equal(t, "ETHUSDT", SpotSymbol("eth"))
}

func TestOptionSymbol(t *testing.T) {
	expiry := time.Date(2025, 9, 26, 15, 30, 0, 0, time.UTC)

	call := option.Instrument{Underlying: "BTC", Strike: 50000, Expiry: expiry, Type: option.Call}
	assert.Equal(t, "BTC-26SEP25-50000-C", OptionSymbol(call))

	put := option.Instrument{Underlying: "btc", Strike: 48500, Expiry: expiry, Type: option.Put}
	assert.Equal(t, "BTC-26SEP25-48500-P", OptionSymbol(put))

	// Single-digit days carry no leading zero.
	early := option.Instrument{
		Underlying: "ETH", Strike: 3000,
		Expiry: time.Date(2026, 1, 2, 15, 30, 0, 0, time.UTC),
		Type:   option.Call,
	}
	assert.Equal(t, "ETH-2JAN26-3000-C", OptionSymbol(early))
}
