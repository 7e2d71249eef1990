package bybit

import (
	"fmt"
	"strings"

	"github.com/quantpulse/strangle-bot/internal/option"
)

// SpotSymbol maps an underlying to its USDT spot pair, e.g. BTC -> BTCUSDT.
func SpotSymbol(underlying string) string {
	return strings.ToUpper(underlying) + "USDT"
}

// OptionSymbol formats an instrument for the options category, e.g.
// BTC-26SEP25-50000-C.
func OptionSymbol(inst option.Instrument) string {
	side := "C"
	if inst.Type == option.Put {
		side = "P"
	}
	expiry := strings.ToUpper(inst.Expiry.Format("2Jan06"))
	return fmt.Sprintf("%s-%s-%.0f-%s", strings.ToUpper(inst.Underlying), expiry, inst.Strike, side)
}
