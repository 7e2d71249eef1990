package engine

import (
	"math"

	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
	"github.com/quantpulse/strangle-bot/internal/option"
)

// ConversionMethod selects how the risk-conversion trigger is computed.
type ConversionMethod string

const (
	// ConversionBreakeven converts as soon as buying the hedge wings
	// still locks in at least the better of the two stop-loss outcomes.
	ConversionBreakeven ConversionMethod = "breakeven"
	// ConversionPct converts when the hedge wings are cheap relative to
	// the collected premium, but never on worse terms than breakeven.
	ConversionPct ConversionMethod = "pct"
)

// ConversionPolicy configures the butterfly conversion of a losing short
// strangle into a bounded-risk structure. Evaluated by the monitor only on
// the final trading day, before the cutoff, while neither wing has stopped
// out, and at most once per episode.
type ConversionPolicy struct {
	Enabled      bool
	Method       ConversionMethod
	ThresholdPct float64

	// HedgeCall and HedgePut are the protective wings, one base strike
	// width beyond the traded strikes.
	HedgeCall option.Instrument
	HedgePut  option.Instrument

	// StrikeWidth is the distance between a traded strike and its hedge
	// strike, which the structure gives up when fully tested.
	StrikeWidth float64

	// BreakevenThreshold is the profit the conversion must lock in to be
	// worth doing: the better of the two single-side stop-loss outcomes.
	BreakevenThreshold float64
}

// ConversionBreakevenThreshold computes the profit to beat: the better of
// "call side stops, put decays to nothing" and the mirror case.
func ConversionBreakevenThreshold(callAvg, putAvg, callStopMult, putStopMult float64) float64 {
	profitIfCallSL := putAvg - callAvg*(callStopMult-1)
	profitIfPutSL := callAvg - putAvg*(putStopMult-1)
	return math.Max(profitIfCallSL, profitIfPutSL)
}

// Triggered decides whether the conversion should fire given the combined
// current price of the hedge wings and the total entry credit.
func (p ConversionPolicy) Triggered(hedgeTotalLTP, totalAvgPrice float64) (bool, error) {
	lockedProfit := totalAvgPrice - hedgeTotalLTP - p.StrikeWidth
	switch p.Method {
	case ConversionBreakeven:
		return lockedProfit >= p.BreakevenThreshold, nil
	case ConversionPct:
		// Never accept worse terms than the breakeven method would.
		if lockedProfit < p.BreakevenThreshold {
			return false, nil
		}
		return hedgeTotalLTP <= totalAvgPrice*p.ThresholdPct, nil
	default:
		return false, traderrors.Newf(traderrors.ErrorCategoryConfig, "engine", "conversion",
			"invalid conversion method: %q, valid methods are 'breakeven' and 'pct'", p.Method)
	}
}
