package position

import (
	"github.com/quantpulse/strangle-bot/internal/option"
)

// ivSpikeRatio is the current-to-entry IV multiple above which delta
// rebalancing is deferred instead of executed.
const ivSpikeRatio = 1.1

// IVSpike compares the current strangle IV against the entry IV and
// reports whether hedging should be deferred.
type IVSpike struct {
	EntryIV float64
}

// Spiked reports whether currentIV is elevated enough to defer a hedge.
// An unset entry IV never defers.
func (s IVSpike) Spiked(currentIV float64) bool {
	if s.EntryIV <= 0 {
		return false
	}
	return currentIV/s.EntryIV >= ivSpikeRatio
}

// SyntheticHedge adjusts episode delta with a synthetic future: a call and a
// put at the same strike, bought on one side and sold on the other. Positive
// hedge quantity means long the synthetic (long call, short put).
type SyntheticHedge struct {
	Call option.Instrument
	Put  option.Instrument

	LotSize int
	Qty     int
}

// NewSyntheticHedge builds the hedge pair at the given strike, copying
// underlying and expiry from the template instrument.
func NewSyntheticHedge(template option.Instrument, strike float64, lotSize int) *SyntheticHedge {
	call := template
	call.Strike = strike
	call.Type = option.Call
	put := template
	put.Strike = strike
	put.Type = option.Put
	return &SyntheticHedge{Call: call, Put: put, LotSize: lotSize}
}

// Recommend adds a signed synthetic-future increment to the book. Each unit
// of increment is one share of delta, so the call leg moves by +increment
// and the put leg by -increment.
func (h *SyntheticHedge) Recommend(b *Book, increment int) {
	if increment == 0 {
		return
	}
	b.Recommend(h.Call, option.RoleHedge, h.LotSize, increment)
	b.Recommend(h.Put, option.RoleHedge, h.LotSize, -increment)
	h.Qty += increment
}

// Delta is the hedge's current delta contribution in shares. A synthetic
// future carries one delta per share regardless of moneyness.
func (h *SyntheticHedge) Delta() float64 { return float64(h.Qty) }
