// Package position holds the trade-side state of a running episode: legs,
// the book that executes recommended quantity changes, and the specialized
// books used by the hedging and reentry strategies.
package position

import (
	"fmt"
	"math"

	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/option"
)

// Leg is one option position inside an episode. Quantities are signed
// share counts: negative means short. A short strangle wing therefore has
// ActiveQty < 0 and PremiumTotal > 0 once filled.
type Leg struct {
	Instrument option.Instrument
	Role       option.Role
	LotSize    int

	ActiveQty      int
	RecommendedQty int

	// AvgPrice is the volume-weighted entry premium of the open quantity.
	AvgPrice     float64
	PremiumTotal float64

	// StopLossPct widens the entry price into a stop trigger. Zero means
	// the leg carries no own stop.
	StopLossPct float64

	// StopRefs are the resting protective orders covering this leg.
	StopRefs []exchange.OrderRef

	// EntryIV and EntrySpot are captured at fill time for the theoretical
	// re-pricing done by the stop-loss evaluator.
	EntryIV   float64
	EntrySpot float64
}

// IsShort reports whether the leg currently holds a short position.
func (l *Leg) IsShort() bool { return l.ActiveQty < 0 }

// IsOpen reports whether any quantity is live.
func (l *Leg) IsOpen() bool { return l.ActiveQty != 0 }

// StopLossPrice is the premium level at which the leg's stop triggers.
// For a short leg the stop sits above the entry price.
func (l *Leg) StopLossPrice() float64 {
	if l.StopLossPct == 0 {
		return 0
	}
	return l.AvgPrice * (1 + l.StopLossPct)
}

// ApplyFill folds an execution into the leg. Opening fills re-weight
// AvgPrice; closing fills realize against it. qty is signed shares.
func (l *Leg) ApplyFill(qty int, price float64) {
	if qty == 0 {
		return
	}
	opening := (l.ActiveQty == 0) || (l.ActiveQty < 0) == (qty < 0)
	if opening {
		total := math.Abs(float64(l.ActiveQty))*l.AvgPrice + math.Abs(float64(qty))*price
		l.AvgPrice = total / math.Abs(float64(l.ActiveQty+qty))
	} else if l.ActiveQty+qty == 0 {
		l.AvgPrice = 0
	}
	// Selling collects premium, buying pays it.
	l.PremiumTotal -= float64(qty) * price
	l.ActiveQty += qty
}

// MTM is the running profit of the leg at the given premium, in currency.
// Realized cash flow plus the value of the open quantity.
func (l *Leg) MTM(price float64) float64 {
	return l.PremiumTotal + float64(l.ActiveQty)*price
}

// PendingQty is the signed share delta needed to reach the recommendation.
func (l *Leg) PendingQty() int { return l.RecommendedQty - l.ActiveQty }

func (l *Leg) String() string {
	return fmt.Sprintf("%s qty=%d avg=%.2f", l.Instrument, l.ActiveQty, l.AvgPrice)
}
