// Package exchange defines the narrow collaborator contracts the engine
// consumes for order execution and market data. The engine never retries
// broker calls itself; implementations are expected to retry transient
// failures internally, and a failed call simply surfaces to the next
// polling tick.
package exchange

import (
	"context"

	"github.com/quantpulse/strangle-bot/internal/option"
)

// ExecutionStyle selects how instructions are worked.
type ExecutionStyle int

const (
	StyleLimit ExecutionStyle = iota
	StyleMarket
)

func (s ExecutionStyle) String() string {
	if s == StyleMarket {
		return "MARKET"
	}
	return "LIMIT"
}

// OrderRef identifies a resting order at the broker.
type OrderRef string

// OrderStatus is the lifecycle state of a resting order.
type OrderStatus string

const (
	StatusTriggerPending OrderStatus = "trigger_pending"
	StatusPending        OrderStatus = "pending"
	StatusComplete       OrderStatus = "complete"
	StatusCancelled      OrderStatus = "cancelled"
	StatusRejected       OrderStatus = "rejected"
)

// OrderState is the polled view of one resting order.
type OrderState struct {
	Status   OrderStatus
	AvgPrice float64
	Reason   string
}

// Instruction is one leg of an execution batch. Quantity is in shares and
// always positive; Action carries the direction.
type Instruction struct {
	Action    option.Action
	Quantity  int
	Tag       string
	SquareOff bool
}

// Execution places and manages orders. ExecuteInstructions is atomic from
// the caller's point of view: either every instrument reports a filled
// average price or the attempt failed as a whole.
type Execution interface {
	ExecuteInstructions(ctx context.Context, instructions map[option.Instrument]Instruction, style ExecutionStyle) (map[option.Instrument]float64, error)

	// PlaceProtectiveOrder rests a stop order that buys back (or sells out)
	// the leg when the trigger price trades.
	PlaceProtectiveOrder(ctx context.Context, inst option.Instrument, action option.Action, quantity int, triggerPrice float64, tag string) (OrderRef, error)

	CancelOrders(ctx context.Context, refs ...OrderRef) error

	FetchOrderStatuses(ctx context.Context, refs []OrderRef) (map[OrderRef]OrderState, error)
}

// MarketData provides live prices for the underlying and its options.
type MarketData interface {
	SpotPrice(ctx context.Context, underlying string) (float64, error)
	OptionPrice(ctx context.Context, inst option.Instrument) (float64, error)
}

// ProtectiveOutcome reduces a set of polled order states into the two facts
// the stop-loss evaluator cares about: whether the stop has triggered, and
// whether it is fully filled. A triggered-but-unfilled stop must still be
// treated as a pending exit.
func ProtectiveOutcome(states map[OrderRef]OrderState) (triggered, complete bool) {
	if len(states) == 0 {
		return false, false
	}
	triggered = false
	complete = true
	for _, st := range states {
		switch st.Status {
		case StatusTriggerPending:
			complete = false
		case StatusPending:
			triggered = true
			complete = false
		case StatusComplete:
			triggered = true
		case StatusCancelled, StatusRejected:
			// A dead protective order no longer protects; treat it as
			// triggered so the evaluator re-queries the position.
			triggered = true
			complete = false
		default:
			complete = false
		}
	}
	return triggered, complete
}

// FilledAverage computes the mean fill price across the completed orders in
// a polled batch. Returns 0 when nothing is filled.
func FilledAverage(states map[OrderRef]OrderState) float64 {
	var sum float64
	var n int
	for _, st := range states {
		if st.Status == StatusComplete && st.AvgPrice > 0 {
			sum += st.AvgPrice
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
