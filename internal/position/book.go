package position

import (
	"context"

	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/option"
)

// Book tracks the legs of one episode and reconciles their recommended
// quantities against the exchange. Strategies mutate recommendations and
// then call Execute; the book turns the difference into instructions and
// folds the fills back into the legs.
type Book struct {
	legs  map[option.Instrument]*Leg
	order []option.Instrument
	tag   string
}

// NewBook returns an empty book. tag is attached to every instruction the
// book emits so fills can be traced back to the episode.
func NewBook(tag string) *Book {
	return &Book{legs: make(map[option.Instrument]*Leg), tag: tag}
}

// Leg returns the leg for inst, or nil.
func (b *Book) Leg(inst option.Instrument) *Leg { return b.legs[inst] }

// Legs returns all legs in insertion order.
func (b *Book) Legs() []*Leg {
	out := make([]*Leg, 0, len(b.order))
	for _, inst := range b.order {
		out = append(out, b.legs[inst])
	}
	return out
}

// Ensure returns the leg for inst, creating it when absent.
func (b *Book) Ensure(inst option.Instrument, role option.Role, lotSize int) *Leg {
	if l, ok := b.legs[inst]; ok {
		return l
	}
	l := &Leg{Instrument: inst, Role: role, LotSize: lotSize}
	b.legs[inst] = l
	b.order = append(b.order, inst)
	return l
}

// Recommend adds a signed share delta to the leg's recommendation.
func (b *Book) Recommend(inst option.Instrument, role option.Role, lotSize, qty int) *Leg {
	l := b.Ensure(inst, role, lotSize)
	l.RecommendedQty += qty
	return l
}

// RetainExisting resets every recommendation to the current active
// quantity, discarding pending changes.
func (b *Book) RetainExisting() {
	for _, l := range b.legs {
		l.RecommendedQty = l.ActiveQty
	}
}

// PendingInstructions builds the instruction set that would move every leg
// from its active to its recommended quantity.
func (b *Book) PendingInstructions() map[option.Instrument]exchange.Instruction {
	out := make(map[option.Instrument]exchange.Instruction)
	for _, inst := range b.order {
		pending := b.legs[inst].PendingQty()
		if pending == 0 {
			continue
		}
		in := exchange.Instruction{Quantity: pending, Tag: b.tag}
		if pending < 0 {
			in.Action = option.Sell
			in.Quantity = -pending
		} else {
			in.Action = option.Buy
		}
		out[inst] = in
	}
	return out
}

// Execute sends the pending instructions and applies the fills. Returns the
// average fill price per instrument. A nil map with nil error means nothing
// was pending.
func (b *Book) Execute(ctx context.Context, exec exchange.Execution, style exchange.ExecutionStyle) (map[option.Instrument]float64, error) {
	instructions := b.PendingInstructions()
	if len(instructions) == 0 {
		return nil, nil
	}
	prices, err := exec.ExecuteInstructions(ctx, instructions, style)
	if err != nil {
		return nil, traderrors.Wrap(err, traderrors.ErrorCategoryExecution, "position", "execute",
			"instruction batch failed")
	}
	for inst, in := range instructions {
		qty := in.Quantity
		if in.Action == option.Sell {
			qty = -qty
		}
		b.legs[inst].ApplyFill(qty, prices[inst])
	}
	return prices, nil
}

// SquareOff closes every open leg at market and returns the exit prices.
func (b *Book) SquareOff(ctx context.Context, exec exchange.Execution) (map[option.Instrument]float64, error) {
	for _, l := range b.legs {
		l.RecommendedQty = 0
	}
	instructions := b.PendingInstructions()
	for inst, in := range instructions {
		in.SquareOff = true
		instructions[inst] = in
	}
	if len(instructions) == 0 {
		return nil, nil
	}
	prices, err := exec.ExecuteInstructions(ctx, instructions, exchange.StyleMarket)
	if err != nil {
		return nil, traderrors.Wrap(err, traderrors.ErrorCategoryExecution, "position", "square_off",
			"exit batch failed")
	}
	for inst, in := range instructions {
		qty := in.Quantity
		if in.Action == option.Sell {
			qty = -qty
		}
		b.legs[inst].ApplyFill(qty, prices[inst])
	}
	return prices, nil
}

// PremiumOutstanding is the cost of buying back all open short quantity at
// the given prices, net of long quantity value.
func (b *Book) PremiumOutstanding(prices map[option.Instrument]float64) float64 {
	var total float64
	for inst, l := range b.legs {
		total -= float64(l.ActiveQty) * prices[inst]
	}
	return total
}

// MTM is the running profit of the whole book at the given prices.
func (b *Book) MTM(prices map[option.Instrument]float64) float64 {
	var total float64
	for inst, l := range b.legs {
		total += l.MTM(prices[inst])
	}
	return total
}

// TotalPremium is the net cash collected so far across all legs.
func (b *Book) TotalPremium() float64 {
	var total float64
	for _, l := range b.legs {
		total += l.PremiumTotal
	}
	return total
}

// HasOpenPositions reports whether any leg still carries quantity.
func (b *Book) HasOpenPositions() bool {
	for _, l := range b.legs {
		if l.IsOpen() {
			return true
		}
	}
	return false
}

// AggregateGreeks sums per-leg greeks scaled by active quantity. greeks is
// keyed by instrument and holds per-share values.
func (b *Book) AggregateGreeks(greeks map[option.Instrument]option.Greeks) option.Greeks {
	var total option.Greeks
	var n int
	for inst, l := range b.legs {
		if !l.IsOpen() {
			continue
		}
		g, ok := greeks[inst]
		if !ok {
			continue
		}
		total = total.Add(g.Scale(l.ActiveQty))
		total.IV += g.IV
		n++
	}
	if n > 0 {
		total.IV /= float64(n)
	}
	return total
}
