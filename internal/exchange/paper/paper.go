// Package paper is an in-memory broker used by the demo mode and the
// tests. Prices are scripted by the caller; orders fill instantly at the
// scripted price and protective orders trigger when an option price is
// set at or through their trigger.
package paper

import (
	"context"
	"fmt"
	"sync"

	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/option"
)

// Trade is one recorded fill.
type Trade struct {
	Instrument option.Instrument
	Action     option.Action
	Quantity   int
	Price      float64
	Tag        string
	SquareOff  bool
}

type restingOrder struct {
	inst         option.Instrument
	action       option.Action
	quantity     int
	triggerPrice float64
	tag          string
	state        exchange.OrderState
}

// Exchange implements the execution and market data contracts in memory.
type Exchange struct {
	mu      sync.Mutex
	spots   map[string]float64
	options map[option.Instrument]float64
	orders  map[exchange.OrderRef]*restingOrder
	trades  []Trade
	nextRef int

	// FailNextExecution makes the next instruction batch fail, for
	// exercising error paths.
	FailNextExecution bool
}

// New creates an empty paper exchange.
func New() *Exchange {
	return &Exchange{
		spots:   make(map[string]float64),
		options: make(map[option.Instrument]float64),
		orders:  make(map[exchange.OrderRef]*restingOrder),
	}
}

// SetSpot scripts the underlying price.
func (e *Exchange) SetSpot(underlying string, price float64) {
	e.mu.Lock()
	e.spots[underlying] = price
	e.mu.Unlock()
}

// SetOptionPrice scripts an option price and fires any resting stops it
// triggers.
func (e *Exchange) SetOptionPrice(inst option.Instrument, price float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.options[inst] = price
	for _, o := range e.orders {
		if o.inst != inst || o.state.Status != exchange.StatusTriggerPending {
			continue
		}
		crossed := (o.action == option.Buy && price >= o.triggerPrice) ||
			(o.action == option.Sell && price <= o.triggerPrice)
		if crossed {
			o.state.Status = exchange.StatusComplete
			o.state.AvgPrice = price
			e.trades = append(e.trades, Trade{
				Instrument: o.inst, Action: o.action, Quantity: o.quantity,
				Price: price, Tag: o.tag,
			})
		}
	}
}

// Trades returns a copy of the recorded fills.
func (e *Exchange) Trades() []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

// SpotPrice implements exchange.MarketData.
func (e *Exchange) SpotPrice(_ context.Context, underlying string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	price, ok := e.spots[underlying]
	if !ok {
		return 0, traderrors.New(traderrors.ErrorCategoryNetwork, "paper", "spot_price",
			"no scripted spot for "+underlying)
	}
	return price, nil
}

// OptionPrice implements exchange.MarketData.
func (e *Exchange) OptionPrice(_ context.Context, inst option.Instrument) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	price, ok := e.options[inst]
	if !ok {
		return 0, traderrors.New(traderrors.ErrorCategoryNetwork, "paper", "option_price",
			"no scripted price for "+inst.String())
	}
	return price, nil
}

// ExecuteInstructions fills every leg at its scripted price.
func (e *Exchange) ExecuteInstructions(_ context.Context, instructions map[option.Instrument]exchange.Instruction, _ exchange.ExecutionStyle) (map[option.Instrument]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailNextExecution {
		e.FailNextExecution = false
		return nil, traderrors.New(traderrors.ErrorCategoryExecution, "paper", "execute",
			"scripted execution failure")
	}
	fills := make(map[option.Instrument]float64, len(instructions))
	for inst, in := range instructions {
		price, ok := e.options[inst]
		if !ok {
			return nil, traderrors.New(traderrors.ErrorCategoryExecution, "paper", "execute",
				"no scripted price for "+inst.String())
		}
		e.trades = append(e.trades, Trade{
			Instrument: inst, Action: in.Action, Quantity: in.Quantity,
			Price: price, Tag: in.Tag, SquareOff: in.SquareOff,
		})
		fills[inst] = price
	}
	return fills, nil
}

// PlaceProtectiveOrder rests a stop that fires on a later SetOptionPrice.
func (e *Exchange) PlaceProtectiveOrder(_ context.Context, inst option.Instrument, action option.Action, quantity int, triggerPrice float64, tag string) (exchange.OrderRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextRef++
	ref := exchange.OrderRef(fmt.Sprintf("paper-%d", e.nextRef))
	e.orders[ref] = &restingOrder{
		inst: inst, action: action, quantity: quantity,
		triggerPrice: triggerPrice, tag: tag,
		state: exchange.OrderState{Status: exchange.StatusTriggerPending},
	}
	return ref, nil
}

// CancelOrders cancels resting orders that have not completed.
func (e *Exchange) CancelOrders(_ context.Context, refs ...exchange.OrderRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ref := range refs {
		if o, ok := e.orders[ref]; ok && o.state.Status != exchange.StatusComplete {
			o.state.Status = exchange.StatusCancelled
		}
	}
	return nil
}

// FetchOrderStatuses implements exchange.Execution.
func (e *Exchange) FetchOrderStatuses(_ context.Context, refs []exchange.OrderRef) (map[exchange.OrderRef]exchange.OrderState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[exchange.OrderRef]exchange.OrderState, len(refs))
	for _, ref := range refs {
		o, ok := e.orders[ref]
		if !ok {
			return nil, traderrors.Newf(traderrors.ErrorCategoryExecution, "paper", "order_status",
				"unknown order ref %s", ref)
		}
		out[ref] = o.state
	}
	return out, nil
}

// MarkTriggered flips a resting order to triggered-but-unfilled, for
// exercising pending-exit paths.
func (e *Exchange) MarkTriggered(ref exchange.OrderRef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.orders[ref]; ok {
		o.state.Status = exchange.StatusPending
	}
}
