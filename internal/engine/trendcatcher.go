package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quantpulse/strangle-bot/internal/clock"
	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/logger"
	"github.com/quantpulse/strangle-bot/internal/notifications"
	"github.com/quantpulse/strangle-bot/internal/option"
)

// trendEntryFraction of the surviving wing's entry price: the trend trade
// opens once the option recovers above this fraction.
const trendEntryFraction = 0.70

// TrendCatcher is the opportunistic second loop, started after one wing
// stops out. It watches the surviving wing's own instrument, sells it once
// it shows continuation, and runs with its own stop at the wing's original
// entry price. Its P&L is recorded as a separate line item on the shared
// state, never netted into the main position's fields.
type TrendCatcher struct {
	Exec     exchange.Execution
	Data     exchange.MarketData
	Notifier notifications.Notifier
	Log      *logger.Logger
	Clock    clock.Clock

	State *SharedState
	Info  StrangleInfo

	// StoppedSide is the wing whose stop loss fired; the catcher trades
	// the opposite wing.
	StoppedSide option.Type

	// QtyRatio scales the main position's lots down for the trend trade.
	QtyRatio float64

	PlaceSLOrders bool
	ExitTime      time.Time
	PollInterval  time.Duration
}

// Run drives the catcher to completion. It returns once its own stop
// triggers, the main episode completes, or the exit time passes; an open
// trade is squared off unconditionally on the way out.
func (t *TrendCatcher) Run(ctx context.Context) {
	if t.PollInterval <= 0 {
		t.PollInterval = time.Second
	}
	side := t.StoppedSide.Opposite()
	inst := t.Info.Inst(side)
	anchorPrice := t.Info.Wing(side).AvgPrice

	qtyLots := int(float64(t.Info.QuantityLots) * t.QtyRatio)
	if qtyLots < 1 {
		qtyLots = 1
	}
	qtyShares := qtyLots * t.Info.LotSize

	// Entry scan: wait for the option to recover above the entry band.
	for {
		if t.State.Done() || !t.Clock.Now().Before(t.ExitTime) || ctx.Err() != nil {
			return
		}
		ltp, err := t.Data.OptionPrice(ctx, inst)
		if err != nil {
			t.logError("trend entry price fetch failed", err)
		} else if ltp > anchorPrice*trendEntryFraction {
			break
		}
		t.Clock.Sleep(t.PollInterval)
	}

	tag := t.Info.StrategyTag + " Trend Catcher"
	fills, err := t.Exec.ExecuteInstructions(ctx, map[option.Instrument]exchange.Instruction{
		inst: {Action: option.Sell, Quantity: qtyShares, Tag: tag},
	}, exchange.StyleLimit)
	if err != nil {
		t.logError("trend entry failed", err)
		return
	}
	sellAvg := fills[inst]

	var stopRefs []exchange.OrderRef
	if t.PlaceSLOrders {
		ref, err := t.Exec.PlaceProtectiveOrder(ctx, inst, option.Buy, qtyShares, anchorPrice, tag)
		if err != nil {
			t.logError("trend stop order placement failed", err)
		} else {
			stopRefs = append(stopRefs, ref)
		}
	}

	t.notifyf(notifications.SeverityInfo,
		"%s strangle %s trend catcher starting. Placed %d lots of %s at %.2f. Stoploss price: %.2f",
		t.Info.Underlying, t.StoppedSide, qtyLots, inst, sellAvg, anchorPrice)

	slHit := false
	lastPrint := t.Clock.Now()
	for t.Clock.Now().Before(t.ExitTime) && !t.State.Done() && ctx.Err() == nil {
		if len(stopRefs) > 0 {
			states, err := t.Exec.FetchOrderStatuses(ctx, stopRefs)
			if err != nil {
				t.logError("trend stop status fetch failed", err)
			} else {
				slHit, _ = exchange.ProtectiveOutcome(states)
			}
		} else {
			ltp, err := t.Data.OptionPrice(ctx, inst)
			if err != nil {
				t.logError("trend price fetch failed", err)
			} else {
				slHit = ltp >= anchorPrice
			}
		}
		if slHit {
			break
		}
		if now := t.Clock.Now(); now.Sub(lastPrint) > 10*time.Second {
			lastPrint = now
			if t.Log != nil {
				t.Log.Info("%s %s trend catcher running, stoploss price: %.2f",
					t.Info.Underlying, t.StoppedSide, anchorPrice)
			}
		}
		t.Clock.Sleep(t.PollInterval)
	}

	// Squared up already only if the resting stop both triggered and
	// filled; otherwise buy back at market.
	var squareUpAvg float64
	squaredUp := slHit && len(stopRefs) > 0
	if squaredUp {
		states, err := t.Exec.FetchOrderStatuses(ctx, stopRefs)
		if err != nil {
			t.logError("trend stop fill fetch failed", err)
			squaredUp = false
		} else {
			squareUpAvg = exchange.FilledAverage(states)
		}
	}
	if !squaredUp {
		fills, err := t.Exec.ExecuteInstructions(ctx, map[option.Instrument]exchange.Instruction{
			inst: {Action: option.Buy, Quantity: qtyShares, Tag: tag, SquareOff: true},
		}, exchange.StyleMarket)
		if err != nil {
			t.logError("trend square off failed", err)
			return
		}
		squareUpAvg = fills[inst]
		if len(stopRefs) > 0 {
			if err := t.Exec.CancelOrders(ctx, stopRefs...); err != nil {
				t.logError("trend stop cancel failed", err)
			}
		}
	}

	points := sellAvg - squareUpAvg
	t.State.SetTrendPoints(points)
	t.notifyf(notifications.SeverityInfo,
		"%s trend catcher closed with %.2f points", t.Info.Underlying, points)
}

func (t *TrendCatcher) logError(context string, err error) {
	if t.Log != nil {
		t.Log.Error("%s: %v", context, err)
	}
}

func (t *TrendCatcher) notifyf(severity notifications.Severity, format string, args ...interface{}) {
	if t.Notifier == nil {
		return
	}
	if err := t.Notifier.Notify(severity, fmt.Sprintf(format, args...)); err != nil && t.Log != nil {
		t.Log.Error("notification failed: %v", err)
	}
}
