package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/quantpulse/strangle-bot/internal/clock"
	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/logger"
	"github.com/quantpulse/strangle-bot/internal/notifications"
	"github.com/quantpulse/strangle-bot/internal/option"
	"github.com/quantpulse/strangle-bot/internal/pricing"
)

// GuardConfig holds the stop-loss justification thresholds. The spot-move
// thresholds are asymmetric per wing, reflecting skew. Treated as plain
// configuration, not derived values.
type GuardConfig struct {
	// SafeRatio is the actual/simulated price multiple above which a
	// breach is considered unjustified by the model.
	SafeRatio float64
	// ForcedRatio is the higher multiple that forces the exit anyway
	// when the spot has also moved.
	ForcedRatio float64
	// CallSpotMove is the fractional spot move past which a call-side
	// breach may be forced. Positive: spot rising hurts the call wing.
	CallSpotMove float64
	// PutSpotMove is the (negative) fractional spot move for the put
	// wing.
	PutSpotMove float64
	// MaxElapsedMinutes caps the time-decay step fed into the
	// simulation so long sessions do not extrapolate the model.
	MaxElapsedMinutes float64
}

// DefaultGuards returns the production thresholds.
func DefaultGuards() GuardConfig {
	return GuardConfig{
		SafeRatio:         1.15,
		ForcedRatio:       1.6,
		CallSpotMove:      0.012,
		PutSpotMove:       -0.0035,
		MaxElapsedMinutes: 300,
	}
}

// Wing is the per-side input to the evaluator: the traded strike, the
// entry fill and the derived stop level.
type Wing struct {
	Side          option.Type
	Strike        float64
	AvgPrice      float64
	StopLossPrice float64
}

// Decision is the evaluator's verdict for one check.
type Decision struct {
	StopLoss bool
	// ClearOrders is set when resting protective orders triggered but
	// did not fully fill. The caller must exit at market and drop the
	// order refs.
	ClearOrders bool
}

// Evaluator decides whether an observed breach of a wing's stop level is a
// real risk event. One evaluator serves one episode; the entry-time fields
// anchor the theoretical re-pricing.
type Evaluator struct {
	Model    pricing.Model
	Exec     exchange.Execution
	Notifier notifications.Notifier
	Log      *logger.Logger
	Clock    clock.Clock
	Guards   GuardConfig

	Underlying string
	Expiry     time.Time
	EntrySpot  float64
	EntryATMIV float64
	EntryTTE   float64
}

// Check runs one stop-loss evaluation for a wing. With resting protective
// orders it polls their statuses; without, it compares the smoothed price
// against the stop level and justifies the breach before committing.
// A fetch failure is returned to the caller, whose polling loop simply
// waits for the next tick.
func (e *Evaluator) Check(ctx context.Context, st *SharedState, w Wing, refs []exchange.OrderRef) (Decision, error) {
	if len(refs) == 0 {
		snap := st.Snapshot()
		smoothed, ok := snap.LegAvg[w.Side]
		if !ok {
			smoothed = snap.LegPrice[w.Side]
		}
		if smoothed > w.StopLossPrice {
			if e.Justify(st, w) {
				return Decision{StopLoss: true}, nil
			}
		}
		return Decision{}, nil
	}

	states, err := e.Exec.FetchOrderStatuses(ctx, refs)
	if err != nil {
		return Decision{}, traderrors.Wrap(err, traderrors.ErrorCategoryNetwork, "engine", "check_stop_loss",
			"order status fetch failed for %s wing", w.Side)
	}
	triggered, complete := exchange.ProtectiveOutcome(states)
	if !triggered {
		return Decision{}, nil
	}
	// Justification is informational here: the resting order already
	// committed us, but the notification explains whether the move was
	// model-consistent.
	e.Justify(st, w)
	return Decision{StopLoss: true, ClearOrders: !complete}, nil
}

// Justify decides whether a breach of the wing's stop level reflects a
// real move. It simulates the theoretical price the wing should have at
// the current spot and elapsed time, then compares the smoothed actual
// price against it. A pricing failure fails safe toward exit.
func (e *Evaluator) Justify(st *SharedState, w Wing) bool {
	snap := st.Snapshot()
	currentSpot := snap.UnderlyingPrice

	currentTTE := option.YearsBetween(e.Clock.Now(), e.Expiry)
	elapsedMin := (e.EntryTTE - currentTTE) * 525600
	if elapsedMin < 0 {
		elapsedMin = 0
	}
	if elapsedMin > e.Guards.MaxElapsedMinutes {
		elapsedMin = e.Guards.MaxElapsedMinutes
	}

	simulated, err := e.Model.SimulatePrice(pricing.Simulation{
		Strike:     w.Strike,
		Type:       w.Side,
		EntryIV:    e.EntryATMIV,
		EntrySpot:  e.EntrySpot,
		EntryTTE:   e.EntryTTE,
		NewSpot:    currentSpot,
		ElapsedMin: elapsedMin,
	})
	if err != nil {
		msg := traderrors.Wrap(err, traderrors.ErrorCategoryPricing, "engine", "justify_stop_loss",
			"%s %s wing simulation failed, setting stop loss to true", e.Underlying, w.Side).Error()
		if e.Log != nil {
			e.Log.Error("%s", msg)
		}
		e.notify(notifications.SeverityError, msg)
		return true
	}

	actual, ok := snap.LegAvg[w.Side]
	if !ok {
		actual = snap.LegPrice[w.Side]
	}

	unjustified := actual/simulated > e.Guards.SafeRatio && simulated < w.StopLossPrice
	if !unjustified {
		e.notifyf(notifications.SeverityCrucial,
			"%s strangle %s stop loss triggered. Actual price: %.2f, Simulated price: %.2f",
			e.Underlying, w.Side, actual, simulated)
		return true
	}

	if st.MarkUnjustifiedNotified(w.Side) {
		e.notifyf(notifications.SeverityCrucial,
			"%s strangle %s stop loss appears to be unjustified. Actual price: %.2f, Simulated price: %.2f",
			e.Underlying, w.Side, actual, simulated)
	}

	spotChange := currentSpot/e.EntrySpot - 1
	var spotMoved bool
	if w.Side == option.Call {
		spotMoved = spotChange > e.Guards.CallSpotMove
	} else {
		spotMoved = spotChange < e.Guards.PutSpotMove
	}
	if spotMoved && actual/simulated > e.Guards.ForcedRatio {
		e.notifyf(notifications.SeverityCrucial,
			"%s strangle %s stop loss forced to trigger due to price increase. "+
				"Price increase from simulated price: %.2f",
			e.Underlying, w.Side, actual/simulated)
		return true
	}
	return false
}

func (e *Evaluator) notify(severity notifications.Severity, msg string) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.Notify(severity, msg); err != nil && e.Log != nil {
		e.Log.Error("notification failed: %v", err)
	}
}

func (e *Evaluator) notifyf(severity notifications.Severity, format string, args ...interface{}) {
	e.notify(severity, fmt.Sprintf(format, args...))
}
