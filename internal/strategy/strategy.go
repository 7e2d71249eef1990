// Package strategy implements the per-strategy state machines on top of
// the engine primitives. All variants share one control shape: enter,
// start the concurrent monitor, run a sequential decision loop, exit. A
// Runner executes any Variant with the common session guard rails.
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/quantpulse/strangle-bot/internal/clock"
	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/logger"
	"github.com/quantpulse/strangle-bot/internal/monitoring"
	"github.com/quantpulse/strangle-bot/internal/notifications"
	"github.com/quantpulse/strangle-bot/internal/pricing"
	"github.com/quantpulse/strangle-bot/internal/state"
)

// Env bundles the collaborators every variant needs. Strategies never
// talk to the outside world except through these.
type Env struct {
	Exec     exchange.Execution
	Data     exchange.MarketData
	Model    pricing.Model
	Notifier notifications.Notifier
	Log      *logger.Logger
	Clock    clock.Clock
	Recorder *state.Recorder
}

// Notify sends a notification, logging delivery failures instead of
// propagating them into a trading decision.
func (e *Env) Notify(severity notifications.Severity, format string, args ...interface{}) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.Notify(severity, fmt.Sprintf(format, args...)); err != nil && e.Log != nil {
		e.Log.Error("notification failed: %v", err)
	}
}

// Result is the realized outcome of one episode. Trend catcher points are
// a separate line item from the main position's P&L.
type Result struct {
	Underlying   string
	Strategy     string
	Outcome      string
	ProfitPoints float64
	ProfitRupees float64
	TrendPoints  float64
	ExitTime     time.Time
}

// Variant is one policy state machine. Execute must report a Result even
// on error when any legs were opened, so P&L reporting is never skipped.
type Variant interface {
	Name() string
	ExitTime() time.Time
	Execute(ctx context.Context, env *Env) (*Result, error)
}

// Runner executes a variant with the shared session discipline: skip
// deployment after the exit time, notify failures at high severity, and
// always report the realized result.
type Runner struct {
	Env *Env
}

// Run executes the variant. The returned Result may be non-nil alongside
// a non-nil error when legs were opened before the failure.
func (r *Runner) Run(ctx context.Context, v Variant) (*Result, error) {
	if exitTime := v.ExitTime(); !exitTime.IsZero() && !r.Env.Clock.Now().Before(exitTime) {
		r.Env.Notify(notifications.SeverityInfo,
			"%s not being deployed after exit time", v.Name())
		return nil, nil
	}

	result, err := v.Execute(ctx, r.Env)
	if err != nil {
		monitoring.RecordError(string(traderrors.CategoryOf(err)))
		r.Env.Notify(notifications.SeverityError, "%s failed: %v", v.Name(), err)
		if r.Env.Log != nil {
			r.Env.Log.LogError(v.Name(), err)
		}
	}
	if result != nil {
		r.report(result)
	}
	return result, err
}

func (r *Runner) report(res *Result) {
	if r.Env.Log != nil {
		r.Env.Log.LogEpisodeCompletion(res.Outcome, res.ProfitPoints, res.ProfitRupees, res.TrendPoints)
	}
	r.Env.Notify(notifications.SeverityInfo,
		"%s %s finished: %s\nProfit: %.2f pts (%.2f)\nTrend catcher: %.2f pts",
		res.Underlying, res.Strategy, res.Outcome, res.ProfitPoints, res.ProfitRupees, res.TrendPoints)
}
