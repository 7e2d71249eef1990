package strategy

import (
	"context"
	"math"
	"time"

	"github.com/quantpulse/strangle-bot/internal/clock"
	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/monitoring"
	"github.com/quantpulse/strangle-bot/internal/notifications"
	"github.com/quantpulse/strangle-bot/internal/option"
	"github.com/quantpulse/strangle-bot/internal/position"
	"github.com/quantpulse/strangle-bot/internal/state"
)

// interruptDeltaFraction of the base quantity: the sleep between
// rebalances is cut short once aggregate delta breaches this emergency
// level.
const interruptDeltaFraction = 0.15

// spikeDeferral is how long rebalancing is deferred after a detected IV
// spike.
const spikeDeferral = 5 * time.Minute

// DeltaHedge sells an at-the-money strangle and keeps its aggregate delta
// inside a band around zero by trading synthetic-future increments,
// sleeping between adjustments with an early-wake interrupt on emergency
// breaches.
type DeltaHedge struct {
	Underlying  string
	Expiry      time.Time
	LotSize     int
	StrikeBase  float64
	StrategyTag string

	Exposure float64

	// DeltaThresholdPct of the base quantity that triggers a rebalance,
	// e.g. 0.04 for 4%.
	DeltaThresholdPct float64

	// IntervalMinutes between delta evaluations.
	IntervalMinutes float64

	// Interrupt enables the early wake on emergency delta breaches.
	Interrupt bool

	// HandleSpikes defers rebalancing briefly when the breach coincides
	// with a transient IV spike.
	HandleSpikes bool

	AtMarket        bool
	SessionExitTime time.Time
}

func (s *DeltaHedge) Name() string { return s.Underlying + " delta hedged strangle" }

func (s *DeltaHedge) ExitTime() time.Time { return s.SessionExitTime }

func (s *DeltaHedge) Execute(ctx context.Context, env *Env) (*Result, error) {
	if s.Exposure <= 0 {
		return nil, traderrors.New(traderrors.ErrorCategoryConfig, "strategy", "validate",
			"neither exposure nor quantity supplied")
	}
	if s.DeltaThresholdPct <= 0 {
		s.DeltaThresholdPct = 0.04
	}
	if s.IntervalMinutes <= 0 {
		s.IntervalMinutes = 1
	}
	style := exchange.StyleLimit
	if s.AtMarket {
		style = exchange.StyleMarket
	}

	spot, err := env.Data.SpotPrice(ctx, s.Underlying)
	if err != nil {
		return nil, traderrors.Wrap(err, traderrors.ErrorCategoryNetwork, "strategy", "entry",
			"spot price fetch failed")
	}
	baseQty := option.ExposureToQty(s.Exposure, spot, s.LotSize)
	threshold := s.DeltaThresholdPct * float64(baseQty)

	env.Notify(notifications.SeverityInfo,
		"%s %s, exposure: %.0f, base qty: %d, delta threshold: %.1f",
		s.Underlying, s.StrategyTag, s.Exposure, baseQty, threshold)

	atmStrike := option.FindStrike(spot, s.StrikeBase)
	callInst := option.Instrument{Underlying: s.Underlying, Strike: atmStrike, Expiry: s.Expiry, Type: option.Call}
	putInst := option.Instrument{Underlying: s.Underlying, Strike: atmStrike, Expiry: s.Expiry, Type: option.Put}

	book := position.NewBook(s.StrategyTag)
	book.Recommend(callInst, option.RolePrimary, s.LotSize, -baseQty)
	book.Recommend(putInst, option.RolePrimary, s.LotSize, -baseQty)
	fills, err := book.Execute(ctx, env.Exec, style)
	if err != nil {
		return nil, err
	}
	monitoring.RecordOrder(s.Underlying, option.Sell.String())

	entryTTE := option.YearsBetween(env.Clock.Now(), s.Expiry)
	_, _, entryIV, ivErr := env.Model.StrangleIV(
		fills[callInst], fills[putInst], atmStrike, atmStrike, spot, entryTTE)
	if ivErr != nil && env.Log != nil {
		env.Log.Error("entry IV solve failed: %v", ivErr)
	}
	spike := position.IVSpike{EntryIV: entryIV}
	hedge := position.NewSyntheticHedge(callInst, atmStrike, s.LotSize)

	recordStatus := func() {}
	if env.Recorder != nil {
		recordStatus = clock.PeriodicTask(env.Clock, 55*time.Second, func() {
			env.Recorder.Record(s.snapshot(book, spot))
		})
	}

	var lastDelta float64
	interrupted := func() bool {
		if !s.Interrupt {
			return false
		}
		return math.Abs(lastDelta) >= interruptDeltaFraction*float64(baseQty)
	}

	var spikeStart time.Time
	interval := time.Duration(s.IntervalMinutes * float64(time.Minute))

	for env.Clock.Now().Before(s.SessionExitTime) && ctx.Err() == nil {
		clock.SleepUntilNext(env.Clock, interval, s.SessionExitTime, clock.Options{
			Tasks:     []func(){recordStatus},
			Interrupt: interrupted,
		})
		if !env.Clock.Now().Before(s.SessionExitTime) {
			break
		}

		greeks, currentSpot, currentIV, err := s.positionGreeks(ctx, env, book)
		if err != nil {
			if env.Log != nil {
				env.Log.Error("greeks refresh failed: %v", err)
			}
			continue
		}
		spot = currentSpot
		lastDelta = greeks.Delta
		monitoring.UpdateGreeks(s.Underlying, s.StrategyTag, greeks.Delta, greeks.Theta)

		if math.Abs(greeks.Delta) <= threshold {
			continue
		}

		if s.HandleSpikes {
			if !spikeStart.IsZero() && env.Clock.Now().Sub(spikeStart) < spikeDeferral {
				continue
			}
			spikeStart = time.Time{}
			if spike.Spiked(currentIV) {
				spikeStart = env.Clock.Now()
				env.Notify(notifications.SeverityInfo,
					"%s IV spike detected, deferring rebalance.", s.Underlying)
				continue
			}
		}

		increment := option.RoundToLotSize(-greeks.Delta, s.LotSize)
		if increment == 0 {
			continue
		}
		hedge.Recommend(book, increment)
		if _, err := book.Execute(ctx, env.Exec, style); err != nil {
			if env.Log != nil {
				env.Log.Error("rebalance failed: %v", err)
			}
			// Roll the recommendation back so the next pass recomputes
			// from actual quantities.
			book.RetainExisting()
			continue
		}
		monitoring.RecordOrder(s.Underlying, "rebalance")
		env.Notify(notifications.SeverityInfo,
			"%s delta breached. Rebalanced with %d synthetic shares. Delta: %.1f, Threshold: %.1f",
			s.Underlying, increment, greeks.Delta, threshold)
	}

	env.Notify(notifications.SeverityInfo, "%s %s exit time reached.", s.Underlying, s.StrategyTag)
	if _, err := book.SquareOff(ctx, env.Exec); err != nil {
		return s.result(book, baseQty, "square off failed"), err
	}
	return s.result(book, baseQty, "exit time reached"), nil
}

// positionGreeks re-prices every open leg and sums their greeks scaled by
// active quantity. Returns the aggregate, the current spot and the
// position's average IV.
func (s *DeltaHedge) positionGreeks(ctx context.Context, env *Env, book *position.Book) (option.Greeks, float64, float64, error) {
	spot, err := env.Data.SpotPrice(ctx, s.Underlying)
	if err != nil {
		return option.Greeks{}, 0, 0, err
	}
	tte := option.YearsBetween(env.Clock.Now(), s.Expiry)
	greeks := make(map[option.Instrument]option.Greeks)
	for _, leg := range book.Legs() {
		if !leg.IsOpen() {
			continue
		}
		price, err := env.Data.OptionPrice(ctx, leg.Instrument)
		if err != nil {
			return option.Greeks{}, 0, 0, err
		}
		g, err := env.Model.OptionGreeks(leg.Instrument, spot, price, tte)
		if err != nil {
			return option.Greeks{}, 0, 0, err
		}
		greeks[leg.Instrument] = g
	}
	agg := book.AggregateGreeks(greeks)
	return agg, spot, agg.IV, nil
}

func (s *DeltaHedge) result(book *position.Book, baseQty int, outcome string) *Result {
	rupees := book.TotalPremium()
	return &Result{
		Underlying:   s.Underlying,
		Strategy:     s.StrategyTag,
		Outcome:      outcome,
		ProfitPoints: rupees / float64(baseQty),
		ProfitRupees: rupees,
	}
}

func (s *DeltaHedge) snapshot(book *position.Book, spot float64) state.PositionSnapshot {
	ps := state.PositionSnapshot{
		Underlying:      s.Underlying,
		StrategyTag:     s.StrategyTag,
		UnderlyingPrice: spot,
		ProfitRupees:    book.TotalPremium(),
	}
	for _, leg := range book.Legs() {
		ps.Legs = append(ps.Legs, state.LegSnapshot{
			Instrument: leg.Instrument.String(),
			Role:       string(leg.Role),
			ActiveQty:  leg.ActiveQty,
			AvgPrice:   leg.AvgPrice,
		})
	}
	return ps
}
