package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/quantpulse/strangle-bot/internal/clock"
	"github.com/quantpulse/strangle-bot/internal/engine"
	traderrors "github.com/quantpulse/strangle-bot/internal/errors"
	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/monitoring"
	"github.com/quantpulse/strangle-bot/internal/notifications"
	"github.com/quantpulse/strangle-bot/internal/option"
	"github.com/quantpulse/strangle-bot/internal/position"
	"github.com/quantpulse/strangle-bot/internal/state"
)

// IntradayStrangle sells a call and a put and manages them with two-sided
// stop losses, an optional combined stop, take profit, move-to-cost,
// trend catching and butterfly conversion.
type IntradayStrangle struct {
	Underlying  string
	Expiry      time.Time
	LotSize     int
	StrikeBase  float64
	StrategyTag string

	// Sizing: either a notional exposure converted at entry spot, or a
	// direct lot count. Exactly one must be set.
	Exposure     float64
	QuantityLots int

	// Strike placement as fractional offsets from spot. Zero selects the
	// at-the-money strike on both wings.
	CallStrikeOffset float64
	PutStrikeOffset  float64

	// StopLoss is the premium multiple at which a wing stops out.
	// CallStopLoss/PutStopLoss override it per side when non-zero.
	StopLoss     float64
	CallStopLoss float64
	PutStopLoss  float64

	// CombinedStopLoss, when non-zero, replaces the individual stops
	// with a single stop on the sum of smoothed premiums, as a multiple
	// of the entry credit.
	CombinedStopLoss float64

	// TakeProfit is the fraction of entry credit captured in points at
	// which the position closes. 0 disables.
	TakeProfit float64

	PlaceSLOrders   bool
	PlaceOrdersOnSL bool
	MoveSLToCost    bool

	CatchTrend         bool
	TrendQtyRatio      float64
	PlaceTrendSLOrders bool

	ConvertToButterfly     bool
	ConversionMethod       engine.ConversionMethod
	ConversionThresholdPct float64
	ConversionCutoff       time.Time

	SessionExitTime time.Time
	PollInterval    time.Duration
	SecondsToAvg    time.Duration

	Guards engine.GuardConfig
}

func (s *IntradayStrangle) Name() string { return s.Underlying + " intraday strangle" }

func (s *IntradayStrangle) ExitTime() time.Time { return s.SessionExitTime }

// sideState is the decision-loop bookkeeping for one wing.
type sideState struct {
	side     option.Type
	leg      *position.Leg
	wing     engine.Wing
	stopRefs []exchange.OrderRef
}

func (s *IntradayStrangle) validate() error {
	if s.Exposure <= 0 && s.QuantityLots <= 0 {
		return traderrors.New(traderrors.ErrorCategoryConfig, "strategy", "validate",
			"neither exposure nor quantity supplied")
	}
	if s.Exposure > 0 && s.QuantityLots > 0 {
		return traderrors.New(traderrors.ErrorCategoryConfig, "strategy", "validate",
			"both exposure and quantity supplied, set exactly one")
	}
	if s.CombinedStopLoss == 0 && s.StopLoss == 0 && (s.CallStopLoss == 0 || s.PutStopLoss == 0) {
		return traderrors.New(traderrors.ErrorCategoryConfig, "strategy", "validate",
			"no stop loss configured")
	}
	if s.ConvertToButterfly && s.ConversionMethod != engine.ConversionBreakeven &&
		s.ConversionMethod != engine.ConversionPct {
		return traderrors.Newf(traderrors.ErrorCategoryConfig, "strategy", "validate",
			"invalid conversion method %q", s.ConversionMethod)
	}
	return nil
}

// Execute runs the full episode. On an execution failure after entry it
// attempts to close any open legs before returning the error, and still
// reports the realized result.
func (s *IntradayStrangle) Execute(ctx context.Context, env *Env) (*Result, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.PollInterval <= 0 {
		s.PollInterval = time.Second
	}

	spot, err := env.Data.SpotPrice(ctx, s.Underlying)
	if err != nil {
		return nil, traderrors.Wrap(err, traderrors.ErrorCategoryNetwork, "strategy", "entry",
			"spot price fetch failed")
	}

	qtyLots := s.QuantityLots
	if qtyLots <= 0 {
		qtyLots = option.ExposureToQty(s.Exposure, spot, s.LotSize) / s.LotSize
		if qtyLots < 1 {
			qtyLots = 1
		}
	}
	qtyShares := qtyLots * s.LotSize

	callStrike := option.FindStrike(spot*(1+s.CallStrikeOffset), s.StrikeBase)
	putStrike := option.FindStrike(spot*(1-s.PutStrikeOffset), s.StrikeBase)
	callInst := option.Instrument{Underlying: s.Underlying, Strike: callStrike, Expiry: s.Expiry, Type: option.Call}
	putInst := option.Instrument{Underlying: s.Underlying, Strike: putStrike, Expiry: s.Expiry, Type: option.Put}

	// Entry: both wings in one batch, atomic from our point of view.
	book := position.NewBook(s.StrategyTag)
	book.Recommend(callInst, option.RolePrimary, s.LotSize, -qtyShares)
	book.Recommend(putInst, option.RolePrimary, s.LotSize, -qtyShares)
	fills, err := book.Execute(ctx, env.Exec, exchange.StyleLimit)
	if err != nil {
		return nil, err
	}
	monitoring.RecordOrder(s.Underlying, option.Sell.String())
	callAvg := fills[callInst]
	putAvg := fills[putInst]
	totalAvg := callAvg + putAvg

	callStopMult := s.CallStopLoss
	if callStopMult == 0 {
		callStopMult = s.StopLoss
	}
	putStopMult := s.PutStopLoss
	if putStopMult == 0 {
		putStopMult = s.StopLoss
	}

	var callStopPrice, putStopPrice, combinedStopPrice float64
	if s.CombinedStopLoss > 0 {
		combinedStopPrice = totalAvg * s.CombinedStopLoss
	} else {
		callStopPrice = callAvg * callStopMult
		putStopPrice = putAvg * putStopMult
	}

	entryTTE := option.YearsBetween(env.Clock.Now(), s.Expiry)

	// Entry-time vols anchor the stop-loss justification. The traded
	// strangle's average is the fallback when the ATM solve fails.
	_, _, tradedAvgIV, ivErr := env.Model.StrangleIV(callAvg, putAvg, callStrike, putStrike, spot, entryTTE)
	entryATMIV := tradedAvgIV
	if atmIV, err := s.fetchATMIV(ctx, env, spot, entryTTE); err == nil {
		entryATMIV = atmIV
	} else if env.Log != nil {
		env.Log.Error("ATM IV fetch failed, falling back to traded IV: %v", err)
	}
	if ivErr != nil && env.Log != nil {
		env.Log.Error("traded strangle IV solve failed: %v", ivErr)
	}

	env.Notify(notifications.SeverityInfo,
		"%s strangle entered.\nCall strike: %.0f @ %.2f\nPut strike: %.0f @ %.2f\n"+
			"Total: %.2f | Lots: %d\nCall SL: %.2f, Put SL: %.2f\nCombined SL: %.2f\nATM IV: %.4f",
		s.Underlying, callStrike, callAvg, putStrike, putAvg,
		totalAvg, qtyLots, callStopPrice, putStopPrice, combinedStopPrice, entryATMIV)

	sides := map[option.Type]*sideState{
		option.Call: {
			side: option.Call,
			leg:  book.Leg(callInst),
			wing: engine.Wing{Side: option.Call, Strike: callStrike, AvgPrice: callAvg, StopLossPrice: callStopPrice},
		},
		option.Put: {
			side: option.Put,
			leg:  book.Leg(putInst),
			wing: engine.Wing{Side: option.Put, Strike: putStrike, AvgPrice: putAvg, StopLossPrice: putStopPrice},
		},
	}
	sides[option.Call].leg.StopLossPct = callStopMult - 1
	sides[option.Put].leg.StopLossPct = putStopMult - 1

	if s.PlaceSLOrders && s.CombinedStopLoss == 0 {
		for _, ss := range sides {
			ref, err := env.Exec.PlaceProtectiveOrder(ctx, ss.leg.Instrument, option.Buy,
				qtyShares, ss.wing.StopLossPrice, s.StrategyTag)
			if err != nil {
				return s.abandon(ctx, env, book, qtyLots,
					traderrors.Wrap(err, traderrors.ErrorCategoryExecution, "strategy", "entry",
						"%s protective order placement failed", ss.side))
			}
			ss.stopRefs = append(ss.stopRefs, ref)
		}
	}

	st := engine.NewSharedState()
	info := engine.StrangleInfo{
		Underlying:    s.Underlying,
		StrategyTag:   s.StrategyTag,
		Expiry:        s.Expiry,
		LotSize:       s.LotSize,
		QuantityLots:  qtyLots,
		CallInst:      callInst,
		PutInst:       putInst,
		CallWing:      sides[option.Call].wing,
		PutWing:       sides[option.Put].wing,
		TotalAvgPrice: totalAvg,
		EntrySpot:     spot,
		EntryATMIV:    entryATMIV,
		EntryTTE:      entryTTE,
	}

	evaluator := &engine.Evaluator{
		Model:      env.Model,
		Exec:       env.Exec,
		Notifier:   env.Notifier,
		Log:        env.Log,
		Clock:      env.Clock,
		Guards:     s.guards(),
		Underlying: s.Underlying,
		Expiry:     s.Expiry,
		EntrySpot:  spot,
		EntryATMIV: entryATMIV,
		EntryTTE:   entryTTE,
	}

	monitor := &engine.Monitor{
		Data:     env.Data,
		Model:    env.Model,
		Notifier: env.Notifier,
		Log:      env.Log,
		Clock:    env.Clock,
		State:    st,
		Info:     info,
		Config: engine.MonitorConfig{
			PollInterval:          s.PollInterval,
			SecondsToAvg:          s.SecondsToAvg,
			TakeProfitFraction:    s.TakeProfit,
			CombinedStopLossPrice: combinedStopPrice,
			ConversionCutoff:      s.ConversionCutoff,
			Conversion:            s.conversionPolicy(callInst, putInst, callStopMult, putStopMult, callAvg, putAvg),
		},
	}
	if env.Recorder != nil {
		recordStatus := func() {
			snap := st.Snapshot()
			env.Recorder.Record(s.snapshot(book, snap))
		}
		monitor.SideTasks = append(monitor.SideTasks,
			clock.PeriodicTask(env.Clock, 55*time.Second, recordStatus))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Run(ctx)
	}()

	// Sequential decision loop: wait for exit time, a position-level
	// trigger, or either wing's stop loss.
	var execErr error
	for env.Clock.Now().Before(s.SessionExitTime) && !st.Triggers().Any() && ctx.Err() == nil {
		if s.CombinedStopLoss > 0 {
			// The monitor owns the combined stop; nothing to poll here.
			env.Clock.Sleep(time.Second)
			continue
		}
		stopped := false
		for _, side := range []option.Type{option.Call, option.Put} {
			hit, err := s.checkSide(ctx, env, evaluator, st, sides[side])
			if err != nil {
				if env.Log != nil {
					env.Log.Error("stop loss check failed: %v", err)
				}
				continue
			}
			if hit {
				execErr = s.processStopLoss(ctx, env, evaluator, st, info, book, sides, side, qtyShares, &wg)
				stopped = true
				break
			}
		}
		if stopped || execErr != nil {
			break
		}
		env.Clock.Sleep(time.Second)
	}

	if execErr == nil {
		execErr = s.handleConversion(ctx, env, st, info, book, sides, qtyShares)
	}

	closeErr := s.closeOut(ctx, env, st, book, sides, qtyShares)
	if execErr == nil {
		execErr = closeErr
	}

	// Terminal flag first: the monitor and the trend catcher both exit on
	// it, so the join must come after.
	st.Complete()
	wg.Wait()

	result := s.finalResult(st, sides, totalAvg, qtyLots)
	if env.Recorder != nil {
		env.Recorder.Record(s.snapshot(book, st.Snapshot()))
	}
	return result, execErr
}

func (s *IntradayStrangle) guards() engine.GuardConfig {
	if s.Guards == (engine.GuardConfig{}) {
		return engine.DefaultGuards()
	}
	return s.Guards
}

// fetchATMIV solves the straddle at the at-the-money strike.
func (s *IntradayStrangle) fetchATMIV(ctx context.Context, env *Env, spot, tte float64) (float64, error) {
	atmStrike := option.FindStrike(spot, s.StrikeBase)
	atmCall := option.Instrument{Underlying: s.Underlying, Strike: atmStrike, Expiry: s.Expiry, Type: option.Call}
	atmPut := option.Instrument{Underlying: s.Underlying, Strike: atmStrike, Expiry: s.Expiry, Type: option.Put}
	callPrice, err := env.Data.OptionPrice(ctx, atmCall)
	if err != nil {
		return 0, err
	}
	putPrice, err := env.Data.OptionPrice(ctx, atmPut)
	if err != nil {
		return 0, err
	}
	_, _, avgIV, err := env.Model.StrangleIV(callPrice, putPrice, atmStrike, atmStrike, spot, tte)
	return avgIV, err
}

func (s *IntradayStrangle) conversionPolicy(callInst, putInst option.Instrument,
	callStopMult, putStopMult, callAvg, putAvg float64) engine.ConversionPolicy {
	if !s.ConvertToButterfly {
		return engine.ConversionPolicy{}
	}
	hedgeCall := callInst
	hedgeCall.Strike += s.StrikeBase
	hedgePut := putInst
	hedgePut.Strike -= s.StrikeBase
	method := s.ConversionMethod
	if method == "" {
		method = engine.ConversionBreakeven
	}
	return engine.ConversionPolicy{
		Enabled:            true,
		Method:             method,
		ThresholdPct:       s.ConversionThresholdPct,
		HedgeCall:          hedgeCall,
		HedgePut:           hedgePut,
		StrikeWidth:        s.StrikeBase,
		BreakevenThreshold: engine.ConversionBreakevenThreshold(callAvg, putAvg, callStopMult, putStopMult),
	}
}

// checkSide runs one stop-loss evaluation and records a hit on the shared
// state and metrics.
func (s *IntradayStrangle) checkSide(ctx context.Context, env *Env, ev *engine.Evaluator,
	st *engine.SharedState, ss *sideState) (bool, error) {
	if st.StopLossHit(ss.side) {
		return false, nil
	}
	decision, err := ev.Check(ctx, st, ss.wing, ss.stopRefs)
	if err != nil || !decision.StopLoss {
		return false, err
	}
	if decision.ClearOrders {
		ss.stopRefs = nil
	}
	if st.MarkStopLoss(ss.side) {
		monitoring.RecordStopLoss(s.Underlying, ss.side.String())
	}
	return true, nil
}

// processStopLoss closes the stopped wing, optionally moves the surviving
// wing's stop to cost and starts the trend catcher, then waits for the
// surviving wing, a position trigger, or exit time. The catcher observes
// the terminal flag, so it is registered on loops and joined by Execute
// after Complete, never awaited here.
func (s *IntradayStrangle) processStopLoss(ctx context.Context, env *Env, ev *engine.Evaluator,
	st *engine.SharedState, info engine.StrangleInfo, book *position.Book,
	sides map[option.Type]*sideState, stoppedSide option.Type, qtyShares int,
	loops *sync.WaitGroup) error {

	stopped := sides[stoppedSide]
	other := sides[stoppedSide.Opposite()]

	exitPrice, err := s.exitWing(ctx, env, book, stopped, qtyShares)
	if err != nil {
		return err
	}
	st.SetExitPrice(stoppedSide, exitPrice)
	env.Notify(notifications.SeverityCrucial,
		"%s strangle %s stop loss hit, exited at %.2f", s.Underlying, stoppedSide, exitPrice)

	if s.MoveSLToCost {
		other.wing.StopLossPrice = other.wing.AvgPrice
		if len(other.stopRefs) > 0 || s.PlaceOrdersOnSL {
			if len(other.stopRefs) > 0 {
				if err := env.Exec.CancelOrders(ctx, other.stopRefs...); err != nil && env.Log != nil {
					env.Log.Error("cancel of %s stop orders failed: %v", other.side, err)
				}
				other.stopRefs = nil
			}
			ref, err := env.Exec.PlaceProtectiveOrder(ctx, other.leg.Instrument, option.Buy,
				qtyShares, other.wing.StopLossPrice, s.StrategyTag)
			if err != nil {
				if env.Log != nil {
					env.Log.Error("move-to-cost stop placement failed: %v", err)
				}
			} else {
				other.stopRefs = append(other.stopRefs, ref)
			}
		}
	}

	if s.CatchTrend {
		catcher := &engine.TrendCatcher{
			Exec:          env.Exec,
			Data:          env.Data,
			Notifier:      env.Notifier,
			Log:           env.Log,
			Clock:         env.Clock,
			State:         st,
			Info:          info,
			StoppedSide:   stoppedSide,
			QtyRatio:      s.TrendQtyRatio,
			PlaceSLOrders: s.PlaceTrendSLOrders,
			ExitTime:      s.SessionExitTime,
			PollInterval:  s.PollInterval,
		}
		loops.Add(1)
		go func() {
			defer loops.Done()
			catcher.Run(ctx)
		}()
	}

	// Wait for the surviving wing's stop, take profit, or exit time.
	for env.Clock.Now().Before(s.SessionExitTime) && !st.Triggers().TakeProfit && ctx.Err() == nil {
		hit, err := s.checkSide(ctx, env, ev, st, other)
		if err != nil {
			if env.Log != nil {
				env.Log.Error("stop loss check failed: %v", err)
			}
		} else if hit {
			otherExit, err := s.exitWing(ctx, env, book, other, qtyShares)
			if err != nil {
				return err
			}
			st.SetExitPrice(other.side, otherExit)
			env.Notify(notifications.SeverityCrucial,
				"%s strangle %s stop loss hit, exited at %.2f", s.Underlying, other.side, otherExit)
			return nil
		}
		env.Clock.Sleep(time.Second)
	}
	return nil
}

// exitWing buys a wing back. With resting stop orders that already
// triggered, the fill average is read from the order statuses instead.
func (s *IntradayStrangle) exitWing(ctx context.Context, env *Env, book *position.Book,
	ss *sideState, qtyShares int) (float64, error) {
	if len(ss.stopRefs) > 0 {
		states, err := env.Exec.FetchOrderStatuses(ctx, ss.stopRefs)
		if err == nil {
			if _, complete := exchange.ProtectiveOutcome(states); complete {
				avg := exchange.FilledAverage(states)
				ss.leg.ApplyFill(qtyShares, avg)
				ss.stopRefs = nil
				return avg, nil
			}
		}
		// Triggered but unfilled, or fetch failed: exit at market and
		// drop the refs.
		if err := env.Exec.CancelOrders(ctx, ss.stopRefs...); err != nil && env.Log != nil {
			env.Log.Error("cancel of %s stop orders failed: %v", ss.side, err)
		}
		ss.stopRefs = nil
	}
	ss.leg.RecommendedQty = 0
	fills, err := book.Execute(ctx, env.Exec, exchange.StyleMarket)
	if err != nil {
		return 0, err
	}
	monitoring.RecordOrder(s.Underlying, option.Buy.String())
	return fills[ss.leg.Instrument], nil
}

// handleConversion buys the hedge wings once the monitor raises the
// trigger, then holds the butterfly until exit time.
func (s *IntradayStrangle) handleConversion(ctx context.Context, env *Env, st *engine.SharedState,
	info engine.StrangleInfo, book *position.Book, sides map[option.Type]*sideState, qtyShares int) error {
	if !st.Triggers().ConvertToHedge {
		return nil
	}
	policy := s.conversionPolicy(info.CallInst, info.PutInst, 0, 0, 0, 0)
	book.Recommend(policy.HedgeCall, option.RoleHedge, s.LotSize, qtyShares)
	book.Recommend(policy.HedgePut, option.RoleHedge, s.LotSize, qtyShares)
	if _, err := book.Execute(ctx, env.Exec, exchange.StyleLimit); err != nil {
		return err
	}
	monitoring.RecordOrder(s.Underlying, option.Buy.String())
	for _, ss := range sides {
		if len(ss.stopRefs) > 0 {
			if err := env.Exec.CancelOrders(ctx, ss.stopRefs...); err != nil && env.Log != nil {
				env.Log.Error("cancel of %s stop orders failed: %v", ss.side, err)
			}
			ss.stopRefs = nil
		}
	}
	env.Notify(notifications.SeverityInfo, "%s: converted to butterfly", s.Underlying)
	for env.Clock.Now().Before(s.SessionExitTime) && ctx.Err() == nil {
		env.Clock.Sleep(3 * time.Second)
	}
	return nil
}

// closeOut settles whatever is still open at the end of the decision
// loop: both wings, only the surviving wing, or nothing.
func (s *IntradayStrangle) closeOut(ctx context.Context, env *Env, st *engine.SharedState,
	book *position.Book, sides map[option.Type]*sideState, qtyShares int) error {
	var firstErr error
	for _, side := range []option.Type{option.Call, option.Put} {
		ss := sides[side]
		if !ss.leg.IsOpen() {
			continue
		}
		exitPrice, err := s.exitWing(ctx, env, book, ss, qtyShares)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		st.SetExitPrice(side, exitPrice)
	}
	return firstErr
}

func (s *IntradayStrangle) finalResult(st *engine.SharedState, sides map[option.Type]*sideState,
	totalAvg float64, qtyLots int) *Result {
	snap := st.Snapshot()
	callExit := st.ExitPriceOr(option.Call, snap.LegPrice[option.Call])
	putExit := st.ExitPriceOr(option.Put, snap.LegPrice[option.Put])
	points := totalAvg - (callExit + putExit)

	outcome := "both wings survived"
	callSL := st.StopLossHit(option.Call)
	putSL := st.StopLossHit(option.Put)
	switch {
	case callSL && putSL:
		outcome = "both wings stopped"
	case callSL:
		outcome = "call wing stopped"
	case putSL:
		outcome = "put wing stopped"
	}
	if st.Triggers().ConvertToHedge {
		outcome = "converted to butterfly"
	}

	return &Result{
		Underlying:   s.Underlying,
		Strategy:     s.StrategyTag,
		Outcome:      outcome,
		ProfitPoints: points,
		ProfitRupees: points * float64(s.LotSize) * float64(qtyLots),
		TrendPoints:  st.TrendPoints(),
	}
}

func (s *IntradayStrangle) snapshot(book *position.Book, snap engine.Snapshot) state.PositionSnapshot {
	ps := state.PositionSnapshot{
		Underlying:      s.Underlying,
		StrategyTag:     s.StrategyTag,
		UnderlyingPrice: snap.UnderlyingPrice,
		ProfitPoints:    snap.ProfitPoints,
		ProfitRupees:    snap.ProfitRupees,
	}
	for _, leg := range book.Legs() {
		ps.Legs = append(ps.Legs, state.LegSnapshot{
			Instrument: leg.Instrument.String(),
			Role:       string(leg.Role),
			ActiveQty:  leg.ActiveQty,
			AvgPrice:   leg.AvgPrice,
			LastPrice:  snap.LegPrice[leg.Instrument.Type],
			StopPrice:  leg.StopLossPrice(),
		})
	}
	return ps
}

// abandon closes any filled legs after a failed entry step and returns
// the original error.
func (s *IntradayStrangle) abandon(ctx context.Context, env *Env, book *position.Book,
	qtyLots int, cause error) (*Result, error) {
	env.Notify(notifications.SeverityError, "%s entry abandoned: %v", s.Underlying, cause)
	if _, err := book.SquareOff(ctx, env.Exec); err != nil && env.Log != nil {
		env.Log.Error("abandon square off failed: %v", err)
	}
	return &Result{
		Underlying: s.Underlying,
		Strategy:   s.StrategyTag,
		Outcome:    "entry abandoned",
	}, cause
}
