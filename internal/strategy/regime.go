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

// regimeState names where the strategy currently sits: collecting theta on
// a short strangle, or riding a directional breakout.
type regimeState string

const (
	stateNeutral         regimeState = "neutral"
	stateBuyDirectional  regimeState = "buy_directional"
	stateSellDirectional regimeState = "sell_directional"
)

// Profit-capture defaults, as fractions of the deployed exposure.
const (
	defaultProfitCapturePct = 0.0007
	defaultThetaCutoffPct   = 0.0002
	deltaSlackFraction      = 0.1
)

// RegimeSwitch sells an ATM strangle and watches both anchor legs. A stop
// breach on one anchor flips the book into the corresponding directional
// state; the anchor premium trading back to its entry level flips back,
// consuming one reentry. Directional states are also closed out early when
// the position has squeezed out its profit.
type RegimeSwitch struct {
	Underlying  string
	Expiry      time.Time
	LotSize     int
	StrikeBase  float64
	StrategyTag string

	Exposure float64

	// StopLoss is the fractional stop on each anchor premium.
	StopLoss float64
	// Reentries is the per-anchor budget of neutral/directional flips.
	Reentries int

	// TargetDelta sizes the directional leg as a fraction of the base
	// quantity's delta. Defaults to 0.5 (one ATM option per base lot).
	TargetDelta float64

	// MorningCutoff bounds the cheap profit-capture check; before it a
	// flat-delta profitable book is closed without the theta test.
	MorningCutoff    time.Time
	ProfitCapturePct float64
	ThetaCutoffPct   float64

	AtMarket bool

	SessionExitTime time.Time
	PollInterval    time.Duration
}

func (s *RegimeSwitch) Name() string { return s.Underlying + " regime switch" }

func (s *RegimeSwitch) ExitTime() time.Time { return s.SessionExitTime }

// dirStateFor maps a breached anchor to the directional state it opens: a
// put breakout means the market is falling away from the strangle, so the
// book goes long the downside; a call breakout goes short.
func dirStateFor(side option.Type) regimeState {
	if side == option.Put {
		return stateBuyDirectional
	}
	return stateSellDirectional
}

type regimeAnchor struct {
	side   option.Type
	inst   option.Instrument
	ladder *position.ReentryState
	other  *regimeAnchor
}

func (s *RegimeSwitch) Execute(ctx context.Context, env *Env) (*Result, error) {
	if s.Exposure <= 0 {
		return nil, traderrors.New(traderrors.ErrorCategoryConfig, "strategy", "validate",
			"neither exposure nor quantity supplied")
	}
	if s.StopLoss <= 0 {
		s.StopLoss = 0.2
	}
	if s.Reentries <= 0 {
		s.Reentries = 10
	}
	if s.TargetDelta <= 0 {
		s.TargetDelta = 0.5
	}
	if s.ProfitCapturePct <= 0 {
		s.ProfitCapturePct = defaultProfitCapturePct
	}
	if s.ThetaCutoffPct <= 0 {
		s.ThetaCutoffPct = defaultThetaCutoffPct
	}
	if s.PollInterval <= 0 {
		s.PollInterval = time.Second
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
	dirQty := option.RoundToLotSize(2*s.TargetDelta*float64(baseQty), s.LotSize)
	if dirQty < s.LotSize {
		dirQty = s.LotSize
	}

	atm := option.FindStrike(spot, s.StrikeBase)
	callInst := option.Instrument{Underlying: s.Underlying, Strike: atm, Expiry: s.Expiry, Type: option.Call}
	putInst := option.Instrument{Underlying: s.Underlying, Strike: atm, Expiry: s.Expiry, Type: option.Put}

	book := position.NewBook(s.StrategyTag)
	book.Recommend(callInst, option.RolePrimary, s.LotSize, -baseQty)
	book.Recommend(putInst, option.RolePrimary, s.LotSize, -baseQty)
	fills, err := book.Execute(ctx, env.Exec, style)
	if err != nil {
		return nil, err
	}
	monitoring.RecordOrder(s.Underlying, option.Sell.String())

	call := &regimeAnchor{
		side:   option.Call,
		inst:   callInst,
		ladder: position.NewReentryState(fills[callInst], s.StopLoss, s.Reentries),
	}
	put := &regimeAnchor{
		side:   option.Put,
		inst:   putInst,
		ladder: position.NewReentryState(fills[putInst], s.StopLoss, s.Reentries),
	}
	call.other, put.other = put, call

	env.Notify(notifications.SeverityInfo,
		"%s %s starting neutral with strangle %s / %s and prices (%.2f, %.2f)",
		s.Underlying, s.StrategyTag, callInst, putInst,
		call.ladder.EntryPrice, put.ladder.EntryPrice)

	recordStatus := func() {}
	if env.Recorder != nil {
		recordStatus = clock.PeriodicTask(env.Clock, 55*time.Second, func() {
			env.Recorder.Record(s.snapshot(book, spot))
		})
	}

	regime := stateNeutral
	var watched *regimeAnchor
	outcome := "exit time reached"

loop:
	for env.Clock.Now().Before(s.SessionExitTime) && ctx.Err() == nil {
		clock.SleepUntilNext(env.Clock, s.PollInterval, s.SessionExitTime, clock.Options{
			Tasks: []func(){recordStatus},
		})

		spot, err = env.Data.SpotPrice(ctx, s.Underlying)
		if err != nil {
			continue
		}
		callLTP, errC := env.Data.OptionPrice(ctx, callInst)
		putLTP, errP := env.Data.OptionPrice(ctx, putInst)
		if errC != nil || errP != nil {
			if env.Log != nil {
				env.Log.Error("anchor price fetch failed: %v %v", errC, errP)
			}
			continue
		}
		ltps := map[option.Instrument]float64{callInst: callLTP, putInst: putLTP}
		anchorLTP := func(a *regimeAnchor) float64 { return ltps[a.inst] }

		switch regime {
		case stateNeutral:
			callBreached := callLTP >= call.ladder.StopPrice()
			putBreached := putLTP >= put.ladder.StopPrice()
			switch {
			case callBreached && putBreached:
				env.Notify(notifications.SeverityCrucial,
					"%s %s both anchors breached at (%.2f, %.2f). Holding neutral.",
					s.Underlying, s.StrategyTag, callLTP, putLTP)
			case putBreached:
				watched = put
				regime = dirStateFor(put.side)
			case callBreached:
				watched = call
				regime = dirStateFor(call.side)
			}
			if watched != nil && regime != stateNeutral {
				watched.ladder.MarkStopped()
				monitoring.RecordStopLoss(s.Underlying, watched.side.String())
				if err := s.applyState(ctx, env, book, regime, callInst, putInst, baseQty, dirQty, style); err != nil {
					return s.result(book, baseQty, "transition failed"), err
				}
				env.Notify(notifications.SeverityCrucial,
					"%s %s anchor breached at %.2f. Switching to %s.",
					s.Underlying, s.StrategyTag, anchorLTP(watched), regime)
			}

		case stateBuyDirectional, stateSellDirectional:
			captured, reason, err := s.profitCaptured(ctx, env, book, ltps, spot, baseQty)
			if err != nil {
				if env.Log != nil {
					env.Log.Error("profit capture check failed: %v", err)
				}
			} else if captured {
				outcome = reason
				break loop
			}

			if anchorLTP(watched) > watched.ladder.EntryPrice {
				continue
			}
			// The breached anchor traded back to its entry level.
			if watched.ladder.Remaining == 0 {
				outcome = "max entries reached"
				env.Notify(notifications.SeverityCrucial,
					"%s %s reentry budget exhausted. Exiting.", s.Underlying, s.StrategyTag)
				break loop
			}
			watched.ladder.MarkReentered()
			monitoring.RecordReentry(s.Underlying, watched.side.String())

			next := stateNeutral
			if anchorLTP(watched.other) >= watched.other.ladder.StopPrice() {
				next = dirStateFor(watched.other.side)
				watched = watched.other
				watched.ladder.MarkStopped()
				monitoring.RecordStopLoss(s.Underlying, watched.side.String())
			} else {
				watched = nil
			}
			regime = next
			if err := s.applyState(ctx, env, book, regime, callInst, putInst, baseQty, dirQty, style); err != nil {
				return s.result(book, baseQty, "transition failed"), err
			}
			env.Notify(notifications.SeverityCrucial,
				"%s %s anchor back at entry. Switching to %s.",
				s.Underlying, s.StrategyTag, regime)
		}
	}

	env.Notify(notifications.SeverityInfo, "%s %s exiting.", s.Underlying, s.StrategyTag)
	if book.HasOpenPositions() {
		if _, err := book.SquareOff(ctx, env.Exec); err != nil {
			return s.result(book, baseQty, "square off failed"), err
		}
	}
	return s.result(book, baseQty, outcome), nil
}

// applyState replaces the book's recommendations with the target regime's
// position: a short strangle when neutral, a long ATM option in the trend
// direction otherwise.
func (s *RegimeSwitch) applyState(ctx context.Context, env *Env, book *position.Book,
	regime regimeState, callInst, putInst option.Instrument, baseQty, dirQty int,
	style exchange.ExecutionStyle) error {

	callQty, putQty := -baseQty, -baseQty
	switch regime {
	case stateBuyDirectional:
		callQty, putQty = dirQty, 0
	case stateSellDirectional:
		callQty, putQty = 0, dirQty
	}
	book.Leg(callInst).RecommendedQty = callQty
	book.Leg(putInst).RecommendedQty = putQty
	if _, err := book.Execute(ctx, env.Exec, style); err != nil {
		book.RetainExisting()
		return err
	}
	monitoring.RecordOrder(s.Underlying, string(regime))
	return nil
}

// profitCaptured checks the directional book against the two exit criteria:
// before the morning cutoff a flat-delta profitable book is enough; later
// the theta bleed must also have dried up ("max squeeze").
func (s *RegimeSwitch) profitCaptured(ctx context.Context, env *Env, book *position.Book,
	ltps map[option.Instrument]float64, spot float64, baseQty int) (bool, string, error) {

	tte := option.YearsBetween(env.Clock.Now(), s.Expiry)
	greeks := make(map[option.Instrument]option.Greeks)
	for _, leg := range book.Legs() {
		if !leg.IsOpen() {
			continue
		}
		g, err := env.Model.OptionGreeks(leg.Instrument, spot, ltps[leg.Instrument], tte)
		if err != nil {
			return false, "", err
		}
		greeks[leg.Instrument] = g
	}
	agg := book.AggregateGreeks(greeks)
	monitoring.UpdateGreeks(s.Underlying, s.StrategyTag, agg.Delta, agg.Theta)

	mtm := book.MTM(ltps)
	profitable := mtm/s.Exposure >= s.ProfitCapturePct
	deltaFlat := math.Abs(agg.Delta) <= deltaSlackFraction*float64(baseQty)
	if !profitable || !deltaFlat {
		return false, "", nil
	}
	if !s.MorningCutoff.IsZero() && !env.Clock.Now().After(s.MorningCutoff) {
		return true, "profit captured", nil
	}
	if math.Abs(agg.Theta) <= s.Exposure*s.ThetaCutoffPct {
		return true, "max squeeze", nil
	}
	return false, "", nil
}

func (s *RegimeSwitch) snapshot(book *position.Book, spot float64) state.PositionSnapshot {
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

func (s *RegimeSwitch) result(book *position.Book, baseQty int, outcome string) *Result {
	rupees := book.TotalPremium()
	return &Result{
		Underlying:   s.Underlying,
		Strategy:     s.StrategyTag,
		Outcome:      outcome,
		ProfitPoints: rupees / float64(baseQty),
		ProfitRupees: rupees,
	}
}
