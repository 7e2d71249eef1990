package strategy

import (
	"context"
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

// LadderReentry sells a strangle where each wing carries its own stop and
// a reentry budget: a stopped wing is closed immediately and re-sold when
// the price retraces to its original entry, consuming one reentry. The
// episode ends when both wings are flat with no budget left, or at exit
// time.
type LadderReentry struct {
	Underlying  string
	Expiry      time.Time
	LotSize     int
	StrikeBase  float64
	StrategyTag string

	Exposure float64

	// StopLoss is the fractional stop distance: a wing stops at
	// avg*(1+StopLoss). Per-side overrides apply when non-zero.
	StopLoss     float64
	CallStopLoss float64
	PutStopLoss  float64

	StrikeOffset     float64
	CallStrikeOffset float64
	PutStrikeOffset  float64

	// Reentries is the per-wing budget. Per-side overrides apply when
	// non-zero.
	Reentries     int
	CallReentries int
	PutReentries  int

	// Hedged buys far OTM wings alongside the main sells.
	Hedged      bool
	HedgeOffset float64

	MoveOtherToCost bool
	// AdjustStopLoss re-anchors a wing's stop on its reentry fill
	// instead of the original entry.
	AdjustStopLoss bool
	AtMarket       bool

	SessionExitTime time.Time
	PollInterval    time.Duration
}

func (s *LadderReentry) Name() string { return s.Underlying + " ladder reentry" }

func (s *LadderReentry) ExitTime() time.Time { return s.SessionExitTime }

type ladderWing struct {
	side   option.Type
	leg    *position.Leg
	ladder *position.ReentryState
	other  *ladderWing
}

func (s *LadderReentry) Execute(ctx context.Context, env *Env) (*Result, error) {
	if s.Exposure <= 0 {
		return nil, traderrors.New(traderrors.ErrorCategoryConfig, "strategy", "validate",
			"neither exposure nor quantity supplied")
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
	qtyShares := option.ExposureToQty(s.Exposure, spot, s.LotSize)

	callOffset := s.CallStrikeOffset
	if callOffset == 0 {
		callOffset = s.StrikeOffset
	}
	putOffset := s.PutStrikeOffset
	if putOffset == 0 {
		putOffset = s.StrikeOffset
	}
	callInst := option.Instrument{
		Underlying: s.Underlying, Expiry: s.Expiry, Type: option.Call,
		Strike: option.FindStrike(spot*(1+callOffset), s.StrikeBase),
	}
	putInst := option.Instrument{
		Underlying: s.Underlying, Expiry: s.Expiry, Type: option.Put,
		Strike: option.FindStrike(spot*(1-putOffset), s.StrikeBase),
	}

	book := position.NewBook(s.StrategyTag)
	book.Recommend(callInst, option.RolePrimary, s.LotSize, -qtyShares)
	book.Recommend(putInst, option.RolePrimary, s.LotSize, -qtyShares)
	if s.Hedged {
		hedgeCall := callInst
		hedgeCall.Strike = option.FindStrike(spot*(1+s.HedgeOffset), s.StrikeBase)
		hedgePut := putInst
		hedgePut.Strike = option.FindStrike(spot*(1-s.HedgeOffset), s.StrikeBase)
		book.Recommend(hedgeCall, option.RoleHedge, s.LotSize, qtyShares)
		book.Recommend(hedgePut, option.RoleHedge, s.LotSize, qtyShares)
	}
	fills, err := book.Execute(ctx, env.Exec, style)
	if err != nil {
		return nil, err
	}
	monitoring.RecordOrder(s.Underlying, option.Sell.String())

	callSL := s.CallStopLoss
	if callSL == 0 {
		callSL = s.StopLoss
	}
	putSL := s.PutStopLoss
	if putSL == 0 {
		putSL = s.StopLoss
	}
	callRe := s.CallReentries
	if callRe == 0 {
		callRe = s.Reentries
	}
	putRe := s.PutReentries
	if putRe == 0 {
		putRe = s.Reentries
	}

	call := &ladderWing{
		side:   option.Call,
		leg:    book.Leg(callInst),
		ladder: position.NewReentryState(fills[callInst], callSL, callRe),
	}
	put := &ladderWing{
		side:   option.Put,
		leg:    book.Leg(putInst),
		ladder: position.NewReentryState(fills[putInst], putSL, putRe),
	}
	call.other, put.other = put, call

	env.Notify(notifications.SeverityInfo,
		"%s %s starting with strangle %s / %s and prices (%.2f, %.2f)",
		s.Underlying, s.StrategyTag, callInst, putInst,
		call.ladder.EntryPrice, put.ladder.EntryPrice)

	recordStatus := func() {}
	if env.Recorder != nil {
		recordStatus = clock.PeriodicTask(env.Clock, 55*time.Second, func() {
			env.Recorder.Record(s.snapshot(book, spot))
		})
	}

	outcome := "exit time reached"
	for env.Clock.Now().Before(s.SessionExitTime) && ctx.Err() == nil {
		if !call.leg.IsOpen() && !put.leg.IsOpen() &&
			call.ladder.Remaining == 0 && put.ladder.Remaining == 0 {
			outcome = "all ladders exhausted"
			env.Notify(notifications.SeverityInfo,
				"%s %s all positions exited.", s.Underlying, s.StrategyTag)
			break
		}

		clock.SleepUntilNext(env.Clock, s.PollInterval, s.SessionExitTime, clock.Options{
			Tasks: []func(){recordStatus},
		})

		for _, w := range []*ladderWing{call, put} {
			ltp, err := env.Data.OptionPrice(ctx, w.leg.Instrument)
			if err != nil {
				if env.Log != nil {
					env.Log.Error("%s price fetch failed: %v", w.side, err)
				}
				continue
			}
			if err := s.manageWing(ctx, env, book, w, qtyShares, ltp, style); err != nil {
				if env.Log != nil {
					env.Log.Error("%s ladder step failed: %v", w.side, err)
				}
			}
		}
	}

	// Exit open positions if any
	env.Notify(notifications.SeverityInfo, "%s %s exiting.", s.Underlying, s.StrategyTag)
	if book.HasOpenPositions() {
		if _, err := book.SquareOff(ctx, env.Exec); err != nil {
			return s.result(book, qtyShares, "square off failed"), err
		}
	}
	return s.result(book, qtyShares, outcome), nil
}

// manageWing runs one ladder step for a wing: stop out a live leg that
// breached its stop, or reenter a flat leg whose price retraced to entry.
func (s *LadderReentry) manageWing(ctx context.Context, env *Env, book *position.Book,
	w *ladderWing, qtyShares int, ltp float64, style exchange.ExecutionStyle) error {

	switch {
	case w.leg.IsOpen():
		if ltp < w.ladder.StopPrice() {
			return nil
		}
		w.leg.RecommendedQty = 0
		fills, err := book.Execute(ctx, env.Exec, style)
		if err != nil {
			return err
		}
		w.ladder.MarkStopped()
		monitoring.RecordStopLoss(s.Underlying, w.side.String())
		env.Notify(notifications.SeverityInfo,
			"%s %s %s stop loss hit. Exit price: %.2f",
			s.Underlying, s.StrategyTag, w.leg.Instrument, fills[w.leg.Instrument])
		if s.MoveOtherToCost && w.other.leg.IsOpen() {
			w.other.ladder.StopPct = 0
		}

	case w.ladder.ShouldReenter(ltp):
		w.leg.RecommendedQty = -qtyShares
		fills, err := book.Execute(ctx, env.Exec, style)
		if err != nil {
			return err
		}
		entryPrice := fills[w.leg.Instrument]
		w.ladder.MarkReentered()
		monitoring.RecordReentry(s.Underlying, w.side.String())
		env.Notify(notifications.SeverityInfo,
			"%s %s %s reentry condition met. Reentry price: %.2f",
			s.Underlying, s.StrategyTag, w.leg.Instrument, entryPrice)
		if s.AdjustStopLoss {
			w.ladder.EntryPrice = entryPrice
		}
	}
	return nil
}

func (s *LadderReentry) result(book *position.Book, qtyShares int, outcome string) *Result {
	rupees := book.TotalPremium()
	return &Result{
		Underlying:   s.Underlying,
		Strategy:     s.StrategyTag,
		Outcome:      outcome,
		ProfitPoints: rupees / float64(qtyShares),
		ProfitRupees: rupees,
	}
}

func (s *LadderReentry) snapshot(book *position.Book, spot float64) state.PositionSnapshot {
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
