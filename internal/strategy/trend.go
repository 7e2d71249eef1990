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
)

// earlyExitDeltaFraction of the base quantity: a directional position is
// closed early once its aggregate delta decays below this level.
const earlyExitDeltaFraction = 0.15

// TrendFollowing scans for the underlying escaping a band around the
// session's opening reference price, takes a directional option position,
// and manages it with a percentage stop on the underlying plus an
// early-exit on delta decay. Repeats up to MaxEntries per session.
type TrendFollowing struct {
	Underlying  string
	Expiry      time.Time
	LotSize     int
	StrikeBase  float64
	StrategyTag string

	Exposure float64

	// ThresholdMovement is the band half-width in percent of the open
	// price. 0 derives it from the vol reference via Beta.
	ThresholdMovement float64
	// VolReference is the annualized vol index level used to derive the
	// threshold when ThresholdMovement is 0.
	VolReference float64
	Beta         float64

	// StopLoss is the fractional adverse move of the underlying that
	// closes a directional position, e.g. 0.003.
	StopLoss float64

	// TargetDelta sizes a directional entry so its aggregate delta lands
	// near this multiple of the base quantity. 0 keeps the base quantity.
	TargetDelta float64

	MaxEntries int
	AtMarket   bool

	SessionExitTime time.Time
	PollInterval    time.Duration
}

func (s *TrendFollowing) Name() string { return s.Underlying + " trend following" }

func (s *TrendFollowing) ExitTime() time.Time { return s.SessionExitTime }

func (s *TrendFollowing) Execute(ctx context.Context, env *Env) (*Result, error) {
	if s.Exposure <= 0 {
		return nil, traderrors.New(traderrors.ErrorCategoryConfig, "strategy", "validate",
			"neither exposure nor quantity supplied")
	}
	if s.MaxEntries <= 0 {
		s.MaxEntries = 3
	}
	if s.StopLoss <= 0 {
		s.StopLoss = 0.003
	}
	if s.PollInterval <= 0 {
		s.PollInterval = time.Second
	}
	style := exchange.StyleLimit
	if s.AtMarket {
		style = exchange.StyleMarket
	}

	openPrice, err := env.Data.SpotPrice(ctx, s.Underlying)
	if err != nil {
		return nil, traderrors.Wrap(err, traderrors.ErrorCategoryNetwork, "strategy", "entry",
			"opening reference price fetch failed")
	}
	baseQty := option.ExposureToQty(s.Exposure, openPrice, s.LotSize)

	threshold := s.ThresholdMovement
	if threshold == 0 {
		beta := s.Beta
		if beta == 0 {
			beta = 1
		}
		threshold = s.VolReference * beta / 48
	}
	upper := openPrice * (1 + threshold/100)
	lower := openPrice * (1 - threshold/100)
	scanEnd := s.SessionExitTime.Add(-10 * time.Minute)

	env.Notify(notifications.SeverityInfo,
		"%s trend following starting with %.2f threshold movement\n"+
			"Current Price: %.2f\nUpper limit: %.2f\nLower limit: %.2f.",
		s.Underlying, threshold, openPrice, upper, lower)

	book := position.NewBook(s.StrategyTag)
	entries := 0
	outcome := "exit time reached"

	for entries < s.MaxEntries && env.Clock.Now().Before(s.SessionExitTime) && ctx.Err() == nil {
		env.Notify(notifications.SeverityInfo,
			"%s trender %d scanning for entry condition.", s.Underlying, entries+1)

		var movement float64
		for env.Clock.Now().Before(scanEnd) && ctx.Err() == nil {
			ltp, err := env.Data.SpotPrice(ctx, s.Underlying)
			if err != nil {
				if env.Log != nil {
					env.Log.Error("spot fetch failed: %v", err)
				}
			} else {
				movement = (ltp - openPrice) / openPrice * 100
				if math.Abs(movement) > threshold {
					break
				}
			}
			clock.SleepUntilNext(env.Clock, s.PollInterval, scanEnd, clock.Options{})
		}
		if !env.Clock.Now().Before(scanEnd) || ctx.Err() != nil {
			env.Notify(notifications.SeverityCrucial,
				"%s trender %d exiting due to time.", s.Underlying, entries+1)
			break
		}

		price, err := env.Data.SpotPrice(ctx, s.Underlying)
		if err != nil {
			continue
		}
		action := option.Sell
		if movement > 0 {
			action = option.Buy
		}
		stopLossPrice := price * (1 + s.StopLoss)
		if action == option.Buy {
			stopLossPrice = price * (1 - s.StopLoss)
		}
		env.Notify(notifications.SeverityInfo,
			"%s %s trender triggered with %.2f movement. %s at %.2f. Stop loss at %.2f.",
			s.Underlying, action, movement, s.Underlying, price, stopLossPrice)

		// Directional position: long the option in the trend direction
		// at the money.
		atm := option.FindStrike(price, s.StrikeBase)
		optType := option.Call
		if action == option.Sell {
			optType = option.Put
		}
		inst := option.Instrument{Underlying: s.Underlying, Strike: atm, Expiry: s.Expiry, Type: optType}
		qty := baseQty
		if s.TargetDelta > 0 {
			qty = s.sizeForDelta(ctx, env, inst, price, baseQty)
		}
		leg := book.Recommend(inst, option.RoleTrend, s.LotSize, qty)
		if _, err := book.Execute(ctx, env.Exec, style); err != nil {
			return s.result(book, baseQty, "entry failed"), err
		}
		monitoring.RecordOrder(s.Underlying, option.Buy.String())
		env.Notify(notifications.SeverityInfo,
			"%s %s trender %d entered.", s.Underlying, action, entries+1)

		stopLossHit := false
		earlyExit := false
		exitThreshold := earlyExitDeltaFraction * float64(baseQty)

		for env.Clock.Now().Before(s.SessionExitTime) && ctx.Err() == nil {
			clock.SleepUntilNext(env.Clock, s.PollInterval, s.SessionExitTime, clock.Options{})
			ltp, err := env.Data.SpotPrice(ctx, s.Underlying)
			if err != nil {
				continue
			}
			if action == option.Buy {
				stopLossHit = ltp < stopLossPrice
			} else {
				stopLossHit = ltp > stopLossPrice
			}
			if stopLossHit {
				break
			}
			delta, err := s.legDelta(ctx, env, leg, ltp)
			if err != nil {
				continue
			}
			monitoring.UpdateGreeks(s.Underlying, s.StrategyTag, delta, 0)
			if math.Abs(delta) < exitThreshold {
				env.Notify(notifications.SeverityInfo,
					"%s trender %d delta threshold hit.", s.Underlying, entries+1)
				earlyExit = true
				break
			}
		}

		if stopLossHit {
			env.Notify(notifications.SeverityCrucial,
				"Trender stop loss hit. %s trender %d exiting.", s.Underlying, entries+1)
		} else {
			env.Notify(notifications.SeverityCrucial,
				"%s trender %d exiting.", s.Underlying, entries+1)
		}
		if _, err := book.SquareOff(ctx, env.Exec); err != nil {
			return s.result(book, baseQty, "square off failed"), err
		}
		env.Notify(notifications.SeverityInfo,
			"%s %s trender %d exited.", s.Underlying, action, entries+1)
		entries++
		if earlyExit {
			outcome = "delta decayed"
			break
		}
	}
	if entries >= s.MaxEntries {
		outcome = "max entries reached"
	}

	return s.result(book, baseQty, outcome), nil
}

// sizeForDelta converts the delta target into shares using the entry
// option's per-unit delta, falling back to the base quantity when the
// greeks are unavailable.
func (s *TrendFollowing) sizeForDelta(ctx context.Context, env *Env, inst option.Instrument,
	spot float64, baseQty int) int {
	price, err := env.Data.OptionPrice(ctx, inst)
	if err != nil {
		return baseQty
	}
	tte := option.YearsBetween(env.Clock.Now(), s.Expiry)
	g, err := env.Model.OptionGreeks(inst, spot, price, tte)
	if err != nil || g.Delta == 0 {
		return baseQty
	}
	qty := option.RoundToLotSize(s.TargetDelta*float64(baseQty)/math.Abs(g.Delta), s.LotSize)
	if qty < s.LotSize {
		qty = s.LotSize
	}
	return qty
}

func (s *TrendFollowing) legDelta(ctx context.Context, env *Env, leg *position.Leg, spot float64) (float64, error) {
	price, err := env.Data.OptionPrice(ctx, leg.Instrument)
	if err != nil {
		return 0, err
	}
	tte := option.YearsBetween(env.Clock.Now(), s.Expiry)
	g, err := env.Model.OptionGreeks(leg.Instrument, spot, price, tte)
	if err != nil {
		return 0, err
	}
	return g.Delta * float64(leg.ActiveQty), nil
}

func (s *TrendFollowing) result(book *position.Book, baseQty int, outcome string) *Result {
	rupees := book.TotalPremium()
	return &Result{
		Underlying:   s.Underlying,
		Strategy:     s.StrategyTag,
		Outcome:      outcome,
		ProfitPoints: rupees / float64(baseQty),
		ProfitRupees: rupees,
	}
}
