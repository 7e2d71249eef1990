package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/strangle-bot/internal/clock"
	"github.com/quantpulse/strangle-bot/internal/exchange/paper"
	"github.com/quantpulse/strangle-bot/internal/option"
	"github.com/quantpulse/strangle-bot/internal/pricing"
)

// deltaModel schedules per-side deltas and the strangle IV on the test
// clock.
type deltaModel struct {
	clk   clock.Clock
	delta func(now time.Time, typ option.Type) float64
	iv    func(now time.Time) float64
}

func (m *deltaModel) StrangleIV(callPrice, putPrice, callStrike, putStrike, spot, tte float64) (float64, float64, float64, error) {
	iv := m.iv(m.clk.Now())
	return iv, iv, iv, nil
}

func (m *deltaModel) OptionGreeks(inst option.Instrument, spot, price, tte float64) (option.Greeks, error) {
	return option.Greeks{
		Delta: m.delta(m.clk.Now(), inst.Type),
		IV:    m.iv(m.clk.Now()),
	}, nil
}

func (m *deltaModel) SimulatePrice(sim pricing.Simulation) (float64, error) {
	return 0, nil
}

func deltaFixture(market *scriptedMarket, clk clock.Clock, model pricing.Model) (*DeltaHedge, *Env) {
	s := &DeltaHedge{
		Underlying:        "NIFTY",
		Expiry:            time.Date(2026, 3, 5, 15, 30, 0, 0, time.UTC),
		LotSize:           5,
		StrikeBase:        100,
		StrategyTag:       "delta-hedge",
		Exposure:          1_000_000,
		DeltaThresholdPct: 0.04,
		IntervalMinutes:   1,
		SessionExitTime:   sessionStart.Add(5 * time.Minute),
	}
	env := &Env{
		Exec:     market,
		Data:     market,
		Model:    model,
		Notifier: &listNotifier{},
		Clock:    clk,
	}
	return s, env
}

func TestDeltaHedge_RebalancesOnBreach(t *testing.T) {
	clk := clock.NewManual(sessionStart)
	market := newScriptedMarket(clk)

	// Balanced book for the first two minutes, then the spot drifts and
	// the short strangle picks up -10 delta.
	drift := sessionStart.Add(2 * time.Minute)
	model := &deltaModel{
		clk: clk,
		iv:  func(time.Time) float64 { return 0.10 },
		delta: func(now time.Time, typ option.Type) float64 {
			callDelta, putDelta := 0.5, -0.5
			if !now.Before(drift) {
				callDelta, putDelta = 0.6, -0.4
			}
			if typ == option.Call {
				return callDelta
			}
			return putDelta
		},
	}
	s, env := deltaFixture(market, clk, model)

	callInst := option.Instrument{Underlying: "NIFTY", Strike: 20000, Expiry: s.Expiry, Type: option.Call}
	putInst := option.Instrument{Underlying: "NIFTY", Strike: 20000, Expiry: s.Expiry, Type: option.Put}
	market.SetSpot("NIFTY", 20000)
	market.SetOptionPrice(callInst, 100)
	market.SetOptionPrice(putInst, 90)

	res, err := s.Execute(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, "exit time reached", res.Outcome)

	notifier := env.Notifier.(*listNotifier)
	assert.Equal(t, 1, notifier.containing("Rebalanced with 10 synthetic shares"))

	// Entry pair, one synthetic-future rebalance, final square off.
	trades := market.Trades()
	require.Len(t, trades, 6)
	rebalance := map[option.Instrument]paper.Trade{
		trades[2].Instrument: trades[2],
		trades[3].Instrument: trades[3],
	}
	assert.Equal(t, option.Buy, rebalance[callInst].Action)
	assert.Equal(t, 10, rebalance[callInst].Quantity)
	assert.Equal(t, option.Sell, rebalance[putInst].Action)
	assert.Equal(t, 10, rebalance[putInst].Quantity)
}

func TestDeltaHedge_IVSpikeDefersRebalance(t *testing.T) {
	clk := clock.NewManual(sessionStart)
	market := newScriptedMarket(clk)

	drift := sessionStart.Add(2 * time.Minute)
	model := &deltaModel{
		clk: clk,
		iv: func(now time.Time) float64 {
			if now.Before(drift) {
				return 0.10
			}
			return 0.13
		},
		delta: func(now time.Time, typ option.Type) float64 {
			callDelta, putDelta := 0.5, -0.5
			if !now.Before(drift) {
				callDelta, putDelta = 0.6, -0.4
			}
			if typ == option.Call {
				return callDelta
			}
			return putDelta
		},
	}
	s, env := deltaFixture(market, clk, model)
	s.HandleSpikes = true
	s.SessionExitTime = sessionStart.Add(4 * time.Minute)

	callInst := option.Instrument{Underlying: "NIFTY", Strike: 20000, Expiry: s.Expiry, Type: option.Call}
	putInst := option.Instrument{Underlying: "NIFTY", Strike: 20000, Expiry: s.Expiry, Type: option.Put}
	market.SetSpot("NIFTY", 20000)
	market.SetOptionPrice(callInst, 100)
	market.SetOptionPrice(putInst, 90)

	res, err := s.Execute(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, "exit time reached", res.Outcome)

	notifier := env.Notifier.(*listNotifier)
	assert.Equal(t, 1, notifier.containing("IV spike detected"))
	assert.Zero(t, notifier.containing("Rebalanced"))

	// The deferral outlasted the session: entry and square off only.
	require.Len(t, market.Trades(), 4)
}
