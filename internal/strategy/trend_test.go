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

// stubModel answers greeks from a schedule keyed on the test clock.
type stubModel struct {
	clk   clock.Clock
	delta func(now time.Time) float64
	theta func(now time.Time) float64
}

func (m *stubModel) StrangleIV(callPrice, putPrice, callStrike, putStrike, spot, tte float64) (float64, float64, float64, error) {
	return 0, 0, 0, nil
}

func (m *stubModel) OptionGreeks(inst option.Instrument, spot, price, tte float64) (option.Greeks, error) {
	g := option.Greeks{Delta: m.delta(m.clk.Now())}
	if m.theta != nil {
		g.Theta = m.theta(m.clk.Now())
	}
	return g, nil
}

func (m *stubModel) SimulatePrice(sim pricing.Simulation) (float64, error) {
	return 0, nil
}

func trendFixture(market *scriptedMarket, clk clock.Clock) (*TrendFollowing, *Env) {
	s := &TrendFollowing{
		Underlying:        "NIFTY",
		Expiry:            time.Date(2026, 3, 5, 15, 30, 0, 0, time.UTC),
		LotSize:           50,
		StrikeBase:        100,
		StrategyTag:       "trend",
		Exposure:          1_000_000,
		ThresholdMovement: 1,
		StopLoss:          0.003,
		MaxEntries:        1,
		SessionExitTime:   sessionStart.Add(30 * time.Minute),
		PollInterval:      time.Second,
	}
	env := &Env{
		Exec:     market,
		Data:     market,
		Model:    &stubModel{clk: clk, delta: func(time.Time) float64 { return 0.6 }},
		Notifier: &listNotifier{},
		Clock:    clk,
	}
	return s, env
}

func TestTrendFollowing_BreakoutEntryAndSpotStop(t *testing.T) {
	clk := clock.NewManual(sessionStart)
	market := newScriptedMarket(clk)
	s, env := trendFixture(market, clk)

	// ATM call bought after the upside breakout at 20240.
	callInst := option.Instrument{Underlying: "NIFTY", Strike: 20200, Expiry: s.Expiry, Type: option.Call}
	market.SetSpot("NIFTY", 20000)
	market.SetOptionPrice(callInst, 150)

	// Breakout above the 1% band, then a fall through the 0.3% trailing
	// stop at 20179.28 while the option bleeds to 100.
	market.at(5*time.Minute, func(e *paper.Exchange) { e.SetSpot("NIFTY", 20240) })
	market.at(10*time.Minute, func(e *paper.Exchange) {
		e.SetSpot("NIFTY", 20170)
		e.SetOptionPrice(callInst, 100)
	})

	res, err := s.Execute(context.Background(), env)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "max entries reached", res.Outcome)
	// Bought 50 shares at 150, stopped out at 100.
	assert.InDelta(t, -50.0, res.ProfitPoints, 1e-9)
	assert.InDelta(t, -2500.0, res.ProfitRupees, 1e-9)

	notifier := env.Notifier.(*listNotifier)
	assert.Equal(t, 1, notifier.containing("trender triggered"))
	assert.Equal(t, 1, notifier.containing("stop loss hit"))

	trades := market.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, option.Buy, trades[0].Action)
	assert.Equal(t, callInst, trades[0].Instrument)
	assert.Equal(t, 50, trades[0].Quantity)
}

func TestTrendFollowing_TargetDeltaSizesEntry(t *testing.T) {
	clk := clock.NewManual(sessionStart)
	market := newScriptedMarket(clk)
	s, env := trendFixture(market, clk)
	s.TargetDelta = 1.2

	callInst := option.Instrument{Underlying: "NIFTY", Strike: 20200, Expiry: s.Expiry, Type: option.Call}
	market.SetSpot("NIFTY", 20000)
	market.SetOptionPrice(callInst, 150)

	market.at(5*time.Minute, func(e *paper.Exchange) { e.SetSpot("NIFTY", 20240) })
	market.at(10*time.Minute, func(e *paper.Exchange) {
		e.SetSpot("NIFTY", 20170)
		e.SetOptionPrice(callInst, 100)
	})

	res, err := s.Execute(context.Background(), env)
	require.NoError(t, err)

	// Base quantity is 50 shares; a 1.2 delta target against the 0.6
	// per-unit delta doubles the entry to two lots.
	trades := market.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, 100, trades[0].Quantity)
	assert.Equal(t, 100, trades[1].Quantity)

	assert.InDelta(t, -100.0, res.ProfitPoints, 1e-9)
	assert.InDelta(t, -5000.0, res.ProfitRupees, 1e-9)
}

func TestTrendFollowing_DownsideBreakoutBuysPut(t *testing.T) {
	clk := clock.NewManual(sessionStart)
	market := newScriptedMarket(clk)
	s, env := trendFixture(market, clk)

	putInst := option.Instrument{Underlying: "NIFTY", Strike: 19800, Expiry: s.Expiry, Type: option.Put}
	market.SetSpot("NIFTY", 20000)
	market.SetOptionPrice(putInst, 140)

	market.at(5*time.Minute, func(e *paper.Exchange) { e.SetSpot("NIFTY", 19760) })
	// Bounce through the stop above 19760*1.003 = 19819.28.
	market.at(10*time.Minute, func(e *paper.Exchange) {
		e.SetSpot("NIFTY", 19825)
		e.SetOptionPrice(putInst, 110)
	})

	res, err := s.Execute(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, "max entries reached", res.Outcome)
	assert.InDelta(t, -30.0, res.ProfitPoints, 1e-9)

	trades := market.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, putInst, trades[0].Instrument)
	assert.Equal(t, option.Buy, trades[0].Action)
}

func TestTrendFollowing_DeltaDecayExitsEarly(t *testing.T) {
	clk := clock.NewManual(sessionStart)
	market := newScriptedMarket(clk)
	s, env := trendFixture(market, clk)
	s.MaxEntries = 3

	callInst := option.Instrument{Underlying: "NIFTY", Strike: 20200, Expiry: s.Expiry, Type: option.Call}
	market.SetSpot("NIFTY", 20000)
	market.SetOptionPrice(callInst, 150)
	market.at(5*time.Minute, func(e *paper.Exchange) { e.SetSpot("NIFTY", 20240) })
	market.at(10*time.Minute, func(e *paper.Exchange) { e.SetOptionPrice(callInst, 20) })

	// Delta collapses below 0.15 of the position after ten minutes.
	decayAt := sessionStart.Add(10 * time.Minute)
	env.Model = &stubModel{clk: clk, delta: func(now time.Time) float64 {
		if now.Before(decayAt) {
			return 0.6
		}
		return 0.05
	}}

	res, err := s.Execute(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, "delta decayed", res.Outcome)
	// Bought at 150, abandoned at 20.
	assert.InDelta(t, -130.0, res.ProfitPoints, 1e-9)
}

func TestTrendFollowing_NoBreakoutReachesScanEnd(t *testing.T) {
	clk := clock.NewManual(sessionStart)
	market := newScriptedMarket(clk)
	s, env := trendFixture(market, clk)
	market.SetSpot("NIFTY", 20000)

	res, err := s.Execute(context.Background(), env)
	require.NoError(t, err)

	assert.Equal(t, "exit time reached", res.Outcome)
	assert.Empty(t, market.Trades())
	notifier := env.Notifier.(*listNotifier)
	assert.Equal(t, 1, notifier.containing("exiting due to time"))
}
