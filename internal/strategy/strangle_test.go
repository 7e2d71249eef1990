package strategy

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/strangle-bot/internal/clock"
	"github.com/quantpulse/strangle-bot/internal/exchange/paper"
	"github.com/quantpulse/strangle-bot/internal/option"
	"github.com/quantpulse/strangle-bot/internal/pricing"
)

// yieldClock hands the scheduler to the other episode loops on every
// sleep, so the background monitor and trend catcher interleave with the
// decision loop under a manual clock.
type yieldClock struct{ *clock.Manual }

func (c *yieldClock) Sleep(d time.Duration) {
	c.Manual.Sleep(d)
	runtime.Gosched()
}

// flatSimModel answers a fixed theoretical price, keeping stop-loss
// breaches model-consistent.
type flatSimModel struct {
	sim float64
}

func (m *flatSimModel) StrangleIV(callPrice, putPrice, callStrike, putStrike, spot, tte float64) (float64, float64, float64, error) {
	return 0.12, 0.12, 0.12, nil
}

func (m *flatSimModel) OptionGreeks(inst option.Instrument, spot, price, tte float64) (option.Greeks, error) {
	return option.Greeks{}, nil
}

func (m *flatSimModel) SimulatePrice(pricing.Simulation) (float64, error) {
	return m.sim, nil
}

// A single-wing stop followed by a take profit must settle the whole
// episode as soon as the trigger fires: the trend catcher joins on the
// terminal flag, so Execute returns minutes in, not at session exit.
func TestIntradayStrangle_WingStopTrendCatchAndTakeProfit(t *testing.T) {
	clk := &yieldClock{Manual: clock.NewManual(sessionStart)}
	market := newScriptedMarket(clk)

	expiry := time.Date(2026, 3, 5, 15, 30, 0, 0, time.UTC)
	s := &IntradayStrangle{
		Underlying:       "NIFTY",
		Expiry:           expiry,
		LotSize:          50,
		StrikeBase:       100,
		StrategyTag:      "strangle",
		QuantityLots:     1,
		CallStrikeOffset: 0.01,
		PutStrikeOffset:  0.01,
		StopLoss:         1.2,
		TakeProfit:       0.3,
		CatchTrend:       true,
		TrendQtyRatio:    1,
		SessionExitTime:  sessionStart.Add(30 * time.Minute),
		PollInterval:     time.Second,
		SecondsToAvg:     time.Second,
	}
	env := &Env{
		Exec:     market,
		Data:     market,
		Model:    &flatSimModel{sim: 124},
		Notifier: &listNotifier{},
		Clock:    clk,
	}

	callInst := option.Instrument{Underlying: "NIFTY", Strike: 20200, Expiry: expiry, Type: option.Call}
	putInst := option.Instrument{Underlying: "NIFTY", Strike: 19800, Expiry: expiry, Type: option.Put}
	market.SetSpot("NIFTY", 20000)
	market.SetOptionPrice(callInst, 100)
	market.SetOptionPrice(putInst, 100)

	// The call wing breaches its 120 stop at +2m; the catcher then sells
	// the surviving put at 90. The put collapses at +4m, pushing the mark
	// to market past the 60 point take-profit target.
	market.at(2*time.Minute, func(e *paper.Exchange) {
		e.SetOptionPrice(callInst, 125)
		e.SetOptionPrice(putInst, 90)
	})
	market.at(4*time.Minute, func(e *paper.Exchange) { e.SetOptionPrice(putInst, 10) })

	res, err := s.Execute(context.Background(), env)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "call wing stopped", res.Outcome)
	// Entry credit 200, call bought back at 125, put at 10.
	assert.InDelta(t, 65.0, res.ProfitPoints, 1e-9)
	assert.InDelta(t, 65.0*50, res.ProfitRupees, 1e-9)
	// Sold the put at 90, bought back at 10 when the episode settled.
	assert.InDelta(t, 80.0, res.TrendPoints, 1e-9)

	// Take profit fired around +4m; the joins must not run out the clock
	// to session exit.
	assert.True(t, clk.Now().Before(sessionStart.Add(15*time.Minute)),
		"episode should settle promptly after take profit, clock reached %s", clk.Now())

	notifier := env.Notifier.(*listNotifier)
	assert.Equal(t, 1, notifier.containing("stop loss triggered"))
	assert.Equal(t, 1, notifier.containing("stop loss hit"))
	assert.Equal(t, 1, notifier.containing("take profit triggered"))
	assert.Equal(t, 1, notifier.containing("trend catcher closed"))

	// Entry pair, call exit, close-out of the put, and the catcher's two
	// trades on its own tag.
	trades := market.Trades()
	assert.Len(t, trades, 6)
	catcherTrades := 0
	for _, tr := range trades {
		if strings.Contains(tr.Tag, "Trend Catcher") {
			catcherTrades++
		}
	}
	assert.Equal(t, 2, catcherTrades)
}
