package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/strangle-bot/internal/clock"
	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/exchange/paper"
	"github.com/quantpulse/strangle-bot/internal/option"
)

var catcherStart = time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

type playbackStep struct {
	at    time.Time
	apply func(*paper.Exchange)
}

// pricePlayback replays scheduled mutations onto the paper exchange as the
// clock reaches each step, so a catcher polling a manual clock sees prices
// move between iterations.
type pricePlayback struct {
	*paper.Exchange
	clk   clock.Clock
	mu    sync.Mutex
	steps []playbackStep
	next  int
}

func (p *pricePlayback) at(offset time.Duration, apply func(*paper.Exchange)) {
	p.steps = append(p.steps, playbackStep{at: catcherStart.Add(offset), apply: apply})
}

func (p *pricePlayback) sync() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.clk.Now()
	for p.next < len(p.steps) && !p.steps[p.next].at.After(now) {
		p.steps[p.next].apply(p.Exchange)
		p.next++
	}
}

func (p *pricePlayback) OptionPrice(ctx context.Context, inst option.Instrument) (float64, error) {
	p.sync()
	return p.Exchange.OptionPrice(ctx, inst)
}

func (p *pricePlayback) ExecuteInstructions(ctx context.Context, instructions map[option.Instrument]exchange.Instruction, style exchange.ExecutionStyle) (map[option.Instrument]float64, error) {
	p.sync()
	return p.Exchange.ExecuteInstructions(ctx, instructions, style)
}

// catcherFixture stops out the call wing so the catcher trades the put,
// whose entry price of 100 puts the recovery band at 70 and the catcher's
// own stop at 100.
func catcherFixture(exitAfter time.Duration) (*TrendCatcher, *pricePlayback, *recordingNotifier, *clock.Manual, option.Instrument) {
	clk := clock.NewManual(catcherStart)
	market := &pricePlayback{Exchange: paper.New(), clk: clk}

	expiry := time.Date(2026, 3, 5, 15, 30, 0, 0, time.UTC)
	callInst := option.Instrument{Underlying: "NIFTY", Strike: 20200, Expiry: expiry, Type: option.Call}
	putInst := option.Instrument{Underlying: "NIFTY", Strike: 19800, Expiry: expiry, Type: option.Put}

	notifier := &recordingNotifier{}
	tc := &TrendCatcher{
		Exec:     market,
		Data:     market,
		Notifier: notifier,
		Clock:    clk,
		State:    NewSharedState(),
		Info: StrangleInfo{
			Underlying:   "NIFTY",
			StrategyTag:  "strangle",
			Expiry:       expiry,
			LotSize:      50,
			QuantityLots: 1,
			CallInst:     callInst,
			PutInst:      putInst,
			CallWing:     Wing{Side: option.Call, Strike: 20200, AvgPrice: 120},
			PutWing:      Wing{Side: option.Put, Strike: 19800, AvgPrice: 100},
		},
		StoppedSide:  option.Call,
		QtyRatio:     1,
		ExitTime:     catcherStart.Add(exitAfter),
		PollInterval: time.Second,
	}
	return tc, market, notifier, clk, putInst
}

func TestTrendCatcher_OwnStopClosesTrade(t *testing.T) {
	tc, market, notifier, _, put := catcherFixture(time.Minute)
	market.SetOptionPrice(put, 60)

	// Recovery above the 70 band enters, the bounce through the 100
	// anchor stops the trade out.
	market.at(5*time.Second, func(e *paper.Exchange) { e.SetOptionPrice(put, 80) })
	market.at(10*time.Second, func(e *paper.Exchange) { e.SetOptionPrice(put, 105) })

	tc.Run(context.Background())

	assert.InDelta(t, -25.0, tc.State.TrendPoints(), 1e-9)

	trades := market.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, option.Sell, trades[0].Action)
	assert.Equal(t, put, trades[0].Instrument)
	assert.Equal(t, 50, trades[0].Quantity)
	assert.InDelta(t, 80.0, trades[0].Price, 1e-9)
	assert.Equal(t, option.Buy, trades[1].Action)
	assert.True(t, trades[1].SquareOff)
	assert.InDelta(t, 105.0, trades[1].Price, 1e-9)

	assert.Equal(t, 1, notifier.containing("trend catcher starting"))
	assert.Equal(t, 1, notifier.containing("trend catcher closed"))
}

func TestTrendCatcher_MainCompletionSquaresOff(t *testing.T) {
	tc, market, _, clk, put := catcherFixture(time.Minute)
	market.SetOptionPrice(put, 80)

	// The main episode turns terminal while the trend trade is open and
	// in profit; the catcher must settle right away, not at exit time.
	st := tc.State
	market.at(5*time.Second, func(e *paper.Exchange) {
		e.SetOptionPrice(put, 50)
		st.Complete()
	})

	tc.Run(context.Background())

	assert.InDelta(t, 30.0, st.TrendPoints(), 1e-9)
	assert.True(t, clk.Now().Before(catcherStart.Add(15*time.Second)),
		"catcher should exit on the terminal flag, clock reached %s", clk.Now())

	trades := market.Trades()
	require.Len(t, trades, 2)
	assert.True(t, trades[1].SquareOff)
	assert.InDelta(t, 50.0, trades[1].Price, 1e-9)
}

func TestTrendCatcher_ExitTimeSquaresOff(t *testing.T) {
	tc, market, notifier, _, put := catcherFixture(20 * time.Second)
	market.SetOptionPrice(put, 80)
	market.at(10*time.Second, func(e *paper.Exchange) { e.SetOptionPrice(put, 70) })

	tc.Run(context.Background())

	assert.InDelta(t, 10.0, tc.State.TrendPoints(), 1e-9)
	assert.Equal(t, 1, notifier.containing("trend catcher closed"))

	trades := market.Trades()
	require.Len(t, trades, 2)
	assert.True(t, trades[1].SquareOff)
	assert.InDelta(t, 70.0, trades[1].Price, 1e-9)
}

func TestTrendCatcher_NoEntryBeforeExitTime(t *testing.T) {
	tc, market, notifier, _, put := catcherFixture(10 * time.Second)
	market.SetOptionPrice(put, 60)

	tc.Run(context.Background())

	assert.Empty(t, market.Trades())
	assert.Zero(t, tc.State.TrendPoints())
	assert.Equal(t, 0, notifier.containing("trend catcher starting"))
}
