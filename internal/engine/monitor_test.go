package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/strangle-bot/internal/clock"
	"github.com/quantpulse/strangle-bot/internal/exchange/paper"
	"github.com/quantpulse/strangle-bot/internal/option"
)

func monitorFixture(t *testing.T, callPrice, putPrice float64) (*Monitor, *paper.Exchange, *recordingNotifier) {
	t.Helper()

	expiry := time.Date(2026, 3, 5, 15, 30, 0, 0, time.UTC)
	callInst := option.Instrument{Underlying: "NIFTY", Strike: 20200, Expiry: expiry, Type: option.Call}
	putInst := option.Instrument{Underlying: "NIFTY", Strike: 19800, Expiry: expiry, Type: option.Put}

	exch := paper.New()
	exch.SetSpot("NIFTY", 20000)
	exch.SetOptionPrice(callInst, callPrice)
	exch.SetOptionPrice(putInst, putPrice)

	notifier := &recordingNotifier{}
	m := &Monitor{
		Data:     exch,
		Model:    &fakeModel{},
		Notifier: notifier,
		Clock:    clock.NewManual(time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)),
		State:    NewSharedState(),
		Info: StrangleInfo{
			Underlying:    "NIFTY",
			StrategyTag:   "strangle",
			Expiry:        expiry,
			LotSize:       50,
			QuantityLots:  2,
			CallInst:      callInst,
			PutInst:       putInst,
			CallWing:      Wing{Side: option.Call, Strike: 20200, AvgPrice: callPrice, StopLossPrice: callPrice * 1.5},
			PutWing:       Wing{Side: option.Put, Strike: 19800, AvgPrice: putPrice, StopLossPrice: putPrice * 1.5},
			TotalAvgPrice: callPrice + putPrice,
			EntrySpot:     20000,
			EntryATMIV:    0.12,
			EntryTTE:      5.5 / 24 / 365,
		},
		Config: MonitorConfig{
			PollInterval:   time.Second,
			SecondsToAvg:   time.Second,
			PrintInterval:  time.Hour,
			LogInterval:    time.Hour,
			NotifyInterval: time.Hour,
		},
	}
	return m, exch, notifier
}

// completeAfter terminates the episode once the given number of ticks have
// run, so Run returns on its own with a manual clock.
func completeAfter(m *Monitor, ticks int) {
	count := 0
	m.SideTasks = append(m.SideTasks, func() {
		count++
		if count >= ticks {
			m.State.Complete()
		}
	})
}

func TestMonitorRun_CombinedStopBoundaryDoesNotTrigger(t *testing.T) {
	m, _, notifier := monitorFixture(t, 50, 30)
	// Smoothed sum sits exactly at the level.
	m.Config.CombinedStopLossPrice = 80
	completeAfter(m, 5)

	m.Run(context.Background())

	assert.False(t, m.State.Triggers().CombinedStopLoss)
	assert.Empty(t, notifier.messages)
}

func TestMonitorRun_CombinedStopBreachTriggersOnce(t *testing.T) {
	m, _, notifier := monitorFixture(t, 50, 30.5)
	m.Config.CombinedStopLossPrice = 80
	completeAfter(m, 5)

	m.Run(context.Background())

	assert.True(t, m.State.Triggers().CombinedStopLoss)
	assert.Equal(t, 1, notifier.containing("combined stop loss triggered"))
}

func TestMonitorRun_TakeProfit(t *testing.T) {
	m, _, notifier := monitorFixture(t, 50, 30)
	// Entry credit was 200, current cost to close is 80: 120 points of
	// profit against a 100 point threshold.
	m.Info.TotalAvgPrice = 200
	m.Config.TakeProfitFraction = 0.5
	completeAfter(m, 5)

	m.Run(context.Background())

	assert.True(t, m.State.Triggers().TakeProfit)
	assert.Equal(t, 1, notifier.containing("take profit triggered"))

	snap := m.State.Snapshot()
	assert.InDelta(t, 120.0, snap.ProfitPoints, 1e-9)
	assert.InDelta(t, 120.0*50*2, snap.ProfitRupees, 1e-9)
}

func TestMonitorRun_ExitPricePinsMTM(t *testing.T) {
	m, _, _ := monitorFixture(t, 50, 30)
	m.Info.TotalAvgPrice = 200
	// The call side already exited at 10; only the put marks live.
	require.True(t, m.State.SetExitPrice(option.Call, 10))
	completeAfter(m, 3)

	m.Run(context.Background())

	snap := m.State.Snapshot()
	assert.InDelta(t, 200.0-(10+30), snap.ProfitPoints, 1e-9)
}

func TestMonitorRun_ConversionTriggered(t *testing.T) {
	m, exch, notifier := monitorFixture(t, 100, 80)
	expiry := m.Info.Expiry
	hedgeCall := option.Instrument{Underlying: "NIFTY", Strike: 20300, Expiry: expiry, Type: option.Call}
	hedgePut := option.Instrument{Underlying: "NIFTY", Strike: 19700, Expiry: expiry, Type: option.Put}
	exch.SetOptionPrice(hedgeCall, 30)
	exch.SetOptionPrice(hedgePut, 20)

	// Locked profit 180 - 50 - 100 = 30 against a threshold of 25.
	m.Config.ConversionCutoff = m.Clock.Now().Add(2 * time.Hour)
	m.Config.Conversion = ConversionPolicy{
		Enabled:            true,
		Method:             ConversionBreakeven,
		HedgeCall:          hedgeCall,
		HedgePut:           hedgePut,
		StrikeWidth:        100,
		BreakevenThreshold: 25,
	}
	completeAfter(m, 5)

	m.Run(context.Background())

	assert.True(t, m.State.Triggers().ConvertToHedge)
	assert.Equal(t, 1, notifier.containing("convert to butterfly triggered"))
}

func TestMonitorRun_ConversionSkippedAfterWingStop(t *testing.T) {
	m, exch, notifier := monitorFixture(t, 100, 80)
	expiry := m.Info.Expiry
	hedgeCall := option.Instrument{Underlying: "NIFTY", Strike: 20300, Expiry: expiry, Type: option.Call}
	hedgePut := option.Instrument{Underlying: "NIFTY", Strike: 19700, Expiry: expiry, Type: option.Put}
	exch.SetOptionPrice(hedgeCall, 30)
	exch.SetOptionPrice(hedgePut, 20)

	m.Config.ConversionCutoff = m.Clock.Now().Add(2 * time.Hour)
	m.Config.Conversion = ConversionPolicy{
		Enabled:            true,
		Method:             ConversionBreakeven,
		HedgeCall:          hedgeCall,
		HedgePut:           hedgePut,
		StrikeWidth:        100,
		BreakevenThreshold: 25,
	}
	require.True(t, m.State.MarkStopLoss(option.Call))
	completeAfter(m, 5)

	m.Run(context.Background())

	assert.False(t, m.State.Triggers().ConvertToHedge)
	assert.Equal(t, 0, notifier.containing("convert to butterfly"))
}
