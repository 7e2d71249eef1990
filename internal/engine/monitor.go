package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/quantpulse/strangle-bot/internal/clock"
	"github.com/quantpulse/strangle-bot/internal/exchange"
	"github.com/quantpulse/strangle-bot/internal/logger"
	"github.com/quantpulse/strangle-bot/internal/monitoring"
	"github.com/quantpulse/strangle-bot/internal/notifications"
	"github.com/quantpulse/strangle-bot/internal/option"
	"github.com/quantpulse/strangle-bot/internal/pricing"
)

// StrangleInfo carries the immutable entry-time facts of a traded strangle,
// shared read-only by every loop of the episode.
type StrangleInfo struct {
	Underlying  string
	StrategyTag string
	Expiry      time.Time
	LotSize     int
	QuantityLots int

	CallInst option.Instrument
	PutInst  option.Instrument

	CallWing Wing
	PutWing  Wing

	TotalAvgPrice float64
	EntrySpot     float64
	EntryATMIV    float64
	EntryTTE      float64
}

// Inst returns the traded instrument for a side.
func (i StrangleInfo) Inst(side option.Type) option.Instrument {
	if side == option.Call {
		return i.CallInst
	}
	return i.PutInst
}

// Wing returns the evaluator wing for a side.
func (i StrangleInfo) Wing(side option.Type) Wing {
	if side == option.Call {
		return i.CallWing
	}
	return i.PutWing
}

// MonitorConfig tunes the monitor loop.
type MonitorConfig struct {
	PollInterval time.Duration
	SecondsToAvg time.Duration

	// TakeProfitFraction of the entry credit, in points. 0 disables.
	TakeProfitFraction float64

	// CombinedStopLossPrice is the sum-of-smoothed-prices level that
	// triggers the combined stop. 0 disables.
	CombinedStopLossPrice float64

	// ExitTime bounds conversion checks; the loop itself runs until the
	// episode is terminal.
	ConversionCutoff time.Time
	Conversion       ConversionPolicy

	// Emission throttles. Zero values get the production defaults.
	PrintInterval  time.Duration
	LogInterval    time.Duration
	NotifyInterval time.Duration
}

func (c *MonitorConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.SecondsToAvg <= 0 {
		c.SecondsToAvg = 45 * time.Second
	}
	if c.PrintInterval <= 0 {
		c.PrintInterval = 10 * time.Second
	}
	if c.LogInterval <= 0 {
		c.LogInterval = 25 * time.Minute
	}
	if c.NotifyInterval <= 0 {
		c.NotifyInterval = 180 * time.Minute
	}
}

// Monitor is the background loop of a strangle episode. Each tick it
// refreshes prices, smooths them, recomputes implied vols and running
// profit, and raises position-level exit triggers on the shared state. It
// owns every snapshot field; other loops only read them.
type Monitor struct {
	Data     exchange.MarketData
	Model    pricing.Model
	Notifier notifications.Notifier
	Log      *logger.Logger
	Clock    clock.Clock
	Health   *monitoring.HealthChecker

	State  *SharedState
	Info   StrangleInfo
	Config MonitorConfig

	// SideTasks run opportunistically once per tick; each is expected to
	// throttle itself (clock.PeriodicTask).
	SideTasks []func()
}

// Run polls until the episode is terminal or ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Config.applyDefaults()

	periods := EMAPeriods(m.Config.SecondsToAvg, m.Config.PollInterval)
	alpha := EMAAlpha(periods)
	callEMA := NewEMA(alpha)
	putEMA := NewEMA(alpha)
	spotEMA := NewEMA(alpha)

	thresholdPoints := math.Inf(1)
	if m.Config.TakeProfitFraction > 0 {
		thresholdPoints = m.Config.TakeProfitFraction * m.Info.TotalAvgPrice
	}

	lastPrint := m.Clock.Now()
	lastLog := m.Clock.Now()
	lastNotify := m.Clock.Now()

	for !m.State.Done() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		spot, err := m.Data.SpotPrice(ctx, m.Info.Underlying)
		if err != nil {
			m.logError("spot price fetch failed", err)
			m.Clock.Sleep(m.Config.PollInterval)
			continue
		}
		callLTP, err := m.Data.OptionPrice(ctx, m.Info.CallInst)
		if err != nil {
			m.logError("call price fetch failed", err)
			m.Clock.Sleep(m.Config.PollInterval)
			continue
		}
		putLTP, err := m.Data.OptionPrice(ctx, m.Info.PutInst)
		if err != nil {
			m.logError("put price fetch failed", err)
			m.Clock.Sleep(m.Config.PollInterval)
			continue
		}

		callAvg := callEMA.Update(callLTP)
		putAvg := putEMA.Update(putLTP)
		spotAvg := spotEMA.Update(spot)

		m.State.UpdateMarket(spot, spotAvg,
			map[option.Type]float64{option.Call: callLTP, option.Put: putLTP},
			map[option.Type]float64{option.Call: callAvg, option.Put: putAvg})

		monitoring.UpdateUnderlying(m.Info.Underlying, spot)
		monitoring.UpdateLeg(m.Info.Underlying, option.Call.String(), callLTP, callAvg)
		monitoring.UpdateLeg(m.Info.Underlying, option.Put.String(), putLTP, putAvg)
		if m.Health != nil {
			m.Health.RecordTick(spot)
		}

		// Combined stop loss detection
		if m.Config.CombinedStopLossPrice > 0 {
			if callAvg+putAvg > m.Config.CombinedStopLossPrice {
				if m.State.SignalCombinedStopLoss() {
					m.notifyf(notifications.SeverityInfo,
						"%s combined stop loss triggered with combined price of %.2f",
						m.Info.Underlying, callAvg+putAvg)
				}
			}
		}

		// Implied vols; a failed solve keeps the previous values.
		tte := option.YearsBetween(m.Clock.Now(), m.Info.Expiry)
		callIV, putIV, avgIV, ivErr := m.Model.StrangleIV(
			callLTP, putLTP, m.Info.CallWing.Strike, m.Info.PutWing.Strike, spot, tte)
		if ivErr == nil {
			m.State.UpdateIVs(callIV, putIV, avgIV)
			monitoring.UpdateIV(m.Info.Underlying, option.Call.String(), callIV)
			monitoring.UpdateIV(m.Info.Underlying, option.Put.String(), putIV)
		}

		// Mark to market against exit prices where recorded, live
		// prices otherwise.
		mtmPrice := m.State.ExitPriceOr(option.Call, callLTP) + m.State.ExitPriceOr(option.Put, putLTP)
		profitPts := m.Info.TotalAvgPrice - mtmPrice
		profitRs := profitPts * float64(m.Info.LotSize) * float64(m.Info.QuantityLots)
		m.State.UpdateProfit(profitPts, profitRs)
		monitoring.UpdateProfit(m.Info.Underlying, m.Info.StrategyTag, profitPts)

		if profitPts >= thresholdPoints {
			if m.State.SignalTakeProfit() {
				m.notifyf(notifications.SeverityInfo,
					"%s take profit triggered with profit of %.2f points",
					m.Info.Underlying, profitPts)
			}
		}

		m.checkConversion()

		snap := m.State.Snapshot()
		message := fmt.Sprintf(
			"\nUnderlying: %s\nTime: %s\nUnderlying LTP: %.2f\n"+
				"Call Strike: %.0f\nPut Strike: %.0f\n"+
				"Call Price: %.2f\nPut Price: %.2f\nMTM Price: %.2f\n"+
				"Call smoothed: %.2f\nPut smoothed: %.2f\n"+
				"IVs: %.4f, %.4f, %.4f\n"+
				"Call SL: %v\nPut SL: %v\n"+
				"Profit Pts: %.2f\nProfit: %.2f\n",
			m.Info.Underlying, m.Clock.Now().Format("02-01-2006 15:04:05"), spot,
			m.Info.CallWing.Strike, m.Info.PutWing.Strike,
			callLTP, putLTP, mtmPrice,
			callAvg, putAvg,
			snap.CallIV, snap.PutIV, snap.AvgIV,
			m.State.StopLossHit(option.Call), m.State.StopLossHit(option.Put),
			profitPts, profitRs)
		now := m.Clock.Now()
		if now.Sub(lastPrint) > m.Config.PrintInterval {
			fmt.Println(message)
			lastPrint = now
		}
		if now.Sub(lastLog) > m.Config.LogInterval {
			if m.Log != nil {
				m.Log.Status("%s", message)
			}
			lastLog = now
		}
		if now.Sub(lastNotify) > m.Config.NotifyInterval {
			m.notifyf(notifications.SeverityInfo, "%s", message)
			lastNotify = now
		}

		for _, task := range m.SideTasks {
			task()
		}

		m.Clock.Sleep(m.Config.PollInterval)
	}
}

// checkConversion evaluates the butterfly conversion trigger: final
// trading day only, before the cutoff, neither wing stopped out, at most
// once per episode.
func (m *Monitor) checkConversion() {
	p := m.Config.Conversion
	if !p.Enabled {
		return
	}
	if m.State.StopLossHit(option.Call) || m.State.StopLossHit(option.Put) {
		return
	}
	if m.State.Triggers().ConvertToHedge {
		return
	}
	if m.Info.EntryTTE*365 >= 1 {
		return
	}
	if !m.Config.ConversionCutoff.IsZero() && !m.Clock.Now().Before(m.Config.ConversionCutoff) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hedgeCall, err := m.Data.OptionPrice(ctx, p.HedgeCall)
	if err != nil {
		m.logError("conversion hedge call price fetch failed", err)
		return
	}
	hedgePut, err := m.Data.OptionPrice(ctx, p.HedgePut)
	if err != nil {
		m.logError("conversion hedge put price fetch failed", err)
		return
	}

	triggered, err := p.Triggered(hedgeCall+hedgePut, m.Info.TotalAvgPrice)
	if err != nil {
		m.logError("conversion check failed", err)
		return
	}
	if triggered && m.State.SignalConvertToHedge() {
		m.notifyf(notifications.SeverityInfo,
			"%s convert to butterfly triggered, hedged with %s / %s",
			m.Info.Underlying, p.HedgeCall, p.HedgePut)
	}
}

func (m *Monitor) logError(context string, err error) {
	if m.Log != nil {
		m.Log.Error("%s: %v", context, err)
	}
	monitoring.RecordError("monitor")
}

func (m *Monitor) notifyf(severity notifications.Severity, format string, args ...interface{}) {
	if m.Notifier == nil {
		return
	}
	if err := m.Notifier.Notify(severity, fmt.Sprintf(format, args...)); err != nil && m.Log != nil {
		m.Log.Error("notification failed: %v", err)
	}
}
