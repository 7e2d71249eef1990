package config

import (
	"time"

	"github.com/quantpulse/strangle-bot/internal/engine"
	"github.com/quantpulse/strangle-bot/internal/strategy"
)

// Variants builds the configured strategy variants anchored on the given
// trading day. The order is stable so episode tags line up across runs.
func (c *BotConfig) Variants(day time.Time) ([]strategy.Variant, error) {
	expiry, err := c.ExpiryDate()
	if err != nil {
		return nil, err
	}
	exitTime, err := c.SessionExitTime(day)
	if err != nil {
		return nil, err
	}

	var out []strategy.Variant

	if sc := c.Strangle; sc != nil {
		v := &strategy.IntradayStrangle{
			Underlying:  c.Session.Underlying,
			Expiry:      expiry,
			LotSize:     c.Session.LotSize,
			StrikeBase:  c.Session.StrikeBase,
			StrategyTag: sc.StrategyTag,

			Exposure:     sc.Exposure,
			QuantityLots: sc.QuantityLots,

			CallStrikeOffset: sc.CallStrikeOffset,
			PutStrikeOffset:  sc.PutStrikeOffset,

			StopLoss:         sc.StopLoss,
			CallStopLoss:     sc.CallStopLoss,
			PutStopLoss:      sc.PutStopLoss,
			CombinedStopLoss: sc.CombinedStopLoss,
			TakeProfit:       sc.TakeProfit,

			PlaceSLOrders:   sc.PlaceSLOrders,
			PlaceOrdersOnSL: sc.PlaceOrdersOnSL,
			MoveSLToCost:    sc.MoveSLToCost,

			CatchTrend:         sc.CatchTrend,
			TrendQtyRatio:      sc.TrendQtyRatio,
			PlaceTrendSLOrders: sc.PlaceTrendSLOrders,

			ConvertToButterfly:     sc.ConvertToButterfly,
			ConversionMethod:       engine.ConversionMethod(sc.ConversionMethod),
			ConversionThresholdPct: sc.ConversionThresholdPct,

			SessionExitTime: exitTime,
			PollInterval:    c.PollInterval(),
			SecondsToAvg:    time.Duration(c.Session.SecondsToAverage) * time.Second,

			Guards: engine.DefaultGuards(),
		}
		if sc.ConversionCutoff != "" {
			cutoff, err := c.WallClock(day, sc.ConversionCutoff)
			if err != nil {
				return nil, err
			}
			v.ConversionCutoff = cutoff
		}
		out = append(out, v)
	}

	if lc := c.Ladder; lc != nil {
		out = append(out, &strategy.LadderReentry{
			Underlying:  c.Session.Underlying,
			Expiry:      expiry,
			LotSize:     c.Session.LotSize,
			StrikeBase:  c.Session.StrikeBase,
			StrategyTag: lc.StrategyTag,

			Exposure: lc.Exposure,

			StopLoss:     lc.StopLoss,
			CallStopLoss: lc.CallStopLoss,
			PutStopLoss:  lc.PutStopLoss,

			StrikeOffset:     lc.StrikeOffset,
			CallStrikeOffset: lc.CallStrikeOffset,
			PutStrikeOffset:  lc.PutStrikeOffset,

			Reentries:     lc.Reentries,
			CallReentries: lc.CallReentries,
			PutReentries:  lc.PutReentries,

			Hedged:      lc.Hedged,
			HedgeOffset: lc.HedgeOffset,

			MoveOtherToCost: lc.MoveOtherToCost,
			AdjustStopLoss:  lc.AdjustStopLoss,
			AtMarket:        lc.AtMarket,

			SessionExitTime: exitTime,
			PollInterval:    c.PollInterval(),
		})
	}

	if dc := c.DeltaHedge; dc != nil {
		out = append(out, &strategy.DeltaHedge{
			Underlying:  c.Session.Underlying,
			Expiry:      expiry,
			LotSize:     c.Session.LotSize,
			StrikeBase:  c.Session.StrikeBase,
			StrategyTag: dc.StrategyTag,

			Exposure: dc.Exposure,

			DeltaThresholdPct: dc.DeltaThresholdPct,
			IntervalMinutes:   float64(dc.IntervalMinutes),
			Interrupt:         dc.Interrupt,
			HandleSpikes:      dc.HandleSpikes,
			AtMarket:          dc.AtMarket,

			SessionExitTime: exitTime,
		})
	}

	if tc := c.Trend; tc != nil {
		out = append(out, &strategy.TrendFollowing{
			Underlying:  c.Session.Underlying,
			Expiry:      expiry,
			LotSize:     c.Session.LotSize,
			StrikeBase:  c.Session.StrikeBase,
			StrategyTag: tc.StrategyTag,

			Exposure: tc.Exposure,

			ThresholdMovement: tc.ThresholdMovement,
			VolReference:      tc.VolReference,
			Beta:              tc.Beta,

			StopLoss:    tc.StopLoss,
			TargetDelta: tc.TargetDelta,
			MaxEntries:  tc.MaxEntries,
			AtMarket:    tc.AtMarket,

			SessionExitTime: exitTime,
			PollInterval:    c.PollInterval(),
		})
	}

	if rc := c.Regime; rc != nil {
		v := &strategy.RegimeSwitch{
			Underlying:  c.Session.Underlying,
			Expiry:      expiry,
			LotSize:     c.Session.LotSize,
			StrikeBase:  c.Session.StrikeBase,
			StrategyTag: rc.StrategyTag,

			Exposure: rc.Exposure,

			StopLoss:    rc.StopLoss,
			Reentries:   rc.Reentries,
			TargetDelta: rc.TargetDelta,

			ProfitCapturePct: rc.ProfitCapturePct,
			ThetaCutoffPct:   rc.ThetaCutoffPct,
			AtMarket:         rc.AtMarket,

			SessionExitTime: exitTime,
			PollInterval:    c.PollInterval(),
		}
		if rc.MorningCutoff != "" {
			cutoff, err := c.WallClock(day, rc.MorningCutoff)
			if err != nil {
				return nil, err
			}
			v.MorningCutoff = cutoff
		}
		out = append(out, v)
	}

	return out, nil
}
