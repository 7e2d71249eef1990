// Package engine contains the concurrent core of a trading episode: the
// shared state record, the stop-loss evaluator, the position monitor loop
// and the trend catcher loop. Loops coordinate only through SharedState;
// nothing here talks to another loop directly.
package engine

import (
	"sync"
	"sync/atomic"

	"github.com/quantpulse/strangle-bot/internal/option"
)

// ExitTriggers are the position-level exit signals raised by the monitor
// loop. Each is set at most once per episode and never unset.
type ExitTriggers struct {
	TakeProfit       bool
	CombinedStopLoss bool
	ConvertToHedge   bool
}

// Any reports whether any position-level trigger fired.
func (t ExitTriggers) Any() bool {
	return t.TakeProfit || t.CombinedStopLoss || t.ConvertToHedge
}

// Snapshot is a consistent read of the refreshed market fields.
type Snapshot struct {
	UnderlyingPrice float64
	UnderlyingAvg   float64
	LegPrice        map[option.Type]float64
	LegAvg          map[option.Type]float64
	CallIV          float64
	PutIV           float64
	AvgIV           float64
	ProfitPoints    float64
	ProfitRupees    float64
	Triggers        ExitTriggers
}

// SharedState is the only record mutated by more than one loop in an
// episode. Market snapshot fields are refreshed by the monitor; decision
// flags are write-once; exit prices are recorded once per leg. After
// Complete succeeds every other setter becomes a no-op.
type SharedState struct {
	mu sync.RWMutex

	underlying    float64
	underlyingAvg float64
	legPrice      map[option.Type]float64
	legAvg        map[option.Type]float64

	callIV, putIV, avgIV float64
	profitPts, profitRs  float64

	stopLossHit    map[option.Type]bool
	unjustNotified map[option.Type]bool
	exitPrice      map[option.Type]float64
	exitPriceSet   map[option.Type]bool
	triggers       ExitTriggers

	trendPoints float64

	tradeComplete atomic.Bool
}

func NewSharedState() *SharedState {
	return &SharedState{
		legPrice:       make(map[option.Type]float64),
		legAvg:         make(map[option.Type]float64),
		stopLossHit:    make(map[option.Type]bool),
		unjustNotified: make(map[option.Type]bool),
		exitPrice:      make(map[option.Type]float64),
		exitPriceSet:   make(map[option.Type]bool),
	}
}

// Done reports whether the episode has reached its terminal state.
func (s *SharedState) Done() bool { return s.tradeComplete.Load() }

// Complete marks the episode terminal. Returns true on the first call
// only; setting it twice is harmless.
func (s *SharedState) Complete() bool {
	return s.tradeComplete.CompareAndSwap(false, true)
}

// UpdateMarket refreshes the monitor-owned snapshot fields.
func (s *SharedState) UpdateMarket(spot, spotAvg float64, prices, avgs map[option.Type]float64) {
	if s.Done() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.underlying = spot
	s.underlyingAvg = spotAvg
	for t, p := range prices {
		s.legPrice[t] = p
	}
	for t, p := range avgs {
		s.legAvg[t] = p
	}
}

// UpdateIVs refreshes the implied vol fields.
func (s *SharedState) UpdateIVs(callIV, putIV, avgIV float64) {
	if s.Done() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callIV, s.putIV, s.avgIV = callIV, putIV, avgIV
}

// UpdateProfit refreshes the running mark-to-market profit.
func (s *SharedState) UpdateProfit(points, rupees float64) {
	if s.Done() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profitPts, s.profitRs = points, rupees
}

// Snapshot returns a consistent copy of the refreshed fields.
func (s *SharedState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		UnderlyingPrice: s.underlying,
		UnderlyingAvg:   s.underlyingAvg,
		LegPrice:        make(map[option.Type]float64, len(s.legPrice)),
		LegAvg:          make(map[option.Type]float64, len(s.legAvg)),
		CallIV:          s.callIV,
		PutIV:           s.putIV,
		AvgIV:           s.avgIV,
		ProfitPoints:    s.profitPts,
		ProfitRupees:    s.profitRs,
		Triggers:        s.triggers,
	}
	for t, p := range s.legPrice {
		snap.LegPrice[t] = p
	}
	for t, p := range s.legAvg {
		snap.LegAvg[t] = p
	}
	return snap
}

// MarkStopLoss records a leg-level stop. Returns true on the first call
// for that side.
func (s *SharedState) MarkStopLoss(side option.Type) bool {
	if s.Done() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopLossHit[side] {
		return false
	}
	s.stopLossHit[side] = true
	return true
}

// StopLossHit reports whether the side has stopped out.
func (s *SharedState) StopLossHit(side option.Type) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopLossHit[side]
}

// BothStopped reports whether both wings have stopped out.
func (s *SharedState) BothStopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopLossHit[option.Call] && s.stopLossHit[option.Put]
}

// MarkUnjustifiedNotified returns true the first time it is called for a
// side, so the unjustified-stop-loss notification goes out exactly once.
func (s *SharedState) MarkUnjustifiedNotified(side option.Type) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unjustNotified[side] {
		return false
	}
	s.unjustNotified[side] = true
	return true
}

// SignalTakeProfit raises the take-profit trigger. First call wins.
func (s *SharedState) SignalTakeProfit() bool {
	return s.signal(func(t *ExitTriggers) *bool { return &t.TakeProfit })
}

// SignalCombinedStopLoss raises the combined stop-loss trigger.
func (s *SharedState) SignalCombinedStopLoss() bool {
	return s.signal(func(t *ExitTriggers) *bool { return &t.CombinedStopLoss })
}

// SignalConvertToHedge raises the risk-conversion trigger.
func (s *SharedState) SignalConvertToHedge() bool {
	return s.signal(func(t *ExitTriggers) *bool { return &t.ConvertToHedge })
}

func (s *SharedState) signal(field func(*ExitTriggers) *bool) bool {
	if s.Done() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	f := field(&s.triggers)
	if *f {
		return false
	}
	*f = true
	return true
}

// Triggers returns the current trigger flags.
func (s *SharedState) Triggers() ExitTriggers {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.triggers
}

// SetExitPrice records a leg's exit fill. Only the first write per side
// sticks; returns whether this call recorded it.
func (s *SharedState) SetExitPrice(side option.Type, price float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitPriceSet[side] {
		return false
	}
	s.exitPrice[side] = price
	s.exitPriceSet[side] = true
	return true
}

// ExitPrice returns the recorded exit fill for a side.
func (s *SharedState) ExitPrice(side option.Type) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exitPrice[side], s.exitPriceSet[side]
}

// ExitPriceOr returns the exit price if recorded, else fallback. The
// monitor uses the live price as the fallback when marking to market.
func (s *SharedState) ExitPriceOr(side option.Type, fallback float64) float64 {
	if p, ok := s.ExitPrice(side); ok {
		return p
	}
	return fallback
}

// SetTrendPoints records the points captured by the trend catcher. Kept as
// a separate line item, never folded into the main profit fields.
func (s *SharedState) SetTrendPoints(points float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trendPoints = points
}

// TrendPoints returns the trend catcher's separate P&L line item.
func (s *SharedState) TrendPoints() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trendPoints
}
