package position

// ReentryState tracks the ladder for one leg: a fixed budget of reentries,
// each consumed when the leg stops out and the price later trades back down
// to the original entry level.
type ReentryState struct {
	// EntryPrice is the premium the ladder anchors on. The stop sits at
	// EntryPrice*(1+StopPct) and reentry triggers at EntryPrice.
	EntryPrice float64
	StopPct    float64

	// Remaining reentries. Decremented on every reentry, never refilled.
	Remaining int

	// StoppedOut is set while the leg is flat waiting for a reentry.
	StoppedOut bool
}

// NewReentryState anchors a ladder with the given budget.
func NewReentryState(entryPrice, stopPct float64, budget int) *ReentryState {
	return &ReentryState{EntryPrice: entryPrice, StopPct: stopPct, Remaining: budget}
}

// StopPrice is the premium level at which the leg stops out.
func (r *ReentryState) StopPrice() float64 {
	return r.EntryPrice * (1 + r.StopPct)
}

// ShouldStop reports whether a live leg has breached its ladder stop.
func (r *ReentryState) ShouldStop(ltp float64) bool {
	return !r.StoppedOut && ltp >= r.StopPrice()
}

// MarkStopped records the stop-out; the ladder now waits for reentry.
func (r *ReentryState) MarkStopped() { r.StoppedOut = true }

// ShouldReenter reports whether a stopped-out leg may reenter: the price is
// back at or under the entry anchor and budget remains.
func (r *ReentryState) ShouldReenter(ltp float64) bool {
	return r.StoppedOut && r.Remaining > 0 && ltp <= r.EntryPrice
}

// MarkReentered consumes one reentry and arms the stop again.
func (r *ReentryState) MarkReentered() {
	r.Remaining--
	r.StoppedOut = false
}

// Exhausted reports whether the ladder is stopped out with no budget left.
func (r *ReentryState) Exhausted() bool {
	return r.StoppedOut && r.Remaining <= 0
}
