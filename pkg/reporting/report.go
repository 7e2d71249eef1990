package reporting

import (
	"sync"
	"time"

	"github.com/quantpulse/strangle-bot/internal/strategy"
)

// SessionReport collects the episode results of one trading day across
// all strategies. Safe for concurrent Add from strategy goroutines.
type SessionReport struct {
	Day        time.Time
	Underlying string

	mu      sync.Mutex
	results []strategy.Result
}

// NewSessionReport starts an empty report for the day.
func NewSessionReport(day time.Time, underlying string) *SessionReport {
	return &SessionReport{Day: day, Underlying: underlying}
}

// Add records one finished episode.
func (r *SessionReport) Add(res *strategy.Result) {
	if res == nil {
		return
	}
	r.mu.Lock()
	r.results = append(r.results, *res)
	r.mu.Unlock()
}

// Results returns a copy of the recorded episodes.
func (r *SessionReport) Results() []strategy.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]strategy.Result, len(r.results))
	copy(out, r.results)
	return out
}

// TotalRupees sums realized profit across episodes.
func (r *SessionReport) TotalRupees() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total float64
	for _, res := range r.results {
		total += res.ProfitRupees
	}
	return total
}
