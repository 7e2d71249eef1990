// Package pricing is the theoretical-model collaborator: implied vols,
// greeks and the simulated option price used by the stop-loss justification
// step. The engine only depends on the Model interface; the Black-Scholes
// implementation here is the default.
package pricing

import (
	"github.com/quantpulse/strangle-bot/internal/option"
)

// Simulation describes a theoretical re-pricing of one option from its
// entry-time state to the current underlying level and elapsed time.
type Simulation struct {
	Strike       float64
	Type         option.Type
	EntryIV      float64 // ATM implied vol observed at entry
	EntrySpot    float64
	EntryTTE     float64 // time to expiry at entry, in years
	NewSpot      float64
	ElapsedMin   float64 // minutes since entry, already capped by the caller
	MinimumPrice float64 // floor for the simulated price, 0 means 0.05
}

// Model prices options and implied vols. Implementations must return a
// PRICING-category error on invalid inputs (e.g. a price below intrinsic
// value) so the stop-loss evaluator can fail safe.
type Model interface {
	// StrangleIV computes the implied vol of each wing and their average.
	// When one wing's IV cannot be solved, the average falls back to the
	// other wing.
	StrangleIV(callPrice, putPrice, callStrike, putStrike, spot, tte float64) (callIV, putIV, avgIV float64, err error)

	// OptionGreeks computes the greeks for one option given its market
	// price.
	OptionGreeks(inst option.Instrument, spot, price, tte float64) (option.Greeks, error)

	// SimulatePrice returns the theoretical price of the option under the
	// simulation inputs.
	SimulatePrice(sim Simulation) (float64, error)
}
