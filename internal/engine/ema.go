package engine

import (
	"math"
	"time"
)

// EMAPeriods derives the smoothing window from the averaging horizon and
// the poll cadence. Sub-second polling collapses to a single period.
func EMAPeriods(secondsToAvg, pollInterval time.Duration) int {
	if pollInterval < time.Second {
		return 1
	}
	periods := int(secondsToAvg / pollInterval)
	if periods < 1 {
		periods = 1
	}
	return periods
}

// EMAAlpha is the standard smoothing factor 2/(periods+1).
func EMAAlpha(periods int) float64 {
	return 2.0 / (float64(periods) + 1)
}

// EMA is an exponential moving average seeded by its first observation.
type EMA struct {
	alpha  float64
	value  float64
	seeded bool
}

func NewEMA(alpha float64) *EMA {
	return &EMA{alpha: alpha}
}

// Update folds in a new observation and returns the smoothed value.
// NaN observations are ignored.
func (e *EMA) Update(price float64) float64 {
	if math.IsNaN(price) {
		return e.value
	}
	if !e.seeded {
		e.value = price
		e.seeded = true
		return e.value
	}
	e.value = price*e.alpha + e.value*(1-e.alpha)
	return e.value
}

// Value returns the current smoothed value.
func (e *EMA) Value() float64 { return e.value }
