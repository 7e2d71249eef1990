package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReentryState_StopAndReenterCycle(t *testing.T) {
	r := NewReentryState(20, 0.5, 2)
	assert.InDelta(t, 30.0, r.StopPrice(), 1e-9)

	// Live leg under the stop.
	assert.False(t, r.ShouldStop(29.99))
	assert.True(t, r.ShouldStop(30))

	r.MarkStopped()
	assert.True(t, r.StoppedOut)
	// A stopped leg cannot stop again while flat.
	assert.False(t, r.ShouldStop(40))

	// Price must trade back to the entry anchor.
	assert.False(t, r.ShouldReenter(20.01))
	assert.True(t, r.ShouldReenter(20))

	r.MarkReentered()
	assert.Equal(t, 1, r.Remaining)
	assert.False(t, r.StoppedOut)
}

func TestReentryState_BudgetNeverRefills(t *testing.T) {
	r := NewReentryState(20, 0.5, 2)

	for i := 0; i < 2; i++ {
		r.MarkStopped()
		assert.True(t, r.ShouldReenter(19))
		r.MarkReentered()
	}
	assert.Equal(t, 0, r.Remaining)
	assert.False(t, r.Exhausted())

	r.MarkStopped()
	assert.False(t, r.ShouldReenter(19))
	assert.True(t, r.Exhausted())
}

func TestReentryState_NotExhaustedWhileLive(t *testing.T) {
	r := NewReentryState(20, 0.5, 0)
	assert.False(t, r.Exhausted())

	r.MarkStopped()
	assert.True(t, r.Exhausted())
}
