package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func states(statuses ...OrderStatus) map[OrderRef]OrderState {
	out := make(map[OrderRef]OrderState, len(statuses))
	for i, s := range statuses {
		out[OrderRef(rune('a'+i))] = OrderState{Status: s}
	}
	return out
}

func TestProtectiveOutcome(t *testing.T) {
	cases := []struct {
		name      string
		states    map[OrderRef]OrderState
		triggered bool
		complete  bool
	}{
		{"no orders", nil, false, false},
		{"untriggered", states(StatusTriggerPending), false, false},
		{"triggered unfilled", states(StatusPending), true, false},
		{"filled", states(StatusComplete), true, true},
		{"cancelled counts as triggered", states(StatusCancelled), true, false},
		{"rejected counts as triggered", states(StatusRejected), true, false},
		{"one filled one resting", states(StatusComplete, StatusTriggerPending), true, false},
		{"both filled", states(StatusComplete, StatusComplete), true, true},
		{"filled plus cancelled", states(StatusComplete, StatusCancelled), true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			triggered, complete := ProtectiveOutcome(tc.states)
			assert.Equal(t, tc.triggered, triggered, "triggered")
			assert.Equal(t, tc.complete, complete, "complete")
		})
	}
}

func TestFilledAverage(t *testing.T) {
	batch := map[OrderRef]OrderState{
		"a": {Status: StatusComplete, AvgPrice: 10},
		"b": {Status: StatusComplete, AvgPrice: 14},
		"c": {Status: StatusPending, AvgPrice: 99},
	}
	assert.InDelta(t, 12.0, FilledAverage(batch), 1e-9)
}

func TestFilledAverage_NothingFilled(t *testing.T) {
	assert.Zero(t, FilledAverage(states(StatusTriggerPending, StatusPending)))
	assert.Zero(t, FilledAverage(nil))
}
