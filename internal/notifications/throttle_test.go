package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	messages []string
	severity []Severity
}

func (c *captureNotifier) Notify(s Severity, msg string) error {
	c.severity = append(c.severity, s)
	c.messages = append(c.messages, msg)
	return nil
}

func TestThrottle_DropsRapidInfo(t *testing.T) {
	capture := &captureNotifier{}
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	th := NewThrottle(capture, time.Minute)
	th.Now = func() time.Time { return now }

	require.NoError(t, th.Notify(SeverityInfo, "first"))
	require.NoError(t, th.Notify(SeverityInfo, "dropped"))

	now = now.Add(59 * time.Second)
	require.NoError(t, th.Notify(SeverityInfo, "still dropped"))

	now = now.Add(time.Second)
	require.NoError(t, th.Notify(SeverityInfo, "second"))

	assert.Equal(t, []string{"first", "second"}, capture.messages)
}

func TestThrottle_CrucialAndErrorBypass(t *testing.T) {
	capture := &captureNotifier{}
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	th := NewThrottle(capture, time.Hour)
	th.Now = func() time.Time { return now }

	require.NoError(t, th.Notify(SeverityInfo, "status"))
	require.NoError(t, th.Notify(SeverityCrucial, "stop loss"))
	require.NoError(t, th.Notify(SeverityError, "broker down"))
	require.NoError(t, th.Notify(SeverityInfo, "spam"))

	assert.Equal(t, []string{"status", "stop loss", "broker down"}, capture.messages)
	assert.Equal(t, []Severity{SeverityInfo, SeverityCrucial, SeverityError}, capture.severity)
}

func TestThrottle_UrgentDoesNotResetWindow(t *testing.T) {
	capture := &captureNotifier{}
	now := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	th := NewThrottle(capture, time.Minute)
	th.Now = func() time.Time { return now }

	require.NoError(t, th.Notify(SeverityInfo, "first"))
	now = now.Add(30 * time.Second)
	require.NoError(t, th.Notify(SeverityCrucial, "urgent"))
	now = now.Add(30 * time.Second)
	require.NoError(t, th.Notify(SeverityInfo, "second"))

	assert.Equal(t, []string{"first", "urgent", "second"}, capture.messages)
}
