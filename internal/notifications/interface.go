package notifications

// Severity classifies a notification. CRUCIAL is reserved for risk events
// (stop losses, forced exits); ERROR for failures that need human eyes.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityCrucial Severity = "CRUCIAL"
	SeverityError   Severity = "ERROR"
)

// Notifier delivers human-readable trade notifications. Implementations
// must not block the caller beyond a short bounded timeout.
type Notifier interface {
	Notify(severity Severity, message string) error
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Notify(Severity, string) error { return nil }
