package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the different classes of failure the engine
// distinguishes when deciding how to react.
type ErrorCategory string

const (
	// Pricing failures make a stop-loss decision fail safe toward exiting.
	ErrorCategoryPricing ErrorCategory = "PRICING"

	// Execution failures propagate to the owning strategy, which must close
	// any already-open legs before re-raising.
	ErrorCategoryExecution ErrorCategory = "EXECUTION"

	// Configuration failures are rejected before any order is placed.
	ErrorCategoryConfig ErrorCategory = "CONFIG"

	// Timeout is the session exit time: a normal terminal transition, not
	// a fault.
	ErrorCategoryTimeout ErrorCategory = "TIMEOUT"

	// Transient categories that the polling loops ride out.
	ErrorCategoryNetwork      ErrorCategory = "NETWORK"
	ErrorCategoryNotification ErrorCategory = "NOTIFICATION"
)

// TradeError is a categorized error with enough context to decide whether
// the engine keeps polling, fails safe, or unwinds the position.
type TradeError struct {
	Category   ErrorCategory
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

// Error implements the error interface.
func (e *TradeError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *TradeError) Unwrap() error {
	return e.Underlying
}

// IsRetryable reports whether the next polling tick may simply retry.
func (e *TradeError) IsRetryable() bool {
	return e.Retryable
}

// IsFatal reports whether the owning strategy must stop and unwind.
func (e *TradeError) IsFatal() bool {
	return e.Category == ErrorCategoryConfig || e.Category == ErrorCategoryExecution
}

// New creates a categorized trade error.
func New(category ErrorCategory, component, operation, message string) *TradeError {
	return &TradeError{
		Category:  category,
		Component: component,
		Operation: operation,
		Message:   message,
		Retryable: isRetryableCategory(category),
	}
}

// Newf creates a categorized trade error with a formatted message.
func Newf(category ErrorCategory, component, operation, format string, args ...interface{}) *TradeError {
	return New(category, component, operation, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with trade error context. Returns nil for a
// nil error so call sites can wrap unconditionally.
func Wrap(err error, category ErrorCategory, component, operation, format string, args ...interface{}) *TradeError {
	if err == nil {
		return nil
	}
	return &TradeError{
		Category:   category,
		Component:  component,
		Operation:  operation,
		Message:    fmt.Sprintf(format, args...),
		Underlying: err,
		Retryable:  isRetryableCategory(category),
	}
}

// WithRetryable overrides the default retryability for the category.
func (e *TradeError) WithRetryable(retryable bool) *TradeError {
	e.Retryable = retryable
	return e
}

// CategoryOf extracts the category of an error, walking the wrap chain.
// Unrecognized errors report as NETWORK, the retryable default.
func CategoryOf(err error) ErrorCategory {
	var te *TradeError
	if errors.As(err, &te) {
		return te.Category
	}
	return ErrorCategoryNetwork
}

// IsPricing reports whether the error chain contains a pricing failure.
func IsPricing(err error) bool {
	return CategoryOf(err) == ErrorCategoryPricing
}

// IsTimeout reports whether the error chain marks the session exit time.
func IsTimeout(err error) bool {
	return CategoryOf(err) == ErrorCategoryTimeout
}

func isRetryableCategory(category ErrorCategory) bool {
	switch category {
	case ErrorCategoryNetwork, ErrorCategoryNotification:
		return true
	case ErrorCategoryConfig, ErrorCategoryExecution, ErrorCategoryPricing, ErrorCategoryTimeout:
		return false
	default:
		return true
	}
}
