// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrAlertNotFound    = errors.New("alert not found")
	ErrAlertClosed      = errors.New("alert is closed")
	ErrUserNotFound     = errors.New("user not found")
	// ErrNotEntitled is a policy outcome, not a failure; callers classify
	// with it but never log it as an error.
	ErrNotEntitled      = errors.New("user not entitled")
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendTimeout      = errors.New("send timed out")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrDatabaseError    = errors.New("database error")
)

// ValidationError represents malformed price or alert data. It is rejected
// before reaching the state machine and causes no state change.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DeliveryError represents a transport send failure for one connection.
// It is isolated to that connection and never surfaced to the price-update
// caller.
type DeliveryError struct {
	ConnectionID string
	UserID       int64
	Err          error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery error [conn %s user %d]: %v", e.ConnectionID, e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewDeliveryError creates a new DeliveryError.
func NewDeliveryError(connectionID string, userID int64, err error) *DeliveryError {
	return &DeliveryError{
		ConnectionID: connectionID,
		UserID:       userID,
		Err:          err,
	}
}

// StoreError represents a persistence failure. A StoreError during a status
// transition means the whole transition rolled back: no threshold is marked
// crossed without its event durably recorded.
type StoreError struct {
	Operation string
	AlertID   int64
	Err       error
}

func (e *StoreError) Error() string {
	if e.AlertID != 0 {
		return fmt.Sprintf("store error [%s] alert %d: %v", e.Operation, e.AlertID, e.Err)
	}
	return fmt.Sprintf("store error [%s]: %v", e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation string, alertID int64, err error) *StoreError {
	return &StoreError{
		Operation: operation,
		AlertID:   alertID,
		Err:       err,
	}
}

// FeedError represents a failure on the upstream price feed.
type FeedError struct {
	URL     string
	Message string
	Err     error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed error [%s]: %s: %v", e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("feed error [%s]: %s", e.URL, e.Message)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// NewFeedError creates a new FeedError.
func NewFeedError(url, message string, err error) *FeedError {
	return &FeedError{
		URL:     url,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
