// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrMarketClosed   = errors.New("market is closed")
	ErrRateLimited    = errors.New("rate limited")
	ErrDataNotFound   = errors.New("data not found")
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrEmptyChain     = errors.New("option chain has no strikes")
	ErrStaleSnapshot  = errors.New("snapshot older than last processed tick")
)

// ConfigurationError reports an invalid configuration value at
// construction time. These fail fast, never mid-session.
type ConfigurationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field string, value interface{}, message string) *ConfigurationError {
	return &ConfigurationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// FeedError represents an error from the market data source.
type FeedError struct {
	Source  string
	Symbol  string
	Message string
	Err     error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed error [%s] %s: %s: %v", e.Source, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("feed error [%s] %s: %s", e.Source, e.Symbol, e.Message)
}

func (e *FeedError) Unwrap() error {
	return e.Err
}

// NewFeedError creates a new FeedError.
func NewFeedError(source, symbol, message string, err error) *FeedError {
	return &FeedError{
		Source:  source,
		Symbol:  symbol,
		Message: message,
		Err:     err,
	}
}

// StoreError represents a persistence error.
type StoreError struct {
	Operation string
	Table     string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error [%s] %s: %v", e.Operation, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation, table string, err error) *StoreError {
	return &StoreError{
		Operation: operation,
		Table:     table,
		Err:       err,
	}
}

// NotifyError represents a delivery failure to a notification channel.
type NotifyError struct {
	Channel string
	Message string
	Err     error
}

func (e *NotifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("notify error [%s]: %s: %v", e.Channel, e.Message, e.Err)
	}
	return fmt.Sprintf("notify error [%s]: %s", e.Channel, e.Message)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}

// NewNotifyError creates a new NotifyError.
func NewNotifyError(channel, message string, err error) *NotifyError {
	return &NotifyError{
		Channel: channel,
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
