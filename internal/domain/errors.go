package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a failed request or a non-2xx response
type NetworkError struct {
	Op         string // Operation that failed (e.g., "allMids", "clearinghouseState")
	StatusCode int    // HTTP status, 0 when the request never completed
	Err        error  // Underlying error
	Retriable  bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ValidationError is a gating rule failure on user input. It is surfaced
// synchronously and never sent to the network.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

func (e *ValidationError) IsRetriable() bool {
	return false
}

// MutationError is a backend rejection of an order or close request.
// Message carries the backend text verbatim.
type MutationError struct {
	Op      string // "placeOrder", "closePosition", "updateLeverage"
	Symbol  string
	Message string
}

func (e *MutationError) Error() string {
	return e.Message
}

func (e *MutationError) IsRetriable() bool {
	return false
}

var (
	// ErrMalformedPayload is returned when a response does not match the expected shape. Not retriable.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrInvalidSymbol is returned when a symbol is not supported or malformed. Not retriable.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrNotInitialized is returned when a trading action runs before the session is initialized.
	ErrNotInitialized = errors.New("trading service not initialized")

	// ErrAlreadyInFlight is returned when the same action is already running for a symbol.
	ErrAlreadyInFlight = errors.New("request already in flight")

	// ErrWalletRequired is returned when an account action has no wallet address.
	ErrWalletRequired = errors.New("wallet address required")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
