package models

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by ProviderError.
var (
	// ErrNoData is returned when the provider has no quote or chain for a symbol
	ErrNoData = errors.New("no data")
	// ErrRateLimited is returned when the provider signals its call quota was hit
	ErrRateLimited = errors.New("rate limit reached")
	// ErrEmptyChain is returned when a chain request succeeds with zero contracts
	ErrEmptyChain = errors.New("empty option chain")
	// ErrMalformedPayload is returned when a response cannot be interpreted
	ErrMalformedPayload = errors.New("malformed payload")
)

// ValidationError reports malformed criteria or inputs, such as a non-positive
// underlying price.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ProviderErrorKind classifies quote/chain provider failures.
type ProviderErrorKind string

const (
	// ProviderNoData means the symbol has no quote or chain
	ProviderNoData ProviderErrorKind = "no_data"
	// ProviderRateLimit means the upstream quota was exceeded
	ProviderRateLimit ProviderErrorKind = "rate_limit"
	// ProviderNetwork covers transport failures, timeouts and non-2xx statuses
	ProviderNetwork ProviderErrorKind = "network"
	// ProviderMalformed means the payload could not be decoded
	ProviderMalformed ProviderErrorKind = "malformed"
	// ProviderEmptyChain means the chain request returned no contracts
	ProviderEmptyChain ProviderErrorKind = "empty_chain"
)

// ProviderError is a failed quote or chain lookup for one symbol.
type ProviderError struct {
	Symbol string
	Op     string // "price" | "chain"
	Kind   ProviderErrorKind
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Symbol, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Symbol, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ProviderErrorKindOf returns the kind of the ProviderError wrapped by err, or
// "" when err is not a provider failure.
func ProviderErrorKindOf(err error) ProviderErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
