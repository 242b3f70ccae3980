// Package provider supplies underlying prices and option chains from a market
// data vendor, behind a shared call-rate gate and an optional circuit breaker.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Provider defines the quote/chain collaborator consumed by the live scan.
//
// Implementations must be safe for concurrent use; the scanner may query
// several symbols at once when configured with concurrency > 1.
type Provider interface {
	// GetLastPrice returns a positive last trade price or a *models.ProviderError.
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
	// GetOptionChain returns every listed contract for symbol or a *models.ProviderError.
	GetOptionChain(ctx context.Context, symbol string) ([]models.OptionContract, error)
}

// CircuitBreakerProvider wraps a Provider with circuit breaker functionality
type CircuitBreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// Ensure CircuitBreakerProvider implements Provider at compile time.
var _ Provider = (*CircuitBreakerProvider)(nil)

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings mirrors the values used for the live provider.
func DefaultCircuitBreakerSettings() CircuitBreakerSettings {
	return CircuitBreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// NewCircuitBreakerProvider creates a new CircuitBreakerProvider with sensible defaults
func NewCircuitBreakerProvider(p Provider) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(p, DefaultCircuitBreakerSettings())
}

// NewCircuitBreakerProviderWithSettings creates a CircuitBreakerProvider with custom settings
func NewCircuitBreakerProviderWithSettings(p Provider, settings CircuitBreakerSettings) *CircuitBreakerProvider {
	gbSettings := gobreaker.Settings{
		Name:        "ProviderCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		// A symbol without data says nothing about the vendor's health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch models.ProviderErrorKindOf(err) {
			case models.ProviderNoData, models.ProviderEmptyChain:
				return true
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}

	return &CircuitBreakerProvider{
		provider: p,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// State exposes the breaker state for health reporting.
func (c *CircuitBreakerProvider) State() gobreaker.State {
	return c.breaker.State()
}

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	c *CircuitBreakerProvider,
	symbol, op string,
	fn func(Provider) (T, error),
) (T, error) {
	var zero T
	res, err := c.breaker.Execute(func() (interface{}, error) { return fn(c.provider) })
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, &models.ProviderError{Symbol: symbol, Op: op, Kind: models.ProviderNetwork, Err: err}
		}
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// GetLastPrice wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	return execCircuitBreaker(c, symbol, opPrice, func(p Provider) (float64, error) {
		return p.GetLastPrice(ctx, symbol)
	})
}

// GetOptionChain wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetOptionChain(ctx context.Context, symbol string) ([]models.OptionContract, error) {
	return execCircuitBreaker(c, symbol, opChain, func(p Provider) ([]models.OptionContract, error) {
		return p.GetOptionChain(ctx, symbol)
	})
}
