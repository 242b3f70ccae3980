// Package retry re-invokes provider calls that failed transiently. The scan
// engine never retries; callers that persist chains use this instead.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/eddiefleurent/pmcc_scanner/internal/provider"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

type Client struct {
	provider provider.Provider
	logger   logrus.FieldLogger
	config   Config
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewClient wraps p. Non-positive config values fall back to DefaultConfig.
func NewClient(p provider.Provider, logger logrus.FieldLogger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
		if cfg.MaxRetries < 0 {
			cfg.MaxRetries = DefaultConfig.MaxRetries
		}
		if cfg.InitialBackoff <= 0 {
			cfg.InitialBackoff = DefaultConfig.InitialBackoff
		}
		if cfg.MaxBackoff <= 0 {
			cfg.MaxBackoff = DefaultConfig.MaxBackoff
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = DefaultConfig.Timeout
		}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		provider: p,
		logger:   logger,
		config:   cfg,
		sleep:    sleepCtx,
	}
}

// GetOptionChainWithRetry fetches symbol's chain, retrying transient failures
// with jittered exponential backoff.
func (c *Client) GetOptionChainWithRetry(ctx context.Context, symbol string) ([]models.OptionContract, error) {
	return withRetry(ctx, c, symbol, "chain", c.provider.GetOptionChain)
}

// GetLastPriceWithRetry fetches symbol's last price, retrying transient failures.
func (c *Client) GetLastPriceWithRetry(ctx context.Context, symbol string) (float64, error) {
	return withRetry(ctx, c, symbol, "price", c.provider.GetLastPrice)
}

func withRetry[T any](
	ctx context.Context,
	c *Client,
	symbol, op string,
	fn func(context.Context, string) (T, error),
) (T, error) {
	var zero T
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	logger := c.logger.WithFields(logrus.Fields{"symbol": symbol, "op": op})

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := callCtx.Err(); err != nil {
			if ctx.Err() != nil {
				return zero, fmt.Errorf("operation canceled: %w", ctx.Err())
			}
			return zero, fmt.Errorf("%s %s timed out after %v: %w", op, symbol, c.config.Timeout, err)
		}

		v, err := fn(callCtx, symbol)
		if err == nil {
			if attempt > 0 {
				logger.Infof("Succeeded on attempt %d", attempt+1)
			}
			return v, nil
		}

		lastErr = err
		if !IsTransient(err) || attempt == c.config.MaxRetries {
			break
		}

		logger.WithError(err).Warnf("Attempt %d/%d failed, retrying in %v", attempt+1, c.config.MaxRetries+1, backoff)
		if err := c.sleep(callCtx, backoff); err != nil {
			return zero, fmt.Errorf("%s %s canceled during backoff: %w", op, symbol, err)
		}
		backoff = c.calculateNextBackoff(backoff)
	}

	return zero, fmt.Errorf("%s %s failed after retries: %w", op, symbol, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.WithError(err).Debug("Failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

// IsTransient reports whether err is worth retrying: provider rate-limit and
// network failures, an open circuit breaker, or a message that looks like a
// transport problem.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	switch models.ProviderErrorKindOf(err) {
	case models.ProviderRateLimit, models.ProviderNetwork:
		return true
	case models.ProviderNoData, models.ProviderMalformed, models.ProviderEmptyChain:
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
