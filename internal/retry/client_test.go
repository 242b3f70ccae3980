package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/eddiefleurent/pmcc_scanner/internal/provider"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider fails with failErr until successAfterN calls have been made.
type fakeProvider struct {
	callCount     int32
	successAfterN int32
	failErr       error
}

var _ provider.Provider = (*fakeProvider)(nil)

func (f *fakeProvider) attempt() error {
	n := atomic.AddInt32(&f.callCount, 1)
	if f.successAfterN == 0 || n < f.successAfterN {
		return f.failErr
	}
	return nil
}

func (f *fakeProvider) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := f.attempt(); err != nil {
		return 0, err
	}
	return 101.5, nil
}

func (f *fakeProvider) GetOptionChain(ctx context.Context, symbol string) ([]models.OptionContract, error) {
	if err := f.attempt(); err != nil {
		return nil, err
	}
	return []models.OptionContract{{Symbol: symbol, Strike: 100}}, nil
}

func networkErr(symbol string) error {
	return &models.ProviderError{Symbol: symbol, Op: "chain", Kind: models.ProviderNetwork, Err: errors.New("connection reset")}
}

// makeClient builds a Client whose backoff sleeps are recorded instead of waited.
func makeClient(p provider.Provider, cfg Config) (*Client, *test.Hook, *[]time.Duration) {
	logger, hook := test.NewNullLogger()
	c := NewClient(p, logger, cfg)
	var sleeps []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return c, hook, &sleeps
}

func TestNewClient_ConfigSanitizationAndDefaults(t *testing.T) {
	c := NewClient(&fakeProvider{}, nil, Config{MaxRetries: -1})

	assert.NotNil(t, c.logger)
	assert.Equal(t, DefaultConfig, c.config)

	c = NewClient(&fakeProvider{}, nil)
	assert.Equal(t, DefaultConfig, c.config)
}

func TestGetOptionChainWithRetry(t *testing.T) {
	cfg := Config{MaxRetries: 3, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Timeout: time.Minute}

	tests := []struct {
		name       string
		provider   *fakeProvider
		wantErr    bool
		wantCalls  int32
		wantSleeps int
	}{
		{
			name:      "success first try",
			provider:  &fakeProvider{successAfterN: 1},
			wantCalls: 1,
		},
		{
			name:       "transient then success",
			provider:   &fakeProvider{successAfterN: 3, failErr: networkErr("AAPL")},
			wantCalls:  3,
			wantSleeps: 2,
		},
		{
			name:       "transient exhausts retries",
			provider:   &fakeProvider{failErr: networkErr("AAPL")},
			wantErr:    true,
			wantCalls:  4,
			wantSleeps: 3,
		},
		{
			name: "no data is permanent",
			provider: &fakeProvider{failErr: &models.ProviderError{
				Symbol: "AAPL", Op: "chain", Kind: models.ProviderNoData, Err: models.ErrNoData,
			}},
			wantErr:   true,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, sleeps := makeClient(tt.provider, cfg)
			chain, err := c.GetOptionChainWithRetry(context.Background(), "AAPL")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.provider.failErr, errors.Unwrap(err))
			} else {
				require.NoError(t, err)
				assert.Len(t, chain, 1)
			}
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&tt.provider.callCount))
			assert.Len(t, *sleeps, tt.wantSleeps)
		})
	}
}

func TestGetLastPriceWithRetry_LogsRetries(t *testing.T) {
	p := &fakeProvider{successAfterN: 2, failErr: networkErr("SPY")}
	c, hook, _ := makeClient(p, Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Second, Timeout: time.Minute})

	price, err := c.GetLastPriceWithRetry(context.Background(), "SPY")
	require.NoError(t, err)
	assert.InDelta(t, 101.5, price, 1e-9)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
			assert.Equal(t, "SPY", e.Data["symbol"])
		}
	}
	assert.True(t, warned)
}

func TestBackoffGrowthIsCapped(t *testing.T) {
	c, _, _ := makeClient(&fakeProvider{}, Config{MaxRetries: 1, InitialBackoff: time.Second, MaxBackoff: 2 * time.Second, Timeout: time.Minute})

	next := c.calculateNextBackoff(time.Second)
	assert.GreaterOrEqual(t, next, 1500*time.Millisecond)
	assert.Less(t, next, 1500*time.Millisecond+1500*time.Millisecond/4)

	capped := c.calculateNextBackoff(10 * time.Second)
	assert.GreaterOrEqual(t, capped, 2*time.Second)
	assert.Less(t, capped, 2*time.Second+2*time.Second/4)
}

func TestCanceledContextStopsRetrying(t *testing.T) {
	p := &fakeProvider{failErr: networkErr("AAPL")}
	c, _, _ := makeClient(p, Config{MaxRetries: 5, InitialBackoff: time.Millisecond, MaxBackoff: time.Second, Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.GetOptionChainWithRetry(ctx, "AAPL")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&p.callCount))
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit kind", &models.ProviderError{Kind: models.ProviderRateLimit, Err: models.ErrRateLimited}, true},
		{"network kind", networkErr("X"), true},
		{"malformed kind", &models.ProviderError{Kind: models.ProviderMalformed, Err: errors.New("bad json")}, false},
		{"empty chain kind", &models.ProviderError{Kind: models.ProviderEmptyChain, Err: models.ErrEmptyChain}, false},
		{"open breaker", gobreaker.ErrOpenState, true},
		{"canceled", context.Canceled, false},
		{"503 text", errors.New("HTTP 503 service unavailable"), true},
		{"permanent text", errors.New("invalid symbol"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
