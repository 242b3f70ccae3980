// Package mock provides a deterministic synthetic market data provider for
// demos and tests that should not call a real vendor.
package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/eddiefleurent/pmcc_scanner/internal/provider"
	"github.com/eddiefleurent/pmcc_scanner/internal/screener"
	"github.com/eddiefleurent/pmcc_scanner/internal/util"
)

const (
	priceTick      = 0.05
	riskFreeRate   = 0.045
	minOptionPrice = 0.05
)

// Expiration offsets in days: weeklies near term, then monthlies and LEAPS.
var expirationOffsets = []int{7, 14, 21, 30, 37, 44, 51, 60, 90, 120, 180, 240, 365, 450, 545, 730}

// DataProvider generates a stable chain per symbol: the same symbol, seed and
// day always produce the same quote and contracts. Prices are Black-Scholes
// values rounded to the nickel, with a volatility skew and liquidity that
// thins out away from the money.
type DataProvider struct {
	mu     sync.RWMutex
	seed   uint64
	now    func() time.Time
	prices map[string]float64
	errs   map[string]error
}

var _ provider.Provider = (*DataProvider)(nil)

// NewDataProvider creates a synthetic provider with the given seed.
func NewDataProvider(seed uint64) *DataProvider {
	return &DataProvider{
		seed:   seed,
		now:    time.Now,
		prices: make(map[string]float64),
		errs:   make(map[string]error),
	}
}

// WithClock overrides the clock that anchors expirations.
func (m *DataProvider) WithClock(now func() time.Time) *DataProvider {
	m.now = now
	return m
}

// SetPrice pins symbol's underlying price.
func (m *DataProvider) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[normalize(symbol)] = price
}

// SetError makes every call for symbol fail with err.
func (m *DataProvider) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[normalize(symbol)] = err
}

// GetLastPrice returns the symbol's synthetic last price.
func (m *DataProvider) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &models.ProviderError{Symbol: symbol, Op: "price", Kind: models.ProviderNetwork, Err: err}
	}
	symbol = normalize(symbol)
	if err := m.failure(symbol); err != nil {
		return 0, err
	}
	return m.price(symbol), nil
}

// GetOptionChain returns calls and puts for every synthetic expiration.
func (m *DataProvider) GetOptionChain(ctx context.Context, symbol string) ([]models.OptionContract, error) {
	if err := ctx.Err(); err != nil {
		return nil, &models.ProviderError{Symbol: symbol, Op: "chain", Kind: models.ProviderNetwork, Err: err}
	}
	symbol = normalize(symbol)
	if err := m.failure(symbol); err != nil {
		return nil, err
	}

	spot := m.price(symbol)
	rng := m.rng(symbol, 1)
	baseVol := 0.20 + rng.Float64()*0.30
	today := models.DateOf(m.now())

	interval := util.StrikeInterval(spot)
	low := util.FloorToTick(spot*0.4, interval)
	high := util.CeilToTick(spot*1.6, interval)

	var chain []models.OptionContract
	for _, offset := range expirationOffsets {
		expiration := today.AddDate(0, 0, offset)
		t := float64(offset) / 365.0
		for strike := low; strike <= high+interval/2; strike += interval {
			strike = util.RoundToTick(strike, interval)
			if strike <= 0 {
				continue
			}
			moneyness := math.Log(strike / spot)
			vol := baseVol * (1 - 0.4*moneyness + 0.8*moneyness*moneyness)
			liquidity := math.Exp(-8 * moneyness * moneyness)

			for _, optionType := range []models.OptionType{models.OptionTypeCall, models.OptionTypePut} {
				theo, delta := blackScholes(spot, strike, t, vol, optionType)
				spread := math.Max(priceTick, util.RoundToTick(theo*0.02, priceTick))
				bid := math.Max(0, util.FloorToTick(theo-spread/2, priceTick))
				ask := math.Max(minOptionPrice, util.CeilToTick(theo+spread/2, priceTick))

				chain = append(chain, models.OptionContract{
					Symbol:       symbol,
					ContractID:   occSymbol(symbol, expiration, optionType, strike),
					Type:         optionType,
					Expiration:   expiration,
					Strike:       strike,
					Bid:          bid,
					Ask:          ask,
					Mark:         util.RoundToTick((bid+ask)/2, 0.01),
					OpenInterest: int64(liquidity * float64(200+rng.IntN(5000))),
					Volume:       int64(liquidity * float64(20+rng.IntN(800))),
					Greeks:       &models.Greeks{Delta: delta, ImpliedVolatility: vol},
				})
			}
		}
	}
	return chain, nil
}

func (m *DataProvider) failure(symbol string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errs[symbol]
}

func (m *DataProvider) price(symbol string) float64 {
	m.mu.RLock()
	p, ok := m.prices[symbol]
	m.mu.RUnlock()
	if ok {
		return p
	}
	rng := m.rng(symbol, 0)
	return util.RoundToTick(20+rng.Float64()*480, 0.01)
}

// rng is seeded from the provider seed, the symbol and the calendar day so a
// chain is stable within a day.
func (m *DataProvider) rng(symbol string, stream uint64) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	day := uint64(models.DateOf(m.now()).Unix() / 86400)
	return rand.New(rand.NewPCG(m.seed^h.Sum64(), day<<8|stream))
}

// blackScholes returns the theoretical price and delta of a European option.
func blackScholes(s, k, t, sigma float64, optionType models.OptionType) (float64, float64) {
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s/k) + (riskFreeRate+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	discount := math.Exp(-riskFreeRate * t)

	if optionType == models.OptionTypePut {
		price := k*discount*screener.NormCDF(-d2) - s*screener.NormCDF(-d1)
		return price, screener.NormCDF(d1) - 1
	}
	price := s*screener.NormCDF(d1) - k*discount*screener.NormCDF(d2)
	return price, screener.NormCDF(d1)
}

// occSymbol formats an OCC-style contract identifier, e.g. AAPL270115C00150000.
func occSymbol(symbol string, expiration time.Time, optionType models.OptionType, strike float64) string {
	cp := "C"
	if optionType == models.OptionTypePut {
		cp = "P"
	}
	return fmt.Sprintf("%s%s%s%08d", symbol, expiration.Format("060102"), cp, int(math.Round(strike*1000)))
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
