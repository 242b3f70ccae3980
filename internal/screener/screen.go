package screener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/metrics"
	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// OptionSource is the persistent option store queried by the store-backed path.
type OptionSource interface {
	// Options returns contracts of optionType for symbol expiring on or after asOf.
	Options(ctx context.Context, symbol string, optionType models.OptionType, asOf time.Time) ([]models.OptionContract, error)
}

// ScreenResult is the output of a single-symbol store-backed screen.
type ScreenResult struct {
	ID            string                `json:"screen_id"`
	Symbol        string                `json:"symbol"`
	Price         float64               `json:"underlying_price"`
	Strategy      models.Strategy       `json:"type_of_trade"`
	Opportunities []models.Opportunity  `json:"opportunities"`
	Stats         models.RejectionStats `json:"rejection_stats"`
}

// Screener runs the store-backed path for one symbol with StorePipeline and
// reports per-stage rejection counts.
type Screener struct {
	source   OptionSource
	logger   logrus.FieldLogger
	pipeline Pipeline
	now      func() time.Time
}

// NewScreener creates a Screener over source. source may be nil when only
// ScreenContracts is used.
func NewScreener(source OptionSource, logger logrus.FieldLogger) *Screener {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Screener{
		source:   source,
		logger:   logger,
		pipeline: StorePipeline(),
		now:      time.Now,
	}
}

// WithClock overrides the clock used for the expiration cutoff and DTE.
func (s *Screener) WithClock(now func() time.Time) *Screener {
	s.now = now
	return s
}

// WithPOPModel selects the probability model used for opportunities.
func (s *Screener) WithPOPModel(m POPModel) *Screener {
	s.pipeline.POP = m
	return s
}

// WithPerLongLimit changes the per-long cap; n <= 0 disables it.
func (s *Screener) WithPerLongLimit(n int) *Screener {
	s.pipeline.PerLongLimit = n
	return s
}

// Screen loads symbol's unexpired contracts from the store and screens them.
// Unlike the live scan there is no batch to continue, so store failures are
// returned to the caller.
func (s *Screener) Screen(ctx context.Context, symbol string, price float64, c *models.FilterCriteria) (*ScreenResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := validatePrice(price); err != nil {
		return nil, err
	}
	if s.source == nil {
		return nil, fmt.Errorf("screen %s: no option store configured", symbol)
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	today := models.DateOf(s.now())
	contracts, err := s.source.Options(ctx, symbol, c.Strategy.OptionType(), today)
	if err != nil {
		return nil, fmt.Errorf("load options for %s: %w", symbol, err)
	}
	return s.screen(symbol, price, c, contracts, today)
}

// ScreenContracts screens an in-memory contract set, keeping only contracts of
// the strategy's option type that have not expired.
func (s *Screener) ScreenContracts(symbol string, price float64, c *models.FilterCriteria, contracts []models.OptionContract) (*ScreenResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := validatePrice(price); err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	today := models.DateOf(s.now())
	optionType := c.Strategy.OptionType()
	kept := make([]models.OptionContract, 0, len(contracts))
	for _, opt := range contracts {
		if opt.Type == optionType && !models.DateOf(opt.Expiration).Before(today) {
			kept = append(kept, opt)
		}
	}
	return s.screen(symbol, price, c, kept, today)
}

func (s *Screener) screen(symbol string, price float64, c *models.FilterCriteria, contracts []models.OptionContract, today time.Time) (*ScreenResult, error) {
	result := &ScreenResult{
		ID:            uuid.NewString(),
		Symbol:        symbol,
		Price:         price,
		Strategy:      c.Strategy,
		Opportunities: []models.Opportunity{},
	}
	result.Stats.TotalContracts = len(contracts)

	opps, err := s.pipeline.Run(symbol, contracts, price, c, today, &result.Stats)
	if err != nil {
		return nil, err
	}
	result.Opportunities = append(result.Opportunities, Rank(opps, c.MaxTrades)...)

	metrics.ObserveScreen(len(result.Opportunities), &result.Stats)
	s.logger.WithFields(logrus.Fields{
		"screen_id":     result.ID,
		"symbol":        symbol,
		"contracts":     len(contracts),
		"opportunities": len(result.Opportunities),
		"rejections":    result.Stats,
	}).Info("Screen complete")
	return result, nil
}
