package screener

import (
	"context"
	"strings"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/metrics"
	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/eddiefleurent/pmcc_scanner/internal/provider"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Default per-call timeouts for the live scan.
const (
	DefaultPriceTimeout = 10 * time.Second
	DefaultChainTimeout = 30 * time.Second
)

// ScannerConfig tunes a Scanner. Zero values take the defaults.
type ScannerConfig struct {
	PriceTimeout        time.Duration
	ChainTimeout        time.Duration
	Concurrency         int // symbols processed at once; 1 keeps the scan sequential
	LongCandidateLimit  int
	ShortCandidateLimit int
}

// ScanResult is the output of a live scan. Opportunities are globally ranked;
// Errors holds one entry per failed symbol, in input order.
type ScanResult struct {
	ID               string               `json:"scan_id"`
	Strategy         models.Strategy      `json:"type_of_trade"`
	Opportunities    []models.Opportunity `json:"opportunities"`
	Errors           []models.SymbolError `json:"errors"`
	SymbolsProcessed int                  `json:"symbols_processed"`
	StartedAt        time.Time            `json:"started_at"`
	Duration         time.Duration        `json:"duration_ns"`
}

// Scanner runs the live path: provider quotes and chains for a batch of
// symbols, screened with LivePipeline and ranked once across the batch.
type Scanner struct {
	provider provider.Provider
	logger   logrus.FieldLogger
	pipeline Pipeline
	cfg      ScannerConfig
	now      func() time.Time
}

// NewScanner creates a Scanner over p.
func NewScanner(p provider.Provider, logger logrus.FieldLogger, cfg ScannerConfig) *Scanner {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = DefaultPriceTimeout
	}
	if cfg.ChainTimeout <= 0 {
		cfg.ChainTimeout = DefaultChainTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	pipeline := LivePipeline()
	if cfg.LongCandidateLimit > 0 {
		pipeline.Match.MaxLongs = cfg.LongCandidateLimit
	}
	if cfg.ShortCandidateLimit > 0 {
		pipeline.Match.MaxShorts = cfg.ShortCandidateLimit
	}

	return &Scanner{
		provider: p,
		logger:   logger,
		pipeline: pipeline,
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithClock overrides the clock used to compute DTE.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

type symbolOutcome struct {
	opps []models.Opportunity
	err  error
}

// Scan screens every symbol with c. Invalid criteria fail the whole call with a
// *models.ValidationError; any per-symbol failure is recorded in the result's
// Errors and never aborts the batch.
func (s *Scanner) Scan(ctx context.Context, symbols []string, c *models.FilterCriteria) (*ScanResult, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	started := s.now()
	today := models.DateOf(started)
	symbols = normalizeSymbols(symbols)
	id := uuid.NewString()
	logger := s.logger.WithFields(logrus.Fields{
		"scan_id":  id,
		"symbols":  len(symbols),
		"strategy": c.Strategy,
	})
	logger.Info("Starting scan")

	outcomes := make([]symbolOutcome, len(symbols))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, symbol := range symbols {
		g.Go(func() error {
			opps, err := s.scanSymbol(ctx, symbol, c, today)
			outcomes[i] = symbolOutcome{opps: opps, err: err}
			return nil
		})
	}
	_ = g.Wait()

	result := &ScanResult{
		ID:               id,
		Strategy:         c.Strategy,
		Opportunities:    []models.Opportunity{},
		Errors:           []models.SymbolError{},
		SymbolsProcessed: len(symbols),
		StartedAt:        started,
	}
	for i, o := range outcomes {
		if o.err != nil {
			logger.WithError(o.err).WithField("symbol", symbols[i]).Warn("Symbol failed")
			result.Errors = append(result.Errors, models.SymbolError{
				Symbol:  symbols[i],
				Message: o.err.Error(),
				Err:     o.err,
			})
			continue
		}
		result.Opportunities = append(result.Opportunities, o.opps...)
	}
	result.Opportunities = Rank(result.Opportunities, c.MaxTrades)
	result.Duration = s.now().Sub(started)

	metrics.ObserveScan(len(result.Opportunities), result.Errors)
	logger.WithFields(logrus.Fields{
		"opportunities": len(result.Opportunities),
		"errors":        len(result.Errors),
	}).Info("Scan complete")
	return result, nil
}

func (s *Scanner) scanSymbol(ctx context.Context, symbol string, c *models.FilterCriteria, today time.Time) ([]models.Opportunity, error) {
	price, err := s.lastPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if price <= 0 {
		return nil, models.NewValidationError("underlying_price", "must be positive")
	}

	chain, err := s.optionChain(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, &models.ProviderError{Symbol: symbol, Op: "chain", Kind: models.ProviderEmptyChain, Err: models.ErrEmptyChain}
	}

	opps, err := s.pipeline.Run(symbol, chain, price, c, today, nil)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"symbol":        symbol,
		"price":         price,
		"contracts":     len(chain),
		"opportunities": len(opps),
	}).Debug("Symbol screened")
	return opps, nil
}

func (s *Scanner) lastPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PriceTimeout)
	defer cancel()
	return s.provider.GetLastPrice(ctx, symbol)
}

func (s *Scanner) optionChain(ctx context.Context, symbol string) ([]models.OptionContract, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ChainTimeout)
	defer cancel()
	return s.provider.GetOptionChain(ctx, symbol)
}

// normalizeSymbols upper-cases and trims symbols, dropping blanks.
func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" {
			out = append(out, sym)
		}
	}
	return out
}
