// Command scanner screens option chains for poor man's covered call and put
// setups, either live against the market data provider or from stored chains.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/eddiefleurent/pmcc_scanner/internal/config"
	"github.com/eddiefleurent/pmcc_scanner/internal/metrics"
	"github.com/eddiefleurent/pmcc_scanner/internal/mock"
	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/eddiefleurent/pmcc_scanner/internal/provider"
	"github.com/eddiefleurent/pmcc_scanner/internal/screener"
	"github.com/eddiefleurent/pmcc_scanner/internal/storage"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	filterID   int64
	jsonOutput bool
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "scanner",
		Short: "PMCC/PMCP diagonal spread scanner",
		Long: `Scanner finds poor man's covered call and covered put setups by pairing a
deep in-the-money long-dated option with a short-dated out-of-the-money option.

Examples:
  scanner scan AAPL MSFT NVDA
  scanner scan --filter 3 --json SPY
  scanner snapshot AAPL
  scanner screen AAPL --price 187.5
  scanner filters list
  scanner serve`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	root.PersistentFlags().Int64Var(&filterID, "filter", 0, "Filter criteria ID (default: the active filter)")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	root.AddCommand(newScanCommand())
	root.AddCommand(newScreenCommand())
	root.AddCommand(newSnapshotCommand())
	root.AddCommand(newServeCommand())
	root.AddCommand(newFiltersCommand())

	return root
}

// app holds the collaborators shared by every command.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	provider provider.Provider
	store    storage.Interface
	registry *prometheus.Registry
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	logger := cfg.NewLogger()

	p, err := newProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewStorage(ctx, cfg.Storage.Driver, cfg.StorageTarget())
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		provider: p,
		store:    store,
		registry: metrics.NewRegistry(),
	}, nil
}

// loadConfig falls back to the defaults when the default config file is absent.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		if apiKey := os.Getenv("ALPHAVANTAGE_API_KEY"); apiKey != "" {
			cfg.Provider.Name = config.ProviderAlphaVantage
			cfg.Provider.APIKey = apiKey
		}
		return cfg, cfg.Validate()
	}
	return nil, err
}

func newProvider(cfg *config.Config, logger logrus.FieldLogger) (provider.Provider, error) {
	var p provider.Provider
	switch cfg.Provider.Name {
	case config.ProviderMock:
		p = mock.NewDataProvider(cfg.Provider.MockSeed)
	case config.ProviderAlphaVantage:
		limiter := provider.NewRateLimiter(cfg.Provider.CallsPerMinute)
		p = provider.NewAlphaVantageAPI(cfg.Provider.APIKey, cfg.Provider.BaseURL, limiter, logger)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}

	if cfg.Provider.CircuitBreaker.Enabled {
		p = provider.NewCircuitBreakerProviderWithSettings(p, cfg.CircuitBreakerSettings())
	}
	return p, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close storage")
	}
}

func (a *app) scanner() *screener.Scanner {
	return screener.NewScanner(a.provider, a.logger, a.cfg.ScannerConfig())
}

func (a *app) screener() *screener.Screener {
	return screener.NewScreener(a.store, a.logger).WithPerLongLimit(a.cfg.Scan.PerLongLimit)
}

// criteria resolves --filter, or the active filter when it is unset.
func (a *app) criteria(ctx context.Context) (*models.FilterCriteria, error) {
	if filterID > 0 {
		return a.store.Get(ctx, filterID)
	}
	return storage.ActiveOrDefault(ctx, a.store)
}
