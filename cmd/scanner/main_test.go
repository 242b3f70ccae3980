package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/config"
	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/eddiefleurent/pmcc_scanner/internal/provider"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig points the CLI at the mock provider and a temp JSON store.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "provider:\n  name: mock\n  mock_seed: 7\nstorage:\n  driver: json\n  path: " +
		filepath.Join(dir, "filters.json") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLI_ScanJSON(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "--json", "scan", "spy", "qqq")
	require.NoError(t, err, out)

	var result struct {
		ID               string               `json:"scan_id"`
		SymbolsProcessed int                  `json:"symbols_processed"`
		Opportunities    []models.Opportunity `json:"opportunities"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, 2, result.SymbolsProcessed)
	assert.LessOrEqual(t, len(result.Opportunities), models.DefaultFilterCriteria().MaxTrades)
}

func TestCLI_SnapshotThenScreen(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "snapshot", "AAPL")
	require.NoError(t, err, out)
	assert.Contains(t, out, "contracts saved")

	out, err = run(t, "--config", cfg, "--json", "screen", "AAPL", "--price", "150")
	require.NoError(t, err, out)
	var result struct {
		Symbol string                `json:"symbol"`
		Stats  models.RejectionStats `json:"rejection_stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "AAPL", result.Symbol)
	assert.Positive(t, result.Stats.TotalContracts)
}

func TestCLI_Filters(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "--config", cfg, "filters", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No filters saved.")

	c := models.DefaultFilterCriteria()
	c.Name = "Wide"
	raw, err := json.Marshal(c)
	require.NoError(t, err)
	file := filepath.Join(t.TempDir(), "wide.json")
	require.NoError(t, os.WriteFile(file, raw, 0600))

	out, err = run(t, "--config", cfg, "filters", "add", file)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Saved filter 1 (Wide)")

	out, err = run(t, "--config", cfg, "filters", "activate", "1")
	require.NoError(t, err, out)

	out, err = run(t, "--config", cfg, "filters", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Wide")
	assert.Contains(t, out, "*")

	_, err = run(t, "--config", cfg, "filters", "activate", "99")
	assert.Error(t, err)
	_, err = run(t, "--config", cfg, "filters", "activate", "x")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing default file falls back to defaults", func(t *testing.T) {
		t.Setenv("ALPHAVANTAGE_API_KEY", "")
		cfg, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"), false)
		require.NoError(t, err)
		assert.Equal(t, config.ProviderMock, cfg.Provider.Name)
	})

	t.Run("api key in environment selects alphavantage", func(t *testing.T) {
		t.Setenv("ALPHAVANTAGE_API_KEY", "demo")
		cfg, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"), false)
		require.NoError(t, err)
		assert.Equal(t, config.ProviderAlphaVantage, cfg.Provider.Name)
		assert.Equal(t, "demo", cfg.Provider.APIKey)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"), true)
		assert.Error(t, err)
	})
}

func TestNewProvider(t *testing.T) {
	logger, _ := test.NewNullLogger()

	cfg := config.Default()
	p, err := newProvider(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &provider.CircuitBreakerProvider{}, p)

	cfg.Provider.CircuitBreaker.Enabled = false
	cfg.Provider.Name = config.ProviderAlphaVantage
	cfg.Provider.APIKey = "demo"
	p, err = newProvider(cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, &provider.AlphaVantageAPI{}, p)

	cfg.Provider.Name = "bloomberg"
	_, err = newProvider(cfg, logger)
	assert.Error(t, err)
}

func TestPrintOpportunities(t *testing.T) {
	exp := time.Date(2027, time.January, 15, 0, 0, 0, 0, time.UTC)
	opps := []models.Opportunity{{
		Symbol:          "AAPL",
		UnderlyingPrice: 1234.5,
		Long:            models.OptionContract{Type: models.OptionTypeCall, Strike: 70, Expiration: exp},
		Short:           models.OptionContract{Type: models.OptionTypeCall, Strike: 110.5, Expiration: exp},
		LongDTE:         365,
		ShortDTE:        45,
		NetDebit:        2900,
		NetDebitPct:     29,
		ROCPct:          10.34,
		POPPct:          80.1,
		Breakeven:       99,
		PositionDelta:   0.5,
	}}

	var buf bytes.Buffer
	printOpportunities(&buf, opps)
	out := buf.String()
	assert.Contains(t, out, "$1,234.5")
	assert.Contains(t, out, "$2,900")
	assert.Contains(t, out, "2027-01-15 70C (365d)")
	assert.Contains(t, out, "110.5C (45d)")
	assert.Contains(t, out, "10.34")

	buf.Reset()
	printOpportunities(&buf, nil)
	assert.Equal(t, "No opportunities found.\n", buf.String())
}

func TestPrintRejections(t *testing.T) {
	stats := &models.RejectionStats{}
	stats.Long.Delta = 1200
	stats.Match.NetDebit = 3

	var buf bytes.Buffer
	printRejections(&buf, stats)
	out := buf.String()
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "net_debit")
	assert.False(t, strings.Contains(out, "volume"))
}
