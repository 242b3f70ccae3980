package screener

import (
	"testing"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLivePipeline_Scenario(t *testing.T) {
	opps, err := LivePipeline().Run("TEST", scenarioChain(), 100, defaultCriteria(), testToday, nil)
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.InDelta(t, 2900.0, opp.NetDebit, 1e-9)
	assert.InDelta(t, 29.0, opp.NetDebitPct, 1e-9)
	assert.InDelta(t, 10.34, opp.ROCPct, 0.01)
	assert.InDelta(t, 99.0, opp.Breakeven, 1e-9)
	assert.Equal(t, 70.0, opp.Long.Strike)
	assert.Equal(t, 110.0, opp.Short.Strike)
}

func TestLivePipeline_Deterministic(t *testing.T) {
	chain := gridChain()
	chain = append(chain, scenarioChain()...)
	c := defaultCriteria()

	first, err := LivePipeline().Run("TEST", chain, 100, c, testToday, nil)
	require.NoError(t, err)
	second, err := LivePipeline().Run("TEST", chain, 100, c, testToday, nil)
	require.NoError(t, err)

	assert.Equal(t, Rank(first, 0), Rank(second, 0))
}

func TestStorePipeline_PerLongCapAndStats(t *testing.T) {
	chain := []models.OptionContract{
		contract(models.OptionTypeCall, 70, 365, 0.85, 31, 32),
		contract(models.OptionTypeCall, 95, 365, 0.60, 9, 10), // delta floor
	}
	for i, strike := range []float64{104, 106, 108, 110, 112, 114, 116} {
		chain = append(chain, contract(models.OptionTypeCall, strike, 40, 0.4-0.03*float64(i), 4-0.4*float64(i), 4.2))
	}
	chain = append(chain, contract(models.OptionTypeCall, 150, 40, 0.05, 0.1, 0.2)) // OTM band

	c := defaultCriteria()
	c.MaxTrades = 0
	var stats models.RejectionStats
	opps, err := StorePipeline().Run("TEST", chain, 100, c, testToday, &stats)
	require.NoError(t, err)

	require.Len(t, opps, DefaultPerLongLimit)
	for i := 1; i < len(opps); i++ {
		assert.GreaterOrEqual(t, opps[i-1].ROCPct, opps[i].ROCPct)
	}
	assert.Equal(t, 104.0, opps[0].Short.Strike)
	assert.InDelta(t, 100*(1-0.4), opps[0].POPPct, 1e-9)

	assert.Equal(t, 1, stats.Long.Delta)
	// Every 40 DTE short falls outside the long window; every long outside the short one.
	assert.Equal(t, 8, stats.Long.Days)
	assert.Equal(t, 2, stats.Short.Days)
	assert.Equal(t, 1, stats.Short.OTM)
	assert.Zero(t, stats.Match.NetDebit)
	assert.Zero(t, stats.Match.Structure)
}

func TestStorePipeline_PutsYieldNoPairs(t *testing.T) {
	chain := []models.OptionContract{
		contract(models.OptionTypePut, 130, 365, -0.8, 31, 32),
		contract(models.OptionTypePut, 90, 40, -0.3, 3, 3.2),
	}
	c := defaultCriteria()
	c.Strategy = models.StrategyPMCP

	var stats models.RejectionStats
	opps, err := StorePipeline().Run("TEST", chain, 100, c, testToday, &stats)
	require.NoError(t, err)
	assert.Empty(t, opps)
	assert.Equal(t, 1, stats.Match.Structure)
}

func TestLivePipeline_Puts(t *testing.T) {
	chain := []models.OptionContract{
		contract(models.OptionTypePut, 130, 365, -0.8, 31, 32),
		contract(models.OptionTypePut, 90, 40, -0.3, 3, 3.2),
	}
	c := defaultCriteria()
	c.Strategy = models.StrategyPMCP

	opps, err := LivePipeline().Run("TEST", chain, 100, c, testToday, nil)
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.InDelta(t, 101.0, opps[0].Breakeven, 1e-9)
	assert.InDelta(t, -1.1, opps[0].PositionDelta, 1e-12)
}
