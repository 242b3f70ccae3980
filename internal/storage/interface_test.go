package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInterface runs the shared contract against every backend.
func TestInterface(t *testing.T) {
	t.Run("MockStorage", func(t *testing.T) {
		testInterface(t, NewMockStorage())
	})

	t.Run("JSONStorage", func(t *testing.T) {
		store, err := NewJSONStorage(filepath.Join(t.TempDir(), "filters.json"))
		require.NoError(t, err)
		testInterface(t, store)
	})

	t.Run("PostgresStorage", func(t *testing.T) {
		url := os.Getenv("PMCC_TEST_DATABASE_URL")
		if url == "" {
			t.Skip("PMCC_TEST_DATABASE_URL not set")
		}
		store, err := NewPostgresStorage(context.Background(), url)
		require.NoError(t, err)
		t.Cleanup(func() {
			_, _ = store.db.Exec(`DELETE FROM filter_criteria; DELETE FROM options`)
			_ = store.Close()
		})
		_, err = store.db.Exec(`DELETE FROM filter_criteria; DELETE FROM options`)
		require.NoError(t, err)
		testInterface(t, store)
	})
}

func testInterface(t *testing.T, store Interface) {
	ctx := context.Background()

	_, err := store.Active(ctx)
	assert.ErrorIs(t, err, ErrNoActiveFilter)

	// Seeding
	active, err := ActiveOrDefault(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "Default PMCC Filter", active.Name)
	assert.True(t, active.IsActive)
	assert.NotZero(t, active.ID)
	assert.InDelta(t, 0.70, active.LongMinDelta, 1e-9)
	assert.InDelta(t, 0.045, active.RiskFreeRate, 1e-9)

	again, err := ActiveOrDefault(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, active.ID, again.ID, "seeding happens once")

	// Create and update
	custom := models.DefaultFilterCriteria()
	custom.Name = "Wide PMCP"
	custom.Strategy = models.StrategyPMCP
	custom.ShortMaxOTMPct = 25
	require.NoError(t, store.Save(ctx, &custom))
	require.NotZero(t, custom.ID)
	assert.NotEqual(t, active.ID, custom.ID)
	assert.False(t, custom.IsActive)

	custom.MaxTrades = 12
	require.NoError(t, store.Save(ctx, &custom))
	got, err := store.Get(ctx, custom.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.MaxTrades)
	assert.Equal(t, models.StrategyPMCP, got.Strategy)
	assert.InDelta(t, 25.0, got.ShortMaxOTMPct, 1e-9)

	invalid := models.DefaultFilterCriteria()
	invalid.Strategy = "Iron Condor"
	assert.True(t, models.IsValidationError(store.Save(ctx, &invalid)))

	missing := models.DefaultFilterCriteria()
	missing.ID = 9999
	assert.ErrorIs(t, store.Save(ctx, &missing), ErrFilterNotFound)

	// Activation is exclusive
	require.NoError(t, store.Activate(ctx, custom.ID))
	active, err = store.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, custom.ID, active.ID)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	activeCount := 0
	for _, f := range list {
		if f.IsActive {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
	assert.Less(t, list[0].ID, list[1].ID)

	assert.ErrorIs(t, store.Activate(ctx, 9999), ErrFilterNotFound)

	// Soft delete
	require.NoError(t, store.Delete(ctx, custom.ID))
	_, err = store.Get(ctx, custom.ID)
	assert.ErrorIs(t, err, ErrFilterNotFound)
	assert.ErrorIs(t, store.Delete(ctx, custom.ID), ErrFilterNotFound)
	assert.ErrorIs(t, store.Activate(ctx, custom.ID), ErrFilterNotFound)
	_, err = store.Active(ctx)
	assert.ErrorIs(t, err, ErrNoActiveFilter)

	list, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	// Option snapshots
	today := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	delta := &models.Greeks{Delta: 0.8, ImpliedVolatility: 0.28}
	contracts := []models.OptionContract{
		{Symbol: "AAPL", ContractID: "AAPL270115C00150000", Type: models.OptionTypeCall, Expiration: today.AddDate(0, 10, 0), Strike: 150, Bid: 55.1, Ask: 55.9, Mark: 55.5, OpenInterest: 120, Volume: 30, Greeks: delta},
		{Symbol: "AAPL", ContractID: "AAPL260302C00200000", Type: models.OptionTypeCall, Expiration: today, Strike: 200, Bid: 1.1, Ask: 1.2, Mark: 1.15, OpenInterest: 500, Volume: 90},
		{Symbol: "AAPL", ContractID: "AAPL260227C00200000", Type: models.OptionTypeCall, Expiration: today.AddDate(0, 0, -3), Strike: 200, Bid: 0.1, Ask: 0.2},
		{Symbol: "AAPL", ContractID: "AAPL260417P00180000", Type: models.OptionTypePut, Expiration: today.AddDate(0, 1, 15), Strike: 180, Bid: 2, Ask: 2.2},
	}
	require.NoError(t, store.SaveOptions(ctx, "aapl", contracts))

	calls, err := store.Options(ctx, "AAPL", models.OptionTypeCall, today)
	require.NoError(t, err)
	require.Len(t, calls, 2, "expired contracts and puts are excluded")
	assert.Equal(t, "AAPL260302C00200000", calls[0].ContractID, "nearest expiration first")
	assert.Equal(t, "AAPL270115C00150000", calls[1].ContractID)
	var withGreeks models.OptionContract
	for _, c := range calls {
		if c.ContractID == "AAPL270115C00150000" {
			withGreeks = c
		}
	}
	assert.InDelta(t, 0.8, withGreeks.Delta(), 1e-9)
	assert.InDelta(t, 55.9, withGreeks.Ask, 1e-9)

	puts, err := store.Options(ctx, "AAPL", models.OptionTypePut, today)
	require.NoError(t, err)
	assert.Len(t, puts, 1)

	require.NoError(t, store.SaveOptions(ctx, "AAPL", contracts[:1]))
	calls, err = store.Options(ctx, "AAPL", models.OptionTypeCall, today)
	require.NoError(t, err)
	assert.Len(t, calls, 1, "snapshots replace earlier ones")

	none, err := store.Options(ctx, "MSFT", models.OptionTypeCall, today)
	require.NoError(t, err)
	assert.Empty(t, none)

	// Snapshots come back ordered by expiration, then strike, whatever the
	// provider order was.
	far, near := today.AddDate(0, 0, 400), today.AddDate(0, 0, 40)
	scrambled := []models.OptionContract{
		{Symbol: "QQQ", ContractID: "far-90", Type: models.OptionTypeCall, Expiration: far, Strike: 90, Bid: 20, Ask: 21},
		{Symbol: "QQQ", ContractID: "near-110", Type: models.OptionTypeCall, Expiration: near, Strike: 110, Bid: 2, Ask: 2.1},
		{Symbol: "QQQ", ContractID: "far-70", Type: models.OptionTypeCall, Expiration: far, Strike: 70, Bid: 35, Ask: 36},
	}
	require.NoError(t, store.SaveOptions(ctx, "QQQ", scrambled))
	ordered, err := store.Options(ctx, "QQQ", models.OptionTypeCall, today)
	require.NoError(t, err)
	ids := make([]string, 0, len(ordered))
	for _, c := range ordered {
		ids = append(ids, c.ContractID)
	}
	assert.Equal(t, []string{"near-110", "far-70", "far-90"}, ids)
}

func TestJSONStorage_PersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "filters.json")

	store, err := NewJSONStorage(path)
	require.NoError(t, err)
	seeded, err := ActiveOrDefault(ctx, store)
	require.NoError(t, err)

	reopened, err := NewJSONStorage(path)
	require.NoError(t, err)
	active, err := reopened.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, active.ID)

	next := models.DefaultFilterCriteria()
	next.Name = "second"
	require.NoError(t, reopened.Save(ctx, &next))
	assert.Equal(t, seeded.ID+1, next.ID)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file is renamed away")
}

func TestJSONStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewJSONStorage(path)
	assert.Error(t, err)
}

func TestJSONStorage_FailedWriteRollsBack(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewJSONStorage(filepath.Join(dir, "missing", "filters.json"))
	require.NoError(t, err)

	c := models.DefaultFilterCriteria()
	require.Error(t, store.Save(ctx, &c))
	assert.Zero(t, c.ID, "caller keeps no ID for a filter that was never written")
	assert.True(t, c.CreatedAt.IsZero())

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMockStorage_InjectedErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	m := NewMockStorage()
	m.SaveError = boom
	c := models.DefaultFilterCriteria()
	assert.ErrorIs(t, m.Save(ctx, &c), boom)
	assert.Equal(t, 1, m.SaveCallCount())
	assert.Zero(t, c.ID)

	m.LoadError = boom
	_, err := ActiveOrDefault(ctx, m)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, m.LoadCallCount())
}
