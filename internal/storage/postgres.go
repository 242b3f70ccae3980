package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/shopspring/decimal"
)

// schema is applied by Migrate. The partial unique index keeps at most one
// filter active.
const schema = `
CREATE TABLE IF NOT EXISTS filter_criteria (
	id                      BIGSERIAL PRIMARY KEY,
	filter_criteria_name    TEXT NOT NULL,
	leaps_min_days          INTEGER NOT NULL,
	leaps_max_days          INTEGER NOT NULL,
	leaps_min_delta         NUMERIC(6,4) NOT NULL,
	leaps_min_itm_percent   NUMERIC(8,4) NOT NULL,
	leaps_max_itm_percent   NUMERIC(8,4) NOT NULL,
	short_min_days          INTEGER NOT NULL,
	short_max_days          INTEGER NOT NULL,
	short_min_otm_percent   NUMERIC(8,4) NOT NULL,
	short_max_otm_percent   NUMERIC(8,4) NOT NULL,
	leaps_open_interest_min BIGINT NOT NULL,
	short_open_interest_min BIGINT NOT NULL,
	leaps_volume_min        BIGINT NOT NULL,
	short_volume_min        BIGINT NOT NULL,
	max_net_debit_pct       NUMERIC(8,4) NOT NULL,
	max_trades              INTEGER NOT NULL,
	risk_free_rate          NUMERIC(8,6) NOT NULL,
	type_of_trade           TEXT NOT NULL,
	is_active               BOOLEAN NOT NULL DEFAULT FALSE,
	is_deprecated           BOOLEAN NOT NULL DEFAULT FALSE,
	last_accessed_timestamp TIMESTAMPTZ,
	date_created            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	date_modified           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS filter_criteria_one_active
	ON filter_criteria (is_active) WHERE is_active;

CREATE TABLE IF NOT EXISTS options (
	symbol             TEXT NOT NULL,
	contract_id        TEXT NOT NULL,
	option_type        TEXT NOT NULL,
	expiration         DATE NOT NULL,
	strike             NUMERIC(12,4) NOT NULL,
	bid                NUMERIC(12,4) NOT NULL,
	ask                NUMERIC(12,4) NOT NULL,
	mark               NUMERIC(12,4) NOT NULL,
	delta              NUMERIC(8,6),
	implied_volatility NUMERIC(10,6),
	open_interest      BIGINT NOT NULL,
	volume             BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS options_symbol_type_expiration
	ON options (symbol, option_type, expiration);
`

const filterColumns = `id, filter_criteria_name,
	leaps_min_days, leaps_max_days, leaps_min_delta, leaps_min_itm_percent, leaps_max_itm_percent,
	short_min_days, short_max_days, short_min_otm_percent, short_max_otm_percent,
	leaps_open_interest_min, short_open_interest_min, leaps_volume_min, short_volume_min,
	max_net_debit_pct, max_trades, risk_free_rate, type_of_trade,
	is_active, is_deprecated, last_accessed_timestamp, date_created, date_modified`

// filterRow is the filter_criteria row; NUMERIC columns scan exactly into decimals.
type filterRow struct {
	ID                   int64           `db:"id"`
	Name                 string          `db:"filter_criteria_name"`
	LongMinDays          int             `db:"leaps_min_days"`
	LongMaxDays          int             `db:"leaps_max_days"`
	LongMinDelta         decimal.Decimal `db:"leaps_min_delta"`
	LongMinITMPct        decimal.Decimal `db:"leaps_min_itm_percent"`
	LongMaxITMPct        decimal.Decimal `db:"leaps_max_itm_percent"`
	ShortMinDays         int             `db:"short_min_days"`
	ShortMaxDays         int             `db:"short_max_days"`
	ShortMinOTMPct       decimal.Decimal `db:"short_min_otm_percent"`
	ShortMaxOTMPct       decimal.Decimal `db:"short_max_otm_percent"`
	LongMinOpenInterest  int64           `db:"leaps_open_interest_min"`
	ShortMinOpenInterest int64           `db:"short_open_interest_min"`
	LongMinVolume        int64           `db:"leaps_volume_min"`
	ShortMinVolume       int64           `db:"short_volume_min"`
	MaxNetDebitPct       decimal.Decimal `db:"max_net_debit_pct"`
	MaxTrades            int             `db:"max_trades"`
	RiskFreeRate         decimal.Decimal `db:"risk_free_rate"`
	Strategy             string          `db:"type_of_trade"`
	IsActive             bool            `db:"is_active"`
	IsDeprecated         bool            `db:"is_deprecated"`
	LastAccessedAt       sql.NullTime    `db:"last_accessed_timestamp"`
	CreatedAt            time.Time       `db:"date_created"`
	ModifiedAt           time.Time       `db:"date_modified"`
}

func newFilterRow(c *models.FilterCriteria) filterRow {
	return filterRow{
		ID:                   c.ID,
		Name:                 c.Name,
		LongMinDays:          c.LongMinDays,
		LongMaxDays:          c.LongMaxDays,
		LongMinDelta:         decimal.NewFromFloat(c.LongMinDelta),
		LongMinITMPct:        decimal.NewFromFloat(c.LongMinITMPct),
		LongMaxITMPct:        decimal.NewFromFloat(c.LongMaxITMPct),
		ShortMinDays:         c.ShortMinDays,
		ShortMaxDays:         c.ShortMaxDays,
		ShortMinOTMPct:       decimal.NewFromFloat(c.ShortMinOTMPct),
		ShortMaxOTMPct:       decimal.NewFromFloat(c.ShortMaxOTMPct),
		LongMinOpenInterest:  c.LongMinOpenInterest,
		ShortMinOpenInterest: c.ShortMinOpenInterest,
		LongMinVolume:        c.LongMinVolume,
		ShortMinVolume:       c.ShortMinVolume,
		MaxNetDebitPct:       decimal.NewFromFloat(c.MaxNetDebitPct),
		MaxTrades:            c.MaxTrades,
		RiskFreeRate:         decimal.NewFromFloat(c.RiskFreeRate),
		Strategy:             string(c.Strategy),
	}
}

func (r filterRow) toModel() models.FilterCriteria {
	c := models.FilterCriteria{
		ID:                   r.ID,
		Name:                 r.Name,
		LongMinDays:          r.LongMinDays,
		LongMaxDays:          r.LongMaxDays,
		LongMinDelta:         r.LongMinDelta.InexactFloat64(),
		LongMinITMPct:        r.LongMinITMPct.InexactFloat64(),
		LongMaxITMPct:        r.LongMaxITMPct.InexactFloat64(),
		ShortMinDays:         r.ShortMinDays,
		ShortMaxDays:         r.ShortMaxDays,
		ShortMinOTMPct:       r.ShortMinOTMPct.InexactFloat64(),
		ShortMaxOTMPct:       r.ShortMaxOTMPct.InexactFloat64(),
		LongMinOpenInterest:  r.LongMinOpenInterest,
		ShortMinOpenInterest: r.ShortMinOpenInterest,
		LongMinVolume:        r.LongMinVolume,
		ShortMinVolume:       r.ShortMinVolume,
		MaxNetDebitPct:       r.MaxNetDebitPct.InexactFloat64(),
		MaxTrades:            r.MaxTrades,
		RiskFreeRate:         r.RiskFreeRate.InexactFloat64(),
		Strategy:             models.Strategy(r.Strategy),
		IsActive:             r.IsActive,
		IsDeprecated:         r.IsDeprecated,
		CreatedAt:            r.CreatedAt,
		ModifiedAt:           r.ModifiedAt,
	}
	if r.LastAccessedAt.Valid {
		c.LastAccessedAt = r.LastAccessedAt.Time
	}
	return c
}

// optionRow is one stored contract; missing greeks are NULL.
type optionRow struct {
	Symbol            string              `db:"symbol"`
	ContractID        string              `db:"contract_id"`
	OptionType        string              `db:"option_type"`
	Expiration        time.Time           `db:"expiration"`
	Strike            decimal.Decimal     `db:"strike"`
	Bid               decimal.Decimal     `db:"bid"`
	Ask               decimal.Decimal     `db:"ask"`
	Mark              decimal.Decimal     `db:"mark"`
	Delta             decimal.NullDecimal `db:"delta"`
	ImpliedVolatility decimal.NullDecimal `db:"implied_volatility"`
	OpenInterest      int64               `db:"open_interest"`
	Volume            int64               `db:"volume"`
}

func newOptionRow(symbol string, c models.OptionContract) optionRow {
	row := optionRow{
		Symbol:       symbol,
		ContractID:   c.ContractID,
		OptionType:   string(c.Type),
		Expiration:   models.DateOf(c.Expiration),
		Strike:       decimal.NewFromFloat(c.Strike),
		Bid:          decimal.NewFromFloat(c.Bid),
		Ask:          decimal.NewFromFloat(c.Ask),
		Mark:         decimal.NewFromFloat(c.Mark),
		OpenInterest: c.OpenInterest,
		Volume:       c.Volume,
	}
	if c.Greeks != nil {
		row.Delta = decimal.NewNullDecimal(decimal.NewFromFloat(c.Greeks.Delta))
		row.ImpliedVolatility = decimal.NewNullDecimal(decimal.NewFromFloat(c.Greeks.ImpliedVolatility))
	}
	return row
}

func (r optionRow) toModel() models.OptionContract {
	c := models.OptionContract{
		Symbol:       r.Symbol,
		ContractID:   r.ContractID,
		Type:         models.OptionType(r.OptionType),
		Expiration:   models.DateOf(r.Expiration),
		Strike:       r.Strike.InexactFloat64(),
		Bid:          r.Bid.InexactFloat64(),
		Ask:          r.Ask.InexactFloat64(),
		Mark:         r.Mark.InexactFloat64(),
		OpenInterest: r.OpenInterest,
		Volume:       r.Volume,
	}
	if r.Delta.Valid || r.ImpliedVolatility.Valid {
		c.Greeks = &models.Greeks{
			Delta:             r.Delta.Decimal.InexactFloat64(),
			ImpliedVolatility: r.ImpliedVolatility.Decimal.InexactFloat64(),
		}
	}
	return c
}

// PostgresStorage implements Interface on PostgreSQL via sqlx.
type PostgresStorage struct {
	db *sqlx.DB
}

// NewPostgresStorage connects to url and applies the schema.
func NewPostgresStorage(ctx context.Context, url string) (*PostgresStorage, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s := NewPostgresStorageFromDB(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStorageFromDB wraps an open handle without migrating.
func NewPostgresStorageFromDB(db *sqlx.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// Migrate creates the tables and indexes when missing.
func (s *PostgresStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

// Active returns the active filter and records the access time.
func (s *PostgresStorage) Active(ctx context.Context) (*models.FilterCriteria, error) {
	query := `
		UPDATE filter_criteria
		SET last_accessed_timestamp = NOW()
		WHERE is_active AND NOT is_deprecated
		RETURNING ` + filterColumns

	var row filterRow
	err := s.db.GetContext(ctx, &row, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveFilter
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active filter: %w", err)
	}
	c := row.toModel()
	return &c, nil
}

// List returns every non-deprecated filter ordered by ID.
func (s *PostgresStorage) List(ctx context.Context) ([]models.FilterCriteria, error) {
	query := `SELECT ` + filterColumns + `
		FROM filter_criteria
		WHERE NOT is_deprecated
		ORDER BY id`

	var rows []filterRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list filters: %w", err)
	}
	out := make([]models.FilterCriteria, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// Get returns one non-deprecated filter.
func (s *PostgresStorage) Get(ctx context.Context, id int64) (*models.FilterCriteria, error) {
	query := `SELECT ` + filterColumns + `
		FROM filter_criteria
		WHERE id = $1 AND NOT is_deprecated`

	var row filterRow
	err := s.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("filter %d: %w", id, ErrFilterNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get filter %d: %w", id, err)
	}
	c := row.toModel()
	return &c, nil
}

// Save creates c when its ID is 0, otherwise updates it.
func (s *PostgresStorage) Save(ctx context.Context, c *models.FilterCriteria) error {
	if err := c.Validate(); err != nil {
		return err
	}
	row := newFilterRow(c)

	if c.ID == 0 {
		query := `
			INSERT INTO filter_criteria (
				filter_criteria_name,
				leaps_min_days, leaps_max_days, leaps_min_delta, leaps_min_itm_percent, leaps_max_itm_percent,
				short_min_days, short_max_days, short_min_otm_percent, short_max_otm_percent,
				leaps_open_interest_min, short_open_interest_min, leaps_volume_min, short_volume_min,
				max_net_debit_pct, max_trades, risk_free_rate, type_of_trade
			) VALUES (
				:filter_criteria_name,
				:leaps_min_days, :leaps_max_days, :leaps_min_delta, :leaps_min_itm_percent, :leaps_max_itm_percent,
				:short_min_days, :short_max_days, :short_min_otm_percent, :short_max_otm_percent,
				:leaps_open_interest_min, :short_open_interest_min, :leaps_volume_min, :short_volume_min,
				:max_net_debit_pct, :max_trades, :risk_free_rate, :type_of_trade
			) RETURNING ` + filterColumns

		stmt, err := s.db.PrepareNamedContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare filter insert: %w", err)
		}
		defer stmt.Close()

		var created filterRow
		if err := stmt.GetContext(ctx, &created, row); err != nil {
			return fmt.Errorf("failed to create filter: %w", err)
		}
		*c = created.toModel()
		return nil
	}

	query := `
		UPDATE filter_criteria SET
			filter_criteria_name = :filter_criteria_name,
			leaps_min_days = :leaps_min_days,
			leaps_max_days = :leaps_max_days,
			leaps_min_delta = :leaps_min_delta,
			leaps_min_itm_percent = :leaps_min_itm_percent,
			leaps_max_itm_percent = :leaps_max_itm_percent,
			short_min_days = :short_min_days,
			short_max_days = :short_max_days,
			short_min_otm_percent = :short_min_otm_percent,
			short_max_otm_percent = :short_max_otm_percent,
			leaps_open_interest_min = :leaps_open_interest_min,
			short_open_interest_min = :short_open_interest_min,
			leaps_volume_min = :leaps_volume_min,
			short_volume_min = :short_volume_min,
			max_net_debit_pct = :max_net_debit_pct,
			max_trades = :max_trades,
			risk_free_rate = :risk_free_rate,
			type_of_trade = :type_of_trade,
			date_modified = NOW()
		WHERE id = :id AND NOT is_deprecated`

	result, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("failed to update filter %d: %w", c.ID, err)
	}
	if err := expectOneRow(result, c.ID); err != nil {
		return err
	}

	updated, err := s.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	*c = *updated
	return nil
}

// Delete soft-deletes a filter.
func (s *PostgresStorage) Delete(ctx context.Context, id int64) error {
	query := `
		UPDATE filter_criteria
		SET is_deprecated = TRUE, is_active = FALSE, date_modified = NOW()
		WHERE id = $1 AND NOT is_deprecated`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete filter %d: %w", id, err)
	}
	return expectOneRow(result, id)
}

// Activate deactivates every other filter and activates id in one transaction.
func (s *PostgresStorage) Activate(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE filter_criteria
		SET is_active = FALSE, date_modified = NOW()
		WHERE is_active AND id <> $1`, id); err != nil {
		return fmt.Errorf("failed to deactivate filters: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE filter_criteria
		SET is_active = TRUE, date_modified = NOW()
		WHERE id = $1 AND NOT is_deprecated`, id)
	if err != nil {
		return fmt.Errorf("failed to activate filter %d: %w", id, err)
	}
	if err := expectOneRow(result, id); err != nil {
		return err
	}
	return tx.Commit()
}

// Options returns symbol's stored contracts of optionType expiring on or after asOf.
func (s *PostgresStorage) Options(ctx context.Context, symbol string, optionType models.OptionType, asOf time.Time) ([]models.OptionContract, error) {
	query := `
		SELECT symbol, contract_id, option_type, expiration, strike, bid, ask, mark,
			delta, implied_volatility, open_interest, volume
		FROM options
		WHERE symbol = $1 AND option_type = $2 AND expiration >= $3::date
		ORDER BY expiration, strike`

	var rows []optionRow
	if err := s.db.SelectContext(ctx, &rows, query, normalizeSymbol(symbol), string(optionType), models.DateOf(asOf).Format(models.DateLayout)); err != nil {
		return nil, fmt.Errorf("failed to query options for %s: %w", symbol, err)
	}
	out := make([]models.OptionContract, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// SaveOptions replaces symbol's stored contracts in one transaction.
func (s *PostgresStorage) SaveOptions(ctx context.Context, symbol string, contracts []models.OptionContract) error {
	symbol = normalizeSymbol(symbol)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM options WHERE symbol = $1`, symbol); err != nil {
		return fmt.Errorf("failed to clear options for %s: %w", symbol, err)
	}

	insert := `
		INSERT INTO options (
			symbol, contract_id, option_type, expiration, strike, bid, ask, mark,
			delta, implied_volatility, open_interest, volume
		) VALUES (
			:symbol, :contract_id, :option_type, :expiration, :strike, :bid, :ask, :mark,
			:delta, :implied_volatility, :open_interest, :volume
		)`
	for _, c := range contracts {
		if _, err := tx.NamedExecContext(ctx, insert, newOptionRow(symbol, c)); err != nil {
			return fmt.Errorf("failed to insert option %s: %w", c.ContractID, err)
		}
	}
	return tx.Commit()
}

func expectOneRow(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("filter %d: %w", id, ErrFilterNotFound)
	}
	return nil
}
