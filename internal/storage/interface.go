package storage

import (
	"context"
	"errors"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
)

// FilterStore persists named FilterCriteria. At most one non-deprecated filter
// is active at a time.
//
// Implementations must be safe for concurrent use.
type FilterStore interface {
	// Active returns the active filter, or ErrNoActiveFilter.
	Active(ctx context.Context) (*models.FilterCriteria, error)
	// List returns every non-deprecated filter ordered by ID.
	List(ctx context.Context) ([]models.FilterCriteria, error)
	// Get returns a non-deprecated filter, or ErrFilterNotFound.
	Get(ctx context.Context, id int64) (*models.FilterCriteria, error)
	// Save creates the filter when ID is 0 (assigning the ID) or updates it.
	Save(ctx context.Context, c *models.FilterCriteria) error
	// Delete marks the filter deprecated and inactive.
	Delete(ctx context.Context, id int64) error
	// Activate makes id the only active filter.
	Activate(ctx context.Context, id int64) error
}

// OptionStore persists option chain snapshots for the store-backed screen.
type OptionStore interface {
	// Options returns symbol's contracts of optionType expiring on or after asOf.
	Options(ctx context.Context, symbol string, optionType models.OptionType, asOf time.Time) ([]models.OptionContract, error)
	// SaveOptions replaces the stored snapshot of symbol's chain.
	SaveOptions(ctx context.Context, symbol string, contracts []models.OptionContract) error
}

// Interface is a complete storage backend.
type Interface interface {
	FilterStore
	OptionStore
	Close() error
}

// Ensure the backends implement Interface
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*MockStorage)(nil)
	_ Interface = (*PostgresStorage)(nil)
)

// Driver names accepted by NewStorage.
const (
	DriverJSON     = "json"
	DriverPostgres = "postgres"
)

// NewStorage opens the backend named by driver. target is a file path for
// DriverJSON and a connection URL for DriverPostgres.
func NewStorage(ctx context.Context, driver, target string) (Interface, error) {
	switch driver {
	case DriverJSON, "":
		return NewJSONStorage(target)
	case DriverPostgres:
		return NewPostgresStorage(ctx, target)
	default:
		return nil, errors.New("unknown storage driver " + driver)
	}
}

// ActiveOrDefault returns the active filter, seeding and activating
// models.DefaultFilterCriteria when the store has none.
func ActiveOrDefault(ctx context.Context, s FilterStore) (*models.FilterCriteria, error) {
	c, err := s.Active(ctx)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNoActiveFilter) {
		return nil, err
	}

	def := models.DefaultFilterCriteria()
	if err := s.Save(ctx, &def); err != nil {
		return nil, err
	}
	if err := s.Activate(ctx, def.ID); err != nil {
		return nil, err
	}
	return s.Active(ctx)
}
