package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
)

// JSONStorage keeps filters and chain snapshots in a single JSON file,
// rewritten atomically on every mutation.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *storageData
	now      func() time.Time
}

// storageData is the on-disk document and the in-memory model shared with
// MockStorage. Callers hold the owning store's lock.
type storageData struct {
	Filters      []models.FilterCriteria            `json:"filters"`
	NextFilterID int64                              `json:"next_filter_id"`
	Options      map[string][]models.OptionContract `json:"options"`
	LastUpdated  time.Time                          `json:"last_updated"`
}

func newStorageData() *storageData {
	return &storageData{
		NextFilterID: 1,
		Options:      make(map[string][]models.OptionContract),
	}
}

// NewJSONStorage opens path, loading it when it exists.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: path,
		data:     newStorageData(),
		now:      time.Now,
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}
	return s, nil
}

// Load re-reads the backing file.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath)
	if err != nil {
		return err
	}
	data := newStorageData()
	if err := json.Unmarshal(raw, data); err != nil {
		return err
	}
	if data.Options == nil {
		data.Options = make(map[string][]models.OptionContract)
	}
	for _, f := range data.Filters {
		if f.ID >= data.NextFilterID {
			data.NextFilterID = f.ID + 1
		}
	}
	s.data = data
	return nil
}

// save writes the document to a temp file and renames it over the original.
// Callers hold the write lock.
func (s *JSONStorage) save() error {
	s.data.LastUpdated = s.now()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0600); err != nil {
		return err
	}
	return os.Rename(tmpFile, s.filepath)
}

// mutate applies fn and persists the result, restoring the previous state if
// either step fails.
func (s *JSONStorage) mutate(fn func(d *storageData) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.data.clone()
	if err := fn(s.data); err != nil {
		s.data = backup
		return err
	}
	if err := s.save(); err != nil {
		s.data = backup
		return fmt.Errorf("saving storage: %w", err)
	}
	return nil
}

// Active returns the active filter and records the access time.
func (s *JSONStorage) Active(ctx context.Context) (*models.FilterCriteria, error) {
	var out *models.FilterCriteria
	err := s.mutate(func(d *storageData) error {
		c, err := d.active(s.now())
		out = c
		return err
	})
	return out, err
}

// List returns every non-deprecated filter.
func (s *JSONStorage) List(ctx context.Context) ([]models.FilterCriteria, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.list(), nil
}

// Get returns one non-deprecated filter.
func (s *JSONStorage) Get(ctx context.Context, id int64) (*models.FilterCriteria, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.get(id)
}

// Save creates or updates c. c receives its ID and timestamps only once the
// write has reached disk.
func (s *JSONStorage) Save(ctx context.Context, c *models.FilterCriteria) error {
	var saved models.FilterCriteria
	err := s.mutate(func(d *storageData) error {
		var err error
		saved, err = d.save(*c, s.now())
		return err
	})
	if err != nil {
		return err
	}
	*c = saved
	return nil
}

// Delete soft-deletes a filter.
func (s *JSONStorage) Delete(ctx context.Context, id int64) error {
	return s.mutate(func(d *storageData) error { return d.delete(id, s.now()) })
}

// Activate makes id the only active filter.
func (s *JSONStorage) Activate(ctx context.Context, id int64) error {
	return s.mutate(func(d *storageData) error { return d.activate(id, s.now()) })
}

// Options returns the stored snapshot filtered by type and expiration.
func (s *JSONStorage) Options(ctx context.Context, symbol string, optionType models.OptionType, asOf time.Time) ([]models.OptionContract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.options(symbol, optionType, asOf), nil
}

// SaveOptions replaces symbol's snapshot.
func (s *JSONStorage) SaveOptions(ctx context.Context, symbol string, contracts []models.OptionContract) error {
	return s.mutate(func(d *storageData) error {
		d.saveOptions(symbol, contracts)
		return nil
	})
}

// Close is a no-op; every mutation is already on disk.
func (s *JSONStorage) Close() error { return nil }

func (d *storageData) clone() *storageData {
	c := &storageData{
		Filters:      append([]models.FilterCriteria(nil), d.Filters...),
		NextFilterID: d.NextFilterID,
		Options:      make(map[string][]models.OptionContract, len(d.Options)),
		LastUpdated:  d.LastUpdated,
	}
	for k, v := range d.Options {
		c.Options[k] = v
	}
	return c
}

func (d *storageData) index(id int64) int {
	for i := range d.Filters {
		if d.Filters[i].ID == id && !d.Filters[i].IsDeprecated {
			return i
		}
	}
	return -1
}

func (d *storageData) active(now time.Time) (*models.FilterCriteria, error) {
	for i := range d.Filters {
		f := &d.Filters[i]
		if f.IsActive && !f.IsDeprecated {
			f.LastAccessedAt = now
			out := *f
			return &out, nil
		}
	}
	return nil, ErrNoActiveFilter
}

func (d *storageData) list() []models.FilterCriteria {
	out := make([]models.FilterCriteria, 0, len(d.Filters))
	for _, f := range d.Filters {
		if !f.IsDeprecated {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *storageData) get(id int64) (*models.FilterCriteria, error) {
	i := d.index(id)
	if i < 0 {
		return nil, fmt.Errorf("filter %d: %w", id, ErrFilterNotFound)
	}
	out := d.Filters[i]
	return &out, nil
}

func (d *storageData) save(c models.FilterCriteria, now time.Time) (models.FilterCriteria, error) {
	if err := c.Validate(); err != nil {
		return c, err
	}

	if c.ID == 0 {
		c.ID = d.NextFilterID
		d.NextFilterID++
		c.CreatedAt = now
		c.ModifiedAt = now
		c.IsActive = false
		c.IsDeprecated = false
		d.Filters = append(d.Filters, c)
		return c, nil
	}

	i := d.index(c.ID)
	if i < 0 {
		return c, fmt.Errorf("filter %d: %w", c.ID, ErrFilterNotFound)
	}
	existing := d.Filters[i]
	c.CreatedAt = existing.CreatedAt
	c.IsActive = existing.IsActive
	c.IsDeprecated = false
	c.LastAccessedAt = existing.LastAccessedAt
	c.ModifiedAt = now
	d.Filters[i] = c
	return c, nil
}

func (d *storageData) delete(id int64, now time.Time) error {
	i := d.index(id)
	if i < 0 {
		return fmt.Errorf("filter %d: %w", id, ErrFilterNotFound)
	}
	d.Filters[i].IsDeprecated = true
	d.Filters[i].IsActive = false
	d.Filters[i].ModifiedAt = now
	return nil
}

func (d *storageData) activate(id int64, now time.Time) error {
	target := d.index(id)
	if target < 0 {
		return fmt.Errorf("filter %d: %w", id, ErrFilterNotFound)
	}
	for i := range d.Filters {
		if d.Filters[i].IsActive && i != target {
			d.Filters[i].IsActive = false
			d.Filters[i].ModifiedAt = now
		}
	}
	d.Filters[target].IsActive = true
	d.Filters[target].ModifiedAt = now
	return nil
}

func (d *storageData) options(symbol string, optionType models.OptionType, asOf time.Time) []models.OptionContract {
	cutoff := models.DateOf(asOf)
	var out []models.OptionContract
	for _, c := range d.Options[normalizeSymbol(symbol)] {
		if c.Type == optionType && !models.DateOf(c.Expiration).Before(cutoff) {
			out = append(out, c)
		}
	}
	sortContracts(out)
	return out
}

// sortContracts orders contracts by expiration, then strike, matching the
// Postgres store's ORDER BY.
func sortContracts(contracts []models.OptionContract) {
	sort.SliceStable(contracts, func(i, j int) bool {
		ei, ej := models.DateOf(contracts[i].Expiration), models.DateOf(contracts[j].Expiration)
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return contracts[i].Strike < contracts[j].Strike
	})
}

func (d *storageData) saveOptions(symbol string, contracts []models.OptionContract) {
	d.Options[normalizeSymbol(symbol)] = append([]models.OptionContract(nil), contracts...)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
