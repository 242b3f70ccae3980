package storage

import (
	"context"
	"sync"
	"time"

	"github.com/eddiefleurent/pmcc_scanner/internal/models"
)

// MockStorage is an in-memory Interface for tests and the mock provider mode.
// Setting SaveError or LoadError makes the corresponding calls fail.
type MockStorage struct {
	mu   sync.Mutex
	data *storageData
	now  func() time.Time

	SaveError error
	LoadError error

	saveCallCount int
	loadCallCount int
}

// NewMockStorage creates an empty in-memory store.
func NewMockStorage() *MockStorage {
	return &MockStorage{data: newStorageData(), now: time.Now}
}

func (m *MockStorage) write(fn func(d *storageData) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCallCount++
	if m.SaveError != nil {
		return m.SaveError
	}
	return fn(m.data)
}

func (m *MockStorage) read() (*storageData, error) {
	m.loadCallCount++
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	return m.data, nil
}

// Active returns the active filter.
func (m *MockStorage) Active(ctx context.Context) (*models.FilterCriteria, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.read()
	if err != nil {
		return nil, err
	}
	return d.active(m.now())
}

// List returns every non-deprecated filter.
func (m *MockStorage) List(ctx context.Context) ([]models.FilterCriteria, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.read()
	if err != nil {
		return nil, err
	}
	return d.list(), nil
}

// Get returns one non-deprecated filter.
func (m *MockStorage) Get(ctx context.Context, id int64) (*models.FilterCriteria, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.read()
	if err != nil {
		return nil, err
	}
	return d.get(id)
}

// Save creates or updates c.
func (m *MockStorage) Save(ctx context.Context, c *models.FilterCriteria) error {
	var saved models.FilterCriteria
	err := m.write(func(d *storageData) error {
		var err error
		saved, err = d.save(*c, m.now())
		return err
	})
	if err != nil {
		return err
	}
	*c = saved
	return nil
}

// Delete soft-deletes a filter.
func (m *MockStorage) Delete(ctx context.Context, id int64) error {
	return m.write(func(d *storageData) error { return d.delete(id, m.now()) })
}

// Activate makes id the only active filter.
func (m *MockStorage) Activate(ctx context.Context, id int64) error {
	return m.write(func(d *storageData) error { return d.activate(id, m.now()) })
}

// Options returns the stored snapshot filtered by type and expiration.
func (m *MockStorage) Options(ctx context.Context, symbol string, optionType models.OptionType, asOf time.Time) ([]models.OptionContract, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.read()
	if err != nil {
		return nil, err
	}
	return d.options(symbol, optionType, asOf), nil
}

// SaveOptions replaces symbol's snapshot.
func (m *MockStorage) SaveOptions(ctx context.Context, symbol string, contracts []models.OptionContract) error {
	return m.write(func(d *storageData) error {
		d.saveOptions(symbol, contracts)
		return nil
	})
}

// Close is a no-op.
func (m *MockStorage) Close() error { return nil }

// SaveCallCount returns how many mutating calls were made.
func (m *MockStorage) SaveCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCallCount
}

// LoadCallCount returns how many reading calls were made.
func (m *MockStorage) LoadCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCallCount
}
