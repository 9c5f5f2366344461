package stubs

import (
	"context"
	"sync"

	"inspection/internal/models"
	"inspection/internal/storage"
)

type slotKey struct {
	key        models.Key
	recordType models.RecordType
}

// MockDB is an in-memory implementation of the Storage interface
type MockDB struct {
	mu      sync.RWMutex
	records map[slotKey]models.Record
	failure error
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	return &MockDB{
		records: make(map[slotKey]models.Record),
	}
}

// SetFailure makes every following call fail with err until it is reset with nil
func (m *MockDB) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// Initialize does nothing for mock DB
func (m *MockDB) Initialize(ctx context.Context) error {
	return nil
}

// Upsert stores a record, keeping the most recently committed one per slot
func (m *MockDB) Upsert(ctx context.Context, rec models.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failure != nil {
		return storage.Unavailable("upsert", m.failure)
	}

	k := slotKey{key: rec.Key(), recordType: rec.Type}
	if current, ok := m.records[k]; ok && !storage.Newer(rec, current) {
		return nil
	}
	m.records[k] = rec
	return nil
}

// Lookup returns the arrival and departure records of a key
func (m *MockDB) Lookup(ctx context.Context, key models.Key) (models.Slots, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failure != nil {
		return models.Slots{}, storage.Unavailable("lookup", m.failure)
	}

	var slots models.Slots
	for _, t := range models.RecordTypes {
		if rec, ok := m.records[slotKey{key: key, recordType: t}]; ok {
			rec := rec
			slots.Set(&rec)
		}
	}
	return slots, nil
}

// ListByDate returns all records of a date
func (m *MockDB) ListByDate(ctx context.Context, date string) ([]models.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failure != nil {
		return nil, storage.Unavailable("list by date", m.failure)
	}

	var records []models.Record
	for _, rec := range m.records {
		if rec.Date == date {
			records = append(records, rec)
		}
	}

	storage.SortRecords(records)

	return records, nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}
