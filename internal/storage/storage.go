package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"inspection/internal/models"
)

// ErrUnavailable marks failures of the backing store
var ErrUnavailable = errors.New("storage unavailable")

// UnavailableError wraps a backend fault with the operation that hit it
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUnavailable, e.Err}
}

// Unavailable wraps err as an UnavailableError; nil stays nil
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

// Storage defines the interface for record storage operations
type Storage interface {
	// Upsert stores rec, replacing the record with the same key and type.
	// When two writes race, the one with the later CommittedAt remains.
	Upsert(ctx context.Context, rec models.Record) error

	// Lookup returns the records stored under key. Empty slots are not an error.
	Lookup(ctx context.Context, key models.Key) (models.Slots, error)

	// ListByDate returns every record of a date ordered by corridor, room and type
	ListByDate(ctx context.Context, date string) ([]models.Record, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}

// Newer reports whether candidate should replace current
func Newer(candidate, current models.Record) bool {
	return !candidate.CommittedAt.Before(current.CommittedAt)
}

// SortRecords orders records by corridor, room and type
func SortRecords(records []models.Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Corridor != b.Corridor {
			return a.Corridor < b.Corridor
		}
		if a.Room != b.Room {
			return a.Room < b.Room
		}
		return a.Type < b.Type
	})
}
