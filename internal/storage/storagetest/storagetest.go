// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspection/internal/models"
	"inspection/internal/storage"
)

// Factory returns an empty, initialized store
type Factory func(t *testing.T) storage.Storage

var baseTime = time.Date(2025, 7, 2, 8, 15, 30, 123456000, time.UTC)

// NewRecord builds a record for tests; committed is an offset from a fixed base time
func NewRecord(corridor, room, date string, recordType models.RecordType, committed time.Duration, photo string) models.Record {
	return models.Record{
		ID:          fmt.Sprintf("%s-%s-%s-%s-%s", corridor, room, date, recordType, photo),
		Corridor:    corridor,
		Room:        room,
		Type:        recordType,
		Date:        date,
		CommittedAt: baseTime.Add(committed),
		SubmittedBy: models.Submitter{ID: 42, Name: "Ana"},
		PhotoFileID: photo,
	}
}

// AssertRecord compares two records field by field
func AssertRecord(t *testing.T, want models.Record, got *models.Record) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Corridor, got.Corridor)
	assert.Equal(t, want.Room, got.Room)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.Date, got.Date)
	assert.Equal(t, want.SubmittedBy, got.SubmittedBy)
	assert.Equal(t, want.PhotoFileID, got.PhotoFileID)
	assert.True(t, want.CommittedAt.Equal(got.CommittedAt), "committed_at: want %s, got %s", want.CommittedAt, got.CommittedAt)
}

// Run executes the shared storage tests against stores produced by newStore
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("Round trip", func(t *testing.T) {
		db := newStore(t)
		rec := NewRecord("Corridor A Térreo", "Sala 01", "2025-07-02", models.Arrival, 0, "photo-1")
		require.NoError(t, db.Upsert(ctx, rec))

		slots, err := db.Lookup(ctx, rec.Key())
		require.NoError(t, err)
		AssertRecord(t, rec, slots.Arrival)
		assert.Nil(t, slots.Departure)
	})

	t.Run("Empty lookup", func(t *testing.T) {
		db := newStore(t)
		slots, err := db.Lookup(ctx, models.Key{Corridor: "Corredor B Térreo", Room: "Sala 41", Date: "2025-07-02"})
		require.NoError(t, err)
		assert.True(t, slots.Empty())
	})

	t.Run("Both slots", func(t *testing.T) {
		db := newStore(t)
		arrival := NewRecord("Corredor B Térreo", "Sala 41", "2025-07-02", models.Arrival, 0, "in")
		departure := NewRecord("Corredor B Térreo", "Sala 41", "2025-07-02", models.Departure, time.Hour, "out")
		require.NoError(t, db.Upsert(ctx, arrival))
		require.NoError(t, db.Upsert(ctx, departure))

		slots, err := db.Lookup(ctx, arrival.Key())
		require.NoError(t, err)
		AssertRecord(t, arrival, slots.Arrival)
		AssertRecord(t, departure, slots.Departure)
	})

	t.Run("Upsert overwrites", func(t *testing.T) {
		db := newStore(t)
		first := NewRecord("Corredor C Térreo", "Sala 80", "2025-07-02", models.Arrival, 0, "first")
		second := NewRecord("Corredor C Térreo", "Sala 80", "2025-07-02", models.Arrival, time.Minute, "second")
		second.SubmittedBy = models.Submitter{ID: 7, Name: "Bruno"}

		require.NoError(t, db.Upsert(ctx, first))
		require.NoError(t, db.Upsert(ctx, first))
		require.NoError(t, db.Upsert(ctx, second))

		slots, err := db.Lookup(ctx, first.Key())
		require.NoError(t, err)
		AssertRecord(t, second, slots.Arrival)
		assert.Nil(t, slots.Departure)

		records, err := db.ListByDate(ctx, "2025-07-02")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("Older write does not win", func(t *testing.T) {
		db := newStore(t)
		newer := NewRecord("Corredor A 1º Piso", "Sala 20", "2025-07-02", models.Departure, time.Hour, "newer")
		older := NewRecord("Corredor A 1º Piso", "Sala 20", "2025-07-02", models.Departure, 0, "older")

		require.NoError(t, db.Upsert(ctx, newer))
		require.NoError(t, db.Upsert(ctx, older))

		slots, err := db.Lookup(ctx, newer.Key())
		require.NoError(t, err)
		AssertRecord(t, newer, slots.Departure)
	})

	t.Run("Keys are isolated", func(t *testing.T) {
		db := newStore(t)
		rec := NewRecord("Corredor A Térreo", "Sala 02", "2025-07-02", models.Arrival, 0, "p")
		require.NoError(t, db.Upsert(ctx, rec))

		for _, key := range []models.Key{
			{Corridor: "Corredor A Térreo", Room: "Sala 03", Date: "2025-07-02"},
			{Corridor: "Corredor A Térreo", Room: "Sala 02", Date: "2025-07-03"},
			{Corridor: "Corredor B Térreo", Room: "Sala 02", Date: "2025-07-02"},
		} {
			slots, err := db.Lookup(ctx, key)
			require.NoError(t, err)
			assert.True(t, slots.Empty(), key.String())
		}
	})

	t.Run("Concurrent writes keep the latest", func(t *testing.T) {
		db := newStore(t)
		const writers = 10

		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				rec := NewRecord("Corredor B 1º Piso", "Sala 53", "2025-07-02", models.Arrival,
					time.Duration(idx)*time.Second, fmt.Sprintf("photo-%d", idx))
				rec.SubmittedBy = models.Submitter{ID: int64(idx), Name: fmt.Sprintf("user-%d", idx)}
				assert.NoError(t, db.Upsert(ctx, rec))
			}(i)
		}
		wg.Wait()

		slots, err := db.Lookup(ctx, models.Key{Corridor: "Corredor B 1º Piso", Room: "Sala 53", Date: "2025-07-02"})
		require.NoError(t, err)
		require.NotNil(t, slots.Arrival)
		assert.Equal(t, fmt.Sprintf("photo-%d", writers-1), slots.Arrival.PhotoFileID)
		assert.Equal(t, int64(writers-1), slots.Arrival.SubmittedBy.ID)
		assert.Nil(t, slots.Departure)
	})

	t.Run("List by date", func(t *testing.T) {
		db := newStore(t)
		records := []models.Record{
			NewRecord("Corredor B Térreo", "Sala 42", "2025-07-02", models.Departure, 3*time.Hour, "d"),
			NewRecord("Corredor A Térreo", "Sala 05", "2025-07-02", models.Departure, 2*time.Hour, "c"),
			NewRecord("Corredor A Térreo", "Sala 05", "2025-07-02", models.Arrival, time.Hour, "b"),
			NewRecord("Corredor A Térreo", "Sala 01", "2025-07-02", models.Arrival, 0, "a"),
			NewRecord("Corredor A Térreo", "Sala 01", "2025-07-03", models.Arrival, 24*time.Hour, "other-day"),
		}
		for _, rec := range records {
			require.NoError(t, db.Upsert(ctx, rec))
		}

		got, err := db.ListByDate(ctx, "2025-07-02")
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, "a", got[0].PhotoFileID)
		assert.Equal(t, "b", got[1].PhotoFileID)
		assert.Equal(t, "c", got[2].PhotoFileID)
		assert.Equal(t, "d", got[3].PhotoFileID)

		got, err = db.ListByDate(ctx, "2024-01-01")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
