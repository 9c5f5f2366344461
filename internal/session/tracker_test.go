package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspection/internal/catalog"
	"inspection/internal/models"
)

const (
	testUser     = int64(123)
	testChat     = int64(456)
	testCorridor = "Corredor A Térreo"
	testRoom     = "Sala 01"
)

func newTestTracker() *Tracker {
	return NewTracker(catalog.Default(), 0)
}

func TestTracker_FullOrder(t *testing.T) {
	tr := newTestTracker()

	s := tr.Begin(testUser, testChat)
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, tr.SetCorridor(testUser, testCorridor))
	require.NoError(t, tr.SetRoom(testUser, testRoom))
	require.NoError(t, tr.SetType(testUser, models.Departure))

	current, ok := tr.Current(testUser)
	require.True(t, ok)
	assert.Equal(t, StateTypeChosen, current.State())
	assert.Equal(t, testCorridor, current.Corridor)
	assert.Equal(t, testRoom, current.Room)
	assert.Equal(t, models.Departure, current.RecordType)
	assert.Equal(t, testChat, current.ChatID)
}

func TestTracker_SkippedStepsAreRejected(t *testing.T) {
	type step func(tr *Tracker) error
	corridor := func(tr *Tracker) error { return tr.SetCorridor(testUser, testCorridor) }
	room := func(tr *Tracker) error { return tr.SetRoom(testUser, testRoom) }
	typ := func(tr *Tracker) error { return tr.SetType(testUser, models.Arrival) }

	testCases := []struct {
		name    string
		valid   []step
		invalid step
	}{
		{name: "type without corridor", invalid: typ},
		{name: "room without corridor", invalid: room},
		{name: "type without room", valid: []step{corridor}, invalid: typ},
		{name: "corridor twice", valid: []step{corridor}, invalid: corridor},
		{name: "corridor after room", valid: []step{corridor, room}, invalid: corridor},
		{name: "room after type", valid: []step{corridor, room, typ}, invalid: room},
		{name: "type twice", valid: []step{corridor, room, typ}, invalid: typ},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tr := newTestTracker()
			tr.Begin(testUser, testChat)
			for _, s := range tc.valid {
				require.NoError(t, s(tr))
			}
			before, _ := tr.Current(testUser)

			err := tc.invalid(tr)
			assert.ErrorIs(t, err, ErrInvalidTransition)

			after, _ := tr.Current(testUser)
			assert.Equal(t, before, after, "rejected update must not change the session")
		})
	}
}

func TestTracker_NoSession(t *testing.T) {
	tr := newTestTracker()

	assert.ErrorIs(t, tr.SetCorridor(testUser, testCorridor), ErrInvalidTransition)
	_, ok := tr.Current(testUser)
	assert.False(t, ok)
}

func TestTracker_UnknownSelections(t *testing.T) {
	tr := newTestTracker()
	tr.Begin(testUser, testChat)

	err := tr.SetCorridor(testUser, "Corredor Z")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	require.NoError(t, tr.SetCorridor(testUser, testCorridor))
	err = tr.SetRoom(testUser, "Sala 41")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	require.NoError(t, tr.SetRoom(testUser, testRoom))
	assert.ErrorIs(t, tr.SetType(testUser, models.RecordType("lunch")), ErrInvalidTransition)
}

func TestTracker_BeginResets(t *testing.T) {
	tr := newTestTracker()
	tr.Begin(testUser, testChat)
	require.NoError(t, tr.SetCorridor(testUser, testCorridor))
	require.NoError(t, tr.SetRoom(testUser, testRoom))

	tr.Begin(testUser, 789)

	current, ok := tr.Current(testUser)
	require.True(t, ok)
	assert.Equal(t, StateIdle, current.State())
	assert.Empty(t, current.Corridor)
	assert.Equal(t, int64(789), current.ChatID)
}

func TestTracker_ClearIsIdempotent(t *testing.T) {
	tr := newTestTracker()
	tr.Clear(testUser)

	tr.Begin(testUser, testChat)
	assert.Equal(t, 1, tr.Len())
	tr.Clear(testUser)
	tr.Clear(testUser)

	_, ok := tr.Current(testUser)
	assert.False(t, ok)
	assert.Equal(t, 0, tr.Len())
}

func TestTracker_SessionsAreIndependent(t *testing.T) {
	tr := newTestTracker()
	tr.Begin(1, 10)
	tr.Begin(2, 20)

	require.NoError(t, tr.SetCorridor(1, testCorridor))

	s1, _ := tr.Current(1)
	s2, _ := tr.Current(2)
	assert.Equal(t, StateCorridorChosen, s1.State())
	assert.Equal(t, StateIdle, s2.State())
}

func TestTracker_TTLExpiresAbandonedSessions(t *testing.T) {
	tr := NewTracker(catalog.Default(), 50*time.Millisecond)
	tr.Begin(testUser, testChat)

	_, ok := tr.Current(testUser)
	require.True(t, ok)

	time.Sleep(120 * time.Millisecond)

	_, ok = tr.Current(testUser)
	assert.False(t, ok)
	assert.ErrorIs(t, tr.SetCorridor(testUser, testCorridor), ErrInvalidTransition)
}
