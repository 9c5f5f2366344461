package session

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"inspection/internal/catalog"
	"inspection/internal/models"
)

// ErrInvalidTransition is returned when an update does not fit the session's current state
var ErrInvalidTransition = errors.New("invalid transition")

// State is the registration step a session has reached
type State int

const (
	StateIdle State = iota
	StateCorridorChosen
	StateRoomChosen
	StateTypeChosen
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCorridorChosen:
		return "corridor_chosen"
	case StateRoomChosen:
		return "room_chosen"
	case StateTypeChosen:
		return "type_chosen"
	}
	return "unknown"
}

// Session is the in-progress selection of one user
type Session struct {
	UserID     int64
	ChatID     int64
	Corridor   string
	Room       string
	RecordType models.RecordType
	StartedAt  time.Time
}

// State derives the registration step from the filled fields
func (s Session) State() State {
	switch {
	case s.RecordType != "":
		return StateTypeChosen
	case s.Room != "":
		return StateRoomChosen
	case s.Corridor != "":
		return StateCorridorChosen
	}
	return StateIdle
}

// Tracker keeps one session per user.
// A ttl of zero keeps abandoned sessions until they are cleared or restarted.
type Tracker struct {
	catalog *catalog.Catalog
	cache   *cache.Cache
	mu      sync.Mutex
}

// NewTracker creates a session tracker validating selections against cat
func NewTracker(cat *catalog.Catalog, ttl time.Duration) *Tracker {
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = ttl / 2
	}
	return &Tracker{
		catalog: cat,
		cache:   cache.New(expiration, cleanup),
	}
}

func cacheKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// Begin creates an empty session for the user, discarding any open one
func (t *Tracker) Begin(userID, chatID int64) Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Session{UserID: userID, ChatID: chatID, StartedAt: time.Now()}
	t.cache.Set(cacheKey(userID), s, cache.DefaultExpiration)
	return s
}

// SetCorridor records the corridor choice
func (t *Tracker) SetCorridor(userID int64, corridor string) error {
	return t.update(userID, func(s *Session) error {
		if s.State() != StateIdle {
			return fmt.Errorf("corridor already chosen: %w", ErrInvalidTransition)
		}
		if _, err := t.catalog.RoomsFor(corridor); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidTransition, err)
		}
		s.Corridor = corridor
		return nil
	})
}

// SetRoom records the room choice; the corridor must already be chosen
func (t *Tracker) SetRoom(userID int64, room string) error {
	return t.update(userID, func(s *Session) error {
		if s.State() != StateCorridorChosen {
			return fmt.Errorf("room expected in state %s: %w", s.State(), ErrInvalidTransition)
		}
		if !t.catalog.HasRoom(s.Corridor, room) {
			return fmt.Errorf("%w: room %q in %q: %w", ErrInvalidTransition, room, s.Corridor, catalog.ErrNotFound)
		}
		s.Room = room
		return nil
	})
}

// SetType records the record type; the room must already be chosen
func (t *Tracker) SetType(userID int64, recordType models.RecordType) error {
	return t.update(userID, func(s *Session) error {
		if s.State() != StateRoomChosen {
			return fmt.Errorf("type expected in state %s: %w", s.State(), ErrInvalidTransition)
		}
		rt, err := models.ParseRecordType(string(recordType))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTransition, err)
		}
		s.RecordType = rt
		return nil
	})
}

// Current returns a snapshot of the user's session
func (t *Tracker) Current(userID int64) (Session, bool) {
	v, ok := t.cache.Get(cacheKey(userID))
	if !ok {
		return Session{}, false
	}
	return v.(Session), true
}

// Clear removes the user's session; it is a no-op when none is open
func (t *Tracker) Clear(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Delete(cacheKey(userID))
}

// Len returns the number of open sessions
func (t *Tracker) Len() int {
	return t.cache.ItemCount()
}

func (t *Tracker) update(userID int64, fn func(s *Session) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.cache.Get(cacheKey(userID))
	if !ok {
		return fmt.Errorf("no open session: %w", ErrInvalidTransition)
	}
	s := v.(Session)
	if err := fn(&s); err != nil {
		return err
	}
	t.cache.Set(cacheKey(userID), s, cache.DefaultExpiration)
	return nil
}
