// Package registration drives the corridor -> room -> type -> photo flow
// and commits the finished registration to the record store.
package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inspection/internal/catalog"
	"inspection/internal/models"
	"inspection/internal/session"
	"inspection/internal/storage"
)

// EventKind discriminates the events a user can send to the flow
type EventKind int

const (
	EventBegin EventKind = iota + 1
	EventCorridorPick
	EventRoomPick
	EventTypePick
	EventPhoto
	EventCancel
)

func (k EventKind) String() string {
	switch k {
	case EventBegin:
		return "begin"
	case EventCorridorPick:
		return "corridor_pick"
	case EventRoomPick:
		return "room_pick"
	case EventTypePick:
		return "type_pick"
	case EventPhoto:
		return "photo"
	case EventCancel:
		return "cancel"
	}
	return "unknown"
}

// Event is one user action. Only the payload field matching Kind is read.
type Event struct {
	Kind   EventKind
	User   models.Submitter
	ChatID int64

	Corridor    string
	Room        string
	Type        models.RecordType
	PhotoFileID string
}

// accepts maps each state to the only selection it takes
var accepts = map[session.State]EventKind{
	session.StateIdle:           EventCorridorPick,
	session.StateCorridorChosen: EventRoomPick,
	session.StateRoomChosen:     EventTypePick,
	session.StateTypeChosen:     EventPhoto,
}

// Step is what the user is asked for next
type Step int

const (
	StepNone Step = iota
	StepCorridor
	StepRoom
	StepType
	StepPhoto
	StepDone
)

// Prompt describes the next choice; Options are filled for the selection steps
type Prompt struct {
	Step     Step
	Corridor string
	Room     string
	Type     models.RecordType
	Options  []string
}

// Outcome is the result of handling an event
type Outcome struct {
	State     session.State
	Prompt    Prompt
	Record    *models.Record
	Cancelled bool
}

// Machine is the registration state machine
type Machine struct {
	catalog  *catalog.Catalog
	sessions *session.Tracker
	store    storage.Storage
	logger   *zap.Logger
	loc      *time.Location

	now   func() time.Time
	newID func() string

	locksMu sync.Mutex
	locks   map[int64]*userLock
}

// userLock serializes one user's events; refs counts holders and waiters
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewMachine creates a registration state machine.
// Record dates and times are taken in loc.
func NewMachine(cat *catalog.Catalog, sessions *session.Tracker, store storage.Storage, loc *time.Location, logger *zap.Logger) *Machine {
	if loc == nil {
		loc = time.Local
	}
	return &Machine{
		catalog:  cat,
		sessions: sessions,
		store:    store,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
		newID:    uuid.NewString,
		locks:    make(map[int64]*userLock),
	}
}

// lock blocks until userID's previous events are done.
// The entry is dropped once nobody holds or waits for it.
func (m *Machine) lock(userID int64) func() {
	m.locksMu.Lock()
	l, ok := m.locks[userID]
	if !ok {
		l = &userLock{}
		m.locks[userID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, userID)
		}
		m.locksMu.Unlock()
	}
}

func (m *Machine) lockCount() int {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	return len(m.locks)
}

// Current returns the prompt of the user's open registration, if any
func (m *Machine) Current(userID int64) (Outcome, bool) {
	s, ok := m.sessions.Current(userID)
	if !ok {
		return Outcome{State: session.StateIdle}, false
	}
	return m.outcome(s), true
}

// Handle applies ev to the user's session.
// On error the returned outcome re-prompts the step the user is still on.
func (m *Machine) Handle(ctx context.Context, ev Event) (Outcome, error) {
	userID := ev.User.ID
	unlock := m.lock(userID)
	defer unlock()

	switch ev.Kind {
	case EventBegin:
		s := m.sessions.Begin(userID, ev.ChatID)
		m.logger.Debug("Registration started", zap.Int64("user_id", userID))
		return m.outcome(s), nil

	case EventCancel:
		s, ok := m.sessions.Current(userID)
		if !ok {
			return Outcome{State: session.StateIdle}, fmt.Errorf("nothing to cancel: %w", session.ErrInvalidTransition)
		}
		m.sessions.Clear(userID)
		m.logger.Info("Registration cancelled",
			zap.Int64("user_id", userID),
			zap.Stringer("state", s.State()),
		)
		return Outcome{State: session.StateIdle, Cancelled: true}, nil
	}

	s, ok := m.sessions.Current(userID)
	if !ok {
		return Outcome{State: session.StateIdle}, fmt.Errorf("no registration in progress: %w", session.ErrInvalidTransition)
	}

	if want := accepts[s.State()]; ev.Kind != want {
		return m.outcome(s), fmt.Errorf("%s not accepted in state %s: %w", ev.Kind, s.State(), session.ErrInvalidTransition)
	}

	var err error
	switch ev.Kind {
	case EventCorridorPick:
		err = m.sessions.SetCorridor(userID, ev.Corridor)
	case EventRoomPick:
		err = m.sessions.SetRoom(userID, ev.Room)
	case EventTypePick:
		err = m.sessions.SetType(userID, ev.Type)
	case EventPhoto:
		return m.commit(ctx, s, ev)
	}
	if err != nil {
		return m.outcome(s), err
	}

	s, _ = m.sessions.Current(userID)
	return m.outcome(s), nil
}

// commit stores the record built from the session; the session survives a failed write
func (m *Machine) commit(ctx context.Context, s session.Session, ev Event) (Outcome, error) {
	if ev.PhotoFileID == "" {
		return m.outcome(s), fmt.Errorf("photo without file reference: %w", session.ErrInvalidTransition)
	}

	// Stores keep microseconds; the echoed record must equal the stored one
	now := m.now().In(m.loc).Truncate(time.Microsecond)
	rec := models.Record{
		ID:          m.newID(),
		Corridor:    s.Corridor,
		Room:        s.Room,
		Type:        s.RecordType,
		Date:        now.Format(models.DateLayout),
		CommittedAt: now,
		SubmittedBy: ev.User,
		PhotoFileID: ev.PhotoFileID,
	}

	if err := m.store.Upsert(ctx, rec); err != nil {
		if !errors.Is(err, storage.ErrUnavailable) {
			err = storage.Unavailable("upsert", err)
		}
		m.logger.Error("Failed to commit record",
			zap.Error(err),
			zap.Int64("user_id", ev.User.ID),
			zap.String("corridor", rec.Corridor),
			zap.String("room", rec.Room),
			zap.String("type", string(rec.Type)),
		)
		return m.outcome(s), fmt.Errorf("failed to commit record: %w", err)
	}

	m.sessions.Clear(ev.User.ID)
	m.logger.Info("Record committed",
		zap.String("record_id", rec.ID),
		zap.Int64("user_id", ev.User.ID),
		zap.String("corridor", rec.Corridor),
		zap.String("room", rec.Room),
		zap.String("type", string(rec.Type)),
		zap.String("date", rec.Date),
	)

	return Outcome{
		State:  session.StateIdle,
		Prompt: Prompt{Step: StepDone, Corridor: rec.Corridor, Room: rec.Room, Type: rec.Type},
		Record: &rec,
	}, nil
}

// outcome builds the prompt for the step the session is waiting on
func (m *Machine) outcome(s session.Session) Outcome {
	out := Outcome{
		State: s.State(),
		Prompt: Prompt{
			Corridor: s.Corridor,
			Room:     s.Room,
			Type:     s.RecordType,
		},
	}

	switch s.State() {
	case session.StateIdle:
		out.Prompt.Step = StepCorridor
		out.Prompt.Options = m.catalog.Corridors()
	case session.StateCorridorChosen:
		out.Prompt.Step = StepRoom
		out.Prompt.Options, _ = m.catalog.RoomsFor(s.Corridor)
	case session.StateRoomChosen:
		out.Prompt.Step = StepType
		for _, t := range models.RecordTypes {
			out.Prompt.Options = append(out.Prompt.Options, string(t))
		}
	case session.StateTypeChosen:
		out.Prompt.Step = StepPhoto
	}
	return out
}
