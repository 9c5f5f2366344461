// Package query resolves "/ver" requests into record lookups
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"inspection/internal/catalog"
	"inspection/internal/models"
	"inspection/internal/storage"
)

// ErrMalformedQuery is returned when a request cannot be split into corridor, room and date
var ErrMalformedQuery = errors.New("malformed query")

// Usage is shown to the user whenever a query is malformed
const Usage = "⚠️ Use: /ver \"Corredor\" Sala Data\nEx: /ver \"Corredor A Térreo\" 07 2025-07-02"

// Query is a parsed view request
type Query struct {
	Corridor string
	Room     string
	Date     string
}

// SplitArgs splits command arguments on whitespace; double quotes group words
func SplitArgs(text string) []string {
	var (
		args    []string
		current strings.Builder
		quoted  bool
		started bool
	)

	flush := func() {
		if started {
			args = append(args, current.String())
			current.Reset()
			started = false
		}
	}

	for _, r := range text {
		switch {
		case r == '"' || r == '“' || r == '”':
			quoted = !quoted
			started = true
		case unicode.IsSpace(r) && !quoted:
			flush()
		default:
			current.WriteRune(r)
			started = true
		}
	}
	flush()
	return args
}

// Parse builds a Query from positional arguments.
// The last argument is the date, the one before it the room and the rest form the corridor.
func Parse(args ...string) (Query, error) {
	var cleaned []string
	for _, a := range args {
		a = strings.TrimSpace(strings.Trim(a, `"“”`))
		if a != "" {
			cleaned = append(cleaned, a)
		}
	}

	if len(cleaned) < 3 {
		return Query{}, fmt.Errorf("expected corridor, room and date, got %d argument(s): %w", len(cleaned), ErrMalformedQuery)
	}

	n := len(cleaned)
	date := cleaned[n-1]
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return Query{}, fmt.Errorf("date %q is not YYYY-MM-DD: %w", date, ErrMalformedQuery)
	}

	return Query{
		Corridor: strings.Join(cleaned[:n-2], " "),
		Room:     cleaned[n-2],
		Date:     date,
	}, nil
}

// Result is the two-slot answer to a query
type Result struct {
	Query Query
	Slots models.Slots
}

// Photos returns the photo references of the registered slots in display order
func (r *Result) Photos() []string {
	var photos []string
	for _, t := range models.RecordTypes {
		if rec := r.Slots.Get(t); rec != nil {
			photos = append(photos, rec.PhotoFileID)
		}
	}
	return photos
}

// Text renders the result for the chat
func (r *Result) Text(loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📅 %s - %s - %s\n", r.Query.Date, r.Query.Corridor, r.Query.Room)

	for _, t := range models.RecordTypes {
		fmt.Fprintf(&b, "\n🖼️ %s:\n", t.Label())
		rec := r.Slots.Get(t)
		if rec == nil {
			b.WriteString("❌ Não registrada\n")
			continue
		}
		committed := rec.CommittedAt
		if loc != nil {
			committed = committed.In(loc)
		}
		fmt.Fprintf(&b, "✅ Registrada por %s às %s\n", rec.SubmittedBy.Name, committed.Format("15:04"))
	}
	return b.String()
}

// Resolver answers view requests from the record store
type Resolver struct {
	catalog *catalog.Catalog
	store   storage.Storage
}

// NewResolver creates a query resolver
func NewResolver(cat *catalog.Catalog, store storage.Storage) *Resolver {
	return &Resolver{catalog: cat, store: store}
}

// Resolve parses args and looks the key up.
// Unknown corridors or rooms wrap catalog.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, args ...string) (*Result, error) {
	q, err := Parse(args...)
	if err != nil {
		return nil, err
	}

	corridor, cerr := r.catalog.MatchCorridor(q.Corridor)
	if cerr != nil {
		// "Corredor A Térreo" Sala 01: the room label took two tokens
		if before, word, ok := cutLastWord(q.Corridor); ok {
			if c, err := r.catalog.MatchCorridor(before); err == nil {
				corridor, cerr = c, nil
				q.Room = word + " " + q.Room
			}
		}
	}
	if cerr != nil {
		return nil, cerr
	}
	q.Corridor = corridor

	q.Room, err = r.catalog.MatchRoom(q.Corridor, q.Room)
	if err != nil {
		return nil, err
	}

	slots, err := r.store.Lookup(ctx, models.Key{Corridor: q.Corridor, Room: q.Room, Date: q.Date})
	if err != nil {
		return nil, fmt.Errorf("failed to look up records: %w", err)
	}
	return &Result{Query: q, Slots: slots}, nil
}

func cutLastWord(s string) (before, last string, ok bool) {
	i := strings.LastIndex(s, " ")
	if i <= 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}
