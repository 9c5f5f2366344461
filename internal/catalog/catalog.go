// Package catalog holds the static directory of corridors and their rooms.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrNotFound is returned for corridors or rooms that are not in the catalog
var ErrNotFound = errors.New("not found in catalog")

// MaxNameBytes bounds corridor and room names so they fit in Telegram's
// 64-byte callback data after the longest button prefix ("corridor:").
const MaxNameBytes = 55

// Corridor is a named zone with an ordered list of rooms
type Corridor struct {
	Name  string   `json:"name"`
	Rooms []string `json:"rooms"`
}

// Catalog is an immutable corridor -> rooms lookup table
type Catalog struct {
	order []string
	rooms map[string][]string
}

// New builds a catalog from the given corridors, preserving their order
func New(corridors []Corridor) (*Catalog, error) {
	if len(corridors) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one corridor")
	}

	c := &Catalog{rooms: make(map[string][]string, len(corridors))}
	for _, corridor := range corridors {
		name := strings.TrimSpace(corridor.Name)
		if name == "" {
			return nil, fmt.Errorf("corridor name must not be empty")
		}
		if len(name) > MaxNameBytes {
			return nil, fmt.Errorf("corridor %q is longer than %d bytes", name, MaxNameBytes)
		}
		if _, dup := c.rooms[name]; dup {
			return nil, fmt.Errorf("duplicate corridor %q", name)
		}
		if len(corridor.Rooms) == 0 {
			return nil, fmt.Errorf("corridor %q has no rooms", name)
		}

		seen := make(map[string]bool, len(corridor.Rooms))
		rooms := make([]string, 0, len(corridor.Rooms))
		for _, room := range corridor.Rooms {
			room = strings.TrimSpace(room)
			if room == "" || seen[room] {
				return nil, fmt.Errorf("corridor %q has an empty or duplicate room %q", name, room)
			}
			if len(room) > MaxNameBytes {
				return nil, fmt.Errorf("room %q of corridor %q is longer than %d bytes", room, name, MaxNameBytes)
			}
			seen[room] = true
			rooms = append(rooms, room)
		}

		c.order = append(c.order, name)
		c.rooms[name] = rooms
	}
	return c, nil
}

// Load reads a catalog from a JSON file
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file struct {
		Corridors []Corridor `json:"corridors"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return New(file.Corridors)
}

// Default returns the catalog of the building the bot was first deployed in
func Default() *Catalog {
	c, err := New([]Corridor{
		{Name: "Corredor A Térreo", Rooms: roomRange(1, 19, 2)},
		{Name: "Corredor B Térreo", Rooms: roomRange(41, 51, 0)},
		{Name: "Corredor C Térreo", Rooms: roomRange(80, 88, 0)},
		{Name: "Corredor A 1º Piso", Rooms: roomRange(20, 40, 0)},
		{Name: "Corredor B 1º Piso", Rooms: roomRange(53, 68, 0)},
		{Name: "Corredor C 1º Piso", Rooms: roomRange(89, 99, 0)},
	})
	if err != nil {
		panic(err)
	}
	return c
}

func roomRange(first, last, width int) []string {
	rooms := make([]string, 0, last-first+1)
	for i := first; i <= last; i++ {
		rooms = append(rooms, fmt.Sprintf("Sala %0*d", width, i))
	}
	return rooms
}

// Corridors returns the corridor names in catalog order
func (c *Catalog) Corridors() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// RoomsFor returns the rooms of a corridor in catalog order
func (c *Catalog) RoomsFor(corridor string) ([]string, error) {
	rooms, ok := c.rooms[corridor]
	if !ok {
		return nil, fmt.Errorf("corridor %q: %w", corridor, ErrNotFound)
	}
	out := make([]string, len(rooms))
	copy(out, rooms)
	return out, nil
}

// HasRoom reports whether room belongs to corridor
func (c *Catalog) HasRoom(corridor, room string) bool {
	for _, r := range c.rooms[corridor] {
		if r == room {
			return true
		}
	}
	return false
}

// MatchCorridor resolves user input to a corridor name, ignoring case
func (c *Catalog) MatchCorridor(input string) (string, error) {
	input = strings.TrimSpace(input)
	for _, name := range c.order {
		if strings.EqualFold(name, input) {
			return name, nil
		}
	}
	return "", fmt.Errorf("corridor %q: %w", input, ErrNotFound)
}

// MatchRoom resolves user input to a room label of the corridor.
// "Sala 07", "07" and "7" all match the label "Sala 07".
func (c *Catalog) MatchRoom(corridor, input string) (string, error) {
	rooms, err := c.RoomsFor(corridor)
	if err != nil {
		return "", err
	}

	input = strings.TrimSpace(input)
	for _, room := range rooms {
		if strings.EqualFold(room, input) {
			return room, nil
		}
	}

	want, ok := roomNumber(input)
	if ok {
		for _, room := range rooms {
			if n, ok := roomNumber(room); ok && n == want {
				return room, nil
			}
		}
	}
	return "", fmt.Errorf("room %q in %q: %w", input, corridor, ErrNotFound)
}

func roomNumber(label string) (int, bool) {
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}
