package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the layout used for record dates and query arguments
const DateLayout = "2006-01-02"

// RecordType is the kind of observation made for a room
type RecordType string

const (
	Arrival   RecordType = "arrival"
	Departure RecordType = "departure"
)

// RecordTypes lists the record types in display order
var RecordTypes = []RecordType{Arrival, Departure}

// ParseRecordType converts a string into a RecordType
func ParseRecordType(s string) (RecordType, error) {
	switch RecordType(strings.ToLower(strings.TrimSpace(s))) {
	case Arrival:
		return Arrival, nil
	case Departure:
		return Departure, nil
	}
	return "", fmt.Errorf("unknown record type %q", s)
}

// Label returns the user-facing name of the record type
func (t RecordType) Label() string {
	switch t {
	case Arrival:
		return "Chegada"
	case Departure:
		return "Saída"
	}
	return string(t)
}

// Submitter identifies the inspector who sent a photo
type Submitter struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Key is the composite key records are grouped by
type Key struct {
	Corridor string `json:"corridor"`
	Room     string `json:"room"`
	Date     string `json:"date"`
}

func (k Key) String() string {
	return k.Corridor + "|" + k.Room + "|" + k.Date
}

// Record represents a committed photo registration
type Record struct {
	ID          string     `json:"id"`
	Corridor    string     `json:"corridor"`
	Room        string     `json:"room"`
	Type        RecordType `json:"type"`
	Date        string     `json:"date"`
	CommittedAt time.Time  `json:"committed_at"`
	SubmittedBy Submitter  `json:"submitted_by"`
	PhotoFileID string     `json:"photo_file_id"`
}

// Key returns the composite key of the record
func (r Record) Key() Key {
	return Key{Corridor: r.Corridor, Room: r.Room, Date: r.Date}
}

// Slots holds the arrival and departure records stored under one key
type Slots struct {
	Arrival   *Record `json:"arrival"`
	Departure *Record `json:"departure"`
}

// Get returns the slot for the given record type
func (s Slots) Get(t RecordType) *Record {
	switch t {
	case Arrival:
		return s.Arrival
	case Departure:
		return s.Departure
	}
	return nil
}

// Set stores rec in the slot matching its type
func (s *Slots) Set(rec *Record) {
	switch rec.Type {
	case Arrival:
		s.Arrival = rec
	case Departure:
		s.Departure = rec
	}
}

// Empty reports whether neither slot is filled
func (s Slots) Empty() bool {
	return s.Arrival == nil && s.Departure == nil
}
