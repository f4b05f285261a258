package models

import (
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar date format used on the wire.
const DateLayout = "2006-01-02"

// Category is a merit category. Events and merit records share it.
type Category string

const (
	CategoryUniversity Category = "UNIVERSITY"
	CategoryFaculty    Category = "FACULTY"
	CategoryCollege    Category = "COLLEGE"
	CategoryClub       Category = "CLUB"
)

// Categories lists every category in display order.
var Categories = []Category{CategoryUniversity, CategoryFaculty, CategoryCollege, CategoryClub}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryUniversity, CategoryFaculty, CategoryCollege, CategoryClub:
		return true
	}
	return false
}

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventStatusUpcoming  EventStatus = "UPCOMING"
	EventStatusOngoing   EventStatus = "ONGOING"
	EventStatusCompleted EventStatus = "COMPLETED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusUpcoming, EventStatusOngoing, EventStatusCompleted, EventStatusCancelled:
		return true
	}
	return false
}

// AcceptsRegistrations reports whether students may still sign up.
func (s EventStatus) AcceptsRegistrations() bool {
	return s == EventStatusUpcoming || s == EventStatusOngoing
}

// Event is a university activity students register for.
type Event struct {
	ID              uuid.UUID   `json:"id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Date            time.Time   `json:"-"`
	Time            string      `json:"time"`
	Location        string      `json:"location"`
	Organizer       string      `json:"organizer"`
	Category        Category    `json:"category"`
	Points          int         `json:"points"`
	Capacity        int         `json:"capacity"`
	Status          EventStatus `json:"status"`
	RegisteredCount int         `json:"registeredCount"`
	ImageURL        *string     `json:"imageUrl,omitempty"`
	ImageKey        *string     `json:"-"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// EventView is Event with the date rendered as YYYY-MM-DD.
type EventView struct {
	Event
	Date string `json:"date"`
}

// View returns the wire representation of e.
func (e Event) View() EventView {
	return EventView{Event: e, Date: e.Date.Format(DateLayout)}
}
