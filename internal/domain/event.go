package domain

import (
	"time"
)

// EventStatus represents the status of an event
type EventStatus string

const (
	EventStatusActive    EventStatus = "active"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusCompleted EventStatus = "completed"
)

// IsValid checks if the status is a valid EventStatus
func (s EventStatus) IsValid() bool {
	switch s {
	case EventStatusActive, EventStatusCancelled, EventStatusCompleted:
		return true
	}
	return false
}

// String returns the string representation of EventStatus
func (s EventStatus) String() string {
	return string(s)
}

// Event represents an event entity with its capacity pair
type Event struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Description       string      `json:"description"`
	Venue             string      `json:"venue"`
	StartTime         time.Time   `json:"start_time"`
	EndTime           time.Time   `json:"end_time"`
	TotalCapacity     int         `json:"total_capacity"`
	AvailableCapacity int         `json:"available_capacity"`
	UnitPrice         float64     `json:"unit_price"`
	Status            EventStatus `json:"status"`
	BookingOpen       bool        `json:"booking_open"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// IsActive checks if the event is in active status
func (e *Event) IsActive() bool {
	return e.Status == EventStatusActive
}

// HasStartedAt checks if the event has started at a specific time
func (e *Event) HasStartedAt(t time.Time) bool {
	return !t.Before(e.StartTime)
}

// HasEndedAt checks if the event has ended at a specific time
func (e *Event) HasEndedAt(t time.Time) bool {
	return !t.Before(e.EndTime)
}

// EffectiveStatusAt returns the status as of a specific time. Active events
// lapse into completed once their end time passes, without a write.
func (e *Event) EffectiveStatusAt(t time.Time) EventStatus {
	if e.Status == EventStatusActive && e.HasEndedAt(t) {
		return EventStatusCompleted
	}
	return e.Status
}

// IsBookableAt checks if reservations can be created at a specific time
func (e *Event) IsBookableAt(t time.Time) bool {
	return e.IsActive() && e.BookingOpen && !e.HasStartedAt(t)
}

// DaysUntilStart returns the number of days until the event starts,
// rounded up to whole days. Non-positive when the event has started.
func (e *Event) DaysUntilStart(now time.Time) int {
	remaining := e.StartTime.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// Validate validates all event fields
func (e *Event) Validate() error {
	if e.ID == "" {
		return ErrInvalidEventID
	}
	if e.Name == "" {
		return ErrInvalidEventName
	}
	if e.TotalCapacity <= 0 {
		return ErrInvalidCapacity
	}
	if e.AvailableCapacity < 0 || e.AvailableCapacity > e.TotalCapacity {
		return ErrInvalidCapacity
	}
	if e.UnitPrice < 0 {
		return ErrInvalidUnitPrice
	}
	if !e.Status.IsValid() {
		return ErrInvalidEventStatus
	}
	if !e.EndTime.After(e.StartTime) {
		return ErrInvalidEventTime
	}
	return nil
}
