package dto

import (
	"time"

	"github.com/yash-parekh715/nuvio/internal/domain"
)

// CreateEventRequest is the admin request to create an event
type CreateEventRequest struct {
	Name        string    `json:"name" binding:"required"`
	Description string    `json:"description"`
	Venue       string    `json:"venue"`
	StartTime   time.Time `json:"start_time" binding:"required"`
	EndTime     time.Time `json:"end_time" binding:"required"`
	Capacity    int       `json:"capacity" binding:"required,min=1"`
	UnitPrice   float64   `json:"unit_price" binding:"min=0"`
}

// UpdateEventRequest is the admin request to update an event
type UpdateEventRequest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Venue       string     `json:"venue"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	UnitPrice   *float64   `json:"unit_price"`
	Status      string     `json:"status"`
	BookingOpen *bool      `json:"booking_open"`
}

// EventResponse is the transport representation of an event
type EventResponse struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Venue             string    `json:"venue"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	TotalCapacity     int       `json:"total_capacity"`
	AvailableCapacity int       `json:"available_capacity"`
	UnitPrice         float64   `json:"unit_price"`
	Status            string    `json:"status"`
	BookingOpen       bool      `json:"booking_open"`
}

// ToEventResponse converts a domain event to its transport form
func ToEventResponse(e *domain.Event) *EventResponse {
	return &EventResponse{
		ID:                e.ID,
		Name:              e.Name,
		Description:       e.Description,
		Venue:             e.Venue,
		StartTime:         e.StartTime,
		EndTime:           e.EndTime,
		TotalCapacity:     e.TotalCapacity,
		AvailableCapacity: e.AvailableCapacity,
		UnitPrice:         e.UnitPrice,
		Status:            e.Status.String(),
		BookingOpen:       e.BookingOpen,
	}
}
