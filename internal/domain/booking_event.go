package domain

import (
	"time"
)

// BookingEventType represents the type of booking event
type BookingEventType string

const (
	BookingEventCreated   BookingEventType = "booking.created"
	BookingEventConfirmed BookingEventType = "booking.confirmed"
	BookingEventCancelled BookingEventType = "booking.cancelled"
	BookingEventExpired   BookingEventType = "booking.expired"
)

// BookingEvent represents a booking domain event published to Kafka
type BookingEvent struct {
	EventID     string            `json:"event_id"`
	EventType   BookingEventType  `json:"event_type"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Version     int               `json:"version"`
	BookingData *BookingEventData `json:"data"`
}

// BookingEventData contains the booking data in the event
type BookingEventData struct {
	BookingID    string        `json:"booking_id"`
	UserID       string        `json:"user_id"`
	EventID      string        `json:"event_id"`
	TicketCount  int           `json:"ticket_count"`
	UnitPrice    float64       `json:"unit_price"`
	TotalPrice   float64       `json:"total_price"`
	Status       BookingStatus `json:"status"`
	RefundStatus RefundStatus  `json:"refund_status,omitempty"`
	RefundAmount float64       `json:"refund_amount,omitempty"`
	ConfirmedAt  *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt  *time.Time    `json:"cancelled_at,omitempty"`
	ExpiresAt    time.Time     `json:"expires_at"`
}

// NewBookingEvent builds a booking event envelope from a booking
func NewBookingEvent(eventType BookingEventType, booking *Booking, eventID string) *BookingEvent {
	return &BookingEvent{
		EventID:    eventID,
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Version:    1,
		BookingData: &BookingEventData{
			BookingID:    booking.ID,
			UserID:       booking.UserID,
			EventID:      booking.EventID,
			TicketCount:  booking.TicketCount,
			UnitPrice:    booking.UnitPrice,
			TotalPrice:   booking.TotalPrice,
			Status:       booking.Status,
			RefundStatus: booking.RefundStatus,
			RefundAmount: booking.RefundAmount,
			ConfirmedAt:  booking.ConfirmedAt,
			CancelledAt:  booking.CancelledAt,
			ExpiresAt:    booking.ExpiresAt,
		},
	}
}

// Key returns the partition key for the event. Events for the same booking
// keep their relative order.
func (e *BookingEvent) Key() string {
	if e.BookingData == nil {
		return e.EventID
	}
	return e.BookingData.BookingID
}
