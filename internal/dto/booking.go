package dto

import (
	"time"

	"github.com/yash-parekh715/nuvio/internal/domain"
)

// CreateReservationRequest is the request to reserve tickets
type CreateReservationRequest struct {
	EventID     string `json:"event_id" binding:"required"`
	TicketCount int    `json:"ticket_count" binding:"required,min=1"`
}

// ConfirmReservationRequest is the request to confirm a reservation
type ConfirmReservationRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
}

// PaymentOptionsRequest is the request for payment options on a reservation
type PaymentOptionsRequest struct {
	Method string `json:"method"`
}

// ListBookingsQuery narrows the booking listing
type ListBookingsQuery struct {
	Status   string `form:"status"`
	EventID  string `form:"event_id"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// BookingResponse is the transport representation of a booking
type BookingResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	EventID         string     `json:"event_id"`
	TicketCount     int        `json:"ticket_count"`
	UnitPrice       float64    `json:"unit_price"`
	TotalPrice      float64    `json:"total_price"`
	Status          string     `json:"status"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	PaymentIntentID string     `json:"payment_intent_id,omitempty"`
	RefundStatus    string     `json:"refund_status,omitempty"`
	RefundAmount    float64    `json:"refund_amount,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// CancellationResponse reports the cancellation and refund outcome
type CancellationResponse struct {
	Booking      *BookingResponse `json:"booking"`
	RefundStatus string           `json:"refund_status"`
	RefundAmount float64          `json:"refund_amount"`
}

// PaymentOptionsResponse carries the payment intent opened for a reservation
type PaymentOptionsResponse struct {
	BookingID       string    `json:"booking_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Amount          float64   `json:"amount"`
	Currency        string    `json:"currency"`
	IntentExpiresAt time.Time `json:"intent_expires_at"`
}

// PaginatedBookingsResponse is a page of bookings
type PaginatedBookingsResponse struct {
	Bookings []*BookingResponse `json:"bookings"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// ToBookingResponse converts a domain booking to its transport form
func ToBookingResponse(b *domain.Booking) *BookingResponse {
	resp := &BookingResponse{
		ID:              b.ID,
		UserID:          b.UserID,
		EventID:         b.EventID,
		TicketCount:     b.TicketCount,
		UnitPrice:       b.UnitPrice,
		TotalPrice:      b.TotalPrice,
		Status:          b.Status.String(),
		PaymentIntentID: b.PaymentIntentID,
		RefundStatus:    string(b.RefundStatus),
		RefundAmount:    b.RefundAmount,
		ConfirmedAt:     b.ConfirmedAt,
		CancelledAt:     b.CancelledAt,
		CreatedAt:       b.CreatedAt,
	}
	if b.Status == domain.BookingStatusReserved {
		expiresAt := b.ExpiresAt
		resp.ExpiresAt = &expiresAt
	}
	return resp
}
