package domain

import (
	"strings"
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusReserved      BookingStatus = "reserved"
	BookingStatusConfirmed     BookingStatus = "confirmed"
	BookingStatusCancelled     BookingStatus = "cancelled"
	BookingStatusPaymentFailed BookingStatus = "payment_failed"
)

// IsValid checks if the status is a valid BookingStatus
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusReserved, BookingStatusConfirmed, BookingStatusCancelled, BookingStatusPaymentFailed:
		return true
	}
	return false
}

// String returns the string representation of BookingStatus
func (s BookingStatus) String() string {
	return string(s)
}

// RefundStatus represents the refund outcome recorded on a cancelled booking
type RefundStatus string

const (
	RefundStatusFull    RefundStatus = "full_refund"
	RefundStatusPartial RefundStatus = "partial_refund"
	RefundStatusNone    RefundStatus = "no_refund"
	RefundStatusFailed  RefundStatus = "refund_failed"
)

// Booking represents a reservation on the ledger. A booking starts as a
// RESERVED hold against event capacity, then either converts to CONFIRMED
// on payment or releases its capacity via cancellation or expiry.
type Booking struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	EventID     string        `json:"event_id"`
	TicketCount int           `json:"ticket_count"`
	UnitPrice   float64       `json:"unit_price"`
	TotalPrice  float64       `json:"total_price"`
	Status      BookingStatus `json:"status"`

	// Hold expiry, meaningful only while the booking is RESERVED.
	ExpiresAt time.Time `json:"expires_at"`

	PaymentIntentID   string     `json:"payment_intent_id,omitempty"`
	PaymentInProgress bool       `json:"payment_in_progress"`
	PaymentStartedAt  *time.Time `json:"payment_started_at,omitempty"`

	RefundStatus RefundStatus `json:"refund_status,omitempty"`
	RefundAmount float64      `json:"refund_amount,omitempty"`
	RefundID     string       `json:"refund_id,omitempty"`
	RefundedAt   *time.Time   `json:"refunded_at,omitempty"`

	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate validates all booking fields
func (b *Booking) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrInvalidBookingID
	}
	if strings.TrimSpace(b.UserID) == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(b.EventID) == "" {
		return ErrInvalidEventID
	}
	if b.TicketCount <= 0 {
		return ErrInvalidTicketCount
	}
	if b.TotalPrice < 0 {
		return ErrInvalidTotalPrice
	}
	if !b.Status.IsValid() {
		return ErrInvalidBookingStatus
	}
	return nil
}

// IsExpiredAt checks if the hold has lapsed at a specific time.
// Only meaningful while the booking is RESERVED.
func (b *Booking) IsExpiredAt(t time.Time) bool {
	return t.After(b.ExpiresAt)
}

// CanConfirmAt checks if the booking can be confirmed at a specific time
func (b *Booking) CanConfirmAt(t time.Time) bool {
	return b.Status == BookingStatusReserved && !b.IsExpiredAt(t)
}

// CanCancel checks if the booking can be cancelled
func (b *Booking) CanCancel() bool {
	return b.Status != BookingStatusCancelled
}

// IsReserved checks if the booking is in reserved status
func (b *Booking) IsReserved() bool {
	return b.Status == BookingStatusReserved
}

// IsConfirmed checks if the booking is in confirmed status
func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingStatusConfirmed
}

// IsCancelled checks if the booking is in cancelled status
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// BelongsToUser checks if the booking belongs to the specified user
func (b *Booking) BelongsToUser(userID string) bool {
	return b.UserID == userID
}

// HoldsCapacity reports whether the booking still holds event capacity.
// Capacity is released exactly once, at the cancel or expiry transition.
func (b *Booking) HoldsCapacity() bool {
	return b.Status == BookingStatusReserved || b.Status == BookingStatusConfirmed
}

// InPaymentGraceAt reports whether an in-flight payment should protect
// this hold from reclamation at a specific time.
func (b *Booking) InPaymentGraceAt(t time.Time, grace time.Duration) bool {
	if !b.PaymentInProgress || b.PaymentStartedAt == nil {
		return false
	}
	return t.Sub(*b.PaymentStartedAt) < grace
}

// ReclaimableAt reports whether the reconciler may reclaim this hold.
// A lapsed hold with a recently initiated payment stays protected.
func (b *Booking) ReclaimableAt(t time.Time, grace time.Duration) bool {
	if b.Status != BookingStatusReserved {
		return false
	}
	if !b.IsExpiredAt(t) {
		return false
	}
	return !b.InPaymentGraceAt(t, grace)
}
