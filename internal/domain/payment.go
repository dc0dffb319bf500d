package domain

import (
	"time"
)

// PaymentIntentStatus represents the status of a payment intent
type PaymentIntentStatus string

const (
	PaymentIntentStatusPending   PaymentIntentStatus = "pending"
	PaymentIntentStatusSucceeded PaymentIntentStatus = "succeeded"
	PaymentIntentStatusFailed    PaymentIntentStatus = "failed"
	PaymentIntentStatusExpired   PaymentIntentStatus = "expired"
)

// PaymentIntent represents a payment attempt created for a reservation
type PaymentIntent struct {
	ID        string              `json:"id"`
	BookingID string              `json:"booking_id"`
	Amount    float64             `json:"amount"`
	Currency  string              `json:"currency"`
	Method    string              `json:"method"`
	Status    PaymentIntentStatus `json:"status"`
	ExpiresAt time.Time           `json:"expires_at"`
	CreatedAt time.Time           `json:"created_at"`
}

// IsExpiredAt checks if the payment intent is expired at a specific time
func (p *PaymentIntent) IsExpiredAt(t time.Time) bool {
	return t.After(p.ExpiresAt)
}

// Refund represents a refund issued against a payment intent.
// At most one refund exists per payment intent.
type Refund struct {
	ID              string    `json:"id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	Amount          float64   `json:"amount"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
}
