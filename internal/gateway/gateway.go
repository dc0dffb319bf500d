// Package gateway abstracts the external payment collaborator. The
// reservation engine never assumes payment success from caller input; it
// verifies through this interface.
package gateway

import (
	"context"

	"github.com/yash-parekh715/nuvio/internal/domain"
)

// CreateIntentRequest carries what the gateway needs to open a payment
// attempt for a reservation
type CreateIntentRequest struct {
	BookingID string
	Amount    float64
	Currency  string
	Method    string
	Metadata  map[string]string
}

// PaymentGateway defines the payment collaborator contract
type PaymentGateway interface {
	// CreateIntent opens a payment attempt for a reservation
	CreateIntent(ctx context.Context, req *CreateIntentRequest) (*domain.PaymentIntent, error)

	// VerifyPayment reports whether the intent has actually succeeded,
	// fetched from the gateway rather than trusted from the caller
	VerifyPayment(ctx context.Context, intentID string) (bool, error)

	// ProcessRefund issues a refund against a payment intent. Idempotent
	// per intent: a second call returns the existing refund.
	ProcessRefund(ctx context.Context, intentID string, amount float64, reason string) (*domain.Refund, error)

	// Name returns the gateway name
	Name() string
}
