package gateway

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"

	"github.com/yash-parekh715/nuvio/internal/domain"
)

// StripeGateway implements PaymentGateway using Stripe
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds configuration for Stripe gateway
type StripeGatewayConfig struct {
	SecretKey   string
	Environment string // "test" or "live"
	IntentTTL   time.Duration
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	if config.IntentTTL <= 0 {
		config.IntentTTL = 15 * time.Minute
	}

	// Set Stripe API key globally
	stripe.Key = config.SecretKey

	return &StripeGateway{config: config}, nil
}

// CreateIntent creates a Stripe PaymentIntent for a reservation
func (g *StripeGateway) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*domain.PaymentIntent, error) {
	if req == nil {
		return nil, fmt.Errorf("create intent request is required")
	}

	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}

	amountInCents := minorUnits(req.Amount)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{"booking_id": req.BookingID},
	}
	for k, v := range req.Metadata {
		params.Metadata[k] = v
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	now := time.Now()
	return &domain.PaymentIntent{
		ID:        pi.ID,
		BookingID: req.BookingID,
		Amount:    req.Amount,
		Currency:  currency,
		Method:    req.Method,
		Status:    domain.PaymentIntentStatusPending,
		ExpiresAt: now.Add(g.config.IntentTTL),
		CreatedAt: now,
	}, nil
}

// VerifyPayment fetches the intent from Stripe and reports whether it
// actually succeeded
func (g *StripeGateway) VerifyPayment(ctx context.Context, intentID string) (bool, error) {
	if intentID == "" {
		return false, fmt.Errorf("payment intent ID is required")
	}

	pi, err := paymentintent.Get(intentID, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get payment intent: %w", err)
	}

	return pi.Status == stripe.PaymentIntentStatusSucceeded, nil
}

// ProcessRefund issues a refund through Stripe. The idempotency key is
// derived from the intent so a retried call cannot create a second refund.
func (g *StripeGateway) ProcessRefund(ctx context.Context, intentID string, amount float64, reason string) (*domain.Refund, error) {
	if intentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}

	amountInCents := minorUnits(amount)

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Amount:        stripe.Int64(amountInCents),
	}
	params.IdempotencyKey = stripe.String("refund-" + intentID)

	re, err := refund.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	return &domain.Refund{
		ID:              re.ID,
		PaymentIntentID: intentID,
		Amount:          float64(re.Amount) / 100,
		Status:          string(re.Status),
		Reason:          reason,
		CreatedAt:       time.Unix(re.Created, 0),
	}, nil
}

// minorUnits converts a decimal amount to the smallest currency unit.
// Rounded, not truncated: 19.99 is not exactly representable and would
// otherwise lose a cent.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return "stripe"
}

// Ensure StripeGateway implements PaymentGateway
var _ PaymentGateway = (*StripeGateway)(nil)
