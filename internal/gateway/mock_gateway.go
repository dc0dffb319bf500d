package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yash-parekh715/nuvio/internal/domain"
)

// alphanumericChars for generating Stripe-compatible IDs
const alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomAlphanumeric generates a random alphanumeric string of given length
func randomAlphanumeric(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanumericChars[rand.Intn(len(alphanumericChars))]
	}
	return string(b)
}

// MockGateway implements PaymentGateway for testing and load testing
type MockGateway struct {
	config  *MockGatewayConfig
	intents sync.Map // intentID -> *domain.PaymentIntent
	refunds sync.Map // intentID -> *domain.Refund

	mu sync.RWMutex
}

// MockGatewayConfig holds configuration for the mock gateway
type MockGatewayConfig struct {
	// SuccessRate is the probability a payment verifies (0.0 to 1.0)
	SuccessRate float64

	// DelayMs is the simulated processing delay in milliseconds
	DelayMs int

	// FailRefunds makes every refund attempt fail, for exercising the
	// refund-failure path
	FailRefunds bool

	// IntentTTL is how long created intents stay payable
	IntentTTL time.Duration
}

// DefaultMockGatewayConfig returns default configuration
func DefaultMockGatewayConfig() *MockGatewayConfig {
	return &MockGatewayConfig{
		SuccessRate: 1.0,
		DelayMs:     0,
		IntentTTL:   15 * time.Minute,
	}
}

// NewMockGateway creates a new mock gateway
func NewMockGateway(config *MockGatewayConfig) *MockGateway {
	if config == nil {
		config = DefaultMockGatewayConfig()
	}
	if config.SuccessRate < 0 {
		config.SuccessRate = 0
	}
	if config.SuccessRate > 1 {
		config.SuccessRate = 1
	}
	if config.IntentTTL <= 0 {
		config.IntentTTL = 15 * time.Minute
	}
	return &MockGateway{config: config}
}

func (g *MockGateway) delay(ctx context.Context) error {
	if g.config.DelayMs <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Duration(g.config.DelayMs) * time.Millisecond):
		return nil
	}
}

// CreateIntent opens a mock payment attempt
func (g *MockGateway) CreateIntent(ctx context.Context, req *CreateIntentRequest) (*domain.PaymentIntent, error) {
	if req == nil {
		return nil, fmt.Errorf("create intent request is required")
	}
	if err := g.delay(ctx); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}

	now := time.Now()
	intent := &domain.PaymentIntent{
		ID:        fmt.Sprintf("pi_mock_%s", randomAlphanumeric(24)),
		BookingID: req.BookingID,
		Amount:    req.Amount,
		Currency:  currency,
		Method:    req.Method,
		Status:    domain.PaymentIntentStatusPending,
		ExpiresAt: now.Add(g.config.IntentTTL),
		CreatedAt: now,
	}
	g.intents.Store(intent.ID, intent)
	return intent, nil
}

// VerifyPayment reports payment success, settling pending intents by the
// configured success rate on first verification
func (g *MockGateway) VerifyPayment(ctx context.Context, intentID string) (bool, error) {
	if intentID == "" {
		return false, fmt.Errorf("payment intent ID is required")
	}
	if err := g.delay(ctx); err != nil {
		return false, err
	}

	stored, ok := g.intents.Load(intentID)
	if !ok {
		return false, fmt.Errorf("payment intent not found: %s", intentID)
	}
	intent := stored.(*domain.PaymentIntent)

	g.mu.Lock()
	defer g.mu.Unlock()

	if intent.Status == domain.PaymentIntentStatusPending {
		if rand.Float64() < g.config.SuccessRate {
			intent.Status = domain.PaymentIntentStatusSucceeded
		} else {
			intent.Status = domain.PaymentIntentStatusFailed
		}
		g.intents.Store(intentID, intent)
	}

	return intent.Status == domain.PaymentIntentStatusSucceeded, nil
}

// ProcessRefund issues a mock refund, at most once per payment intent.
// Repeat calls return the refund created the first time.
func (g *MockGateway) ProcessRefund(ctx context.Context, intentID string, amount float64, reason string) (*domain.Refund, error) {
	if intentID == "" {
		return nil, fmt.Errorf("payment intent ID is required")
	}
	if err := g.delay(ctx); err != nil {
		return nil, err
	}
	if g.config.FailRefunds {
		return nil, fmt.Errorf("refund processing unavailable")
	}

	if _, ok := g.intents.Load(intentID); !ok {
		return nil, fmt.Errorf("payment intent not found: %s", intentID)
	}

	refund := &domain.Refund{
		ID:              fmt.Sprintf("re_mock_%s", uuid.New().String()[:12]),
		PaymentIntentID: intentID,
		Amount:          amount,
		Status:          "succeeded",
		Reason:          reason,
		CreatedAt:       time.Now(),
	}
	existing, loaded := g.refunds.LoadOrStore(intentID, refund)
	if loaded {
		return existing.(*domain.Refund), nil
	}
	return refund, nil
}

// Name returns the gateway name
func (g *MockGateway) Name() string {
	return "mock"
}

// MarkSucceeded forces an intent into the succeeded state (for testing)
func (g *MockGateway) MarkSucceeded(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if stored, ok := g.intents.Load(intentID); ok {
		intent := stored.(*domain.PaymentIntent)
		intent.Status = domain.PaymentIntentStatusSucceeded
		g.intents.Store(intentID, intent)
	}
}

// SetSuccessRate updates the success rate (for testing)
func (g *MockGateway) SetSuccessRate(rate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	g.config.SuccessRate = rate
}

// Ensure MockGateway implements PaymentGateway
var _ PaymentGateway = (*MockGateway)(nil)
