package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Booking errors
	ErrBookingNotFound      = errors.New("booking not found")
	ErrBookingExpired       = errors.New("booking has expired")
	ErrAlreadyCancelled     = errors.New("booking already cancelled")
	ErrInvalidBookingStatus = errors.New("invalid booking status")
	ErrAccessDenied         = errors.New("booking does not belong to user")
	ErrBookingStateChanged  = errors.New("booking changed state concurrently")

	// Event errors
	ErrEventNotFound   = errors.New("event not found")
	ErrEventNotActive  = errors.New("event is not active")
	ErrEventStarted    = errors.New("event has already started")
	ErrBookingClosed   = errors.New("booking is closed for this event")
	ErrEventHasBooking = errors.New("event has active bookings")

	// Capacity errors
	ErrInsufficientCapacity = errors.New("insufficient capacity available")

	// Payment errors
	ErrPaymentIntentNotFound = errors.New("payment intent not found")
	ErrPaymentIntentExpired  = errors.New("payment intent has expired")
	ErrPaymentNotVerified    = errors.New("payment could not be verified")

	// Validation errors
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidBookingID     = errors.New("invalid booking id")
	ErrInvalidEventID       = errors.New("invalid event id")
	ErrInvalidEventName     = errors.New("invalid event name")
	ErrInvalidEventStatus   = errors.New("invalid event status")
	ErrInvalidEventTime     = errors.New("event end time must be after start time")
	ErrInvalidCapacity      = errors.New("invalid event capacity")
	ErrInvalidTicketCount   = errors.New("ticket count must be greater than zero")
	ErrInvalidTotalPrice    = errors.New("total price cannot be negative")
	ErrInvalidUnitPrice     = errors.New("unit price cannot be negative")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
)

// QuotaExceededError reports a per-user ticket cap violation with the
// counts that produced it.
type QuotaExceededError struct {
	Limit     int
	Confirmed int
	Pending   int
	Requested int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("ticket quota exceeded: limit %d, already have %d confirmed and %d pending, requested %d",
		e.Limit, e.Confirmed, e.Pending, e.Requested)
}

// InvalidTransitionError reports an operation attempted against a booking
// in an incompatible status.
type InvalidTransitionError struct {
	Operation string
	Status    BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s booking", e.Operation, e.Status)
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrPaymentIntentNotFound)
}

// IsAccessDeniedError checks if the error is an ownership error
func IsAccessDeniedError(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidBookingID) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidEventName) ||
		errors.Is(err, ErrInvalidEventStatus) ||
		errors.Is(err, ErrInvalidEventTime) ||
		errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrInvalidTicketCount) ||
		errors.Is(err, ErrInvalidTotalPrice) ||
		errors.Is(err, ErrInvalidUnitPrice) ||
		errors.Is(err, ErrInvalidPaymentMethod) ||
		errors.Is(err, ErrInvalidBookingStatus)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	if errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrBookingStateChanged) ||
		errors.Is(err, ErrInsufficientCapacity) ||
		errors.Is(err, ErrEventNotActive) ||
		errors.Is(err, ErrEventStarted) ||
		errors.Is(err, ErrBookingClosed) {
		return true
	}
	var quotaErr *QuotaExceededError
	if errors.As(err, &quotaErr) {
		return true
	}
	var transitionErr *InvalidTransitionError
	return errors.As(err, &transitionErr)
}

// IsExpiredError checks if the error is an expiration error
func IsExpiredError(err error) bool {
	return errors.Is(err, ErrBookingExpired) ||
		errors.Is(err, ErrPaymentIntentExpired)
}
