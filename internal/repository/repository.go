package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yash-parekh715/nuvio/internal/domain"
)

// BookingFilter narrows booking listing queries
type BookingFilter struct {
	Status  domain.BookingStatus
	EventID string
	Limit   int
	Offset  int
}

// TicketCounts holds a user's active ticket tally for one event
type TicketCounts struct {
	Confirmed int
	Pending   int
}

// Total returns the combined active ticket count
func (c TicketCounts) Total() int {
	return c.Confirmed + c.Pending
}

// EventRepository defines data access for events and their capacity pair
type EventRepository interface {
	Create(ctx context.Context, event *domain.Event) error
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	Update(ctx context.Context, event *domain.Event) error
	List(ctx context.Context, limit, offset int) ([]*domain.Event, error)
	SetBookingOpen(ctx context.Context, id string, open bool) error

	// TryDebitCapacity decrements available capacity by n only when at
	// least n is available, as a single conditional update. Returns false
	// when capacity is insufficient.
	TryDebitCapacity(ctx context.Context, id string, n int) (bool, error)

	// CreditCapacity increments available capacity by n. Not conditioned
	// on event status so capacity stays reclaimable for cancelled events.
	CreditCapacity(ctx context.Context, id string, n int) error
}

// BookingRepository defines data access for the reservation ledger
type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	GetByUserID(ctx context.Context, userID string, filter BookingFilter) ([]*domain.Booking, error)
	Confirm(ctx context.Context, id, paymentIntentID string) error
	SetPaymentInProgress(ctx context.Context, id, paymentIntentID string, startedAt time.Time) error
	ClearPaymentInProgress(ctx context.Context, id string) error

	// SumActiveTickets tallies the user's confirmed tickets and
	// still-unexpired reserved tickets for an event.
	SumActiveTickets(ctx context.Context, userID, eventID string, now time.Time) (TicketCounts, error)
}

// ReservationStore runs the multi-table atomic units of the reservation
// lifecycle. Each method is one transaction, retried as a whole on
// deadlock or serialization failure.
type ReservationStore interface {
	// CreateReserved debits event capacity and inserts the RESERVED row
	// in one transaction.
	CreateReserved(ctx context.Context, booking *domain.Booking) error

	// CancelRelease locks the booking row, applies the cancellation
	// fields already set on the booking, and credits capacity back when
	// the booking still held it. Fails with ErrBookingStateChanged when
	// the locked row is no longer in the status carried by the booking
	// snapshot, so refund decisions never apply to a moved row.
	CancelRelease(ctx context.Context, booking *domain.Booking) error

	// ReclaimExpired transitions every reclaimable hold to CANCELLED and
	// credits each affected event's capacity, batched in one transaction.
	// Returns the reclaimed bookings.
	ReclaimExpired(ctx context.Context, now time.Time, grace time.Duration) ([]*domain.Booking, error)
}

// row abstracts pgx.Row and pgx.Rows scanning
type row interface {
	Scan(dest ...any) error
}

var _ row = (pgx.Row)(nil)
