package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yash-parekh715/nuvio/internal/domain"
)

// MemoryEventRepository implements EventRepository using in-memory storage.
// This is useful for testing and development.
type MemoryEventRepository struct {
	events map[string]*domain.Event
	mu     sync.RWMutex
}

// NewMemoryEventRepository creates a new in-memory event repository
func NewMemoryEventRepository() *MemoryEventRepository {
	return &MemoryEventRepository{events: make(map[string]*domain.Event)}
}

// Create creates a new event record
func (r *MemoryEventRepository) Create(ctx context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Clone to avoid external modifications
	e := *event
	r.events[event.ID] = &e
	return nil
}

// GetByID retrieves an event by its ID
func (r *MemoryEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	event, exists := r.events[id]
	if !exists {
		return nil, domain.ErrEventNotFound
	}
	e := *event
	return &e, nil
}

// Update updates an existing event
func (r *MemoryEventRepository) Update(ctx context.Context, event *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.events[event.ID]
	if !exists {
		return domain.ErrEventNotFound
	}

	e := *event
	e.AvailableCapacity = stored.AvailableCapacity
	e.UpdatedAt = time.Now()
	r.events[event.ID] = &e
	return nil
}

// List retrieves events ordered by start time
func (r *MemoryEventRepository) List(ctx context.Context, limit, offset int) ([]*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*domain.Event, 0, len(r.events))
	for _, event := range r.events {
		e := *event
		all = append(all, &e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.Before(all[j].StartTime) })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// SetBookingOpen toggles whether reservations can be created for the event
func (r *MemoryEventRepository) SetBookingOpen(ctx context.Context, id string, open bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, exists := r.events[id]
	if !exists {
		return domain.ErrEventNotFound
	}
	event.BookingOpen = open
	event.UpdatedAt = time.Now()
	return nil
}

// TryDebitCapacity decrements available capacity only when enough remains
func (r *MemoryEventRepository) TryDebitCapacity(ctx context.Context, id string, n int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, exists := r.events[id]
	if !exists {
		return false, domain.ErrEventNotFound
	}
	if event.AvailableCapacity < n {
		return false, nil
	}
	event.AvailableCapacity -= n
	event.UpdatedAt = time.Now()
	return true, nil
}

// CreditCapacity increments available capacity by n
func (r *MemoryEventRepository) CreditCapacity(ctx context.Context, id string, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	event, exists := r.events[id]
	if !exists {
		return domain.ErrEventNotFound
	}
	event.AvailableCapacity += n
	event.UpdatedAt = time.Now()
	return nil
}

// MemoryBookingRepository implements BookingRepository using in-memory storage
type MemoryBookingRepository struct {
	bookings map[string]*domain.Booking
	mu       sync.RWMutex
}

// NewMemoryBookingRepository creates a new in-memory booking repository
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{bookings: make(map[string]*domain.Booking)}
}

// Create creates a new booking record
func (r *MemoryBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := *booking
	r.bookings[booking.ID] = &b
	return nil
}

// GetByID retrieves a booking by its ID
func (r *MemoryBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	booking, exists := r.bookings[id]
	if !exists {
		return nil, domain.ErrBookingNotFound
	}
	b := *booking
	return &b, nil
}

// GetByUserID retrieves a user's bookings, newest first
func (r *MemoryBookingRepository) GetByUserID(ctx context.Context, userID string, filter BookingFilter) ([]*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*domain.Booking
	for _, booking := range r.bookings {
		if booking.UserID != userID {
			continue
		}
		if filter.Status != "" && booking.Status != filter.Status {
			continue
		}
		if filter.EventID != "" && booking.EventID != filter.EventID {
			continue
		}
		b := *booking
		matched = append(matched, &b)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// Confirm transitions a RESERVED booking to CONFIRMED
func (r *MemoryBookingRepository) Confirm(ctx context.Context, id, paymentIntentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	booking, exists := r.bookings[id]
	if !exists {
		return domain.ErrBookingNotFound
	}
	if booking.Status != domain.BookingStatusReserved {
		return &domain.InvalidTransitionError{Operation: "confirm", Status: booking.Status}
	}

	now := time.Now()
	booking.Status = domain.BookingStatusConfirmed
	booking.PaymentIntentID = paymentIntentID
	booking.PaymentInProgress = false
	booking.ConfirmedAt = &now
	booking.UpdatedAt = now
	return nil
}

// SetPaymentInProgress marks a payment attempt as started on the booking
func (r *MemoryBookingRepository) SetPaymentInProgress(ctx context.Context, id, paymentIntentID string, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	booking, exists := r.bookings[id]
	if !exists || booking.Status != domain.BookingStatusReserved {
		return domain.ErrBookingNotFound
	}
	booking.PaymentIntentID = paymentIntentID
	booking.PaymentInProgress = true
	booking.PaymentStartedAt = &startedAt
	booking.UpdatedAt = time.Now()
	return nil
}

// ClearPaymentInProgress resets the payment-in-progress flag
func (r *MemoryBookingRepository) ClearPaymentInProgress(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	booking, exists := r.bookings[id]
	if !exists {
		return domain.ErrBookingNotFound
	}
	booking.PaymentInProgress = false
	booking.UpdatedAt = time.Now()
	return nil
}

// SumActiveTickets tallies confirmed and unexpired reserved tickets
func (r *MemoryBookingRepository) SumActiveTickets(ctx context.Context, userID, eventID string, now time.Time) (TicketCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var counts TicketCounts
	for _, booking := range r.bookings {
		if booking.UserID != userID || booking.EventID != eventID {
			continue
		}
		switch booking.Status {
		case domain.BookingStatusConfirmed:
			counts.Confirmed += booking.TicketCount
		case domain.BookingStatusReserved:
			if !booking.IsExpiredAt(now) {
				counts.Pending += booking.TicketCount
			}
		}
	}
	return counts, nil
}

// MemoryReservationStore implements ReservationStore over the in-memory
// repositories. A single mutex stands in for the database transaction.
type MemoryReservationStore struct {
	events   *MemoryEventRepository
	bookings *MemoryBookingRepository
	mu       sync.Mutex
}

// NewMemoryReservationStore creates a new in-memory reservation store
func NewMemoryReservationStore(events *MemoryEventRepository, bookings *MemoryBookingRepository) *MemoryReservationStore {
	return &MemoryReservationStore{events: events, bookings: bookings}
}

// CreateReserved debits event capacity and inserts the RESERVED row
func (s *MemoryReservationStore) CreateReserved(ctx context.Context, booking *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	debited, err := s.events.TryDebitCapacity(ctx, booking.EventID, booking.TicketCount)
	if err != nil {
		return err
	}
	if !debited {
		return domain.ErrInsufficientCapacity
	}
	if err := s.bookings.Create(ctx, booking); err != nil {
		_ = s.events.CreditCapacity(ctx, booking.EventID, booking.TicketCount)
		return err
	}
	return nil
}

// CancelRelease persists the cancellation and credits capacity back once
func (s *MemoryReservationStore) CancelRelease(ctx context.Context, booking *domain.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bookings.mu.Lock()
	stored, exists := s.bookings.bookings[booking.ID]
	if !exists {
		s.bookings.mu.Unlock()
		return domain.ErrBookingNotFound
	}
	if stored.Status == domain.BookingStatusCancelled {
		s.bookings.mu.Unlock()
		return domain.ErrAlreadyCancelled
	}
	if stored.Status != booking.Status {
		s.bookings.mu.Unlock()
		return domain.ErrBookingStateChanged
	}

	released := stored.HoldsCapacity()
	stored.Status = domain.BookingStatusCancelled
	stored.RefundStatus = booking.RefundStatus
	stored.RefundAmount = booking.RefundAmount
	stored.RefundID = booking.RefundID
	stored.RefundedAt = booking.RefundedAt
	stored.PaymentInProgress = false
	stored.CancelledAt = booking.CancelledAt
	stored.UpdatedAt = time.Now()
	s.bookings.mu.Unlock()

	if released {
		return s.events.CreditCapacity(ctx, booking.EventID, booking.TicketCount)
	}
	return nil
}

// ReclaimExpired sweeps lapsed holds, credits their capacity back, and
// returns the reclaimed bookings
func (s *MemoryReservationStore) ReclaimExpired(ctx context.Context, now time.Time, grace time.Duration) ([]*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	perEvent := make(map[string]int)
	var reclaimed []*domain.Booking

	s.bookings.mu.Lock()
	for _, booking := range s.bookings.bookings {
		if !booking.ReclaimableAt(now, grace) {
			continue
		}
		booking.Status = domain.BookingStatusCancelled
		booking.PaymentInProgress = false
		cancelledAt := now
		booking.CancelledAt = &cancelledAt
		booking.UpdatedAt = now
		perEvent[booking.EventID] += booking.TicketCount

		b := *booking
		reclaimed = append(reclaimed, &b)
	}
	s.bookings.mu.Unlock()

	for eventID, tickets := range perEvent {
		if err := s.events.CreditCapacity(ctx, eventID, tickets); err != nil {
			return reclaimed, err
		}
	}
	return reclaimed, nil
}

// Interface conformance checks
var (
	_ EventRepository   = (*MemoryEventRepository)(nil)
	_ BookingRepository = (*MemoryBookingRepository)(nil)
	_ ReservationStore  = (*MemoryReservationStore)(nil)
)
