package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yash-parekh715/nuvio/internal/domain"
	"github.com/yash-parekh715/nuvio/internal/dto"
	"github.com/yash-parekh715/nuvio/internal/gateway"
	"github.com/yash-parekh715/nuvio/internal/repository"
	"github.com/yash-parekh715/nuvio/pkg/lock"
)

type serviceFixture struct {
	service  ReservationService
	events   *repository.MemoryEventRepository
	bookings *repository.MemoryBookingRepository
	gateway  *gateway.MockGateway
	now      time.Time
}

func newFixture(t *testing.T, gwCfg *gateway.MockGatewayConfig) *serviceFixture {
	t.Helper()

	events := repository.NewMemoryEventRepository()
	bookings := repository.NewMemoryBookingRepository()
	store := repository.NewMemoryReservationStore(events, bookings)
	gw := gateway.NewMockGateway(gwCfg)
	locker := lock.NewLocalLocker()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	f := &serviceFixture{
		events:   events,
		bookings: bookings,
		gateway:  gw,
		now:      now,
	}
	f.service = NewReservationService(events, bookings, store, gw, locker, nil, &ReservationServiceConfig{
		HoldTTL:           15 * time.Minute,
		MaxTicketsPerUser: 4,
		PaymentGrace:      10 * time.Minute,
		LockTTL:           30 * time.Second,
		Clock:             func() time.Time { return f.now },
	})
	return f
}

func (f *serviceFixture) addEvent(t *testing.T, capacity int, startsIn time.Duration) *domain.Event {
	t.Helper()
	event := &domain.Event{
		ID:                uuid.New().String(),
		Name:              "Test Event",
		StartTime:         f.now.Add(startsIn),
		EndTime:           f.now.Add(startsIn + 3*time.Hour),
		TotalCapacity:     capacity,
		AvailableCapacity: capacity,
		UnitPrice:         50,
		Status:            domain.EventStatusActive,
		BookingOpen:       true,
		CreatedAt:         f.now,
		UpdatedAt:         f.now,
	}
	require.NoError(t, f.events.Create(context.Background(), event))
	return event
}

func (f *serviceFixture) reserve(t *testing.T, userID, eventID string, tickets int) *dto.BookingResponse {
	t.Helper()
	resp, err := f.service.CreateReservation(context.Background(), userID, &dto.CreateReservationRequest{
		EventID:     eventID,
		TicketCount: tickets,
	})
	require.NoError(t, err)
	return resp
}

// confirmPaid walks a reservation through payment options and confirmation
func (f *serviceFixture) confirmPaid(t *testing.T, bookingID, userID string) *dto.BookingResponse {
	t.Helper()
	ctx := context.Background()

	options, err := f.service.GetPaymentOptions(ctx, bookingID, userID, &dto.PaymentOptionsRequest{Method: "card"})
	require.NoError(t, err)
	f.gateway.MarkSucceeded(options.PaymentIntentID)

	confirmed, err := f.service.ConfirmReservation(ctx, bookingID, userID, &dto.ConfirmReservationRequest{
		PaymentIntentID: options.PaymentIntentID,
	})
	require.NoError(t, err)
	return confirmed
}

func TestCreateReservation_Success(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 100, 30*24*time.Hour)

	resp := f.reserve(t, "user-1", event.ID, 3)
	assert.Equal(t, domain.BookingStatusReserved.String(), resp.Status)
	assert.Equal(t, 3, resp.TicketCount)
	assert.Equal(t, 150.0, resp.TotalPrice)
	require.NotNil(t, resp.ExpiresAt)
	assert.Equal(t, f.now.Add(15*time.Minute), *resp.ExpiresAt)

	got, err := f.events.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 97, got.AvailableCapacity)
}

func TestCreateReservation_Preconditions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	t.Run("event not found", func(t *testing.T) {
		_, err := f.service.CreateReservation(ctx, "user-1", &dto.CreateReservationRequest{EventID: "missing", TicketCount: 1})
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	})

	t.Run("event not active", func(t *testing.T) {
		event := f.addEvent(t, 10, 24*time.Hour)
		event.Status = domain.EventStatusCancelled
		require.NoError(t, f.events.Update(ctx, event))
		_, err := f.service.CreateReservation(ctx, "user-1", &dto.CreateReservationRequest{EventID: event.ID, TicketCount: 1})
		assert.ErrorIs(t, err, domain.ErrEventNotActive)
	})

	t.Run("booking closed", func(t *testing.T) {
		event := f.addEvent(t, 10, 24*time.Hour)
		require.NoError(t, f.events.SetBookingOpen(ctx, event.ID, false))
		_, err := f.service.CreateReservation(ctx, "user-1", &dto.CreateReservationRequest{EventID: event.ID, TicketCount: 1})
		assert.ErrorIs(t, err, domain.ErrBookingClosed)
	})

	t.Run("event started", func(t *testing.T) {
		event := f.addEvent(t, 10, -time.Hour)
		_, err := f.service.CreateReservation(ctx, "user-1", &dto.CreateReservationRequest{EventID: event.ID, TicketCount: 1})
		assert.ErrorIs(t, err, domain.ErrEventStarted)
	})

	t.Run("invalid ticket count", func(t *testing.T) {
		event := f.addEvent(t, 10, 24*time.Hour)
		_, err := f.service.CreateReservation(ctx, "user-1", &dto.CreateReservationRequest{EventID: event.ID, TicketCount: 0})
		assert.ErrorIs(t, err, domain.ErrInvalidTicketCount)
	})
}

func TestCreateReservation_CapacityExceeded(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 3, 30*24*time.Hour)

	f.reserve(t, "user-1", event.ID, 3)

	_, err := f.service.CreateReservation(context.Background(), "user-2", &dto.CreateReservationRequest{
		EventID:     event.ID,
		TicketCount: 1,
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientCapacity)
}

func TestCreateReservation_QuotaExceeded(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 100, 30*24*time.Hour)

	f.reserve(t, "user-1", event.ID, 4)

	_, err := f.service.CreateReservation(context.Background(), "user-1", &dto.CreateReservationRequest{
		EventID:     event.ID,
		TicketCount: 1,
	})

	var quotaErr *domain.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 0, quotaErr.Confirmed)
	assert.Equal(t, 4, quotaErr.Pending)
	assert.Equal(t, 1, quotaErr.Requested)
	assert.Equal(t, 4, quotaErr.Limit)
}

func TestCreateReservation_QuotaCountsConfirmed(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 100, 30*24*time.Hour)

	first := f.reserve(t, "user-1", event.ID, 3)
	f.confirmPaid(t, first.ID, "user-1")

	// 3 confirmed + 2 requested exceeds the cap of 4
	_, err := f.service.CreateReservation(context.Background(), "user-1", &dto.CreateReservationRequest{
		EventID:     event.ID,
		TicketCount: 2,
	})
	var quotaErr *domain.QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 3, quotaErr.Confirmed)
	assert.Equal(t, 0, quotaErr.Pending)

	// 3 confirmed + 1 requested fits exactly
	f.reserve(t, "user-1", event.ID, 1)
}

func TestCreateReservation_ExpiredHoldDoesNotCountTowardQuota(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 100, 30*24*time.Hour)

	f.reserve(t, "user-1", event.ID, 4)

	// The hold lapses; even before the reconciler sweeps it, the user may
	// reserve again
	f.now = f.now.Add(16 * time.Minute)
	f.reserve(t, "user-1", event.ID, 2)
}

func TestCreateReservation_LastTicketRace(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 1, 30*24*time.Hour)

	const contenders = 10
	var wg sync.WaitGroup
	errs := make(chan error, contenders)

	for i := 0; i < contenders; i++ {
		userID := uuid.New().String()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.CreateReservation(context.Background(), userID, &dto.CreateReservationRequest{
				EventID:     event.ID,
				TicketCount: 1,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, capacityFailures int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, domain.ErrInsufficientCapacity):
			capacityFailures++
		}
	}
	assert.Equal(t, 1, wins, "exactly one contender may take the last ticket")
	assert.Equal(t, contenders-1, capacityFailures)

	got, err := f.events.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.AvailableCapacity)
}

func TestCreateReservation_ConcurrentSameUserQuota(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 100, 30*24*time.Hour)

	const attempts = 10
	var wg sync.WaitGroup
	errs := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.CreateReservation(context.Background(), "user-1", &dto.CreateReservationRequest{
				EventID:     event.ID,
				TicketCount: 1,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins int
	for err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 4, wins, "the lock serializes same-user attempts so the quota holds")

	counts, err := f.bookings.SumActiveTickets(context.Background(), "user-1", event.ID, f.now)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Pending)
}

func TestConfirmReservation_Success(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 100, 30*24*time.Hour)

	reserved := f.reserve(t, "user-1", event.ID, 2)
	confirmed := f.confirmPaid(t, reserved.ID, "user-1")

	assert.Equal(t, domain.BookingStatusConfirmed.String(), confirmed.Status)
	assert.NotEmpty(t, confirmed.PaymentIntentID)
	assert.NotNil(t, confirmed.ConfirmedAt)

	// No capacity change on confirmation
	got, err := f.events.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 98, got.AvailableCapacity)
}

func TestConfirmReservation_Failures(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 100, 30*24*time.Hour)
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		_, err := f.service.ConfirmReservation(ctx, "missing", "user-1", nil)
		assert.ErrorIs(t, err, domain.ErrBookingNotFound)
	})

	t.Run("wrong owner", func(t *testing.T) {
		reserved := f.reserve(t, "user-1", event.ID, 1)
		_, err := f.service.ConfirmReservation(ctx, reserved.ID, "user-2", nil)
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
	})

	t.Run("expired hold fails before the reconciler runs", func(t *testing.T) {
		reserved := f.reserve(t, "user-2", event.ID, 1)
		f.now = f.now.Add(16 * time.Minute)
		defer func() { f.now = f.now.Add(-16 * time.Minute) }()

		_, err := f.service.ConfirmReservation(ctx, reserved.ID, "user-2", nil)
		assert.ErrorIs(t, err, domain.ErrBookingExpired)
	})

	t.Run("already confirmed", func(t *testing.T) {
		reserved := f.reserve(t, "user-3", event.ID, 1)
		f.confirmPaid(t, reserved.ID, "user-3")

		_, err := f.service.ConfirmReservation(ctx, reserved.ID, "user-3", nil)
		var transitionErr *domain.InvalidTransitionError
		require.ErrorAs(t, err, &transitionErr)
		assert.Equal(t, domain.BookingStatusConfirmed, transitionErr.Status)
	})

	t.Run("payment not verified", func(t *testing.T) {
		reserved := f.reserve(t, "user-4", event.ID, 1)
		options, err := f.service.GetPaymentOptions(ctx, reserved.ID, "user-4", nil)
		require.NoError(t, err)

		f.gateway.SetSuccessRate(0)
		defer f.gateway.SetSuccessRate(1)

		_, err = f.service.ConfirmReservation(ctx, reserved.ID, "user-4", &dto.ConfirmReservationRequest{
			PaymentIntentID: options.PaymentIntentID,
		})
		assert.ErrorIs(t, err, domain.ErrPaymentNotVerified)

		// The booking stays reserved; the user can retry with a new intent
		booking, err := f.bookings.GetByID(ctx, reserved.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusReserved, booking.Status)
		assert.False(t, booking.PaymentInProgress)
	})
}

func TestCancelBooking_ReservedReleasesWithoutRefund(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 100, 30*24*time.Hour)
	ctx := context.Background()

	reserved := f.reserve(t, "user-1", event.ID, 3)
	resp, err := f.service.CancelBooking(ctx, reserved.ID, "user-1")
	require.NoError(t, err)

	// An unpaid hold has no refund path; capacity is simply released
	assert.Empty(t, resp.RefundStatus)
	assert.Zero(t, resp.RefundAmount)
	assert.Equal(t, domain.BookingStatusCancelled.String(), resp.Booking.Status)

	got, err := f.events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.AvailableCapacity)
}

func TestCancelBooking_RefundBands(t *testing.T) {
	tests := []struct {
		name       string
		startsIn   time.Duration
		wantStatus domain.RefundStatus
		wantAmount float64
	}{
		{"more than seven days", 8 * 24 * time.Hour, domain.RefundStatusFull, 100},
		{"just over seven days rounds up to eight", 7*24*time.Hour + time.Second, domain.RefundStatusFull, 100},
		{"exactly seven days", 7 * 24 * time.Hour, domain.RefundStatusPartial, 50},
		{"between two and seven days", 5 * 24 * time.Hour, domain.RefundStatusPartial, 50},
		{"just over two days rounds up to three", 2*24*time.Hour + time.Second, domain.RefundStatusPartial, 50},
		{"exactly two days", 2 * 24 * time.Hour, domain.RefundStatusNone, 0},
		{"one day", 24 * time.Hour, domain.RefundStatusNone, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			event := f.addEvent(t, 100, tt.startsIn)
			ctx := context.Background()

			reserved := f.reserve(t, "user-1", event.ID, 2)
			f.confirmPaid(t, reserved.ID, "user-1")

			resp, err := f.service.CancelBooking(ctx, reserved.ID, "user-1")
			require.NoError(t, err)
			assert.Equal(t, string(tt.wantStatus), resp.RefundStatus)
			assert.Equal(t, tt.wantAmount, resp.RefundAmount)

			got, err := f.events.GetByID(ctx, event.ID)
			require.NoError(t, err)
			assert.Equal(t, 100, got.AvailableCapacity, "capacity returns regardless of refund band")
		})
	}
}

func TestCancelBooking_RefundFailureDoesNotBlockCancellation(t *testing.T) {
	f := newFixture(t, &gateway.MockGatewayConfig{SuccessRate: 1.0, FailRefunds: true})
	event := f.addEvent(t, 100, 30*24*time.Hour)
	ctx := context.Background()

	reserved := f.reserve(t, "user-1", event.ID, 2)
	f.confirmPaid(t, reserved.ID, "user-1")

	resp, err := f.service.CancelBooking(ctx, reserved.ID, "user-1")
	require.NoError(t, err, "a failed refund must never block the cancellation")
	assert.Equal(t, string(domain.RefundStatusFailed), resp.RefundStatus)
	assert.Zero(t, resp.RefundAmount)
	assert.Equal(t, domain.BookingStatusCancelled.String(), resp.Booking.Status)

	got, err := f.events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.AvailableCapacity)
}

func TestCancelBooking_Failures(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 100, 30*24*time.Hour)
	ctx := context.Background()

	t.Run("wrong owner", func(t *testing.T) {
		reserved := f.reserve(t, "user-1", event.ID, 1)
		_, err := f.service.CancelBooking(ctx, reserved.ID, "user-2")
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
	})

	t.Run("already cancelled", func(t *testing.T) {
		reserved := f.reserve(t, "user-1", event.ID, 1)
		_, err := f.service.CancelBooking(ctx, reserved.ID, "user-1")
		require.NoError(t, err)

		_, err = f.service.CancelBooking(ctx, reserved.ID, "user-1")
		assert.ErrorIs(t, err, domain.ErrAlreadyCancelled)
	})

	t.Run("event started", func(t *testing.T) {
		started := f.addEvent(t, 10, time.Minute)
		reserved := f.reserve(t, "user-1", started.ID, 1)
		f.now = f.now.Add(2 * time.Minute)
		defer func() { f.now = f.now.Add(-2 * time.Minute) }()

		_, err := f.service.CancelBooking(ctx, reserved.ID, "user-1")
		assert.ErrorIs(t, err, domain.ErrEventStarted)
	})
}

// staleReadBookings serves one outdated snapshot for a single booking,
// then delegates to the real repository.
type staleReadBookings struct {
	*repository.MemoryBookingRepository
	mu    sync.Mutex
	stale *domain.Booking
}

func (r *staleReadBookings) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	r.mu.Lock()
	if r.stale != nil && r.stale.ID == id {
		b := *r.stale
		r.stale = nil
		r.mu.Unlock()
		return &b, nil
	}
	r.mu.Unlock()
	return r.MemoryBookingRepository.GetByID(ctx, id)
}

func TestCancelBooking_ConfirmRaceStillRefunds(t *testing.T) {
	events := repository.NewMemoryEventRepository()
	realBookings := repository.NewMemoryBookingRepository()
	bookings := &staleReadBookings{MemoryBookingRepository: realBookings}
	store := repository.NewMemoryReservationStore(events, realBookings)
	gw := gateway.NewMockGateway(nil)
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	svc := NewReservationService(events, bookings, store, gw, lock.NewLocalLocker(), nil, &ReservationServiceConfig{
		Clock: func() time.Time { return now },
	})

	event := &domain.Event{
		ID:                uuid.New().String(),
		Name:              "Test Event",
		StartTime:         now.Add(10 * 24 * time.Hour),
		EndTime:           now.Add(10*24*time.Hour + 3*time.Hour),
		TotalCapacity:     100,
		AvailableCapacity: 100,
		UnitPrice:         50,
		Status:            domain.EventStatusActive,
		BookingOpen:       true,
	}
	require.NoError(t, events.Create(ctx, event))

	reserved, err := svc.CreateReservation(ctx, "user-1", &dto.CreateReservationRequest{
		EventID:     event.ID,
		TicketCount: 2,
	})
	require.NoError(t, err)

	// Snapshot the unpaid hold, then pay and confirm it. Serving that
	// snapshot on the cancel's first read reproduces a confirm landing
	// between the cancel's read and its write.
	preConfirm, err := realBookings.GetByID(ctx, reserved.ID)
	require.NoError(t, err)

	options, err := svc.GetPaymentOptions(ctx, reserved.ID, "user-1", nil)
	require.NoError(t, err)
	gw.MarkSucceeded(options.PaymentIntentID)
	_, err = svc.ConfirmReservation(ctx, reserved.ID, "user-1", &dto.ConfirmReservationRequest{
		PaymentIntentID: options.PaymentIntentID,
	})
	require.NoError(t, err)

	bookings.mu.Lock()
	bookings.stale = preConfirm
	bookings.mu.Unlock()

	resp, err := svc.CancelBooking(ctx, reserved.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, string(domain.RefundStatusFull), resp.RefundStatus,
		"the cancel must re-evaluate the refund against the confirmed row")
	assert.Equal(t, 100.0, resp.RefundAmount)

	booking, err := realBookings.GetByID(ctx, reserved.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, booking.Status)
	assert.Equal(t, domain.RefundStatusFull, booking.RefundStatus)

	got, err := events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.AvailableCapacity)
}

func TestGetPaymentOptions(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 100, 30*24*time.Hour)
	ctx := context.Background()

	reserved := f.reserve(t, "user-1", event.ID, 2)
	options, err := f.service.GetPaymentOptions(ctx, reserved.ID, "user-1", &dto.PaymentOptionsRequest{Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, reserved.ID, options.BookingID)
	assert.NotEmpty(t, options.PaymentIntentID)
	assert.Equal(t, 100.0, options.Amount)

	booking, err := f.bookings.GetByID(ctx, reserved.ID)
	require.NoError(t, err)
	assert.True(t, booking.PaymentInProgress)
	require.NotNil(t, booking.PaymentStartedAt)
	assert.Equal(t, f.now, *booking.PaymentStartedAt)

	t.Run("wrong owner", func(t *testing.T) {
		_, err := f.service.GetPaymentOptions(ctx, reserved.ID, "user-2", nil)
		assert.ErrorIs(t, err, domain.ErrAccessDenied)
	})

	t.Run("expired hold", func(t *testing.T) {
		f.now = f.now.Add(16 * time.Minute)
		defer func() { f.now = f.now.Add(-16 * time.Minute) }()
		_, err := f.service.GetPaymentOptions(ctx, reserved.ID, "user-1", nil)
		assert.ErrorIs(t, err, domain.ErrBookingExpired)
	})

	t.Run("cancelled booking", func(t *testing.T) {
		other := f.reserve(t, "user-3", event.ID, 1)
		_, err := f.service.CancelBooking(ctx, other.ID, "user-3")
		require.NoError(t, err)

		_, err = f.service.GetPaymentOptions(ctx, other.ID, "user-3", nil)
		var transitionErr *domain.InvalidTransitionError
		assert.ErrorAs(t, err, &transitionErr)
	})
}

func TestGetBookings_Filters(t *testing.T) {
	f := newFixture(t, nil)
	eventA := f.addEvent(t, 100, 30*24*time.Hour)
	eventB := f.addEvent(t, 100, 30*24*time.Hour)
	ctx := context.Background()

	a1 := f.reserve(t, "user-1", eventA.ID, 1)
	f.reserve(t, "user-1", eventB.ID, 2)
	f.confirmPaid(t, a1.ID, "user-1")
	f.reserve(t, "user-2", eventA.ID, 1)

	all, err := f.service.GetBookings(ctx, "user-1", nil)
	require.NoError(t, err)
	assert.Len(t, all.Bookings, 2)

	confirmed, err := f.service.GetBookings(ctx, "user-1", &dto.ListBookingsQuery{Status: "confirmed"})
	require.NoError(t, err)
	require.Len(t, confirmed.Bookings, 1)
	assert.Equal(t, a1.ID, confirmed.Bookings[0].ID)

	byEvent, err := f.service.GetBookings(ctx, "user-1", &dto.ListBookingsQuery{EventID: eventB.ID})
	require.NoError(t, err)
	require.Len(t, byEvent.Bookings, 1)

	_, err = f.service.GetBookings(ctx, "user-1", &dto.ListBookingsQuery{Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidBookingStatus)
}

func TestCleanupExpiredReservations(t *testing.T) {
	f := newFixture(t, nil)
	event := f.addEvent(t, 100, 30*24*time.Hour)
	ctx := context.Background()

	lapsed := f.reserve(t, "user-1", event.ID, 2)
	inGrace := f.reserve(t, "user-2", event.ID, 3)

	// user-2 starts paying 13 minutes in; the hold lapses at 15 but the
	// payment grace protects it until 23
	f.now = f.now.Add(13 * time.Minute)
	live := f.reserve(t, "user-3", event.ID, 1)
	_, err := f.service.GetPaymentOptions(ctx, inGrace.ID, "user-2", nil)
	require.NoError(t, err)

	f.now = f.now.Add(3 * time.Minute)
	reclaimed, err := f.service.CleanupExpiredReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed, "only the lapsed hold without payment activity is reclaimed")

	booking, err := f.bookings.GetByID(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, booking.Status)

	booking, err = f.bookings.GetByID(ctx, inGrace.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusReserved, booking.Status)

	booking, err = f.bookings.GetByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusReserved, booking.Status)

	got, err := f.events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 96, got.AvailableCapacity)

	// Once the grace lapses the protected hold is reclaimed too
	f.now = f.now.Add(8 * time.Minute)
	reclaimed, err = f.service.CleanupExpiredReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	got, err = f.events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 99, got.AvailableCapacity)
}

// recordingPublisher tracks which lifecycle events went out
type recordingPublisher struct {
	NoOpEventPublisher
	mu        sync.Mutex
	expired   []string
	cancelled []string
}

func (p *recordingPublisher) PublishBookingExpired(ctx context.Context, booking *domain.Booking) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expired = append(p.expired, booking.ID)
	return nil
}

func (p *recordingPublisher) PublishBookingCancelled(ctx context.Context, booking *domain.Booking) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, booking.ID)
	return nil
}

func TestCleanupExpiredReservations_PublishesExpiredEvents(t *testing.T) {
	events := repository.NewMemoryEventRepository()
	bookings := repository.NewMemoryBookingRepository()
	store := repository.NewMemoryReservationStore(events, bookings)
	pub := &recordingPublisher{}
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	svc := NewReservationService(events, bookings, store, gateway.NewMockGateway(nil), lock.NewLocalLocker(), pub, &ReservationServiceConfig{
		Clock: func() time.Time { return now },
	})

	event := &domain.Event{
		ID:                uuid.New().String(),
		Name:              "Test Event",
		StartTime:         now.Add(30 * 24 * time.Hour),
		EndTime:           now.Add(30*24*time.Hour + 3*time.Hour),
		TotalCapacity:     100,
		AvailableCapacity: 100,
		UnitPrice:         50,
		Status:            domain.EventStatusActive,
		BookingOpen:       true,
	}
	require.NoError(t, events.Create(ctx, event))

	reserved, err := svc.CreateReservation(ctx, "user-1", &dto.CreateReservationRequest{
		EventID:     event.ID,
		TicketCount: 2,
	})
	require.NoError(t, err)

	now = now.Add(16 * time.Minute)
	count, err := svc.CleanupExpiredReservations(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	assert.Equal(t, []string{reserved.ID}, pub.expired,
		"every reclaimed hold goes out as an expired event")
	assert.Empty(t, pub.cancelled, "reclaims are expired events, not cancellations")

	// A repeat sweep reclaims nothing and publishes nothing more
	count, err = svc.CleanupExpiredReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Len(t, pub.expired, 1)
}

func TestRefundAmount(t *testing.T) {
	assert.Equal(t, 200.0, RefundAmount(200, 8))
	assert.Equal(t, 100.0, RefundAmount(200, 7))
	assert.Equal(t, 100.0, RefundAmount(200, 3))
	assert.Equal(t, 0.0, RefundAmount(200, 2))
	assert.Equal(t, 0.0, RefundAmount(200, 0))
}
