package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yash-parekh715/nuvio/internal/domain"
	"github.com/yash-parekh715/nuvio/internal/dto"
	"github.com/yash-parekh715/nuvio/internal/gateway"
	"github.com/yash-parekh715/nuvio/internal/repository"
	"github.com/yash-parekh715/nuvio/pkg/lock"
	"github.com/yash-parekh715/nuvio/pkg/logger"
	"github.com/yash-parekh715/nuvio/pkg/telemetry"
)

// ReservationService defines the reservation lifecycle operations
type ReservationService interface {
	// CreateReservation places a capacity hold and inserts a RESERVED booking
	CreateReservation(ctx context.Context, userID string, req *dto.CreateReservationRequest) (*dto.BookingResponse, error)

	// ConfirmReservation converts a RESERVED booking to CONFIRMED after
	// verifying payment
	ConfirmReservation(ctx context.Context, bookingID, userID string, req *dto.ConfirmReservationRequest) (*dto.BookingResponse, error)

	// CancelBooking cancels a booking, evaluates the refund policy, and
	// releases its capacity
	CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancellationResponse, error)

	// GetPaymentOptions opens a payment intent for a live reservation
	GetPaymentOptions(ctx context.Context, bookingID, userID string, req *dto.PaymentOptionsRequest) (*dto.PaymentOptionsResponse, error)

	// GetBooking retrieves a booking owned by the user
	GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error)

	// GetBookings retrieves a user's bookings with optional filters
	GetBookings(ctx context.Context, userID string, query *dto.ListBookingsQuery) (*dto.PaginatedBookingsResponse, error)

	// CleanupExpiredReservations reclaims lapsed holds and returns the count
	CleanupExpiredReservations(ctx context.Context) (int, error)
}

// reservationService implements ReservationService
type reservationService struct {
	events    repository.EventRepository
	bookings  repository.BookingRepository
	store     repository.ReservationStore
	gateway   gateway.PaymentGateway
	locker    lock.Locker
	publisher EventPublisher
	log       *logger.Logger

	holdTTL      time.Duration
	maxPerUser   int
	paymentGrace time.Duration
	lockTTL      time.Duration
	currency     string
	now          func() time.Time
}

// ReservationServiceConfig contains configuration for the reservation service
type ReservationServiceConfig struct {
	HoldTTL           time.Duration
	MaxTicketsPerUser int
	PaymentGrace      time.Duration
	LockTTL           time.Duration
	Currency          string

	// Clock overrides the time source, for testing
	Clock func() time.Time
}

// NewReservationService creates a new reservation service
func NewReservationService(
	events repository.EventRepository,
	bookings repository.BookingRepository,
	store repository.ReservationStore,
	paymentGateway gateway.PaymentGateway,
	locker lock.Locker,
	publisher EventPublisher,
	cfg *ReservationServiceConfig,
) ReservationService {
	holdTTL := 15 * time.Minute
	maxPerUser := 4
	paymentGrace := 10 * time.Minute
	lockTTL := 30 * time.Second
	currency := "usd"
	now := time.Now

	if cfg != nil {
		if cfg.HoldTTL > 0 {
			holdTTL = cfg.HoldTTL
		}
		if cfg.MaxTicketsPerUser > 0 {
			maxPerUser = cfg.MaxTicketsPerUser
		}
		if cfg.PaymentGrace > 0 {
			paymentGrace = cfg.PaymentGrace
		}
		if cfg.LockTTL > 0 {
			lockTTL = cfg.LockTTL
		}
		if cfg.Currency != "" {
			currency = cfg.Currency
		}
		if cfg.Clock != nil {
			now = cfg.Clock
		}
	}
	if publisher == nil {
		publisher = NewNoOpEventPublisher()
	}

	return &reservationService{
		events:       events,
		bookings:     bookings,
		store:        store,
		gateway:      paymentGateway,
		locker:       locker,
		publisher:    publisher,
		log:          logger.Get(),
		holdTTL:      holdTTL,
		maxPerUser:   maxPerUser,
		paymentGrace: paymentGrace,
		lockTTL:      lockTTL,
		currency:     currency,
		now:          now,
	}
}

// reservationLockKey scopes the mutual exclusion to one user on one event,
// so concurrent attempts by the same user serialize while different users
// and events proceed in parallel.
func reservationLockKey(userID, eventID string) string {
	return fmt.Sprintf("reservation:%s:%s", userID, eventID)
}

// CreateReservation places a capacity hold for the user. The whole
// read-validate-write sequence runs under the (user, event) lock; the
// conditional capacity debit closes the oversell race on its own, the lock
// additionally protects the multi-step quota check.
func (s *reservationService) CreateReservation(ctx context.Context, userID string, req *dto.CreateReservationRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.create")
	defer span.End()

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if req == nil || req.EventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	if req.TicketCount <= 0 {
		span.SetStatus(codes.Error, "invalid ticket_count")
		return nil, domain.ErrInvalidTicketCount
	}

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", req.EventID),
		attribute.Int("ticket_count", req.TicketCount),
	)

	var booking *domain.Booking
	err := s.locker.WithLock(ctx, reservationLockKey(userID, req.EventID), s.lockTTL, func(ctx context.Context) error {
		now := s.now()

		event, err := s.events.GetByID(ctx, req.EventID)
		if err != nil {
			return err
		}
		if !event.IsActive() {
			return domain.ErrEventNotActive
		}
		if !event.BookingOpen {
			return domain.ErrBookingClosed
		}
		if event.HasStartedAt(now) {
			return domain.ErrEventStarted
		}

		counts, err := s.bookings.SumActiveTickets(ctx, userID, req.EventID, now)
		if err != nil {
			return err
		}
		if counts.Total()+req.TicketCount > s.maxPerUser {
			return &domain.QuotaExceededError{
				Limit:     s.maxPerUser,
				Confirmed: counts.Confirmed,
				Pending:   counts.Pending,
				Requested: req.TicketCount,
			}
		}

		booking = &domain.Booking{
			ID:          uuid.New().String(),
			UserID:      userID,
			EventID:     req.EventID,
			TicketCount: req.TicketCount,
			UnitPrice:   event.UnitPrice,
			TotalPrice:  event.UnitPrice * float64(req.TicketCount),
			Status:      domain.BookingStatusReserved,
			ExpiresAt:   now.Add(s.holdTTL),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return s.store.CreateReserved(ctx, booking)
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.publisher.PublishBookingCreated(ctx, booking); err != nil {
		s.log.Warn("failed to publish booking created event",
			logger.String("booking_id", booking.ID),
			logger.Error(err))
	}

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return dto.ToBookingResponse(booking), nil
}

// ConfirmReservation converts a hold into a committed booking. Capacity is
// not touched here; it was already debited at reservation time. Expiry is
// checked against the wall clock, not reconciler state, so a lapsed hold
// fails even before the sweep runs.
func (s *reservationService) ConfirmReservation(ctx context.Context, bookingID, userID string, req *dto.ConfirmReservationRequest) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.confirm")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !booking.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "access denied")
		return nil, domain.ErrAccessDenied
	}

	now := s.now()
	if booking.Status != domain.BookingStatusReserved {
		span.SetStatus(codes.Error, "invalid status")
		return nil, &domain.InvalidTransitionError{Operation: "confirm", Status: booking.Status}
	}
	if booking.IsExpiredAt(now) {
		span.SetStatus(codes.Error, "expired")
		return nil, domain.ErrBookingExpired
	}

	event, err := s.events.GetByID(ctx, booking.EventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if event.HasStartedAt(now) {
		span.SetStatus(codes.Error, "event started")
		return nil, domain.ErrEventStarted
	}

	intentID := booking.PaymentIntentID
	if req != nil && req.PaymentIntentID != "" {
		intentID = req.PaymentIntentID
	}
	if intentID != "" {
		verified, err := s.gateway.VerifyPayment(ctx, intentID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to verify payment: %w", err)
		}
		if !verified {
			if clearErr := s.bookings.ClearPaymentInProgress(ctx, bookingID); clearErr != nil {
				s.log.Warn("failed to clear payment in progress",
					logger.String("booking_id", bookingID),
					logger.Error(clearErr))
			}
			span.SetStatus(codes.Error, "payment not verified")
			return nil, domain.ErrPaymentNotVerified
		}
	}

	if err := s.bookings.Confirm(ctx, bookingID, intentID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	confirmed, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.publisher.PublishBookingConfirmed(ctx, confirmed); err != nil {
		s.log.Warn("failed to publish booking confirmed event",
			logger.String("booking_id", bookingID),
			logger.Error(err))
	}

	span.SetStatus(codes.Ok, "")
	return dto.ToBookingResponse(confirmed), nil
}

// cancelStateRetries bounds how often a cancellation re-reads the booking
// after losing a race against a concurrent transition.
const cancelStateRetries = 3

// CancelBooking cancels a booking and releases its capacity. When the
// booking was paid, the refund policy runs first; a refund failure is
// recorded on the booking but never blocks the cancellation. The refund
// is evaluated against a snapshot; when the row moves between the read
// and the store write (a confirm landing mid-cancel), the store rejects
// and the whole read-evaluate-write sequence reruns against the new
// state.
func (s *reservationService) CancelBooking(ctx context.Context, bookingID, userID string) (*dto.CancellationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.cancel")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	var resp *dto.CancellationResponse
	var err error
	for attempt := 0; attempt < cancelStateRetries; attempt++ {
		resp, err = s.cancelOnce(ctx, bookingID, userID)
		if !errors.Is(err, domain.ErrBookingStateChanged) {
			break
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("refund_status", resp.RefundStatus),
		attribute.Float64("refund_amount", resp.RefundAmount),
	)
	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// cancelOnce runs one read-evaluate-write cancellation attempt.
func (s *reservationService) cancelOnce(ctx context.Context, bookingID, userID string) (*dto.CancellationResponse, error) {
	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.BelongsToUser(userID) {
		return nil, domain.ErrAccessDenied
	}
	if booking.IsCancelled() {
		return nil, domain.ErrAlreadyCancelled
	}

	event, err := s.events.GetByID(ctx, booking.EventID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if event.HasStartedAt(now) {
		return nil, domain.ErrEventStarted
	}

	s.evaluateRefund(ctx, booking, event, now)

	cancelledAt := now
	booking.CancelledAt = &cancelledAt
	if err := s.store.CancelRelease(ctx, booking); err != nil {
		return nil, err
	}
	booking.Status = domain.BookingStatusCancelled

	if err := s.publisher.PublishBookingCancelled(ctx, booking); err != nil {
		s.log.Warn("failed to publish booking cancelled event",
			logger.String("booking_id", bookingID),
			logger.Error(err))
	}

	return &dto.CancellationResponse{
		Booking:      dto.ToBookingResponse(booking),
		RefundStatus: string(booking.RefundStatus),
		RefundAmount: booking.RefundAmount,
	}, nil
}

// evaluateRefund applies the refund bands to a paid booking and records
// the outcome on it. Unpaid bookings have no refund path: their hold was
// never charged.
func (s *reservationService) evaluateRefund(ctx context.Context, booking *domain.Booking, event *domain.Event, now time.Time) {
	if booking.Status != domain.BookingStatusConfirmed || booking.PaymentIntentID == "" {
		return
	}

	amount := RefundAmount(booking.TotalPrice, event.DaysUntilStart(now))
	if amount <= 0 {
		booking.RefundStatus = domain.RefundStatusNone
		booking.RefundAmount = 0
		return
	}

	refund, err := s.gateway.ProcessRefund(ctx, booking.PaymentIntentID, amount, "booking cancellation")
	if err != nil {
		s.log.Error("refund processing failed, cancellation proceeds",
			logger.String("booking_id", booking.ID),
			logger.String("payment_intent_id", booking.PaymentIntentID),
			logger.Float64("amount", amount),
			logger.Error(err))
		booking.RefundStatus = domain.RefundStatusFailed
		booking.RefundAmount = 0
		return
	}

	if amount >= booking.TotalPrice {
		booking.RefundStatus = domain.RefundStatusFull
	} else {
		booking.RefundStatus = domain.RefundStatusPartial
	}
	booking.RefundAmount = refund.Amount
	booking.RefundID = refund.ID
	refundedAt := now
	booking.RefundedAt = &refundedAt
}

// RefundAmount returns the refundable amount for a cancellation given the
// days remaining until the event: full above seven days, half above two,
// nothing at two or less.
func RefundAmount(totalPrice float64, daysUntilEvent int) float64 {
	switch {
	case daysUntilEvent > 7:
		return totalPrice
	case daysUntilEvent > 2:
		return totalPrice * 0.5
	default:
		return 0
	}
}

// GetPaymentOptions opens a payment intent for a live reservation and
// marks the payment attempt on the booking so the reconciler spares the
// hold during the grace window.
func (s *reservationService) GetPaymentOptions(ctx context.Context, bookingID, userID string, req *dto.PaymentOptionsRequest) (*dto.PaymentOptionsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.payment_options")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("user_id", userID),
	)

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !booking.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "access denied")
		return nil, domain.ErrAccessDenied
	}

	now := s.now()
	if booking.Status != domain.BookingStatusReserved {
		span.SetStatus(codes.Error, "invalid status")
		return nil, &domain.InvalidTransitionError{Operation: "pay for", Status: booking.Status}
	}
	if booking.IsExpiredAt(now) {
		span.SetStatus(codes.Error, "expired")
		return nil, domain.ErrBookingExpired
	}

	method := ""
	if req != nil {
		method = req.Method
	}

	intent, err := s.gateway.CreateIntent(ctx, &gateway.CreateIntentRequest{
		BookingID: booking.ID,
		Amount:    booking.TotalPrice,
		Currency:  s.currency,
		Method:    method,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	if err := s.bookings.SetPaymentInProgress(ctx, booking.ID, intent.ID, now); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("payment_intent_id", intent.ID))
	span.SetStatus(codes.Ok, "")
	return &dto.PaymentOptionsResponse{
		BookingID:       booking.ID,
		PaymentIntentID: intent.ID,
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		IntentExpiresAt: intent.ExpiresAt,
	}, nil
}

// GetBooking retrieves a booking owned by the user
func (s *reservationService) GetBooking(ctx context.Context, bookingID, userID string) (*dto.BookingResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.get_booking")
	defer span.End()

	booking, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !booking.BelongsToUser(userID) {
		span.SetStatus(codes.Error, "access denied")
		return nil, domain.ErrAccessDenied
	}

	span.SetStatus(codes.Ok, "")
	return dto.ToBookingResponse(booking), nil
}

// GetBookings retrieves a user's bookings with optional status and event
// filters, newest first
func (s *reservationService) GetBookings(ctx context.Context, userID string, query *dto.ListBookingsQuery) (*dto.PaginatedBookingsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.get_bookings")
	defer span.End()

	if userID == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}

	page := 1
	pageSize := 20
	filter := repository.BookingFilter{}
	if query != nil {
		if query.Page > 0 {
			page = query.Page
		}
		if query.PageSize > 0 && query.PageSize <= 100 {
			pageSize = query.PageSize
		}
		if query.Status != "" {
			status := domain.BookingStatus(query.Status)
			if !status.IsValid() {
				span.SetStatus(codes.Error, "invalid status filter")
				return nil, domain.ErrInvalidBookingStatus
			}
			filter.Status = status
		}
		filter.EventID = query.EventID
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	bookings, err := s.bookings.GetByUserID(ctx, userID, filter)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	responses := make([]*dto.BookingResponse, 0, len(bookings))
	for _, booking := range bookings {
		responses = append(responses, dto.ToBookingResponse(booking))
	}

	span.SetAttributes(attribute.Int("count", len(responses)))
	span.SetStatus(codes.Ok, "")
	return &dto.PaginatedBookingsResponse{
		Bookings: responses,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// CleanupExpiredReservations reclaims lapsed holds in one batched
// transaction and publishes an expired event for each after the commit,
// so downstream consumers see the released capacity. Zero reclaimed is a
// normal outcome, not an error.
func (s *reservationService) CleanupExpiredReservations(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.reservation.cleanup_expired")
	defer span.End()

	reclaimed, err := s.store.ReclaimExpired(ctx, s.now(), s.paymentGrace)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	for _, booking := range reclaimed {
		if err := s.publisher.PublishBookingExpired(ctx, booking); err != nil {
			s.log.Warn("failed to publish booking expired event",
				logger.String("booking_id", booking.ID),
				logger.Error(err))
		}
	}

	span.SetAttributes(attribute.Int("reclaimed", len(reclaimed)))
	span.SetStatus(codes.Ok, "")
	return len(reclaimed), nil
}

// IsLockUnavailable reports whether the error means the reservation lock
// could not be acquired; callers may retry the whole operation later.
func IsLockUnavailable(err error) bool {
	return errors.Is(err, lock.ErrNotAcquired)
}

// Ensure reservationService implements ReservationService
var _ ReservationService = (*reservationService)(nil)
