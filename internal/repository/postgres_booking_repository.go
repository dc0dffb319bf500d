package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yash-parekh715/nuvio/internal/domain"
	"github.com/yash-parekh715/nuvio/pkg/telemetry"
)

// PostgresBookingRepository implements BookingRepository using PostgreSQL with pgxpool
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

const bookingColumns = `
	id, user_id, event_id, ticket_count, unit_price, total_price, status,
	reservation_expires_at, payment_intent_id, payment_in_progress, payment_started_at,
	refund_status, refund_amount, refund_id, refunded_at,
	confirmed_at, cancelled_at, created_at, updated_at
`

// Create inserts a new booking record
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("user_id", booking.UserID),
		attribute.String("event_id", booking.EventID),
	)

	_, err := r.pool.Exec(ctx, insertBookingQuery,
		booking.ID,
		booking.UserID,
		booking.EventID,
		booking.TicketCount,
		booking.UnitPrice,
		booking.TotalPrice,
		booking.Status.String(),
		booking.ExpiresAt,
		nullString(booking.PaymentIntentID),
		booking.PaymentInProgress,
		booking.PaymentStartedAt,
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

const insertBookingQuery = `
	INSERT INTO bookings (
		id, user_id, event_id, ticket_count, unit_price, total_price, status,
		reservation_expires_at, payment_intent_id, payment_in_progress, payment_started_at,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11,
		$12, $13
	)
`

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// GetByUserID retrieves a user's bookings, optionally filtered by status
// and event, newest first
func (r *PostgresBookingRepository) GetByUserID(ctx context.Context, userID string, filter BookingFilter) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_user_id")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", userID))

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = $1`
	args := []any{userID}

	if filter.Status != "" {
		args = append(args, filter.Status.String())
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.EventID != "" {
		args = append(args, filter.EventID)
		query += fmt.Sprintf(" AND event_id = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get bookings by user ID: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating bookings: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(bookings)))
	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// Confirm transitions a RESERVED booking to CONFIRMED and attaches the
// payment reference. The status guard makes the transition safe under
// concurrent confirms.
func (r *PostgresBookingRepository) Confirm(ctx context.Context, id, paymentIntentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.confirm")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `
		UPDATE bookings SET
			status = $2,
			payment_intent_id = $3,
			payment_in_progress = FALSE,
			confirmed_at = $4,
			updated_at = $5
		WHERE id = $1 AND status = 'reserved'
	`

	now := time.Now()
	result, err := r.pool.Exec(ctx, query, id, domain.BookingStatusConfirmed.String(), nullString(paymentIntentID), now, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to confirm booking: %w", err)
	}

	if result.RowsAffected() == 0 {
		var status string
		err := r.pool.QueryRow(ctx, "SELECT status FROM bookings WHERE id = $1", id).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				span.SetStatus(codes.Error, "not found")
				return domain.ErrBookingNotFound
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("failed to check booking status: %w", err)
		}
		span.SetStatus(codes.Error, "invalid status")
		return &domain.InvalidTransitionError{Operation: "confirm", Status: domain.BookingStatus(status)}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// SetPaymentInProgress marks a payment attempt as started on the booking.
// The reconciler spares such holds until the grace window lapses.
func (r *PostgresBookingRepository) SetPaymentInProgress(ctx context.Context, id, paymentIntentID string, startedAt time.Time) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.set_payment_in_progress")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `
		UPDATE bookings SET
			payment_intent_id = $2,
			payment_in_progress = TRUE,
			payment_started_at = $3,
			updated_at = $4
		WHERE id = $1 AND status = 'reserved'
	`

	result, err := r.pool.Exec(ctx, query, id, nullString(paymentIntentID), startedAt, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark payment in progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ClearPaymentInProgress resets the payment-in-progress flag
func (r *PostgresBookingRepository) ClearPaymentInProgress(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.clear_payment_in_progress")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))

	query := `
		UPDATE bookings SET
			payment_in_progress = FALSE,
			updated_at = $2
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to clear payment in progress: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// SumActiveTickets tallies confirmed tickets and unexpired reserved
// tickets held by the user for the event. Expired holds not yet swept by
// the reconciler do not count against the quota.
func (r *PostgresBookingRepository) SumActiveTickets(ctx context.Context, userID, eventID string, now time.Time) (TicketCounts, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.sum_active_tickets")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
	)

	query := `
		SELECT
			COALESCE(SUM(ticket_count) FILTER (WHERE status = 'confirmed'), 0),
			COALESCE(SUM(ticket_count) FILTER (WHERE status = 'reserved' AND reservation_expires_at >= $3), 0)
		FROM bookings
		WHERE user_id = $1 AND event_id = $2
	`

	var counts TicketCounts
	err := r.pool.QueryRow(ctx, query, userID, eventID, now).Scan(&counts.Confirmed, &counts.Pending)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return TicketCounts{}, fmt.Errorf("failed to sum active tickets: %w", err)
	}

	span.SetAttributes(
		attribute.Int("confirmed", counts.Confirmed),
		attribute.Int("pending", counts.Pending),
	)
	span.SetStatus(codes.Ok, "")
	return counts, nil
}

// scanBooking scans a row into a Booking struct
func scanBooking(r row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var (
		status           string
		paymentIntentID  *string
		paymentStartedAt *time.Time
		refundStatus     *string
		refundAmount     *float64
		refundID         *string
		refundedAt       *time.Time
		confirmedAt      *time.Time
		cancelledAt      *time.Time
	)

	err := r.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.EventID,
		&booking.TicketCount,
		&booking.UnitPrice,
		&booking.TotalPrice,
		&status,
		&booking.ExpiresAt,
		&paymentIntentID,
		&booking.PaymentInProgress,
		&paymentStartedAt,
		&refundStatus,
		&refundAmount,
		&refundID,
		&refundedAt,
		&confirmedAt,
		&cancelledAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	booking.Status = domain.BookingStatus(status)
	if paymentIntentID != nil {
		booking.PaymentIntentID = *paymentIntentID
	}
	booking.PaymentStartedAt = paymentStartedAt
	if refundStatus != nil {
		booking.RefundStatus = domain.RefundStatus(*refundStatus)
	}
	if refundAmount != nil {
		booking.RefundAmount = *refundAmount
	}
	if refundID != nil {
		booking.RefundID = *refundID
	}
	booking.RefundedAt = refundedAt
	booking.ConfirmedAt = confirmedAt
	booking.CancelledAt = cancelledAt

	return booking, nil
}

// nullString converts an empty string to a nil pointer
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure PostgresBookingRepository implements BookingRepository
var _ BookingRepository = (*PostgresBookingRepository)(nil)
