package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yash-parekh715/nuvio/internal/domain"
	"github.com/yash-parekh715/nuvio/pkg/database"
	"github.com/yash-parekh715/nuvio/pkg/telemetry"
)

// PostgresReservationStore runs the reservation lifecycle's multi-table
// transactions through a TxRunner, which retries the whole unit on
// deadlock or serialization failure.
type PostgresReservationStore struct {
	runner *database.TxRunner
}

// NewPostgresReservationStore creates a new PostgresReservationStore
func NewPostgresReservationStore(runner *database.TxRunner) *PostgresReservationStore {
	return &PostgresReservationStore{runner: runner}
}

// CreateReserved debits event capacity and inserts the RESERVED row in a
// single transaction. Either both happen or neither does.
func (s *PostgresReservationStore) CreateReserved(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "store.postgres.reservation.create_reserved")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("event_id", booking.EventID),
		attribute.Int("tickets", booking.TicketCount),
	)

	err := s.runner.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		result, err := tx.Exec(ctx, debitCapacityQuery, booking.EventID, booking.TicketCount)
		if err != nil {
			return fmt.Errorf("failed to debit capacity: %w", err)
		}

		if result.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)", booking.EventID).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check event existence: %w", err)
			}
			if !exists {
				return domain.ErrEventNotFound
			}
			return domain.ErrInsufficientCapacity
		}

		_, err = tx.Exec(ctx, insertBookingQuery,
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
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		return nil
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CancelRelease locks the booking row, persists the cancellation fields
// already set on the booking (status, refund outcome, timestamps), and
// credits the event's capacity back when the booking still held it. The
// locked row must still be in the status the caller evaluated the refund
// against; a concurrent transition rejects the write so the caller can
// re-read and re-evaluate.
func (s *PostgresReservationStore) CancelRelease(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "store.postgres.reservation.cancel_release")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("event_id", booking.EventID),
	)

	err := s.runner.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, "SELECT status FROM bookings WHERE id = $1 FOR UPDATE", booking.ID).Scan(&current)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrBookingNotFound
			}
			return fmt.Errorf("failed to lock booking: %w", err)
		}

		if current == domain.BookingStatusCancelled.String() {
			return domain.ErrAlreadyCancelled
		}
		if current != booking.Status.String() {
			return domain.ErrBookingStateChanged
		}

		query := `
			UPDATE bookings SET
				status = $2,
				refund_status = $3,
				refund_amount = $4,
				refund_id = $5,
				refunded_at = $6,
				payment_in_progress = FALSE,
				cancelled_at = $7,
				updated_at = $8
			WHERE id = $1
		`

		_, err = tx.Exec(ctx, query,
			booking.ID,
			domain.BookingStatusCancelled.String(),
			nullString(string(booking.RefundStatus)),
			booking.RefundAmount,
			nullString(booking.RefundID),
			booking.RefundedAt,
			booking.CancelledAt,
			time.Now(),
		)
		if err != nil {
			return fmt.Errorf("failed to cancel booking: %w", err)
		}

		// Capacity was committed while RESERVED or CONFIRMED. Credit it
		// back exactly once, at this transition.
		released := current == domain.BookingStatusReserved.String() ||
			current == domain.BookingStatusConfirmed.String()
		if released {
			if _, err := tx.Exec(ctx, creditCapacityQuery, booking.EventID, booking.TicketCount); err != nil {
				return fmt.Errorf("failed to credit capacity: %w", err)
			}
		}
		return nil
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ReclaimExpired sweeps lapsed holds in one transaction: select the
// reclaimable rows, bulk-cancel them, then credit each affected event
// with its summed ticket count. Holds with a payment initiated within the
// grace window are spared.
func (s *PostgresReservationStore) ReclaimExpired(ctx context.Context, now time.Time, grace time.Duration) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "store.postgres.reservation.reclaim_expired")
	defer span.End()

	var reclaimed []*domain.Booking
	err := s.runner.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		reclaimed = nil

		query := `
			SELECT id, user_id, event_id, ticket_count, unit_price, total_price, reservation_expires_at
			FROM bookings
			WHERE status = 'reserved'
				AND reservation_expires_at < $1
				AND (payment_in_progress = FALSE OR payment_started_at < $2)
			FOR UPDATE SKIP LOCKED
		`

		rows, err := tx.Query(ctx, query, now, now.Add(-grace))
		if err != nil {
			return fmt.Errorf("failed to select expired reservations: %w", err)
		}

		var ids []string
		perEvent := make(map[string]int)
		cancelledAt := now
		for rows.Next() {
			booking := &domain.Booking{
				Status:      domain.BookingStatusCancelled,
				CancelledAt: &cancelledAt,
				UpdatedAt:   now,
			}
			if err := rows.Scan(&booking.ID, &booking.UserID, &booking.EventID,
				&booking.TicketCount, &booking.UnitPrice, &booking.TotalPrice, &booking.ExpiresAt); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan expired reservation: %w", err)
			}
			ids = append(ids, booking.ID)
			perEvent[booking.EventID] += booking.TicketCount
			reclaimed = append(reclaimed, booking)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating expired reservations: %w", err)
		}

		if len(ids) == 0 {
			return nil
		}

		update := `
			UPDATE bookings SET
				status = $2,
				payment_in_progress = FALSE,
				cancelled_at = $3,
				updated_at = $3
			WHERE id = ANY($1)
		`
		if _, err := tx.Exec(ctx, update, ids, domain.BookingStatusCancelled.String(), now); err != nil {
			return fmt.Errorf("failed to cancel expired reservations: %w", err)
		}

		for eventID, tickets := range perEvent {
			if _, err := tx.Exec(ctx, creditCapacityQuery, eventID, tickets); err != nil {
				return fmt.Errorf("failed to credit capacity for event %s: %w", eventID, err)
			}
		}
		return nil
	})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("reclaimed", len(reclaimed)))
	span.SetStatus(codes.Ok, "")
	return reclaimed, nil
}

// Ensure PostgresReservationStore implements ReservationStore
var _ ReservationStore = (*PostgresReservationStore)(nil)
