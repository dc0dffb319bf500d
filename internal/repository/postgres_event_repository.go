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

// PostgresEventRepository implements EventRepository using PostgreSQL with pgxpool
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

const eventColumns = `
	id, name, description, venue, start_time, end_time,
	total_capacity, available_capacity, unit_price,
	status, booking_open, created_at, updated_at
`

// Create inserts a new event record
func (r *PostgresEventRepository) Create(ctx context.Context, event *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.create")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", event.ID))

	query := `
		INSERT INTO events (
			id, name, description, venue, start_time, end_time,
			total_capacity, available_capacity, unit_price,
			status, booking_open, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13
		)
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Name,
		event.Description,
		event.Venue,
		event.StartTime,
		event.EndTime,
		event.TotalCapacity,
		event.AvailableCapacity,
		event.UnitPrice,
		event.Status.String(),
		event.BookingOpen,
		event.CreatedAt,
		event.UpdatedAt,
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create event: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves an event by its ID
func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", id))

	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	event, err := scanEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrEventNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return event, nil
}

// Update updates an existing event's mutable fields
func (r *PostgresEventRepository) Update(ctx context.Context, event *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.update")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", event.ID))

	query := `
		UPDATE events SET
			name = $2,
			description = $3,
			venue = $4,
			start_time = $5,
			end_time = $6,
			unit_price = $7,
			status = $8,
			booking_open = $9,
			updated_at = $10
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query,
		event.ID,
		event.Name,
		event.Description,
		event.Venue,
		event.StartTime,
		event.EndTime,
		event.UnitPrice,
		event.Status.String(),
		event.BookingOpen,
		time.Now(),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update event: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrEventNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// List retrieves events ordered by start time
func (r *PostgresEventRepository) List(ctx context.Context, limit, offset int) ([]*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.list")
	defer span.End()

	query := `SELECT ` + eventColumns + ` FROM events ORDER BY start_time ASC LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(events)))
	span.SetStatus(codes.Ok, "")
	return events, nil
}

// SetBookingOpen toggles whether reservations can be created for the event
func (r *PostgresEventRepository) SetBookingOpen(ctx context.Context, id string, open bool) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.set_booking_open")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", id),
		attribute.Bool("booking_open", open),
	)

	query := `UPDATE events SET booking_open = $2, updated_at = $3 WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, open, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to set booking open: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrEventNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// TryDebitCapacity decrements available capacity only when enough remains.
// The guard in the WHERE clause closes the check-then-act race.
func (r *PostgresEventRepository) TryDebitCapacity(ctx context.Context, id string, n int) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.try_debit_capacity")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", id),
		attribute.Int("tickets", n),
	)

	result, err := r.pool.Exec(ctx, debitCapacityQuery, id, n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to debit capacity: %w", err)
	}

	debited := result.RowsAffected() > 0
	span.SetAttributes(attribute.Bool("debited", debited))
	span.SetStatus(codes.Ok, "")
	return debited, nil
}

// CreditCapacity increments available capacity by n
func (r *PostgresEventRepository) CreditCapacity(ctx context.Context, id string, n int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.credit_capacity")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", id),
		attribute.Int("tickets", n),
	)

	result, err := r.pool.Exec(ctx, creditCapacityQuery, id, n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to credit capacity: %w", err)
	}

	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrEventNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

const debitCapacityQuery = `
	UPDATE events SET
		available_capacity = available_capacity - $2,
		updated_at = NOW()
	WHERE id = $1 AND available_capacity >= $2
`

const creditCapacityQuery = `
	UPDATE events SET
		available_capacity = available_capacity + $2,
		updated_at = NOW()
	WHERE id = $1
`

// scanEvent scans a row into an Event struct
func scanEvent(r row) (*domain.Event, error) {
	event := &domain.Event{}
	var status string

	err := r.Scan(
		&event.ID,
		&event.Name,
		&event.Description,
		&event.Venue,
		&event.StartTime,
		&event.EndTime,
		&event.TotalCapacity,
		&event.AvailableCapacity,
		&event.UnitPrice,
		&status,
		&event.BookingOpen,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Status = domain.EventStatus(status)
	return event, nil
}

// Ensure PostgresEventRepository implements EventRepository
var _ EventRepository = (*PostgresEventRepository)(nil)
