package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yash-parekh715/nuvio/internal/domain"
	"github.com/yash-parekh715/nuvio/internal/dto"
	"github.com/yash-parekh715/nuvio/internal/repository"
	"github.com/yash-parekh715/nuvio/pkg/telemetry"
)

// EventService defines the admin-facing event operations
type EventService interface {
	CreateEvent(ctx context.Context, req *dto.CreateEventRequest) (*dto.EventResponse, error)
	UpdateEvent(ctx context.Context, eventID string, req *dto.UpdateEventRequest) (*dto.EventResponse, error)
	GetEvent(ctx context.Context, eventID string) (*dto.EventResponse, error)
	ListEvents(ctx context.Context, page, pageSize int) ([]*dto.EventResponse, error)
	SetBookingOpen(ctx context.Context, eventID string, open bool) error
}

// eventService implements EventService
type eventService struct {
	events repository.EventRepository
	now    func() time.Time
}

// NewEventService creates a new event service
func NewEventService(events repository.EventRepository) EventService {
	return NewEventServiceWithClock(events, time.Now)
}

// NewEventServiceWithClock creates an event service with an injected time
// source, for testing
func NewEventServiceWithClock(events repository.EventRepository, now func() time.Time) EventService {
	return &eventService{events: events, now: now}
}

// CreateEvent creates a new event with its full capacity available
func (s *eventService) CreateEvent(ctx context.Context, req *dto.CreateEventRequest) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.create")
	defer span.End()

	if req == nil {
		span.SetStatus(codes.Error, "invalid request")
		return nil, domain.ErrInvalidEventName
	}

	now := s.now()
	event := &domain.Event{
		ID:                uuid.New().String(),
		Name:              req.Name,
		Description:       req.Description,
		Venue:             req.Venue,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		TotalCapacity:     req.Capacity,
		AvailableCapacity: req.Capacity,
		UnitPrice:         req.UnitPrice,
		Status:            domain.EventStatusActive,
		BookingOpen:       true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := event.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if err := s.events.Create(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("event_id", event.ID))
	span.SetStatus(codes.Ok, "")
	return dto.ToEventResponse(event), nil
}

// UpdateEvent updates an event's mutable fields. Started events cannot be
// modified.
func (s *eventService) UpdateEvent(ctx context.Context, eventID string, req *dto.UpdateEventRequest) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.update")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if event.HasStartedAt(s.now()) {
		span.SetStatus(codes.Error, "event started")
		return nil, domain.ErrEventStarted
	}

	if req.Name != "" {
		event.Name = req.Name
	}
	if req.Description != "" {
		event.Description = req.Description
	}
	if req.Venue != "" {
		event.Venue = req.Venue
	}
	if req.StartTime != nil {
		event.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		event.EndTime = *req.EndTime
	}
	if req.UnitPrice != nil {
		event.UnitPrice = *req.UnitPrice
	}
	if req.Status != "" {
		status := domain.EventStatus(req.Status)
		if !status.IsValid() {
			span.SetStatus(codes.Error, "invalid status")
			return nil, domain.ErrInvalidEventStatus
		}
		event.Status = status
	}
	if req.BookingOpen != nil {
		event.BookingOpen = *req.BookingOpen
	}

	if err := event.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := s.events.Update(ctx, event); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.ToEventResponse(event), nil
}

// GetEvent retrieves an event by ID
func (s *eventService) GetEvent(ctx context.Context, eventID string) (*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.get")
	defer span.End()

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	event.Status = event.EffectiveStatusAt(s.now())

	span.SetStatus(codes.Ok, "")
	return dto.ToEventResponse(event), nil
}

// ListEvents retrieves events ordered by start time
func (s *eventService) ListEvents(ctx context.Context, page, pageSize int) ([]*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.event.list")
	defer span.End()

	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	events, err := s.events.List(ctx, pageSize, (page-1)*pageSize)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := s.now()
	responses := make([]*dto.EventResponse, 0, len(events))
	for _, event := range events {
		event.Status = event.EffectiveStatusAt(now)
		responses = append(responses, dto.ToEventResponse(event))
	}

	span.SetAttributes(attribute.Int("count", len(responses)))
	span.SetStatus(codes.Ok, "")
	return responses, nil
}

// SetBookingOpen toggles the booking window for an event
func (s *eventService) SetBookingOpen(ctx context.Context, eventID string, open bool) error {
	ctx, span := telemetry.StartSpan(ctx, "service.event.set_booking_open")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Bool("open", open),
	)

	if err := s.events.SetBookingOpen(ctx, eventID, open); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
