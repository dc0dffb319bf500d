package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yash-parekh715/nuvio/internal/domain"
	"github.com/yash-parekh715/nuvio/internal/dto"
	"github.com/yash-parekh715/nuvio/internal/repository"
)

func newEventFixture() (EventService, *repository.MemoryEventRepository, time.Time) {
	events := repository.NewMemoryEventRepository()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewEventServiceWithClock(events, func() time.Time { return now })
	return svc, events, now
}

func TestEventService_CreateEvent(t *testing.T) {
	svc, events, now := newEventFixture()
	ctx := context.Background()

	created, err := svc.CreateEvent(ctx, &dto.CreateEventRequest{
		Name:      "Launch Party",
		Venue:     "Main Hall",
		StartTime: now.Add(48 * time.Hour),
		EndTime:   now.Add(52 * time.Hour),
		Capacity:  500,
		UnitPrice: 25,
	})
	require.NoError(t, err)
	assert.Equal(t, 500, created.AvailableCapacity, "a new event opens with its full capacity")
	assert.Equal(t, string(domain.EventStatusActive), created.Status)
	assert.True(t, created.BookingOpen)

	stored, err := events.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 500, stored.AvailableCapacity)

	t.Run("invalid capacity", func(t *testing.T) {
		_, err := svc.CreateEvent(ctx, &dto.CreateEventRequest{
			Name:      "Bad",
			StartTime: now.Add(time.Hour),
			EndTime:   now.Add(2 * time.Hour),
			Capacity:  0,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidCapacity)
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := svc.CreateEvent(ctx, &dto.CreateEventRequest{
			Name:      "Bad",
			StartTime: now.Add(2 * time.Hour),
			EndTime:   now.Add(time.Hour),
			Capacity:  10,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidEventTime)
	})
}

func TestEventService_UpdateEvent(t *testing.T) {
	svc, _, now := newEventFixture()
	ctx := context.Background()

	created, err := svc.CreateEvent(ctx, &dto.CreateEventRequest{
		Name:      "Concert",
		StartTime: now.Add(72 * time.Hour),
		EndTime:   now.Add(76 * time.Hour),
		Capacity:  100,
		UnitPrice: 40,
	})
	require.NoError(t, err)

	newPrice := 55.0
	closed := false
	updated, err := svc.UpdateEvent(ctx, created.ID, &dto.UpdateEventRequest{
		Name:        "Concert (rescheduled)",
		UnitPrice:   &newPrice,
		BookingOpen: &closed,
	})
	require.NoError(t, err)
	assert.Equal(t, "Concert (rescheduled)", updated.Name)
	assert.Equal(t, 55.0, updated.UnitPrice)
	assert.False(t, updated.BookingOpen)
	assert.Equal(t, 100, updated.AvailableCapacity, "update never touches capacity counters")

	t.Run("invalid status", func(t *testing.T) {
		_, err := svc.UpdateEvent(ctx, created.ID, &dto.UpdateEventRequest{Status: "bogus"})
		assert.ErrorIs(t, err, domain.ErrInvalidEventStatus)
	})

	t.Run("cancel and reactivate", func(t *testing.T) {
		cancelled, err := svc.UpdateEvent(ctx, created.ID, &dto.UpdateEventRequest{Status: "cancelled"})
		require.NoError(t, err)
		assert.Equal(t, string(domain.EventStatusCancelled), cancelled.Status)

		active, err := svc.UpdateEvent(ctx, created.ID, &dto.UpdateEventRequest{Status: "active"})
		require.NoError(t, err)
		assert.Equal(t, string(domain.EventStatusActive), active.Status)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svc.UpdateEvent(ctx, "missing", &dto.UpdateEventRequest{Name: "x"})
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
	})
}

func TestEventService_UpdateEvent_StartedEventIsImmutable(t *testing.T) {
	events := repository.NewMemoryEventRepository()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := NewEventServiceWithClock(events, func() time.Time { return now })
	ctx := context.Background()

	event := &domain.Event{
		ID:                "event-1",
		Name:              "Already Running",
		StartTime:         now.Add(-time.Hour),
		EndTime:           now.Add(time.Hour),
		TotalCapacity:     50,
		AvailableCapacity: 50,
		Status:            domain.EventStatusActive,
		BookingOpen:       true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, events.Create(ctx, event))

	_, err := svc.UpdateEvent(ctx, "event-1", &dto.UpdateEventRequest{Name: "Renamed"})
	assert.ErrorIs(t, err, domain.ErrEventStarted)
}

func TestEventService_SetBookingOpen(t *testing.T) {
	svc, events, now := newEventFixture()
	ctx := context.Background()

	created, err := svc.CreateEvent(ctx, &dto.CreateEventRequest{
		Name:      "Gate Test",
		StartTime: now.Add(24 * time.Hour),
		EndTime:   now.Add(26 * time.Hour),
		Capacity:  10,
	})
	require.NoError(t, err)

	require.NoError(t, svc.SetBookingOpen(ctx, created.ID, false))
	stored, err := events.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.BookingOpen)

	assert.ErrorIs(t, svc.SetBookingOpen(ctx, "missing", true), domain.ErrEventNotFound)
}

func TestEventService_ListEvents(t *testing.T) {
	svc, _, now := newEventFixture()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateEvent(ctx, &dto.CreateEventRequest{
			Name:      "Event",
			StartTime: now.Add(time.Duration(i+1) * 24 * time.Hour),
			EndTime:   now.Add(time.Duration(i+1)*24*time.Hour + 2*time.Hour),
			Capacity:  10,
		})
		require.NoError(t, err)
	}

	listed, err := svc.ListEvents(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	rest, err := svc.ListEvents(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestEventService_EndedEventReportsCompleted(t *testing.T) {
	svc, events, now := newEventFixture()
	ctx := context.Background()

	ended := &domain.Event{
		ID:                "ev-ended",
		Name:              "Past Show",
		StartTime:         now.Add(-48 * time.Hour),
		EndTime:           now.Add(-44 * time.Hour),
		TotalCapacity:     100,
		AvailableCapacity: 40,
		Status:            domain.EventStatusActive,
	}
	require.NoError(t, events.Create(ctx, ended))

	got, err := svc.GetEvent(ctx, "ev-ended")
	require.NoError(t, err)
	assert.Equal(t, string(domain.EventStatusCompleted), got.Status)

	stored, err := events.GetByID(ctx, "ev-ended")
	require.NoError(t, err)
	assert.Equal(t, domain.EventStatusActive, stored.Status, "completion is derived, not written")

	t.Run("cancelled stays cancelled", func(t *testing.T) {
		ended.ID = "ev-cancelled"
		ended.Status = domain.EventStatusCancelled
		require.NoError(t, events.Create(ctx, ended))

		got, err := svc.GetEvent(ctx, "ev-cancelled")
		require.NoError(t, err)
		assert.Equal(t, string(domain.EventStatusCancelled), got.Status)
	})
}
