package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/yash-parekh715/nuvio/internal/domain"
	"github.com/yash-parekh715/nuvio/pkg/database"
	"github.com/yash-parekh715/nuvio/pkg/kafka"
	"github.com/yash-parekh715/nuvio/pkg/logger"
	pkgredis "github.com/yash-parekh715/nuvio/pkg/redis"
)

// availabilityKey is the Redis key for an event's cached availability
func availabilityKey(eventID string) string {
	return fmt.Sprintf("event:availability:%s", eventID)
}

// AvailabilityCacheWorkerConfig holds configuration for the cache worker
type AvailabilityCacheWorkerConfig struct {
	BatchInterval    time.Duration
	MaxBatchSize     int
	RebuildOnStartup bool
}

// availabilityDelta accumulates capacity changes for one event between
// flushes. Confirmation does not move capacity; it was debited when the
// hold was created.
type availabilityDelta struct {
	eventID  string
	reserved int
	released int
}

func (d *availabilityDelta) net() int {
	return d.released - d.reserved
}

// AvailabilityCacheWorker consumes booking lifecycle events and maintains
// per-event availability counters in Redis. The cache is advisory; the
// database stays the source of truth for every admission decision.
type AvailabilityCacheWorker struct {
	config   *AvailabilityCacheWorkerConfig
	consumer *kafka.Consumer
	db       *database.PostgresDB
	redis    *pkgredis.Client
	log      *logger.Logger

	mu     sync.Mutex
	deltas map[string]*availabilityDelta
}

// NewAvailabilityCacheWorker creates a new availability cache worker
func NewAvailabilityCacheWorker(
	cfg *AvailabilityCacheWorkerConfig,
	consumer *kafka.Consumer,
	db *database.PostgresDB,
	redis *pkgredis.Client,
) *AvailabilityCacheWorker {
	if cfg == nil {
		cfg = &AvailabilityCacheWorkerConfig{}
	}
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = 5 * time.Second
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1000
	}

	return &AvailabilityCacheWorker{
		config:   cfg,
		consumer: consumer,
		db:       db,
		redis:    redis,
		log:      logger.Get(),
		deltas:   make(map[string]*availabilityDelta),
	}
}

// Start begins consuming events and flushing deltas. It blocks until the
// context is cancelled.
func (w *AvailabilityCacheWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.BatchInterval)
	defer ticker.Stop()

	flushCh := make(chan struct{}, 1)
	go w.consumeLoop(ctx, flushCh)

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Availability cache worker stopping, flushing remaining deltas")
			w.flush(context.Background())
			return
		case <-ticker.C:
			w.flush(ctx)
		case <-flushCh:
			w.flush(ctx)
		}
	}
}

func (w *AvailabilityCacheWorker) consumeLoop(ctx context.Context, flushCh chan<- struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			records, err := w.consumer.Poll(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Error("Failed to poll kafka", logger.Error(err))
				time.Sleep(time.Second)
				continue
			}
			if len(records) == 0 {
				continue
			}

			for _, record := range records {
				if err := w.processRecord(record); err != nil {
					w.log.Error("Failed to process record", logger.Error(err))
				}
			}

			if err := w.consumer.CommitRecords(ctx, records); err != nil {
				w.log.Error("Failed to commit offsets", logger.Error(err))
			}

			w.mu.Lock()
			pending := len(w.deltas)
			w.mu.Unlock()
			if pending >= w.config.MaxBatchSize {
				select {
				case flushCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

func (w *AvailabilityCacheWorker) processRecord(record *kafka.Record) error {
	var event domain.BookingEvent
	if err := json.Unmarshal(record.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal booking event: %w", err)
	}
	if event.BookingData == nil {
		return fmt.Errorf("booking event %s has no data", event.EventID)
	}

	w.aggregate(&event)
	return nil
}

// aggregate folds one booking event into the pending deltas
func (w *AvailabilityCacheWorker) aggregate(event *domain.BookingEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	eventID := event.BookingData.EventID
	tickets := event.BookingData.TicketCount

	delta, ok := w.deltas[eventID]
	if !ok {
		delta = &availabilityDelta{eventID: eventID}
		w.deltas[eventID] = delta
	}

	switch event.EventType {
	case domain.BookingEventCreated:
		delta.reserved += tickets
	case domain.BookingEventCancelled, domain.BookingEventExpired:
		delta.released += tickets
	case domain.BookingEventConfirmed:
		// capacity already held
	}
}

// flush applies pending deltas to Redis. A failed event keeps its delta
// for the next flush; other events still apply.
func (w *AvailabilityCacheWorker) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.deltas) == 0 {
		w.mu.Unlock()
		return
	}
	deltas := w.deltas
	w.deltas = make(map[string]*availabilityDelta)
	w.mu.Unlock()

	applied := 0
	for eventID, delta := range deltas {
		net := delta.net()
		if net == 0 {
			continue
		}
		if err := w.redis.Client().IncrBy(ctx, availabilityKey(eventID), int64(net)).Err(); err != nil {
			w.log.Error("Failed to apply availability delta",
				logger.String("event_id", eventID),
				logger.Int("delta", net),
				logger.Error(err))
			w.restore(delta)
			continue
		}
		applied++
	}

	if applied > 0 {
		w.log.Debug("Applied availability deltas", logger.Int("events", applied))
	}
}

func (w *AvailabilityCacheWorker) restore(delta *availabilityDelta) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if existing, ok := w.deltas[delta.eventID]; ok {
		existing.reserved += delta.reserved
		existing.released += delta.released
	} else {
		w.deltas[delta.eventID] = delta
	}
}

// Rebuild overwrites the Redis cache from the events table. Run at startup
// so counters do not drift across deploys.
func (w *AvailabilityCacheWorker) Rebuild(ctx context.Context) error {
	const query = `
		SELECT id, available_capacity
		FROM events
		WHERE status = 'active'
	`

	rows, err := w.db.Pool().Query(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var eventID string
		var available int64
		if err := rows.Scan(&eventID, &available); err != nil {
			w.log.Error("Failed to scan event row", logger.Error(err))
			continue
		}
		if err := w.redis.Client().Set(ctx, availabilityKey(eventID), available, 0).Err(); err != nil {
			w.log.Error("Failed to set availability key",
				logger.String("event_id", eventID),
				logger.Error(err))
			continue
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating events: %w", err)
	}

	w.log.Info("Availability cache rebuilt", logger.Int("events", count))
	return nil
}

// PendingDeltaCount returns the number of events with unflushed deltas
func (w *AvailabilityCacheWorker) PendingDeltaCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.deltas)
}
