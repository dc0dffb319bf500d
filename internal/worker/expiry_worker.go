package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yash-parekh715/nuvio/internal/service"
	"github.com/yash-parekh715/nuvio/pkg/logger"
)

// ExpiryWorkerConfig contains configuration for the expiry worker
type ExpiryWorkerConfig struct {
	// SweepInterval is the interval between reclaim sweeps
	SweepInterval time.Duration
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() *ExpiryWorkerConfig {
	return &ExpiryWorkerConfig{
		SweepInterval: 5 * time.Minute,
	}
}

// ExpiryWorker periodically reclaims lapsed reservation holds through the
// reservation service. Expiry is enforced at read time by the service, so a
// missed sweep delays capacity release but never over-sells.
type ExpiryWorker struct {
	reservations service.ReservationService
	config       *ExpiryWorkerConfig
	log          *logger.Logger
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool

	// Stats
	totalReclaimed     int64
	totalSweeps        int64
	failedSweeps       int64
	lastSweepTime      time.Time
	lastReclaimedCount int
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(reservations service.ReservationService, config *ExpiryWorkerConfig) *ExpiryWorker {
	if config == nil {
		config = DefaultExpiryWorkerConfig()
	}

	return &ExpiryWorker{
		reservations: reservations,
		config:       config,
		log:          logger.Get(),
		stopCh:       make(chan struct{}),
	}
}

// Start starts the expiry worker. The first sweep runs immediately so holds
// that lapsed while the process was down are reclaimed at startup.
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting expiry worker",
		logger.Duration("sweep_interval", w.config.SweepInterval))

	w.wg.Add(1)
	go w.run(ctx)

	return nil
}

// Stop stops the expiry worker and waits for an in-flight sweep to finish
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping expiry worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Expiry worker stopped")
}

func (w *ExpiryWorker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep runs one reclaim pass. A failed sweep is logged and counted; the
// next tick retries from scratch.
func (w *ExpiryWorker) sweep(ctx context.Context) {
	start := time.Now()

	reclaimed, err := w.reservations.CleanupExpiredReservations(ctx)

	w.mu.Lock()
	w.totalSweeps++
	w.lastSweepTime = start
	if err == nil {
		w.totalReclaimed += int64(reclaimed)
		w.lastReclaimedCount = reclaimed
	} else {
		w.failedSweeps++
	}
	w.mu.Unlock()

	if err != nil {
		w.log.Error("Expiry sweep failed",
			logger.Error(err),
			logger.Duration("elapsed", time.Since(start)))
		return
	}

	if reclaimed > 0 {
		w.log.Info("Reclaimed expired reservations",
			logger.Int("count", reclaimed),
			logger.Duration("elapsed", time.Since(start)))
	}
}

// GetStats returns worker statistics
func (w *ExpiryWorker) GetStats() *ExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ExpiryWorkerStats{
		IsRunning:          w.running,
		TotalReclaimed:     w.totalReclaimed,
		TotalSweeps:        w.totalSweeps,
		FailedSweeps:       w.failedSweeps,
		LastSweepTime:      w.lastSweepTime,
		LastReclaimedCount: w.lastReclaimedCount,
	}
}

// ExpiryWorkerStats contains worker statistics
type ExpiryWorkerStats struct {
	IsRunning          bool      `json:"is_running"`
	TotalReclaimed     int64     `json:"total_reclaimed"`
	TotalSweeps        int64     `json:"total_sweeps"`
	FailedSweeps       int64     `json:"failed_sweeps"`
	LastSweepTime      time.Time `json:"last_sweep_time"`
	LastReclaimedCount int       `json:"last_reclaimed_count"`
}
