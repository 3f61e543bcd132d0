// Package application contains the application services.
package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jobrunner/flightcache/internal/ports/output"
)

// ErrRateLimited is returned when the sync API rate limit is exceeded.
var ErrRateLimited = errors.New("rate limit exceeded")

// apiSyncCooldown is the minimum gap between API-triggered syncs.
const apiSyncCooldown = 30 * time.Second

// SyncResult contains the result of a sync operation.
type SyncResult struct {
	ResourcesAdded   int       `json:"resources_added"`
	ResourcesRemoved int       `json:"resources_removed"`
	ResourcesUpdated int       `json:"resources_updated"`
	ResourcesTotal   int       `json:"resources_total"`
	SyncedAt         time.Time `json:"synced_at"`
	NextScheduledAt  time.Time `json:"next_scheduled_at,omitempty"`
}

// SyncOptions configures the sync service.
type SyncOptions struct {
	Interval   time.Duration // 0 disables periodic sync
	AutoUpdate bool          // Update every resource after a successful sync
}

// SyncService manages periodic synchronization with remote storage.
type SyncService struct {
	manifest *Manifest
	catalog  *Catalog
	loop     *Loop
	opts     SyncOptions
	metrics  output.MetricsCollector
	logger   *slog.Logger

	// Lifecycle management
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Rate limiting for API triggers
	lastAPISync time.Time
	apiMutex    sync.Mutex

	// Prevents concurrent sync operations
	syncOpMutex sync.Mutex

	// Track sync state for reporting
	nextSync time.Time
	lastSync time.Time
	lastErr  error
	syncMu   sync.RWMutex
}

// NewSyncService creates a new sync service.
func NewSyncService(
	manifest *Manifest,
	catalog *Catalog,
	loop *Loop,
	opts SyncOptions,
	metrics output.MetricsCollector,
	logger *slog.Logger,
) *SyncService {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &SyncService{
		manifest: manifest,
		catalog:  catalog,
		loop:     loop,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
		stopCh:   make(chan struct{}),
		// Initialize to past time to allow immediate first API call
		lastAPISync: time.Now().Add(-apiSyncCooldown - time.Second),
	}
}

// Start begins the periodic sync scheduler. It does nothing if periodic
// sync is disabled.
func (s *SyncService) Start(ctx context.Context) {
	if s.opts.Interval <= 0 {
		s.logger.Info("periodic sync disabled")
		return
	}
	s.logger.Info("starting sync service", "interval", s.opts.Interval, "auto_update", s.opts.AutoUpdate)

	s.wg.Add(1)
	go s.run(ctx)
}

// run is the main sync loop.
func (s *SyncService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.setNextSync(time.Now().Add(s.opts.Interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("sync service stopped")
			return
		case <-ticker.C:
			s.logger.Debug("scheduled sync triggered")
			if _, err := s.SyncNow(ctx); err != nil {
				s.logger.Error("sync failed", "error", err)
			}
			s.setNextSync(time.Now().Add(s.opts.Interval))
		}
	}
}

// Stop gracefully stops the sync service.
func (s *SyncService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("stopping sync service")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// TriggerSync manually triggers a sync operation with rate limiting.
func (s *SyncService) TriggerSync(ctx context.Context) (SyncResult, error) {
	s.apiMutex.Lock()
	defer s.apiMutex.Unlock()

	if time.Since(s.lastAPISync) < apiSyncCooldown {
		return SyncResult{}, ErrRateLimited
	}
	s.lastAPISync = time.Now()

	return s.SyncNow(ctx)
}

// SyncNow runs one sync without rate limiting. Concurrent calls are
// serialized.
func (s *SyncService) SyncNow(ctx context.Context) (SyncResult, error) {
	// Prevent concurrent sync operations
	s.syncOpMutex.Lock()
	defer s.syncOpMutex.Unlock()

	stats, err := s.manifest.Sync(ctx)
	s.metrics.IncSyncs(err == nil)
	s.recordSync(err)
	if err != nil {
		return SyncResult{}, err
	}

	var total int
	err = s.loop.Do(ctx, func() {
		if s.opts.AutoUpdate {
			s.catalog.UpdateAll()
		}
		total = s.catalog.Summary().Registered
	})
	if err != nil {
		return SyncResult{}, err
	}

	return SyncResult{
		ResourcesAdded:   stats.Added,
		ResourcesRemoved: stats.Removed,
		ResourcesUpdated: stats.Updated,
		ResourcesTotal:   total,
		SyncedAt:         time.Now(),
		NextScheduledAt:  s.getNextSync(),
	}, nil
}

// LastSync returns the time and error of the most recent sync. The time is
// zero if no sync has run yet.
func (s *SyncService) LastSync() (time.Time, error) {
	s.syncMu.RLock()
	defer s.syncMu.RUnlock()
	return s.lastSync, s.lastErr
}

func (s *SyncService) recordSync(err error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.lastSync = time.Now()
	s.lastErr = err
}

// setNextSync updates the next scheduled sync time.
func (s *SyncService) setNextSync(t time.Time) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.nextSync = t
}

// getNextSync returns the next scheduled sync time.
func (s *SyncService) getNextSync() time.Time {
	s.syncMu.RLock()
	defer s.syncMu.RUnlock()
	return s.nextSync
}

// Interval returns the sync interval.
func (s *SyncService) Interval() time.Duration {
	return s.opts.Interval
}
