package application

import (
	"context"
	"time"

	"github.com/jobrunner/flightcache/internal/ports/input"
)

// SyncStatus reports the outcome of the last sync.
type SyncStatus interface {
	LastSync() (time.Time, error)
}

// HealthService provides health check functionality.
type HealthService struct {
	resources *ResourceService
	sync      SyncStatus // optional
}

var _ input.HealthChecker = (*HealthService)(nil)

// NewHealthService creates a new health service.
func NewHealthService(resources *ResourceService, sync SyncStatus) *HealthService {
	return &HealthService{
		resources: resources,
		sync:      sync,
	}
}

// IsHealthy returns true while the event loop is responsive.
func (s *HealthService) IsHealthy(ctx context.Context) bool {
	_, err := s.resources.Summary(ctx)
	return err == nil
}

// IsReady returns true once a sync succeeded or resources are registered.
func (s *HealthService) IsReady(ctx context.Context) bool {
	summary, err := s.resources.Summary(ctx)
	if err != nil {
		return false
	}
	if summary.Registered > 0 {
		return true
	}

	if s.sync == nil {
		return false
	}
	last, syncErr := s.sync.LastSync()
	return !last.IsZero() && syncErr == nil
}

// GetHealthDetails returns detailed health information.
func (s *HealthService) GetHealthDetails(ctx context.Context) input.HealthDetails {
	components := map[string]string{
		"event_loop": "ok",
		"storage":    "ok",
	}

	summary, err := s.resources.Summary(ctx)
	if err != nil {
		components["event_loop"] = "unavailable"
	}

	details := input.HealthDetails{
		Healthy:             err == nil,
		Ready:               s.IsReady(ctx),
		ResourcesRegistered: summary.Registered,
		ResourcesCached:     summary.Cached,
		ResourcesActive:     summary.Downloading,
		Components:          components,
	}

	if s.sync != nil {
		last, syncErr := s.sync.LastSync()
		details.LastSync = last
		if syncErr != nil {
			details.LastSyncError = syncErr.Error()
			components["storage"] = "error"
		}
	}

	return details
}
