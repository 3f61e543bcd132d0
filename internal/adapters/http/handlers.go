package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jobrunner/flightcache/internal/application"
	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/input"
)

// resourceAction is a ResourceService method acting on one key.
type resourceAction func(ctx context.Context, key string) (*input.ResourceView, error)

// handleHealth returns detailed health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	body := map[string]interface{}{
		"status":               boolToStatus(details.Healthy),
		"ready":                details.Ready,
		"resources_registered": details.ResourcesRegistered,
		"resources_cached":     details.ResourcesCached,
		"resources_active":     details.ResourcesActive,
		"components":           details.Components,
	}
	if !details.LastSync.IsZero() {
		body["last_sync"] = details.LastSync
	}
	if details.LastSyncError != "" {
		body["last_sync_error"] = details.LastSyncError
	}

	s.writeJSON(w, status, body)
}

// handleLiveness returns liveness status.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsHealthy(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
	}
}

// handleReadiness returns readiness status.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.health.IsReady(r.Context()) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	} else {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
}

// handleListResources returns all registered resources.
func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	views, err := s.resources.List(r.Context())
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"resources": views,
		"count":     len(views),
	})
}

// handleGetResource returns a specific resource.
func (s *Server) handleGetResource(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, http.StatusOK, s.resources.Get)
}

// handleStartDownload starts downloading a resource.
func (s *Server) handleStartDownload(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, http.StatusAccepted, s.resources.StartDownload)
}

// handleStopDownload cancels a running download.
func (s *Server) handleStopDownload(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, http.StatusAccepted, s.resources.StopDownload)
}

// handleUpdate updates a resource if it is out of date.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, http.StatusAccepted, s.resources.Update)
}

// handleDeleteFiles removes the local files of a resource.
func (s *Server) handleDeleteFiles(w http.ResponseWriter, r *http.Request) {
	s.handleAction(w, r, http.StatusOK, s.resources.DeleteFiles)
}

// handleAction runs action on the {key} route variable and writes the
// resulting snapshot.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, status int, action resourceAction) {
	key := mux.Vars(r)["key"]

	view, err := action(r.Context(), key)
	if err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.writeJSON(w, status, view)
}

// handleUpdateAll updates every out-of-date resource.
func (s *Server) handleUpdateAll(w http.ResponseWriter, r *http.Request) {
	if err := s.resources.UpdateAll(r.Context()); err != nil {
		s.handleServiceError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleSync handles the sync trigger endpoint.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.opts.Syncer == nil {
		s.writeError(w, http.StatusNotFound, "Sync service not available")
		return
	}

	result, err := s.opts.Syncer.TriggerSync(r.Context())
	if err != nil {
		if errors.Is(err, application.ErrRateLimited) {
			w.Header().Set("Retry-After", "30")
			s.writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Try again in 30 seconds.")
			return
		}
		s.logger.Error("sync failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "Sync failed")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleOpenAPI returns the OpenAPI specification.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	spec, err := getOpenAPIJSON(s.opts.Version)
	if err != nil {
		s.logger.Error("failed to get OpenAPI spec", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(spec)
}

// handleServiceError maps service errors to HTTP status codes.
func (s *Server) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrResourceNotFound):
		s.writeError(w, http.StatusNotFound, "Resource not found")
	case errors.Is(err, application.ErrLoopStopped):
		s.writeError(w, http.StatusServiceUnavailable, "Service is shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusServiceUnavailable, "Request cancelled")
	default:
		s.logger.Error("request failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Request failed")
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func boolToStatus(b bool) string {
	if b {
		return "ok"
	}
	return "unhealthy"
}
