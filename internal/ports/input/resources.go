// Package input defines the primary/driving ports of the application.
package input

import (
	"context"
	"time"
)

// ResourceService defines the primary port for resource management.
// Unknown keys yield domain.ErrResourceNotFound.
type ResourceService interface {
	// List returns snapshots of all resources in catalog order.
	List(ctx context.Context) ([]ResourceView, error)

	// Get returns a snapshot of one resource.
	Get(ctx context.Context, key string) (*ResourceView, error)

	// StartDownload starts downloading a resource.
	StartDownload(ctx context.Context, key string) (*ResourceView, error)

	// StopDownload requests cancellation of a running download.
	StopDownload(ctx context.Context, key string) (*ResourceView, error)

	// DeleteFiles removes the local files of a resource.
	DeleteFiles(ctx context.Context, key string) (*ResourceView, error)

	// Update brings a resource up to date.
	Update(ctx context.Context, key string) (*ResourceView, error)

	// UpdateAll updates every resource.
	UpdateAll(ctx context.Context) error
}

// ResourceView is a point-in-time snapshot of a resource.
type ResourceView struct {
	Key           string     `json:"key"`
	Section       string     `json:"section"`
	Name          string     `json:"name"`
	Category      string     `json:"category"`
	CategoryLabel string     `json:"category_label"`
	Members       []string   `json:"members,omitempty"`
	Description   string     `json:"description"`
	InfoText      string     `json:"info_text"`
	Downloading   bool       `json:"downloading"`
	HasFile       bool       `json:"has_file"`
	RemoteSize    *int64     `json:"remote_size,omitempty"`
	UpdateSize    int64      `json:"update_size"`
	State         string     `json:"state,omitempty"`
	BytesReceived int64      `json:"bytes_received,omitempty"`
	LastError     *ErrorView `json:"last_error,omitempty"`
}

// ErrorView describes the last failure of a resource.
type ErrorView struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the service is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true if the service is ready to accept requests.
	IsReady(ctx context.Context) bool

	// GetHealthDetails returns detailed health information.
	GetHealthDetails(ctx context.Context) HealthDetails
}

// HealthDetails contains detailed health information.
type HealthDetails struct {
	Healthy             bool              // Overall health status
	Ready               bool              // Ready to accept requests
	ResourcesRegistered int               // Number of single resources
	ResourcesCached     int               // Resources with a local file
	ResourcesActive     int               // Resources currently downloading
	LastSync            time.Time         // Zero if no sync has run
	LastSyncError       string            // Empty if the last sync succeeded
	Components          map[string]string // Component statuses
}
