package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncTransfers increments the transfer counter by outcome
	// (completed, failed, cancelled).
	IncTransfers(category string, outcome string)

	// ObserveTransferDuration records the duration of a finished transfer.
	ObserveTransferDuration(category string, duration time.Duration)

	// AddBytesTransferred adds to the transferred bytes counter.
	AddBytesTransferred(n int64)

	// SetResourcesRegistered sets the number of catalog entries.
	SetResourcesRegistered(count int)

	// SetResourcesCached sets the number of entries with a local file.
	SetResourcesCached(count int)

	// SetTransfersActive sets the number of entries currently downloading.
	SetTransfersActive(count int)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)

	// IncSyncs increments the manifest sync counter.
	IncSyncs(success bool)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncTransfers implements MetricsCollector.
func (n *NoOpMetrics) IncTransfers(_, _ string) {}

// ObserveTransferDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveTransferDuration(_ string, _ time.Duration) {}

// AddBytesTransferred implements MetricsCollector.
func (n *NoOpMetrics) AddBytesTransferred(_ int64) {}

// SetResourcesRegistered implements MetricsCollector.
func (n *NoOpMetrics) SetResourcesRegistered(_ int) {}

// SetResourcesCached implements MetricsCollector.
func (n *NoOpMetrics) SetResourcesCached(_ int) {}

// SetTransfersActive implements MetricsCollector.
func (n *NoOpMetrics) SetTransfersActive(_ int) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}

// IncSyncs implements MetricsCollector.
func (n *NoOpMetrics) IncSyncs(_ bool) {}
