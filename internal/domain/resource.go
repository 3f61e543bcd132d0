// Package domain contains the resource model shared by single files and sets.
package domain

// TransferState is the transfer lifecycle of a single resource.
type TransferState int

// Transfer states.
const (
	StateIdle TransferState = iota
	StateDownloading
	StateCancelling
)

// String returns the string representation of the state.
func (s TransferState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDownloading:
		return "downloading"
	case StateCancelling:
		return "cancelling"
	default:
		return "unknown"
	}
}

// Resource is the contract shared by single resources and resource sets.
// Callers never need to know which of the two they hold.
//
// Implementations are driven from one event loop and are not safe for
// concurrent use.
type Resource interface {
	// Key returns the stable catalog key.
	Key() string
	// Identity returns the descriptive metadata.
	Identity() Identity

	// Valid reports whether the handle still refers to a live resource.
	Valid() bool
	// Destroy invalidates the handle. Local files are left untouched.
	Destroy()

	Description() string
	InfoText() string
	Downloading() bool
	HasFile() bool
	// RemoteSize returns the last known remote size, if any.
	RemoteSize() (int64, bool)
	// UpdateSize returns the number of bytes Update would transfer.
	UpdateSize() int64

	StartDownload()
	StopDownload()
	Update()
	DeleteFiles()

	// Subscribe registers a listener for change notifications.
	Subscribe(l Listener)
}
