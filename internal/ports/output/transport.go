package output

import "github.com/jobrunner/flightcache/internal/domain"

// TransferHandle identifies one in-flight transfer.
type TransferHandle string

// TransferCallbacks receive the outcome of a transfer. For one transfer
// progress calls come first, followed by exactly one of OnComplete, OnError
// or OnCancelled. Implementations of Transport deliver all callbacks on the
// event loop that owns the resources.
type TransferCallbacks struct {
	OnProgress  func(bytes int64)
	OnComplete  func(finalSize int64)
	OnError     func(err error)
	OnCancelled func()
}

// Transport moves remote content into local temporary files.
type Transport interface {
	// QueryRemoteMetadata fetches the remote metadata of ref and reports the
	// result through done.
	QueryRemoteMetadata(ref string, done func(domain.RemoteMetadata, error))

	// BeginTransfer starts copying ref into destTemp and returns immediately.
	BeginTransfer(ref, destTemp string, cb TransferCallbacks) TransferHandle

	// Cancel requests cancellation of a transfer. Unknown handles are ignored.
	Cancel(h TransferHandle)
}

// Dispatcher runs functions on the event loop.
type Dispatcher interface {
	Post(fn func())
}
