package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/output"
)

// tempSuffix marks in-progress downloads next to their canonical file. Each
// transfer writes to its own "<name>.<digits>.part" file.
const tempSuffix = ".part"

// ResourceDeps holds the collaborators shared by single resources.
type ResourceDeps struct {
	Transport output.Transport
	State     output.StateStore // optional
	Metrics   output.MetricsCollector
	Logger    *slog.Logger
}

// SingleResourceConfig describes one remote file and its local slot.
type SingleResourceConfig struct {
	Key       string          // Catalog key
	Ref       string          // Remote object key; defaults to Key
	Identity  domain.Identity // Descriptive metadata
	LocalPath string          // Canonical local file
}

// SingleResource is one network-backed file with a local cache slot.
type SingleResource struct {
	key       string
	ref       string
	identity  domain.Identity
	localPath string
	tempPath  string // Temporary file of the live transfer

	transport output.Transport
	state     output.StateStore
	metrics   output.MetricsCollector
	logger    *slog.Logger
	notifier  domain.Notifier

	remote      domain.RemoteMetadata
	remoteKnown bool
	listed      domain.RemoteMetadata // Last origin listing, size possibly unknown
	listedKnown bool

	localPresent bool
	localSize    int64
	localModTime time.Time
	record       *domain.LocalRecord

	transferState domain.TransferState
	handle        output.TransferHandle
	attempt       uint64
	bytesReceived int64
	startedAt     time.Time

	lastError *domain.ErrorInfo
	destroyed bool
}

// NewSingleResource creates a single resource and inspects its local slot.
func NewSingleResource(cfg SingleResourceConfig, deps ResourceDeps) *SingleResource {
	if cfg.Ref == "" {
		cfg.Ref = cfg.Key
	}
	if deps.Metrics == nil {
		deps.Metrics = &output.NoOpMetrics{}
	}

	r := &SingleResource{
		key:       cfg.Key,
		ref:       cfg.Ref,
		identity:  cfg.Identity,
		localPath: cfg.LocalPath,
		transport: deps.Transport,
		state:     deps.State,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With("key", cfg.Key),
	}

	r.refreshLocal()
	r.loadRecord()
	r.removeStaleTemps()

	return r
}

// Key implements domain.Resource.
func (r *SingleResource) Key() string { return r.key }

// Identity implements domain.Resource.
func (r *SingleResource) Identity() domain.Identity { return r.identity }

// LocalPath returns the canonical local file path.
func (r *SingleResource) LocalPath() string { return r.localPath }

// Valid implements domain.Resource.
func (r *SingleResource) Valid() bool { return !r.destroyed }

// Subscribe implements domain.Resource.
func (r *SingleResource) Subscribe(l domain.Listener) {
	if r.destroyed {
		return
	}
	r.notifier.Subscribe(l)
}

// TransferState returns the current transfer state.
func (r *SingleResource) TransferState() domain.TransferState { return r.transferState }

// BytesReceived returns the progress of the current transfer.
func (r *SingleResource) BytesReceived() int64 { return r.bytesReceived }

// LastError returns the last failure, or nil.
func (r *SingleResource) LastError() *domain.ErrorInfo {
	if r.lastError == nil {
		return nil
	}
	info := *r.lastError
	return &info
}

// RemoteMetadata returns the last known remote metadata.
func (r *SingleResource) RemoteMetadata() (domain.RemoteMetadata, bool) {
	return r.remote, r.remoteKnown
}

// RemoteSize implements domain.Resource.
func (r *SingleResource) RemoteSize() (int64, bool) {
	if !r.remoteKnown {
		return 0, false
	}
	return r.remote.Size, true
}

// HasFile implements domain.Resource.
func (r *SingleResource) HasFile() bool { return r.localPresent }

// Downloading implements domain.Resource.
func (r *SingleResource) Downloading() bool {
	return r.transferState != domain.StateIdle
}

// Stale reports whether a local file exists and the remote copy is newer.
func (r *SingleResource) Stale() bool {
	if !r.localPresent || !r.remoteKnown {
		return false
	}
	if r.record == nil {
		return r.remote.Size != r.localSize
	}
	return r.remote.NewerThan(r.record.Remote)
}

// UpdateSize implements domain.Resource. Updates re-download the whole file,
// so a stale file reports the full remote size.
func (r *SingleResource) UpdateSize() int64 {
	if !r.Stale() {
		return 0
	}
	return r.remote.Size
}

// SetRemoteMetadata records freshly fetched remote metadata.
func (r *SingleResource) SetRemoteMetadata(meta domain.RemoteMetadata) {
	if r.destroyed {
		return
	}
	if r.remoteKnown && r.remote == meta {
		return
	}

	r.remote = meta
	r.remoteKnown = true
	r.notifier.EmitSignals(
		domain.SignalUpdateSizeChanged,
		domain.SignalInfoTextChanged,
		domain.SignalDescriptionChanged,
	)
}

// ApplyListing records a listing entry whose size is unknown. The size is
// queried from the transport when the entry changed or no remote metadata
// is known yet. It reports whether the entry differs from the previous one.
func (r *SingleResource) ApplyListing(meta domain.RemoteMetadata) bool {
	if r.destroyed {
		return false
	}

	changed := !r.listedKnown || r.listed != meta
	r.listed = meta
	r.listedKnown = true
	if changed || !r.remoteKnown {
		r.RefreshRemoteMetadata()
	}
	return changed
}

// RefreshRemoteMetadata asks the transport for current remote metadata.
// Fields the answer lacks are taken from the last listing. A failed query
// clears the remote size and sets LastError.
func (r *SingleResource) RefreshRemoteMetadata() {
	if r.destroyed {
		return
	}

	r.transport.QueryRemoteMetadata(r.ref, func(meta domain.RemoteMetadata, err error) {
		if r.destroyed {
			return
		}
		if err != nil {
			r.remoteKnown = false
			r.remote = domain.RemoteMetadata{}
			r.reportError(errorKind(err, domain.NetworkError), err)
			r.notifier.EmitSignals(domain.SignalUpdateSizeChanged, domain.SignalInfoTextChanged)
			return
		}
		if r.listedKnown {
			if meta.Version == "" {
				meta.Version = r.listed.Version
			}
			if meta.ETag == "" {
				meta.ETag = r.listed.ETag
			}
			if meta.LastModified.IsZero() {
				meta.LastModified = r.listed.LastModified
			}
		}
		r.SetRemoteMetadata(meta)
	})
}

// StartDownload implements domain.Resource. It is a no-op while a transfer
// is in flight.
func (r *SingleResource) StartDownload() {
	if r.destroyed || r.transferState != domain.StateIdle {
		return
	}

	dir := filepath.Dir(r.localPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		r.reportError(domain.IOError, fmt.Errorf("creating cache directory: %w", err))
		return
	}
	f, err := os.CreateTemp(dir, filepath.Base(r.localPath)+".*"+tempSuffix)
	if err != nil {
		r.reportError(domain.IOError, fmt.Errorf("creating temporary file: %w", err))
		return
	}
	temp := f.Name()
	// CreateTemp uses 0600; cached files are group-readable.
	_ = f.Chmod(0640)
	_ = f.Close()

	r.attempt++
	attempt := r.attempt
	r.tempPath = temp
	r.transferState = domain.StateDownloading
	r.bytesReceived = 0
	r.startedAt = time.Now()

	r.logger.Info("starting download", "ref", r.ref)
	r.handle = r.transport.BeginTransfer(r.ref, temp, output.TransferCallbacks{
		OnProgress:  func(n int64) { r.onProgress(attempt, n) },
		OnComplete:  func(size int64) { r.onComplete(attempt, temp, size) },
		OnError:     func(err error) { r.onError(attempt, temp, err) },
		OnCancelled: func() { r.onCancelled(attempt, temp) },
	})

	r.notifier.EmitSignals(domain.SignalDownloadingChanged, domain.SignalInfoTextChanged)
}

// StopDownload implements domain.Resource. Cancellation is cooperative: the
// resource stays in StateCancelling until the transport acknowledges.
func (r *SingleResource) StopDownload() {
	if r.destroyed || r.transferState != domain.StateDownloading {
		return
	}

	r.logger.Info("cancelling download")
	r.transferState = domain.StateCancelling
	r.transport.Cancel(r.handle)
	r.notifier.EmitSignals(domain.SignalInfoTextChanged)
}

// Update implements domain.Resource.
func (r *SingleResource) Update() {
	if r.destroyed || r.UpdateSize() == 0 {
		return
	}
	// The canonical file stays in place until the new copy is promoted.
	r.StartDownload()
}

// DeleteFiles implements domain.Resource. Remote metadata is kept.
func (r *SingleResource) DeleteFiles() {
	if r.destroyed {
		return
	}

	r.StopDownload()
	r.removeStaleTemps()

	hadFile := r.localPresent
	if err := os.Remove(r.localPath); err != nil && !os.IsNotExist(err) {
		r.reportError(domain.IOError, fmt.Errorf("deleting local file: %w", err))
	}

	r.record = nil
	if r.state != nil {
		if err := r.state.Delete(context.Background(), r.key); err != nil {
			r.logger.Warn("failed to delete state record", "error", err)
		}
	}

	r.refreshLocal()
	if hadFile && !r.localPresent {
		r.logger.Info("deleted local file", "path", r.localPath)
		r.emitFileChanged(true)
	}
}

// Rescan re-inspects the canonical file, e.g. after it changed out of band.
func (r *SingleResource) Rescan() {
	if r.destroyed {
		return
	}

	hadFile, oldSize, oldMod := r.localPresent, r.localSize, r.localModTime
	r.refreshLocal()

	switch {
	case hadFile != r.localPresent:
		if !r.localPresent {
			r.record = nil
		}
		r.emitFileChanged(true)
	case r.localPresent && (oldSize != r.localSize || !oldMod.Equal(r.localModTime)):
		r.emitFileChanged(false)
	}
}

// Destroy implements domain.Resource. An in-flight transfer is cancelled and
// its temporary file discarded; the canonical file is kept.
func (r *SingleResource) Destroy() {
	if r.destroyed {
		return
	}
	if r.transferState != domain.StateIdle {
		r.transport.Cancel(r.handle)
	}
	r.destroyed = true
	r.transferState = domain.StateIdle
	r.notifier.Reset()
}

// Description implements domain.Resource.
func (r *SingleResource) Description() string {
	if r.destroyed {
		return ""
	}

	result := ""
	if r.remoteKnown {
		result += "<p>" + fmt.Sprintf("Remote file: %s", humanize.Bytes(uint64(max(r.remote.Size, 0))))
		if !r.remote.LastModified.IsZero() {
			result += ", published " + humanize.Time(r.remote.LastModified)
		}
		if r.remote.Version != "" {
			result += ", version " + r.remote.Version
		}
		result += "</p>"
	}

	if r.localPresent {
		result += "<p>" + fmt.Sprintf("Installed file: %s", humanize.Bytes(uint64(r.localSize)))
		if !r.localModTime.IsZero() {
			result += ", downloaded " + humanize.Time(r.localModTime)
		}
		result += "</p>"
	} else {
		result += "<p>No local file.</p>"
	}

	return result
}

// InfoText implements domain.Resource.
func (r *SingleResource) InfoText() string {
	if r.destroyed {
		return ""
	}

	switch r.transferState {
	case domain.StateCancelling:
		return "Cancelling download..."
	case domain.StateDownloading:
		if r.remoteKnown && r.remote.Size > 0 {
			return fmt.Sprintf("Downloading... %d%%", r.bytesReceived*100/r.remote.Size)
		}
		return "Downloading... " + humanize.Bytes(uint64(r.bytesReceived))
	}

	var text string
	switch {
	case r.localPresent && r.Stale():
		text = "Update available: " + humanize.Bytes(uint64(r.UpdateSize()))
	case r.localPresent:
		text = "Installed: " + humanize.Bytes(uint64(r.localSize))
	case r.remoteKnown:
		text = "Not installed: " + humanize.Bytes(uint64(max(r.remote.Size, 0)))
	default:
		text = "Not installed"
	}

	if r.lastError != nil {
		text += ". Last error: " + r.lastError.Message
	}
	return text
}

// isCurrent reports whether a callback belongs to the live transfer.
func (r *SingleResource) isCurrent(attempt uint64) bool {
	return attempt == r.attempt && r.transferState != domain.StateIdle
}

func (r *SingleResource) onProgress(attempt uint64, n int64) {
	if r.destroyed || !r.isCurrent(attempt) {
		return
	}
	r.bytesReceived = n
	r.notifier.EmitSignals(domain.SignalInfoTextChanged)
}

func (r *SingleResource) onComplete(attempt uint64, temp string, size int64) {
	if r.destroyed || !r.isCurrent(attempt) {
		removeTemp(temp, r.logger)
		return
	}

	// A completion racing a cancel request is treated as cancelled.
	if r.transferState == domain.StateCancelling {
		r.onCancelled(attempt, temp)
		return
	}

	if r.remoteKnown && size != r.remote.Size {
		r.failTransfer(domain.NetworkError, fmt.Errorf("%w: got %d of %d bytes",
			domain.ErrIncompleteTransfer, size, r.remote.Size))
		return
	}

	if err := os.Rename(temp, r.localPath); err != nil {
		r.failTransfer(domain.IOError, fmt.Errorf("promoting download: %w", err))
		return
	}

	if !r.remoteKnown {
		r.remote = r.listed
		r.remote.Size = size
		r.remoteKnown = true
	}

	rec := domain.LocalRecord{Key: r.key, Remote: r.remote, DownloadedAt: time.Now()}
	r.record = &rec
	if r.state != nil {
		if err := r.state.Put(context.Background(), rec); err != nil {
			r.logger.Warn("failed to persist state record", "error", err)
		}
	}

	hadFile := r.localPresent
	r.refreshLocal()
	r.lastError = nil
	r.finishTransfer("completed")
	r.metrics.AddBytesTransferred(size)

	r.logger.Info("download completed",
		"path", r.localPath,
		"size", size,
		"duration", time.Since(r.startedAt).Round(time.Millisecond),
	)

	r.notifier.EmitSignals(domain.SignalDownloadingChanged)
	r.emitFileChanged(!hadFile)
}

func (r *SingleResource) onError(attempt uint64, temp string, err error) {
	if r.destroyed || !r.isCurrent(attempt) {
		removeTemp(temp, r.logger)
		return
	}
	r.failTransfer(errorKind(err, domain.NetworkError), err)
}

func (r *SingleResource) onCancelled(attempt uint64, temp string) {
	if r.destroyed || !r.isCurrent(attempt) {
		removeTemp(temp, r.logger)
		return
	}

	r.finishTransfer("cancelled")
	r.logger.Info("download cancelled")
	r.notifier.EmitSignals(domain.SignalDownloadingChanged, domain.SignalInfoTextChanged)
}

func (r *SingleResource) failTransfer(kind domain.ErrorKind, err error) {
	r.finishTransfer("failed")
	r.reportError(kind, err)
	r.notifier.EmitSignals(domain.SignalDownloadingChanged)
}

func (r *SingleResource) finishTransfer(outcome string) {
	category := r.identity.Category.String()
	r.metrics.IncTransfers(category, outcome)
	r.metrics.ObserveTransferDuration(category, time.Since(r.startedAt))

	removeTemp(r.tempPath, r.logger)
	r.transferState = domain.StateIdle
	r.handle = ""
	r.tempPath = ""
	r.bytesReceived = 0
}

// reportError records the failure as LastError and notifies subscribers.
func (r *SingleResource) reportError(kind domain.ErrorKind, err error) {
	var te *domain.TransferError
	if errors.As(err, &te) {
		err = te.Err
	}
	info := domain.NewErrorInfo(&domain.TransferError{Kind: kind, Key: r.key, Err: err})
	r.lastError = &info

	r.logger.Warn("resource error", "kind", kind.String(), "error", err)
	r.notifier.EmitError(info)
	r.notifier.EmitSignals(domain.SignalInfoTextChanged)
}

func (r *SingleResource) emitFileChanged(hasFileChanged bool) {
	signals := []domain.Signal{domain.SignalFileContentChanged}
	if hasFileChanged {
		signals = append(signals, domain.SignalHasFileChanged)
	}
	signals = append(signals,
		domain.SignalUpdateSizeChanged,
		domain.SignalInfoTextChanged,
		domain.SignalDescriptionChanged,
	)
	r.notifier.EmitSignals(signals...)
}

func (r *SingleResource) refreshLocal() {
	info, err := os.Stat(r.localPath)
	if err != nil || !info.Mode().IsRegular() {
		r.localPresent = false
		r.localSize = 0
		r.localModTime = time.Time{}
		return
	}
	r.localPresent = true
	r.localSize = info.Size()
	r.localModTime = info.ModTime()
}

func (r *SingleResource) loadRecord() {
	if r.state == nil || !r.localPresent {
		return
	}

	rec, ok, err := r.state.Get(context.Background(), r.key)
	if err != nil {
		r.logger.Warn("failed to load state record", "error", err)
		return
	}
	if ok {
		r.record = &rec
	}
}

// removeStaleTemps deletes every temporary file of this resource, including
// leftovers of earlier runs. Temp files of other resources in the same
// directory do not match.
func (r *SingleResource) removeStaleTemps() {
	dir, base := filepath.Split(r.localPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if isTempOf(e.Name(), base) {
			removeTemp(filepath.Join(dir, e.Name()), r.logger)
		}
	}
}

// isTempOf reports whether name is a temporary file of base: either
// "<base>.part" or "<base>.<digits>.part".
func isTempOf(name, base string) bool {
	if name == base+tempSuffix {
		return true
	}
	rest, ok := strings.CutPrefix(name, base+".")
	if !ok {
		return false
	}
	digits, ok := strings.CutSuffix(rest, tempSuffix)
	if !ok || digits == "" {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func removeTemp(path string, logger *slog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove temporary file", "path", path, "error", err)
	}
}

// errorKind extracts the kind of a wrapped TransferError.
func errorKind(err error, fallback domain.ErrorKind) domain.ErrorKind {
	var te *domain.TransferError
	if errors.As(err, &te) && te.Kind != 0 {
		return te.Kind
	}
	return fallback
}
