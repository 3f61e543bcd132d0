// Package transport moves objects from the remote origin into local
// temporary files.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/output"
)

const (
	defaultProgressInterval = 250 * time.Millisecond
	defaultStatTimeout      = 30 * time.Second
	copyBufferSize          = 64 * 1024
)

// Options configures a Transport.
type Options struct {
	ProgressInterval time.Duration // Minimum gap between progress callbacks
	StatTimeout      time.Duration // Timeout of metadata queries
	Metrics          output.MetricsCollector
	Logger           *slog.Logger
}

// Transport implements output.Transport on top of an ObjectStorage. Each
// transfer runs on its own goroutine; every callback is posted to the
// dispatcher.
type Transport struct {
	storage    output.ObjectStorage
	dispatcher output.Dispatcher
	opts       Options

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[output.TransferHandle]context.CancelFunc
	wg     sync.WaitGroup
}

var _ output.Transport = (*Transport)(nil)

// New creates a new transport.
func New(storage output.ObjectStorage, dispatcher output.Dispatcher, opts Options) *Transport {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = defaultProgressInterval
	}
	if opts.StatTimeout <= 0 {
		opts.StatTimeout = defaultStatTimeout
	}
	if opts.Metrics == nil {
		opts.Metrics = &output.NoOpMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		storage:    storage,
		dispatcher: dispatcher,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		active:     make(map[output.TransferHandle]context.CancelFunc),
	}
}

// QueryRemoteMetadata implements output.Transport.
func (t *Transport) QueryRemoteMetadata(ref string, done func(domain.RemoteMetadata, error)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ctx, cancel := context.WithTimeout(t.ctx, t.opts.StatTimeout)
		defer cancel()

		start := time.Now()
		obj, err := t.storage.Stat(ctx, ref)
		t.opts.Metrics.ObserveStorageDuration("stat", time.Since(start))
		t.opts.Metrics.IncStorageOperations("stat", err == nil)

		if err == nil && !obj.SizeKnown {
			err = domain.ErrSizeUnknown
		}
		if err != nil {
			err = &domain.TransferError{Kind: domain.NetworkError, Key: ref, Err: err}
			t.dispatcher.Post(func() { done(domain.RemoteMetadata{}, err) })
			return
		}
		meta := obj.Metadata()
		t.dispatcher.Post(func() { done(meta, nil) })
	}()
}

// BeginTransfer implements output.Transport.
func (t *Transport) BeginTransfer(ref, destTemp string, cb output.TransferCallbacks) output.TransferHandle {
	handle := output.TransferHandle(uuid.NewString())
	ctx, cancel := context.WithCancel(t.ctx)

	t.mu.Lock()
	t.active[handle] = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run(ctx, handle, ref, destTemp, cb)

	return handle
}

// Cancel implements output.Transport.
func (t *Transport) Cancel(h output.TransferHandle) {
	t.mu.Lock()
	cancel, ok := t.active[h]
	t.mu.Unlock()

	if ok {
		t.opts.Logger.Debug("cancelling transfer", "handle", h)
		cancel()
	}
}

// Active returns the number of running transfers.
func (t *Transport) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Close cancels all transfers and waits for their goroutines to exit.
func (t *Transport) Close() {
	t.cancel()
	t.wg.Wait()
}

func (t *Transport) run(ctx context.Context, handle output.TransferHandle, ref, dest string, cb output.TransferCallbacks) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		cancel := t.active[handle]
		delete(t.active, handle)
		t.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}()

	logger := t.opts.Logger.With("handle", handle, "ref", ref)
	logger.Debug("transfer started", "dest", dest)

	start := time.Now()
	size, err := t.copy(ctx, ref, dest, func(n int64) {
		if cb.OnProgress != nil {
			t.dispatcher.Post(func() { cb.OnProgress(n) })
		}
	})
	t.opts.Metrics.ObserveStorageDuration("read", time.Since(start))

	switch {
	case err == nil:
		t.opts.Metrics.IncStorageOperations("read", true)
		logger.Debug("transfer finished", "bytes", size)
		t.dispatcher.Post(func() { cb.OnComplete(size) })
	case ctx.Err() != nil:
		logger.Debug("transfer cancelled", "bytes", size)
		t.dispatcher.Post(cb.OnCancelled)
	default:
		t.opts.Metrics.IncStorageOperations("read", false)
		logger.Debug("transfer failed", "error", err)
		t.dispatcher.Post(func() { cb.OnError(err) })
	}
}

// copy streams ref into dest and returns the number of bytes written.
// Read failures are network errors, write failures are I/O errors.
func (t *Transport) copy(ctx context.Context, ref, dest string, progress func(int64)) (int64, error) {
	reader, err := t.storage.GetReader(ctx, ref)
	if err != nil {
		return 0, &domain.TransferError{Kind: domain.NetworkError, Key: ref, Err: err}
	}
	defer func() { _ = reader.Close() }()

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640) //#nosec G304 -- dest is a controlled local path
	if err != nil {
		return 0, &domain.TransferError{Kind: domain.IOError, Key: ref, Err: err}
	}
	defer func() { _ = f.Close() }()

	var (
		written      int64
		lastProgress time.Time
		buf          = make([]byte, copyBufferSize)
	)
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		nr, rerr := reader.Read(buf)
		if nr > 0 {
			nw, werr := f.Write(buf[:nr])
			written += int64(nw)
			if werr == nil && nw < nr {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return written, &domain.TransferError{Kind: domain.IOError, Key: ref, Err: werr}
			}
			if time.Since(lastProgress) >= t.opts.ProgressInterval {
				lastProgress = time.Now()
				progress(written)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, &domain.TransferError{Kind: domain.NetworkError, Key: ref, Err: rerr}
		}
	}

	if err := f.Sync(); err != nil {
		return written, &domain.TransferError{Kind: domain.IOError, Key: ref, Err: fmt.Errorf("syncing temp file: %w", err)}
	}
	if err := f.Close(); err != nil {
		return written, &domain.TransferError{Kind: domain.IOError, Key: ref, Err: fmt.Errorf("closing temp file: %w", err)}
	}

	progress(written)
	return written, nil
}
