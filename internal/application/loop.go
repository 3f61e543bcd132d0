package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrLoopStopped is returned by Do once the loop has exited.
var ErrLoopStopped = errors.New("event loop stopped")

// Loop is the single logical thread that owns all resources. Every resource,
// set and catalog method runs inside a function executed by Run.
type Loop struct {
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	stopped chan struct{}
	running bool
}

// NewLoop creates a new event loop. It does nothing until Run is called.
func NewLoop(logger *slog.Logger) *Loop {
	return &Loop{
		logger:  logger,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Post enqueues fn. It never blocks and is safe from any goroutine,
// including from inside the loop.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}

	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-l.stopped:
		// fn may have run right before the loop exited
		select {
		case <-done:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes posted functions one at a time until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	defer close(l.stopped)

	l.logger.Debug("event loop started")
	for {
		for _, fn := range l.drain() {
			l.runOne(fn)
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("event loop stopped")
			return
		case <-l.wake:
		}
	}
}

// Stopped returns a channel that is closed when Run returns.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}

func (l *Loop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := l.queue
	l.queue = nil
	return batch
}

// runOne keeps a panicking task from taking the loop down.
func (l *Loop) runOne(fn func()) {
	defer func() {
		if err := recover(); err != nil {
			l.logger.Error("panic in event loop task", "error", err)
		}
	}()
	fn()
}
