package output

import (
	"context"

	"github.com/jobrunner/flightcache/internal/domain"
)

// StateStore remembers which remote revision each canonical file came from.
type StateStore interface {
	// Get returns the record for key. ok is false when none exists.
	Get(ctx context.Context, key string) (rec domain.LocalRecord, ok bool, err error)

	// Put stores or replaces the record for rec.Key.
	Put(ctx context.Context, rec domain.LocalRecord) error

	// Delete removes the record for key. Missing records are not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the store.
	Close() error
}
