package domain

import (
	"time"

	goversion "github.com/hashicorp/go-version"
)

// RemoteMetadata describes the remote copy of a resource.
type RemoteMetadata struct {
	Size         int64     // Content size in bytes
	ETag         string    // Content hash reported by the origin
	Version      string    // Optional version label (semantic or opaque)
	LastModified time.Time // Last modification on the origin
}

// IsZero reports whether no metadata is present.
func (m RemoteMetadata) IsZero() bool {
	return m.Size == 0 && m.ETag == "" && m.Version == "" && m.LastModified.IsZero()
}

// NewerThan reports whether m describes content that supersedes local, the
// metadata recorded when the local copy was downloaded.
//
// Comparison order: version labels, ETags, modification times, sizes. The
// first criterion present on both sides decides.
func (m RemoteMetadata) NewerThan(local RemoteMetadata) bool {
	if m.Version != "" && local.Version != "" {
		rv, rerr := goversion.NewVersion(m.Version)
		lv, lerr := goversion.NewVersion(local.Version)
		if rerr == nil && lerr == nil {
			return rv.GreaterThan(lv)
		}
		return m.Version != local.Version
	}

	if m.ETag != "" && local.ETag != "" {
		return m.ETag != local.ETag
	}

	if !m.LastModified.IsZero() && !local.LastModified.IsZero() {
		return m.LastModified.After(local.LastModified)
	}

	return m.Size != local.Size
}

// LocalRecord is what the state store remembers about a canonical local file.
type LocalRecord struct {
	Key          string
	Remote       RemoteMetadata // Remote metadata the file was promoted from
	DownloadedAt time.Time
}
