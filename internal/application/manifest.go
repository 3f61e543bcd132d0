package application

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/output"
)

// SetKeyPrefix prefixes the catalog keys of per-section sets. A set whose
// key is taken by a listed object gets a "~2", "~3", ... suffix.
const SetKeyPrefix = "set/"

// SyncStats contains statistics from a sync operation.
type SyncStats struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Updated int `json:"updated"`
}

// Manifest turns the listing of the remote origin into catalog entries:
// one single resource per object and one set per section holding at
// least two objects.
type Manifest struct {
	storage  output.ObjectStorage
	catalog  *Catalog
	loop     *Loop
	deps     ResourceDeps
	cacheDir string
	logger   *slog.Logger

	// Sets registered by the manifest, by catalog key. Touched on the loop.
	sets map[string]*CompositeResource
}

// NewManifest creates a new manifest feed.
func NewManifest(
	storage output.ObjectStorage,
	catalog *Catalog,
	loop *Loop,
	deps ResourceDeps,
	cacheDir string,
) *Manifest {
	if deps.Metrics == nil {
		deps.Metrics = &output.NoOpMetrics{}
	}
	return &Manifest{
		storage:  storage,
		catalog:  catalog,
		loop:     loop,
		deps:     deps,
		cacheDir: cacheDir,
		logger:   deps.Logger,
		sets:     make(map[string]*CompositeResource),
	}
}

// Sync lists the origin and applies the result to the catalog. Objects
// that vanished from the origin are unregistered; their local files are
// kept.
func (m *Manifest) Sync(ctx context.Context) (SyncStats, error) {
	m.logger.Info("syncing resources from storage")

	start := time.Now()
	objects, err := m.storage.List(ctx)
	m.deps.Metrics.ObserveStorageDuration("list", time.Since(start))
	m.deps.Metrics.IncStorageOperations("list", err == nil)
	if err != nil {
		return SyncStats{}, err
	}

	var stats SyncStats
	if err := m.loop.Do(ctx, func() { stats = m.apply(objects) }); err != nil {
		return SyncStats{}, err
	}

	m.logger.Info("sync completed",
		"added", stats.Added,
		"removed", stats.Removed,
		"updated", stats.Updated,
		"objects", len(objects),
	)
	return stats, nil
}

// apply runs on the event loop.
func (m *Manifest) apply(objects []output.StorageObject) SyncStats {
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	stats := SyncStats{}
	remote := make(map[string]struct{}, len(objects))
	for _, obj := range objects {
		remote[obj.Key] = struct{}{}
	}

	// Objects win over sets holding the same key.
	for key := range m.sets {
		if _, ok := remote[key]; ok {
			m.dropSet(key)
		}
	}

	sections := make(map[string][]*SingleResource)
	var sectionOrder []string

	for _, obj := range objects {
		meta := obj.Metadata()

		var single *SingleResource
		if existing, ok := m.catalog.Get(obj.Key); ok {
			single, _ = existing.(*SingleResource)
		}

		switch {
		case single != nil && !obj.SizeKnown:
			if single.ApplyListing(meta) {
				stats.Updated++
			}
		case single != nil:
			if old, known := single.RemoteMetadata(); !known || old != meta {
				single.SetRemoteMetadata(meta)
				stats.Updated++
			}
		default:
			single = NewSingleResource(SingleResourceConfig{
				Key:       obj.Key,
				Identity:  domain.IdentityForKey(obj.Key),
				LocalPath: m.localPath(obj.Key),
			}, m.deps)
			if obj.SizeKnown {
				single.SetRemoteMetadata(meta)
			}
			m.catalog.Register(single)
			if !obj.SizeKnown {
				single.ApplyListing(meta)
			}
			stats.Added++
			m.logger.Debug("new resource", "key", obj.Key, "size", obj.Size, "size_known", obj.SizeKnown)
		}

		section := single.Identity().Section
		if _, ok := sections[section]; !ok {
			sectionOrder = append(sectionOrder, section)
		}
		sections[section] = append(sections[section], single)
	}

	// Remove resources that no longer exist in remote storage
	for _, key := range m.catalog.Keys() {
		if _, ok := m.sets[key]; ok {
			continue
		}
		if _, ok := remote[key]; ok {
			continue
		}
		m.logger.Info("removing resource not in remote storage", "key", key)
		m.catalog.Unregister(key)
		stats.Removed++
	}

	wanted := make(map[string]struct{})
	for _, section := range sectionOrder {
		members := sections[section]
		if len(members) < 2 {
			continue
		}

		key := m.setKey(section, remote)
		wanted[key] = struct{}{}

		set, ok := m.sets[key]
		if !ok || !set.Valid() {
			set = NewCompositeResource(key, domain.Identity{Section: section, DisplayName: section})
			for _, single := range members {
				set.Add(single)
			}
			m.sets[key] = set
			m.catalog.Register(set)
			continue
		}
		for _, single := range members {
			set.Add(single)
		}
	}

	for key := range m.sets {
		if _, ok := wanted[key]; !ok {
			m.dropSet(key)
		}
	}

	return stats
}

// setKey returns the catalog key of a section's set that no listed object
// uses.
func (m *Manifest) setKey(section string, remote map[string]struct{}) string {
	key := SetKeyPrefix + section
	for n := 2; ; n++ {
		if _, taken := remote[key]; !taken {
			return key
		}
		key = fmt.Sprintf("%s%s~%d", SetKeyPrefix, section, n)
	}
}

// dropSet unregisters a set unless its key now belongs to another resource.
func (m *Manifest) dropSet(key string) {
	set := m.sets[key]
	delete(m.sets, key)
	if current, ok := m.catalog.Get(key); ok && current == domain.Resource(set) {
		m.catalog.Unregister(key)
		return
	}
	set.Destroy()
}

// localPath maps an object key into the cache directory. Keys cannot
// escape it.
func (m *Manifest) localPath(key string) string {
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	return filepath.Join(m.cacheDir, filepath.FromSlash(clean))
}
