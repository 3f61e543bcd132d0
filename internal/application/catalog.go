package application

import (
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/output"
)

// CatalogSummary counts the top-level entries of a catalog. Sets are
// counted separately and not included in the file counts.
type CatalogSummary struct {
	Registered  int `json:"registered"`
	Sets        int `json:"sets"`
	Cached      int `json:"cached"`
	Downloading int `json:"downloading"`
	Stale       int `json:"stale"`
}

// Catalog owns all top-level resources. It is the only component allowed
// to destroy a resource. Like the resources it holds, it is driven from
// the event loop.
type Catalog struct {
	order   []string
	entries map[string]domain.Resource
	metrics output.MetricsCollector
	logger  *slog.Logger
	closed  bool
}

// NewCatalog creates an empty catalog.
func NewCatalog(metrics output.MetricsCollector, logger *slog.Logger) *Catalog {
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}
	return &Catalog{
		entries: make(map[string]domain.Resource),
		metrics: metrics,
		logger:  logger,
	}
}

// Register adds res under its key. An existing entry with the same key is
// replaced and destroyed.
func (c *Catalog) Register(res domain.Resource) {
	if c.closed || res == nil || !res.Valid() {
		return
	}

	key := res.Key()
	if old, ok := c.entries[key]; ok {
		if old == res {
			return
		}
		c.logger.Debug("replacing resource", "key", key)
		old.Destroy()
	} else {
		c.order = append(c.order, key)
	}
	c.entries[key] = res

	res.Subscribe(func(e domain.Event) {
		if c.entries[key] != res {
			return
		}
		c.observe(key, e)
	})

	c.logger.Debug("registered resource",
		"key", key,
		"section", res.Identity().Section,
		"category", res.Identity().Category.String(),
	)
	c.updateMetrics()
}

// Unregister removes and destroys the resource stored under key.
func (c *Catalog) Unregister(key string) bool {
	res, ok := c.entries[key]
	if !ok {
		return false
	}

	delete(c.entries, key)
	c.order = slices.DeleteFunc(c.order, func(k string) bool { return k == key })
	res.Destroy()

	c.logger.Debug("unregistered resource", "key", key)
	c.updateMetrics()
	return true
}

// Get returns the resource stored under key.
func (c *Catalog) Get(key string) (domain.Resource, bool) {
	res, ok := c.entries[key]
	return res, ok
}

// All returns a snapshot of all resources in registration order.
func (c *Catalog) All() []domain.Resource {
	result := make([]domain.Resource, 0, len(c.order))
	for _, key := range c.order {
		result = append(result, c.entries[key])
	}
	return result
}

// Keys returns all keys in registration order.
func (c *Catalog) Keys() []string {
	return slices.Clone(c.order)
}

// Len returns the number of registered resources.
func (c *Catalog) Len() int {
	return len(c.order)
}

// UpdateAll calls Update on every resource. Each update is independent.
func (c *Catalog) UpdateAll() {
	for _, res := range c.All() {
		if res.Valid() {
			res.Update()
		}
	}
}

// Rescan re-inspects the single resource whose canonical file is path.
// It returns false if no resource owns the path.
func (c *Catalog) Rescan(path string) bool {
	path = filepath.Clean(path)
	for _, res := range c.All() {
		single, ok := res.(*SingleResource)
		if !ok || filepath.Clean(single.LocalPath()) != path {
			continue
		}
		single.Rescan()
		return true
	}
	return false
}

// Summary counts cached and downloading entries.
func (c *Catalog) Summary() CatalogSummary {
	var s CatalogSummary
	for _, res := range c.All() {
		if res.Identity().Category == domain.CategoryResourceSet {
			s.Sets++
			continue
		}
		s.Registered++
		if res.HasFile() {
			s.Cached++
		}
		if res.Downloading() {
			s.Downloading++
		}
		if res.UpdateSize() > 0 {
			s.Stale++
		}
	}
	return s
}

// Close destroys every resource. The catalog rejects registrations
// afterwards.
func (c *Catalog) Close() {
	if c.closed {
		return
	}
	// Sets first, so they do not re-emit while their members go away.
	for _, res := range c.All() {
		if res.Identity().Category == domain.CategoryResourceSet {
			res.Destroy()
		}
	}
	for _, res := range c.All() {
		res.Destroy()
	}

	c.entries = make(map[string]domain.Resource)
	c.order = nil
	c.closed = true
	c.updateMetrics()
}

func (c *Catalog) observe(key string, e domain.Event) {
	switch e.Signal {
	case domain.SignalError:
		if e.Err != nil {
			c.logger.Warn("resource failed",
				"key", key,
				"kind", e.Err.Kind.String(),
				"error", e.Err.Message,
			)
		}
	case domain.SignalDownloadingChanged, domain.SignalHasFileChanged:
		c.updateMetrics()
	}
}

func (c *Catalog) updateMetrics() {
	s := c.Summary()
	c.metrics.SetResourcesRegistered(s.Registered)
	c.metrics.SetResourcesCached(s.Cached)
	c.metrics.SetTransfersActive(s.Downloading)
}
