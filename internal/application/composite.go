package application

import (
	"slices"
	"strings"

	"github.com/jobrunner/flightcache/internal/domain"
)

// CompositeResource groups resources of one section. It holds its members
// weakly: the catalog owns their lifetime, and members destroyed elsewhere
// are pruned at the start of every method.
type CompositeResource struct {
	key         string
	section     string
	displayName string

	members   []domain.Resource
	notifier  domain.Notifier
	destroyed bool
}

// NewCompositeResource creates an empty set. Section and display name may
// be left empty to adopt them from the first member.
func NewCompositeResource(key string, identity domain.Identity) *CompositeResource {
	return &CompositeResource{
		key:         key,
		section:     identity.Section,
		displayName: identity.DisplayName,
	}
}

// Key implements domain.Resource.
func (c *CompositeResource) Key() string { return c.key }

// Identity implements domain.Resource.
func (c *CompositeResource) Identity() domain.Identity {
	return domain.Identity{
		Section:     c.section,
		DisplayName: c.displayName,
		Category:    domain.CategoryResourceSet,
	}
}

// Valid implements domain.Resource.
func (c *CompositeResource) Valid() bool { return !c.destroyed }

// Destroy implements domain.Resource. Members are not destroyed.
func (c *CompositeResource) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.members = nil
	c.notifier.Reset()
}

// Subscribe implements domain.Resource.
func (c *CompositeResource) Subscribe(l domain.Listener) {
	if c.destroyed {
		return
	}
	c.notifier.Subscribe(l)
}

// Add appends a member. Nil, invalid and already present members are
// ignored.
func (c *CompositeResource) Add(m domain.Resource) {
	c.prune()
	if c.destroyed || m == nil || !m.Valid() {
		return
	}
	if slices.Contains(c.members, m) {
		return
	}

	c.members = append(c.members, m)
	if c.section == "" {
		c.section = m.Identity().Section
	}
	if c.displayName == "" {
		c.displayName = m.Identity().DisplayName
	}

	m.Subscribe(func(e domain.Event) {
		if c.destroyed || !m.Valid() || !slices.Contains(c.members, m) {
			return
		}
		c.notifier.Emit(e)
		// A member gaining or losing its file changes the composite's
		// short-circuit for UpdateSize.
		if e.Signal == domain.SignalHasFileChanged {
			c.notifier.EmitSignals(domain.SignalUpdateSizeChanged)
		}
	})

	c.notifier.EmitSignals(
		domain.SignalDescriptionChanged,
		domain.SignalInfoTextChanged,
		domain.SignalUpdateSizeChanged,
	)
}

// Members returns the live members in insertion order.
func (c *CompositeResource) Members() []domain.Resource {
	c.prune()
	return slices.Clone(c.members)
}

// Len returns the number of live members.
func (c *CompositeResource) Len() int {
	c.prune()
	return len(c.members)
}

// Description implements domain.Resource.
func (c *CompositeResource) Description() string {
	c.prune()

	var b strings.Builder
	for _, m := range c.members {
		b.WriteString("<h3>")
		b.WriteString(m.Identity().Category.Label())
		b.WriteString("</h3>")
		b.WriteString(m.Description())
	}
	return b.String()
}

// InfoText implements domain.Resource.
func (c *CompositeResource) InfoText() string {
	c.prune()

	var parts []string
	for _, m := range c.members {
		info := m.InfoText()
		if info == "" {
			continue
		}
		parts = append(parts, m.Identity().Category.Label()+": "+info)
	}
	return strings.Join(parts, "<br>")
}

// Downloading implements domain.Resource.
func (c *CompositeResource) Downloading() bool {
	c.prune()
	for _, m := range c.members {
		if m.Downloading() {
			return true
		}
	}
	return false
}

// HasFile implements domain.Resource.
func (c *CompositeResource) HasFile() bool {
	c.prune()
	for _, m := range c.members {
		if m.HasFile() {
			return true
		}
	}
	return false
}

// RemoteSize implements domain.Resource. It sums the known member sizes.
func (c *CompositeResource) RemoteSize() (int64, bool) {
	c.prune()

	var total int64
	known := false
	for _, m := range c.members {
		if size, ok := m.RemoteSize(); ok {
			total += size
			known = true
		}
	}
	return total, known
}

// UpdateSize implements domain.Resource. A set without any local file has
// nothing to update; otherwise members without a file count their full
// remote size.
func (c *CompositeResource) UpdateSize() int64 {
	if !c.HasFile() {
		return 0
	}

	var total int64
	for _, m := range c.members {
		if m.HasFile() {
			total += m.UpdateSize()
			continue
		}
		if size, ok := m.RemoteSize(); ok {
			total += size
		}
	}
	return total
}

// StartDownload implements domain.Resource.
func (c *CompositeResource) StartDownload() {
	for _, m := range c.live() {
		m.StartDownload()
	}
}

// StopDownload implements domain.Resource.
func (c *CompositeResource) StopDownload() {
	for _, m := range c.live() {
		m.StopDownload()
	}
}

// DeleteFiles implements domain.Resource.
func (c *CompositeResource) DeleteFiles() {
	for _, m := range c.live() {
		m.DeleteFiles()
	}
}

// Update implements domain.Resource.
func (c *CompositeResource) Update() {
	if c.UpdateSize() == 0 {
		return
	}
	for _, m := range c.live() {
		if m.HasFile() {
			m.Update()
		} else {
			m.StartDownload()
		}
	}
}

// live prunes and returns a snapshot, so fan-out is unaffected by members
// destroyed while it runs.
func (c *CompositeResource) live() []domain.Resource {
	c.prune()
	return slices.Clone(c.members)
}

func (c *CompositeResource) prune() {
	c.members = slices.DeleteFunc(c.members, func(m domain.Resource) bool {
		return m == nil || !m.Valid()
	})
}
