package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/jobrunner/flightcache/internal/domain"
	"github.com/jobrunner/flightcache/internal/ports/input"
)

// ResourceService exposes the catalog to callers outside the event loop.
// Every call is executed on the loop and returns snapshots.
type ResourceService struct {
	catalog *Catalog
	loop    *Loop
	logger  *slog.Logger
}

var _ input.ResourceService = (*ResourceService)(nil)

// NewResourceService creates a new resource service.
func NewResourceService(catalog *Catalog, loop *Loop, logger *slog.Logger) *ResourceService {
	return &ResourceService{
		catalog: catalog,
		loop:    loop,
		logger:  logger,
	}
}

// List implements input.ResourceService.
func (s *ResourceService) List(ctx context.Context) ([]input.ResourceView, error) {
	var views []input.ResourceView
	err := s.loop.Do(ctx, func() {
		all := s.catalog.All()
		views = make([]input.ResourceView, 0, len(all))
		for _, res := range all {
			views = append(views, ViewOf(res))
		}
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// Get implements input.ResourceService.
func (s *ResourceService) Get(ctx context.Context, key string) (*input.ResourceView, error) {
	return s.apply(ctx, key, "", nil)
}

// StartDownload implements input.ResourceService.
func (s *ResourceService) StartDownload(ctx context.Context, key string) (*input.ResourceView, error) {
	return s.apply(ctx, key, "start download", domain.Resource.StartDownload)
}

// StopDownload implements input.ResourceService.
func (s *ResourceService) StopDownload(ctx context.Context, key string) (*input.ResourceView, error) {
	return s.apply(ctx, key, "stop download", domain.Resource.StopDownload)
}

// DeleteFiles implements input.ResourceService.
func (s *ResourceService) DeleteFiles(ctx context.Context, key string) (*input.ResourceView, error) {
	return s.apply(ctx, key, "delete files", domain.Resource.DeleteFiles)
}

// Update implements input.ResourceService.
func (s *ResourceService) Update(ctx context.Context, key string) (*input.ResourceView, error) {
	return s.apply(ctx, key, "update", domain.Resource.Update)
}

// UpdateAll implements input.ResourceService.
func (s *ResourceService) UpdateAll(ctx context.Context) error {
	s.logger.Info("updating all resources")
	return s.loop.Do(ctx, s.catalog.UpdateAll)
}

// FetchAll downloads every missing file and updates stale ones. Sets are
// skipped since their members are registered on their own. With updateOnly
// set, missing files are not downloaded.
func (s *ResourceService) FetchAll(ctx context.Context, updateOnly bool) error {
	return s.loop.Do(ctx, func() {
		for _, res := range s.catalog.All() {
			if !res.Valid() || res.Identity().Category == domain.CategoryResourceSet {
				continue
			}
			switch {
			case res.HasFile():
				res.Update()
			case !updateOnly:
				res.StartDownload()
			}
		}
	})
}

// WaitIdle polls until no resource is downloading or ctx is done.
func (s *ResourceService) WaitIdle(ctx context.Context, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		summary, err := s.Summary(ctx)
		if err != nil {
			return err
		}
		if summary.Downloading == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Summary returns catalog counts.
func (s *ResourceService) Summary(ctx context.Context) (CatalogSummary, error) {
	var summary CatalogSummary
	err := s.loop.Do(ctx, func() { summary = s.catalog.Summary() })
	return summary, err
}

// apply looks up key, runs op on it (if set) and snapshots the result.
func (s *ResourceService) apply(
	ctx context.Context,
	key, action string,
	op func(domain.Resource),
) (*input.ResourceView, error) {
	var (
		view  input.ResourceView
		found bool
	)
	err := s.loop.Do(ctx, func() {
		res, ok := s.catalog.Get(key)
		if !ok || !res.Valid() {
			return
		}
		found = true
		if op != nil {
			s.logger.Debug("resource action", "key", key, "action", action)
			op(res)
		}
		view = ViewOf(res)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrResourceNotFound
	}
	return &view, nil
}

// ViewOf snapshots a resource. It must run on the event loop.
func ViewOf(res domain.Resource) input.ResourceView {
	id := res.Identity()
	view := input.ResourceView{
		Key:           res.Key(),
		Section:       id.Section,
		Name:          id.DisplayName,
		Category:      id.Category.String(),
		CategoryLabel: id.Category.Label(),
		Description:   res.Description(),
		InfoText:      res.InfoText(),
		Downloading:   res.Downloading(),
		HasFile:       res.HasFile(),
		UpdateSize:    res.UpdateSize(),
	}
	if size, ok := res.RemoteSize(); ok {
		view.RemoteSize = &size
	}

	switch r := res.(type) {
	case *SingleResource:
		view.State = r.TransferState().String()
		view.BytesReceived = r.BytesReceived()
		if info := r.LastError(); info != nil {
			view.LastError = &input.ErrorView{
				Kind:    info.Kind.String(),
				Message: info.Message,
				Time:    info.Time,
			}
		}
	case *CompositeResource:
		for _, m := range r.Members() {
			view.Members = append(view.Members, m.Key())
		}
	}

	return view
}
