// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpAdapter "github.com/jobrunner/flightcache/internal/adapters/http"
	"github.com/jobrunner/flightcache/internal/adapters/metrics"
	"github.com/jobrunner/flightcache/internal/adapters/state"
	"github.com/jobrunner/flightcache/internal/adapters/storage"
	tlsAdapter "github.com/jobrunner/flightcache/internal/adapters/tls"
	"github.com/jobrunner/flightcache/internal/adapters/transport"
	"github.com/jobrunner/flightcache/internal/adapters/watcher"
	"github.com/jobrunner/flightcache/internal/application"
	"github.com/jobrunner/flightcache/internal/config"
	"github.com/jobrunner/flightcache/internal/ports/input"
	"github.com/jobrunner/flightcache/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Loop          *application.Loop
	Storage       output.ObjectStorage
	State         output.StateStore
	Transport     *transport.Transport
	Catalog       *application.Catalog
	Manifest      *application.Manifest
	SyncService   *application.SyncService
	Resources     *application.ResourceService
	HealthService *application.HealthService
	HTTPServer    *httpAdapter.Server
	TLSServer     *tlsAdapter.Server
	Watcher       *watcher.Watcher
	Metrics       *metrics.Collector

	stopLoop context.CancelFunc
}

// FetchReport summarizes a one-shot fetch.
type FetchReport struct {
	Sync    application.SyncResult
	Summary application.CatalogSummary
	Failed  []input.ResourceView
}

// New creates and initializes a new application. The event loop is running
// when New returns; Shutdown stops it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*App, error) {
	cacheDir, err := filepath.Abs(cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolving cache dir: %w", err)
	}
	if err := os.MkdirAll(cacheDir, 0750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	app := &App{
		Config: cfg,
		Logger: logger,
	}

	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		app.Metrics = metrics.NewCollector("flightcache", reg)
		metricsCollector = app.Metrics
	}

	store, err := initStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	app.Storage = store

	stateStore, err := initState(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("initializing state store: %w", err)
	}
	app.State = stateStore

	app.Loop = application.NewLoop(logger)
	loopCtx, stopLoop := context.WithCancel(context.Background())
	app.stopLoop = stopLoop
	go app.Loop.Run(loopCtx)

	app.Transport = transport.New(store, app.Loop, transport.Options{
		Metrics: metricsCollector,
		Logger:  logger,
	})

	app.Catalog = application.NewCatalog(metricsCollector, logger)
	app.Manifest = application.NewManifest(store, app.Catalog, app.Loop, application.ResourceDeps{
		Transport: app.Transport,
		State:     stateStore,
		Metrics:   metricsCollector,
		Logger:    logger,
	}, cacheDir)

	app.SyncService = application.NewSyncService(
		app.Manifest,
		app.Catalog,
		app.Loop,
		application.SyncOptions{
			Interval:   cfg.Sync.Interval,
			AutoUpdate: cfg.Sync.AutoUpdate,
		},
		metricsCollector,
		logger,
	)

	app.Resources = application.NewResourceService(app.Catalog, app.Loop, logger)
	app.HealthService = application.NewHealthService(app.Resources, app.SyncService)

	opts := httpAdapter.Options{
		Syncer:      app.SyncService,
		MetricsPath: cfg.Metrics.Path,
		Version:     version,
	}
	if app.Metrics != nil {
		opts.Metrics = app.Metrics
	}
	app.HTTPServer = httpAdapter.NewServer(cfg.Server, app.Resources, app.HealthService, opts, logger)

	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(
			tlsAdapter.Config{
				Enabled:  cfg.TLS.Enabled,
				Domains:  cfg.TLS.Domains,
				Email:    cfg.TLS.Email,
				CacheDir: cfg.TLS.CacheDir,
				Staging:  cfg.TLS.Staging,
				DNS: tlsAdapter.DNSConfig{
					SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
					ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
					ClientID:          cfg.TLS.DNS.ClientID,
				},
			},
			app.HTTPServer.Handler(),
			logger,
		)
		if err != nil {
			app.abort()
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
		app.TLSServer = tlsServer
	}

	if cfg.Cache.Watch {
		w, err := watcher.New(
			watcher.Config{
				Paths: []string{cacheDir},
			},
			app.handleFileEvent,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize cache watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// Start syncs the catalog, starts background services and serves the
// control API until the server stops.
func (a *App) Start(ctx context.Context) error {
	if a.Config.Sync.OnStart {
		if _, err := a.SyncService.SyncNow(ctx); err != nil {
			a.Logger.Warn("initial sync failed", "error", err)
		}
	}

	a.SyncService.Start(ctx)

	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start cache watcher", "error", err)
		}
	}

	if a.TLSServer != nil {
		if err := a.TLSServer.ManageCertificates(ctx); err != nil {
			return err
		}
		return a.TLSServer.ListenAndServe(a.Config.Server.Address())
	}
	return a.HTTPServer.Start()
}

// Fetch syncs once, downloads missing files (unless updateOnly) and updates
// stale ones, then waits for every transfer to settle.
func (a *App) Fetch(ctx context.Context, updateOnly bool) (*FetchReport, error) {
	result, err := a.SyncService.SyncNow(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncing: %w", err)
	}

	if err := a.Resources.FetchAll(ctx, updateOnly); err != nil {
		return nil, err
	}
	if err := a.Resources.WaitIdle(ctx, 200*time.Millisecond); err != nil {
		return nil, fmt.Errorf("waiting for transfers: %w", err)
	}

	summary, err := a.Resources.Summary(ctx)
	if err != nil {
		return nil, err
	}
	views, err := a.Resources.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &FetchReport{Sync: result, Summary: summary}
	for _, v := range views {
		if v.LastError != nil {
			report.Failed = append(report.Failed, v)
		}
	}
	return report, nil
}

// Shutdown gracefully shuts down all components. Running transfers are
// cancelled and their partial files removed.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	var errs []error

	a.SyncService.Stop()

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	if a.TLSServer != nil {
		if err := a.TLSServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("TLS server: %w", err))
		}
	} else if err := a.HTTPServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server: %w", err))
	}

	if err := a.Loop.Do(ctx, a.Catalog.Close); err != nil {
		errs = append(errs, fmt.Errorf("closing catalog: %w", err))
	}

	// Let the cancelled transfers deliver their callbacks before the loop
	// goes away.
	a.Transport.Close()
	_ = a.Loop.Do(ctx, func() {})

	a.abort()
	return errors.Join(errs...)
}

// abort stops the event loop and closes the state store.
func (a *App) abort() {
	if a.stopLoop != nil {
		a.stopLoop()
		<-a.Loop.Stopped()
	}
	if a.State != nil {
		if err := a.State.Close(); err != nil {
			a.Logger.Error("failed to close state store", "error", err)
		}
	}
}

// handleFileEvent re-inspects the resource owning a changed cache file.
func (a *App) handleFileEvent(_ context.Context, event watcher.Event) error {
	a.Logger.Debug("cache file event", "path", event.Path, "operation", event.Operation.String())

	a.Loop.Post(func() {
		if !a.Catalog.Rescan(event.Path) {
			a.Logger.Debug("no resource owns changed file", "path", event.Path)
		}
	})
	return nil
}

// initStorage initializes the remote origin adapter.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	filter := output.ExtensionFilter(cfg.Extensions)
	if len(filter) == 0 {
		filter = output.DefaultExtensions
	}

	switch output.StorageType(cfg.Type) {
	case output.StorageTypeLocal:
		return storage.NewLocalStorage(cfg.LocalPath, filter), nil

	case output.StorageTypeS3:
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			Filter:          filter,
		})

	case output.StorageTypeAzure:
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
			Filter:           filter,
		})

	case output.StorageTypeHTTP:
		return storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
			Filter:    filter,
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// initState opens the local state store; an empty path keeps state in
// memory.
func initState(ctx context.Context, cfg config.CacheConfig) (output.StateStore, error) {
	if cfg.StateDB == "" {
		return state.NewMemoryStore(), nil
	}
	return state.OpenSQLite(ctx, cfg.StateDB)
}
