// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	pubsubapi "cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/archive"
	"github.com/JakeFAU/legisnotice/internal/archive/gcs"
	"github.com/JakeFAU/legisnotice/internal/archive/local"
	"github.com/JakeFAU/legisnotice/internal/assembly"
	"github.com/JakeFAU/legisnotice/internal/clock/system"
	"github.com/JakeFAU/legisnotice/internal/config"
	collyfetcher "github.com/JakeFAU/legisnotice/internal/fetcher/colly"
	"github.com/JakeFAU/legisnotice/internal/fetcher/headless"
	"github.com/JakeFAU/legisnotice/internal/id/uuid"
	"github.com/JakeFAU/legisnotice/internal/legislation"
	"github.com/JakeFAU/legisnotice/internal/notify"
	pubsubnotify "github.com/JakeFAU/legisnotice/internal/notify/pubsub"
	"github.com/JakeFAU/legisnotice/internal/pipeline"
	"github.com/JakeFAU/legisnotice/internal/policy/ratelimit"
	"github.com/JakeFAU/legisnotice/internal/scraper"
	"github.com/JakeFAU/legisnotice/internal/storage/memory"
	"github.com/JakeFAU/legisnotice/internal/storage/postgres"
	"github.com/JakeFAU/legisnotice/internal/telemetry"
)

// recordStore is a legislation.Store that owns resources.
type recordStore interface {
	legislation.Store
	Close()
}

// App holds the shared, long-lived services for one process. It is built
// once at startup and closed by the command that created it.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	clock        *system.Clock
	ids          *uuid.Generator
	fetcher      *collyfetcher.Fetcher
	store        recordStore
	orchestrator *pipeline.Orchestrator
	notifier     legislation.Notifier
	closers      []func()
}

// GetConfig returns the configuration the App was built from.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetClock returns the clock in the configured crawl timezone.
func (a *App) GetClock() legislation.Clock {
	return a.clock
}

// GetIDs returns the run id generator.
func (a *App) GetIDs() legislation.IDGenerator {
	return a.ids
}

// GetOrchestrator returns the cache-aside pipeline front door.
func (a *App) GetOrchestrator() *pipeline.Orchestrator {
	return a.orchestrator
}

// GetNotifier returns the refresh notifier.
func (a *App) GetNotifier() legislation.Notifier {
	return a.notifier
}

// NewApp builds every service described by cfg. It fails fast if any
// backend cannot be initialized and releases what it already opened.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(cfg.Location()),
		ids:    uuid.New(),
	}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("application services initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("archive", cfg.Archive.Driver),
		zap.String("notify", cfg.Notify.Driver),
		zap.Bool("api", cfg.API.Enabled),
	)
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if a.cfg.Telemetry.Tracing {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			ServiceName: "legisnotice",
			ProjectID:   a.cfg.Telemetry.ProjectID,
			SampleRatio: a.cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("flush traces", zap.Error(err))
			}
		})
	}

	a.fetcher = collyfetcher.New(collyfetcher.Config{
		UserAgent:      a.cfg.HTTP.UserAgent,
		AcceptLanguage: a.cfg.HTTP.AcceptLanguage,
		Timeout:        a.cfg.FetchTimeout(),
	})
	a.closers = append(a.closers, a.fetcher.Close)

	store, err := a.buildStore(ctx)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	archiver, err := a.buildArchiver(ctx)
	if err != nil {
		return err
	}

	pages, err := a.buildPageFetcher()
	if err != nil {
		return err
	}
	deps := scraper.Deps{
		Fetcher:      pages,
		ListingPacer: ratelimit.New(ratelimit.Config{Name: "listing", Interval: a.cfg.ListingInterval()}),
		DetailPacer:  ratelimit.New(ratelimit.Config{Name: "detail", Interval: a.cfg.DetailInterval()}),
		Workers:      a.cfg.Crawler.Workers,
		Archive:      archiver,
		Logger:       a.logger,
	}
	national, err := scraper.NewNational(listing(a.cfg.National), deps)
	if err != nil {
		return fmt.Errorf("init national scraper: %w", err)
	}
	admin, err := scraper.NewAdmin(listing(a.cfg.Admin), deps)
	if err != nil {
		return fmt.Errorf("init admin scraper: %w", err)
	}

	collectorDeps := pipeline.CollectorDeps{
		National: national,
		Admin:    admin,
		Clock:    a.clock,
		Logger:   a.logger,
	}
	if a.cfg.API.Enabled {
		client, err := assembly.New(assembly.Config{
			BaseURL:  a.cfg.API.BaseURL,
			Key:      a.cfg.API.Key,
			PageSize: a.cfg.API.PageSize,
			MaxPages: a.cfg.API.MaxPages,
		}, a.fetcher, a.logger)
		if err != nil {
			return fmt.Errorf("init assembly client: %w", err)
		}
		collectorDeps.API = client
	}
	collector, err := pipeline.NewCollector(collectorDeps)
	if err != nil {
		return fmt.Errorf("init collector: %w", err)
	}

	a.orchestrator, err = pipeline.New(pipeline.Options{
		Store:     a.store,
		Collector: collector,
		IDs:       a.ids,
		Clock:     a.clock,
		ReadLimit: a.cfg.Store.ReadLimit,
		Logger:    a.logger,
	})
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}

	a.notifier, err = a.buildNotifier(ctx)
	return err
}

// buildPageFetcher picks the fetcher for the HTML portals.
func (a *App) buildPageFetcher() (legislation.Fetcher, error) {
	switch a.cfg.HTTP.Renderer {
	case "", "colly":
		return a.fetcher, nil
	case "chromedp":
		f, err := headless.NewChromedp(headless.Config{
			MaxParallel:       a.cfg.Crawler.Workers,
			UserAgent:         a.cfg.HTTP.UserAgent,
			AcceptLanguage:    a.cfg.HTTP.AcceptLanguage,
			NavigationTimeout: a.cfg.FetchTimeout(),
			Settle:            a.cfg.SettleDelay(),
		})
		if err != nil {
			return nil, fmt.Errorf("init headless fetcher: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		return f, nil
	default:
		return nil, fmt.Errorf("unknown renderer: %s", a.cfg.HTTP.Renderer)
	}
}

func listing(l config.ListingConfig) scraper.Listing {
	return scraper.Listing{URL: l.ListingURL, PageSize: l.PageSize, MaxPages: l.MaxPages}
}

func (a *App) buildStore(ctx context.Context) (recordStore, error) {
	switch a.cfg.Store.Driver {
	case "memory":
		a.logger.Warn("using in-memory store, notices are lost on exit")
		return memory.NewRecordStore(a.clock), nil
	case "postgres":
		store, err := postgres.New(ctx, postgres.Config{
			DSN:      a.cfg.Store.DSN,
			Table:    a.cfg.Store.Table,
			MaxConns: int32(a.cfg.Store.MaxConns),
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		if a.cfg.Store.Migrate {
			if err := store.EnsureSchema(ctx); err != nil {
				store.Close()
				return nil, fmt.Errorf("migrate postgres store: %w", err)
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver: %s", a.cfg.Store.Driver)
	}
}

// buildArchiver returns nil when archiving is off; a nil Archiver is a no-op.
func (a *App) buildArchiver(ctx context.Context) (*archive.Archiver, error) {
	switch a.cfg.Archive.Driver {
	case "", "none":
		return nil, nil
	case "local":
		blobs, err := local.New(local.Config{BaseDir: a.cfg.Archive.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return archive.New(blobs, a.logger), nil
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		})
		blobs, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.GCSBucket, Prefix: a.cfg.Archive.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return archive.New(blobs, a.logger), nil
	default:
		return nil, fmt.Errorf("unknown archive driver: %s", a.cfg.Archive.Driver)
	}
}

func (a *App) buildNotifier(ctx context.Context) (legislation.Notifier, error) {
	switch a.cfg.Notify.Driver {
	case "", "none":
		return notify.Noop{}, nil
	case "http":
		n, err := notify.NewHTTP(notify.HTTPConfig{
			URL:     a.cfg.Notify.URL,
			APIKey:  a.cfg.Auth.APIKey,
			Timeout: a.cfg.NotifyTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("init http notifier: %w", err)
		}
		return n, nil
	case "pubsub":
		client, err := pubsubapi.NewClient(ctx, a.cfg.Notify.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		n := pubsubnotify.New(client.Topic(a.cfg.Notify.Topic))
		a.closers = append(a.closers, func() {
			n.Stop()
			if err := client.Close(); err != nil {
				a.logger.Warn("close pubsub client", zap.Error(err))
			}
		})
		return n, nil
	default:
		return nil, fmt.Errorf("unknown notify driver: %s", a.cfg.Notify.Driver)
	}
}

// Close releases every service in reverse order of creation, then flushes the logger.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	// Sync reports ENOTTY/EINVAL on terminals; nothing useful to do with it.
	_ = a.logger.Sync()
}
