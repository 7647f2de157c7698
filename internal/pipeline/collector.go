// Package pipeline collects notices from every source and serves them through
// the record store as a cache.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/legislation"
	"github.com/JakeFAU/legisnotice/internal/metrics"
	"github.com/JakeFAU/legisnotice/internal/reconcile"
	"github.com/JakeFAU/legisnotice/internal/scraper"
)

// NoticeScraper walks one HTML portal.
type NoticeScraper interface {
	Scrape(ctx context.Context, w scraper.Window) ([]legislation.RawNotice, error)
}

// NoticeAPI returns the API notices starting on target, keyed by bill id.
type NoticeAPI interface {
	FetchNotices(ctx context.Context, target string) (map[string]legislation.RawNotice, error)
}

// CollectorDeps wires a Collector. API may be nil when the open API is disabled.
type CollectorDeps struct {
	National NoticeScraper
	Admin    NoticeScraper
	API      NoticeAPI
	Clock    legislation.Clock
	Logger   *zap.Logger
}

// Collector produces reconciled records for one source per call.
type Collector struct {
	national   NoticeScraper
	admin      NoticeScraper
	api        NoticeAPI
	reconciler *reconcile.Reconciler
	clock      legislation.Clock
	logger     *zap.Logger
}

// NewCollector validates deps and builds a Collector.
func NewCollector(deps CollectorDeps) (*Collector, error) {
	if deps.National == nil || deps.Admin == nil {
		return nil, fmt.Errorf("collector: both scrapers are required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("collector: clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		national:   deps.National,
		admin:      deps.Admin,
		api:        deps.API,
		reconciler: reconcile.New(deps.Clock, logger),
		clock:      deps.Clock,
		logger:     logger.Named("collector"),
	}, nil
}

// Collect gathers and reconciles today's window for source.
func (c *Collector) Collect(ctx context.Context, source legislation.Source) (records []legislation.Record, err error) {
	ctx, span := tracer.Start(ctx, "collector.Collect", sourceAttr(source))
	defer func() {
		span.SetAttributes(attribute.Int("legis.records", len(records)))
		endSpan(span, err)
	}()
	started := time.Now()
	w := scraper.NewWindow(c.clock.Now())
	span.SetAttributes(attribute.String("legis.target_date", w.Target))

	switch source {
	case legislation.SourceNational:
		records, err = c.collectNational(ctx, w)
	case legislation.SourceAdmin:
		records, err = c.collectAdmin(ctx, w)
	default:
		return nil, fmt.Errorf("%w: %q", legislation.ErrInvalidSource, source)
	}
	if err != nil {
		return nil, err
	}
	metrics.ObserveCollected(string(source), len(records), time.Since(started))
	c.logger.Info("source collected",
		zap.String("source", string(source)),
		zap.String("target_date", w.Target),
		zap.Int("count", len(records)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return records, nil
}

// collectNational combines the API with the portal scrape. Losing either one
// degrades coverage; losing both fails the source.
func (c *Collector) collectNational(ctx context.Context, w scraper.Window) ([]legislation.Record, error) {
	var (
		api    map[string]legislation.RawNotice
		apiErr error
	)
	if c.api != nil {
		api, apiErr = c.api.FetchNotices(ctx, w.Target)
		if apiErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.logger.Warn("api unavailable, continuing with portal only", zap.String("target_date", w.Target), zap.Error(apiErr))
		}
	} else {
		apiErr = errors.New("api disabled")
	}

	scraped, scrapeErr := c.national.Scrape(ctx, w)
	if scrapeErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if apiErr != nil {
			return nil, fmt.Errorf("collect national: %w", errors.Join(apiErr, scrapeErr))
		}
		c.logger.Warn("portal unavailable, continuing with api only", zap.String("target_date", w.Target), zap.Error(scrapeErr))
	}
	return c.reconciler.National(api, scraped), nil
}

func (c *Collector) collectAdmin(ctx context.Context, w scraper.Window) ([]legislation.Record, error) {
	scraped, err := c.admin.Scrape(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("collect admin: %w", err)
	}
	return c.reconciler.Admin(scraped), nil
}
