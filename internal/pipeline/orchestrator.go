package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/legisnotice/internal/legislation"
	"github.com/JakeFAU/legisnotice/internal/metrics"
)

// DefaultReadLimit caps rows returned per source read.
const DefaultReadLimit = 100

// RecordCollector produces reconciled records for a source.
type RecordCollector interface {
	Collect(ctx context.Context, source legislation.Source) ([]legislation.Record, error)
}

// Options configures an Orchestrator.
type Options struct {
	Store     legislation.Store
	Collector RecordCollector
	IDs       legislation.IDGenerator
	Clock     legislation.Clock
	ReadLimit int
	Logger    *zap.Logger
}

// Orchestrator answers reads from the store and falls back to collection on
// an empty cache.
type Orchestrator struct {
	store     legislation.Store
	collector RecordCollector
	ids       legislation.IDGenerator
	clock     legislation.Clock
	readLimit int
	logger    *zap.Logger

	// fills collapses concurrent cache-miss collections of one source.
	fills singleflight.Group
}

// New validates opts and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("orchestrator: store is required")
	}
	if opts.Collector == nil {
		return nil, fmt.Errorf("orchestrator: collector is required")
	}
	if opts.IDs == nil || opts.Clock == nil {
		return nil, fmt.Errorf("orchestrator: id generator and clock are required")
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = DefaultReadLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:     opts.Store,
		collector: opts.Collector,
		ids:       opts.IDs,
		clock:     opts.Clock,
		readLimit: opts.ReadLimit,
		logger:    logger.Named("orchestrator"),
	}, nil
}

// GetBySource returns active rows for source. On a cache miss it collects,
// persists and re-reads; a failed collection yields an empty, error-free result.
func (o *Orchestrator) GetBySource(ctx context.Context, source legislation.Source) ([]legislation.StoredRecord, bool, error) {
	ctx, span := tracer.Start(ctx, "pipeline.GetBySource", sourceAttr(source))
	rows, hit, err := o.getBySource(ctx, source)
	span.SetAttributes(attribute.Bool("legis.cache_hit", hit), attribute.Int("legis.rows", len(rows)))
	endSpan(span, err)
	return rows, hit, err
}

func (o *Orchestrator) getBySource(ctx context.Context, source legislation.Source) ([]legislation.StoredRecord, bool, error) {
	rows, err := o.read(ctx, source)
	if err != nil {
		return nil, false, err
	}
	if len(rows) > 0 {
		metrics.ObserveCacheLookup(string(source), true)
		return rows, true, nil
	}
	metrics.ObserveCacheLookup(string(source), false)

	n, err := o.fill(ctx, source)
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return []legislation.StoredRecord{}, false, nil
	}
	rows, err = o.read(ctx, source)
	if err != nil {
		return nil, false, err
	}
	return rows, false, nil
}

// fill collects source and persists the result, returning how many records
// were written. Concurrent callers for the same source share one collection
// run under the first caller's context.
func (o *Orchestrator) fill(ctx context.Context, source legislation.Source) (int, error) {
	v, err, shared := o.fills.Do(string(source), func() (any, error) {
		records, err := o.collector.Collect(ctx, source)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			o.logger.Error("collection failed on cache miss", zap.String("source", string(source)), zap.Error(err))
			return 0, nil
		}
		if len(records) == 0 {
			return 0, nil
		}
		return o.upsert(ctx, records)
	})
	if shared {
		o.logger.Debug("joined in-flight collection", zap.String("source", string(source)))
	}
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// RefreshSource replaces every row of source with a fresh collection and
// returns how many records were written. A failed collection leaves the source
// empty and counts zero.
func (o *Orchestrator) RefreshSource(ctx context.Context, source legislation.Source) (int, error) {
	ctx, span := tracer.Start(ctx, "pipeline.RefreshSource", sourceAttr(source))
	n, err := o.refreshSource(ctx, source)
	span.SetAttributes(attribute.Int("legis.records", n))
	endSpan(span, err)
	return n, err
}

func (o *Orchestrator) refreshSource(ctx context.Context, source legislation.Source) (int, error) {
	if _, err := legislation.ParseSource(string(source)); err != nil {
		return 0, err
	}
	deleted, err := o.store.DeleteBySource(ctx, source)
	metrics.ObserveStoreOp("delete", err)
	if err != nil {
		return 0, fmt.Errorf("refresh %s: %w", source, err)
	}
	o.logger.Info("source cleared", zap.String("source", string(source)), zap.Int("count", deleted))

	records, err := o.collector.Collect(ctx, source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		o.logger.Error("refresh collection failed", zap.String("source", string(source)), zap.Error(err))
		return 0, nil
	}
	if len(records) == 0 {
		return 0, nil
	}
	n, err := o.upsert(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("refresh %s: %w", source, err)
	}
	return n, nil
}

// RefreshAll refreshes every source in turn. Each source is attempted even
// when an earlier one fails; persistence errors are joined.
func (o *Orchestrator) RefreshAll(ctx context.Context) (legislation.RefreshResult, error) {
	runID, err := o.ids.NewID()
	if err != nil {
		return legislation.RefreshResult{}, fmt.Errorf("refresh all: %w", err)
	}
	result := legislation.RefreshResult{RunID: runID}
	logger := o.logger.With(zap.String("run_id", runID))
	ctx, span := tracer.Start(ctx, "pipeline.RefreshAll", trace.WithAttributes(attribute.String("legis.run_id", runID)))

	var errs []error
	for _, source := range legislation.Sources {
		n, err := o.RefreshSource(ctx, source)
		if err != nil {
			logger.Error("refresh failed", zap.String("source", string(source)), zap.Error(err))
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		switch source {
		case legislation.SourceNational:
			result.National = n
		case legislation.SourceAdmin:
			result.Admin = n
		}
	}
	logger.Info("refresh finished", zap.Int("national", result.National), zap.Int("admin", result.Admin))
	err = errors.Join(errs...)
	endSpan(span, err)
	return result, err
}

// Sweep deactivates rows created more than olderThan ago.
func (o *Orchestrator) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("sweep: retention must be positive, got %s", olderThan)
	}
	cutoff := o.clock.Now().Add(-olderThan)
	n, err := o.store.DeactivateOlderThan(ctx, cutoff)
	metrics.ObserveStoreOp("deactivate", err)
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	o.logger.Info("retention sweep finished", zap.Time("cutoff", cutoff), zap.Int("count", n))
	return n, nil
}

// Search finds active rows whose title, committee or content contain keyword.
// An empty source searches both.
func (o *Orchestrator) Search(ctx context.Context, keyword string, source legislation.Source) ([]legislation.StoredRecord, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, fmt.Errorf("search keyword is required")
	}
	if source != "" {
		if _, err := legislation.ParseSource(string(source)); err != nil {
			return nil, err
		}
	}
	rows, err := o.store.Search(ctx, keyword, source, o.readLimit)
	metrics.ObserveStoreOp("search", err)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return rows, nil
}

// Stats counts active rows per source.
func (o *Orchestrator) Stats(ctx context.Context) (legislation.Stats, error) {
	stats, err := o.store.Stats(ctx)
	metrics.ObserveStoreOp("stats", err)
	if err != nil {
		return legislation.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

func (o *Orchestrator) read(ctx context.Context, source legislation.Source) ([]legislation.StoredRecord, error) {
	if _, err := legislation.ParseSource(string(source)); err != nil {
		return nil, err
	}
	rows, err := o.store.ReadActiveBySource(ctx, source, o.readLimit)
	metrics.ObserveStoreOp("read", err)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return rows, nil
}

func (o *Orchestrator) upsert(ctx context.Context, records []legislation.Record) (int, error) {
	n, err := o.store.Upsert(ctx, records)
	metrics.ObserveStoreOp("upsert", err)
	if err != nil {
		return 0, fmt.Errorf("persist records: %w", err)
	}
	return n, nil
}
