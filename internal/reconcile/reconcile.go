// Package reconcile merges raw notices from the API and the scrapers into
// canonical, keyed records.
package reconcile

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/legislation"
	"github.com/JakeFAU/legisnotice/internal/scraper"
)

// Reconciler derives natural keys and resolves collisions between sources.
type Reconciler struct {
	clock  legislation.Clock
	logger *zap.Logger
}

// New returns a Reconciler stamping records with clock.Now().
func New(clock legislation.Clock, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{clock: clock, logger: logger.Named("reconcile")}
}

// National merges API notices with scraped ones. Every API notice is kept; a
// scraped notice is kept only if its bill id is absent from the API result.
// There is no field-level merge.
func (r *Reconciler) National(api map[string]legislation.RawNotice, scraped []legislation.RawNotice) []legislation.Record {
	now := r.clock.Now()
	byKey := make(map[legislation.NaturalKey]legislation.Record, len(api)+len(scraped))

	for billID, n := range api {
		byKey[legislation.NationalKey(billID)] = r.record(legislation.NationalKey(billID), n, now)
	}

	var collisions, unkeyed int
	for _, n := range scraped {
		billID := strings.TrimSpace(n.BillID)
		if billID == "" || billID == scraper.NationalMissingBillID {
			unkeyed++
			continue
		}
		if _, ok := api[billID]; ok {
			collisions++
			continue
		}
		key := legislation.NationalKey(billID)
		byKey[key] = r.record(key, n, now)
	}

	out := r.finish(legislation.SourceNational, byKey)
	r.logger.Info("national reconciled",
		zap.Int("api", len(api)),
		zap.Int("scraped", len(scraped)),
		zap.Int("collisions", collisions),
		zap.Int("unkeyed", unkeyed),
		zap.Int("count", len(out)),
	)
	return out
}

// Admin converts scraped executive notices 1:1. They never expose a proposer.
// Identity is the composite (title, committee, start date); two distinct
// notices sharing all three collapse into one record.
func (r *Reconciler) Admin(scraped []legislation.RawNotice) []legislation.Record {
	now := r.clock.Now()
	byKey := make(map[legislation.NaturalKey]legislation.Record, len(scraped))
	for _, n := range scraped {
		n.Proposer = ""
		key := legislation.AdminKey(n.Title, n.Committee, n.StartDate)
		if _, dup := byKey[key]; dup {
			r.logger.Warn("admin key collision, later notice wins", zap.String("title", n.Title), zap.String("url", n.LinkURL))
		}
		byKey[key] = r.record(key, n, now)
	}
	out := r.finish(legislation.SourceAdmin, byKey)
	r.logger.Info("admin reconciled", zap.Int("scraped", len(scraped)), zap.Int("count", len(out)))
	return out
}

func (r *Reconciler) record(key legislation.NaturalKey, n legislation.RawNotice, now time.Time) legislation.Record {
	return legislation.Record{
		Key:         key,
		Title:       n.Title,
		Committee:   n.Committee,
		Proposer:    n.Proposer,
		StartDate:   n.StartDate,
		EndDate:     n.EndDate,
		Content:     n.Content,
		LinkURL:     n.LinkURL,
		Source:      key.Source(),
		CollectedAt: now,
	}
}

// finish drops invalid records and sorts the rest by key.
func (r *Reconciler) finish(source legislation.Source, byKey map[legislation.NaturalKey]legislation.Record) []legislation.Record {
	out := make([]legislation.Record, 0, len(byKey))
	for _, rec := range byKey {
		if err := rec.Validate(); err != nil {
			r.logger.Warn("record dropped", zap.String("source", string(source)), zap.String("key", rec.Key.String()), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	legislation.SortRecords(out)
	return out
}
