// Package scraper walks the paginated HTML notice portals and turns their
// detail pages into raw notices.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/legisnotice/internal/archive"
	"github.com/JakeFAU/legisnotice/internal/extract"
	"github.com/JakeFAU/legisnotice/internal/legislation"
	"github.com/JakeFAU/legisnotice/internal/metrics"
)

// ErrSourceUnavailable means the first listing page could not be fetched, so
// nothing is known about the source for this run.
var ErrSourceUnavailable = errors.New("source unavailable")

// Reasons a detail item is dropped, used as metric labels.
const (
	skipFetch       = "fetch"
	skipParse       = "parse"
	skipPeriod      = "period"
	skipOutOfWindow = "out_of_window"
)

// errOutOfWindow marks a well-formed notice that falls outside the date window.
var errOutOfWindow = errors.New("outside target window")

// DefaultWorkers bounds concurrent detail fetches when Deps.Workers is unset.
const DefaultWorkers = 4

// Pacer spaces requests to a host.
type Pacer interface {
	Wait(ctx context.Context, rawURL string) error
}

// Window is the date filter for one run, as ISO dates.
type Window struct {
	// Target is the notice start date to collect, normally the day before Today.
	Target string
	// Today is the run date; admin notices ending before it are closed.
	Today string
}

// NewWindow derives the window for a run at now.
func NewWindow(now time.Time) Window {
	return Window{Target: legislation.TargetDate(now), Today: legislation.RunDate(now)}
}

// Listing describes a paginated listing endpoint.
type Listing struct {
	URL      string
	PageSize int
	MaxPages int
}

// Deps are the collaborators shared by both scrapers.
type Deps struct {
	Fetcher legislation.Fetcher
	// ListingPacer spaces listing page requests, DetailPacer detail pages.
	ListingPacer Pacer
	DetailPacer  Pacer
	Workers      int
	Archive      *archive.Archiver
	Logger       *zap.Logger
}

type base struct {
	source  legislation.Source
	listing Listing
	listURL *url.URL
	deps    Deps
	trimmer *extract.Trimmer
	logger  *zap.Logger
}

func newBase(source legislation.Source, listing Listing, deps Deps) (base, error) {
	if deps.Fetcher == nil {
		return base{}, fmt.Errorf("%s scraper: fetcher is required", source)
	}
	u, err := url.Parse(listing.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return base{}, fmt.Errorf("%s scraper: invalid listing url %q", source, listing.URL)
	}
	if listing.MaxPages <= 0 {
		return base{}, fmt.Errorf("%s scraper: max pages must be > 0", source)
	}
	if deps.Workers <= 0 {
		deps.Workers = DefaultWorkers
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{
		source:  source,
		listing: listing,
		listURL: u,
		deps:    deps,
		trimmer: extract.DefaultTrimmer(),
		logger:  logger.Named("scraper." + string(source)),
	}, nil
}

// pageURL returns the listing URL for a 1-based page with extra query params.
func (b *base) pageURL(page int, extra url.Values) string {
	u := *b.listURL
	q := u.Query()
	for k, vs := range extra {
		q[k] = vs
	}
	q.Set("pIndex", strconv.Itoa(page))
	if b.listing.PageSize > 0 {
		q.Set("pSize", strconv.Itoa(b.listing.PageSize))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (b *base) fetch(ctx context.Context, kind string, pacer Pacer, rawURL string) ([]byte, error) {
	if pacer != nil {
		if err := pacer.Wait(ctx, rawURL); err != nil {
			return nil, err
		}
	}
	body, err := b.deps.Fetcher.Fetch(ctx, rawURL)
	metrics.ObservePageFetch(string(b.source), kind, rawURL, len(body), err)
	if err != nil {
		return nil, fmt.Errorf("fetch %s page: %w", kind, err)
	}
	return body, nil
}

// walk fetches listing pages 1..MaxPages. onPage receives each page's links
// and returns false to stop. A failure on page 1 is ErrSourceUnavailable; a
// later failure ends the walk.
func (b *base) walk(
	ctx context.Context,
	extra url.Values,
	links func(doc *goquery.Selection) []string,
	onPage func(page int, links []string) bool,
) error {
	for page := 1; page <= b.listing.MaxPages; page++ {
		pageURL := b.pageURL(page, extra)
		body, err := b.fetch(ctx, "listing", b.deps.ListingPacer, pageURL)
		if err == nil {
			var doc *goquery.Selection
			if doc, err = extract.ParseHTML(body); err == nil {
				found := links(doc)
				b.logger.Debug("listing page", zap.Int("page", page), zap.Int("count", len(found)))
				if len(found) == 0 || !onPage(page, found) {
					return nil
				}
				continue
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s listing: %w", b.source, ctxErr)
		}
		if page == 1 {
			return fmt.Errorf("%w: %s listing: %v", ErrSourceUnavailable, b.source, err)
		}
		b.logger.Warn("listing page failed, ending walk", zap.Int("page", page), zap.String("url", pageURL), zap.Error(err))
		return nil
	}
	b.logger.Debug("listing page ceiling reached", zap.Int("page", b.listing.MaxPages))
	return nil
}

// resolveLinks collects hrefs under selector, resolved against the listing
// URL and deduplicated in document order.
func (b *base) resolveLinks(doc *goquery.Selection, selector string) []string {
	var out []string
	seen := map[string]struct{}{}
	doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
		if abs, ok := resolve(b.listURL, a.AttrOr("href", "")); ok {
			if _, dup := seen[abs]; !dup {
				seen[abs] = struct{}{}
				out = append(out, abs)
			}
		}
	})
	return out
}

func resolve(baseURL *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return baseURL.ResolveReference(ref).String(), true
}

type parseFunc func(detailURL string, doc *goquery.Selection, w Window) (legislation.RawNotice, error)

// details visits links on the bounded worker pool. Output keeps link order
// regardless of completion order; failed or filtered items are left out.
func (b *base) details(ctx context.Context, w Window, links []string, parse parseFunc) ([]legislation.RawNotice, error) {
	slots := make([]*legislation.RawNotice, len(links))
	var g errgroup.Group
	g.SetLimit(b.deps.Workers)
	for i, link := range links {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if n, ok := b.detail(ctx, w, link, parse); ok {
				slots[i] = &n
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s details: %w", b.source, err)
	}
	out := make([]legislation.RawNotice, 0, len(links))
	for _, n := range slots {
		if n != nil {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (b *base) detail(ctx context.Context, w Window, link string, parse parseFunc) (legislation.RawNotice, bool) {
	body, err := b.fetch(ctx, "detail", b.deps.DetailPacer, link)
	if err != nil {
		if ctx.Err() == nil {
			b.skip(skipFetch, link, err)
		}
		return legislation.RawNotice{}, false
	}
	b.deps.Archive.Snapshot(ctx, b.source, w.Target, link, body)

	doc, err := extract.ParseHTML(body)
	if err != nil {
		b.skip(skipParse, link, err)
		return legislation.RawNotice{}, false
	}
	n, err := parse(link, doc, w)
	switch {
	case errors.Is(err, errOutOfWindow):
		metrics.ObserveSkipped(string(b.source), skipOutOfWindow)
		b.logger.Debug("notice outside window", zap.String("url", link), zap.String("target_date", w.Target), zap.Error(err))
		return legislation.RawNotice{}, false
	case err != nil:
		b.skip(skipPeriod, link, err)
		return legislation.RawNotice{}, false
	}
	n.Source = b.source
	return n, true
}

func (b *base) skip(reason, link string, err error) {
	metrics.ObserveSkipped(string(b.source), reason)
	b.logger.Warn("detail item skipped", zap.String("reason", reason), zap.String("url", link), zap.Error(err))
}

// periodOf parses the period field or reports why it cannot.
func periodOf(field extract.Field, doc *goquery.Selection) (extract.Period, error) {
	text := field.Extract(doc)
	if !field.Found(text) {
		return extract.Period{}, extract.ErrNoPeriod
	}
	p, err := extract.ParsePeriod(text)
	if err != nil {
		return extract.Period{}, fmt.Errorf("period %q: %w", text, err)
	}
	return p, nil
}
