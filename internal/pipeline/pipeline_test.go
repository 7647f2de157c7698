package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/legisnotice/internal/legislation"
	"github.com/JakeFAU/legisnotice/internal/scraper"
	"github.com/JakeFAU/legisnotice/internal/storage/memory"
)

var kst = time.FixedZone("KST", 9*60*60)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func runClock() fixedClock {
	return fixedClock{t: time.Date(2024, 5, 11, 9, 0, 0, 0, kst)}
}

type fakeScraper struct {
	mu      sync.Mutex
	notices []legislation.RawNotice
	err     error
	windows []scraper.Window
}

func (f *fakeScraper) Scrape(_ context.Context, w scraper.Window) ([]legislation.RawNotice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, w)
	return f.notices, f.err
}

type fakeAPI struct {
	notices map[string]legislation.RawNotice
	err     error
	targets []string
}

func (f *fakeAPI) FetchNotices(_ context.Context, target string) (map[string]legislation.RawNotice, error) {
	f.targets = append(f.targets, target)
	return f.notices, f.err
}

func nationalNotice(id, committee string) legislation.RawNotice {
	return legislation.RawNotice{
		BillID:    id,
		Title:     "법안 " + id,
		Committee: committee,
		StartDate: "2024-05-10",
		EndDate:   "2024-05-20",
		Content:   "본문",
		LinkURL:   "https://pal.assembly.go.kr/" + id,
		Source:    legislation.SourceNational,
	}
}

func adminNotice(i int) legislation.RawNotice {
	return legislation.RawNotice{
		Title:     fmt.Sprintf("시행령 %d", i),
		Committee: "국토교통부",
		StartDate: "2024-05-10",
		EndDate:   "2024-06-19",
		LinkURL:   fmt.Sprintf("https://opinion.lawmaking.go.kr/%d", i),
		Source:    legislation.SourceAdmin,
	}
}

func newCollector(t *testing.T, national, admin *fakeScraper, api NoticeAPI) *Collector {
	t.Helper()
	c, err := NewCollector(CollectorDeps{
		National: national,
		Admin:    admin,
		API:      api,
		Clock:    runClock(),
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return c
}

func TestCollectNationalPrefersAPI(t *testing.T) {
	t.Parallel()

	apiNotice := nationalNotice("B123", "행정안전위원회")
	apiNotice.StartDate = ""
	api := &fakeAPI{notices: map[string]legislation.RawNotice{"B123": apiNotice}}
	national := &fakeScraper{notices: []legislation.RawNotice{
		nationalNotice("B123", "법제사법위원회"),
		nationalNotice("B200", "국토교통위원회"),
	}}
	c := newCollector(t, national, &fakeScraper{}, api)

	got, err := c.Collect(context.Background(), legislation.SourceNational)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B123", got[0].BillID())
	assert.Equal(t, "행정안전위원회", got[0].Committee)
	assert.Empty(t, got[0].StartDate)
	assert.Equal(t, "B200", got[1].BillID())

	assert.Equal(t, []string{"2024-05-10"}, api.targets)
	require.Len(t, national.windows, 1)
	assert.Equal(t, scraper.Window{Target: "2024-05-10", Today: "2024-05-11"}, national.windows[0])
}

func TestCollectNationalDegrades(t *testing.T) {
	t.Parallel()

	down := errors.New("down")
	tests := []struct {
		name      string
		api       NoticeAPI
		scrapeErr error
		wantIDs   []string
		wantErr   bool
	}{
		{
			name:    "api down",
			api:     &fakeAPI{err: down},
			wantIDs: []string{"B1"},
		},
		{
			name:    "api disabled",
			wantIDs: []string{"B1"},
		},
		{
			name:      "portal down",
			api:       &fakeAPI{notices: map[string]legislation.RawNotice{"B9": nationalNotice("B9", "c")}},
			scrapeErr: scraper.ErrSourceUnavailable,
			wantIDs:   []string{"B9"},
		},
		{
			name:      "both down",
			api:       &fakeAPI{err: down},
			scrapeErr: scraper.ErrSourceUnavailable,
			wantErr:   true,
		},
		{
			name:      "portal down without api",
			scrapeErr: scraper.ErrSourceUnavailable,
			wantErr:   true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			national := &fakeScraper{err: tc.scrapeErr}
			if tc.scrapeErr == nil {
				national.notices = []legislation.RawNotice{nationalNotice("B1", "c")}
			}
			c := newCollector(t, national, &fakeScraper{}, tc.api)

			got, err := c.Collect(context.Background(), legislation.SourceNational)
			if tc.wantErr {
				require.ErrorIs(t, err, scraper.ErrSourceUnavailable)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.BillID())
			}
			assert.Equal(t, tc.wantIDs, ids)
		})
	}
}

func TestCollectAdmin(t *testing.T) {
	t.Parallel()

	admin := &fakeScraper{notices: []legislation.RawNotice{adminNotice(1), adminNotice(2)}}
	c := newCollector(t, &fakeScraper{}, admin, nil)

	got, err := c.Collect(context.Background(), legislation.SourceAdmin)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		assert.Equal(t, legislation.SourceAdmin, r.Source)
		assert.Empty(t, r.Proposer)
	}

	failing := newCollector(t, &fakeScraper{}, &fakeScraper{err: scraper.ErrSourceUnavailable}, nil)
	_, err = failing.Collect(context.Background(), legislation.SourceAdmin)
	require.ErrorIs(t, err, scraper.ErrSourceUnavailable)

	_, err = c.Collect(context.Background(), "local")
	require.ErrorIs(t, err, legislation.ErrInvalidSource)
}

func TestNewCollectorValidation(t *testing.T) {
	t.Parallel()

	_, err := NewCollector(CollectorDeps{Admin: &fakeScraper{}, Clock: runClock()})
	require.Error(t, err)
	_, err = NewCollector(CollectorDeps{National: &fakeScraper{}, Admin: &fakeScraper{}})
	require.Error(t, err)
}

// fakeCollector returns canned records per source.
type fakeCollector struct {
	mu      sync.Mutex
	records map[legislation.Source][]legislation.Record
	errs    map[legislation.Source]error
	calls   map[legislation.Source]int
}

func newFakeCollector() *fakeCollector {
	return &fakeCollector{
		records: map[legislation.Source][]legislation.Record{},
		errs:    map[legislation.Source]error{},
		calls:   map[legislation.Source]int{},
	}
}

func (f *fakeCollector) Collect(_ context.Context, source legislation.Source) ([]legislation.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[source]++
	if err := f.errs[source]; err != nil {
		return nil, err
	}
	return f.records[source], nil
}

func (f *fakeCollector) callCount(source legislation.Source) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[source]
}

type staticIDs struct{}

func (staticIDs) NewID() (string, error) { return "run-1", nil }

// failingStore fails selected operations of an in-memory store.
type failingStore struct {
	*memory.RecordStore
	upsertErr error
}

func (s *failingStore) Upsert(ctx context.Context, records []legislation.Record) (int, error) {
	if s.upsertErr != nil {
		return 0, s.upsertErr
	}
	return s.RecordStore.Upsert(ctx, records)
}

func record(id string) legislation.Record {
	return legislation.Record{
		Key:       legislation.NationalKey(id),
		Title:     "법안 " + id,
		Committee: "c",
		EndDate:   "2024-05-20",
		Source:    legislation.SourceNational,
	}
}

func adminRecords(n int) []legislation.Record {
	out := make([]legislation.Record, 0, n)
	for i := 0; i < n; i++ {
		raw := adminNotice(i)
		out = append(out, legislation.Record{
			Key:       legislation.AdminKey(raw.Title, raw.Committee, raw.StartDate),
			Title:     raw.Title,
			Committee: raw.Committee,
			StartDate: raw.StartDate,
			EndDate:   raw.EndDate,
			LinkURL:   raw.LinkURL,
			Source:    legislation.SourceAdmin,
		})
	}
	return out
}

func newOrchestrator(t *testing.T, store legislation.Store, collector RecordCollector) *Orchestrator {
	t.Helper()
	o, err := New(Options{
		Store:     store,
		Collector: collector,
		IDs:       staticIDs{},
		Clock:     runClock(),
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	return o
}

func TestGetBySourceCacheAside(t *testing.T) {
	t.Parallel()

	collector := newFakeCollector()
	collector.records[legislation.SourceNational] = []legislation.Record{record("B1"), record("B2")}
	o := newOrchestrator(t, memory.NewRecordStore(runClock()), collector)
	ctx := context.Background()

	rows, hit, err := o.GetBySource(ctx, legislation.SourceNational)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, rows, 2)

	rows, hit, err = o.GetBySource(ctx, legislation.SourceNational)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, rows, 2)
	assert.Equal(t, 1, collector.callCount(legislation.SourceNational))
}

// gatedCollector blocks every Collect until release is closed.
type gatedCollector struct {
	*fakeCollector
	release chan struct{}
}

func (g *gatedCollector) Collect(ctx context.Context, source legislation.Source) ([]legislation.Record, error) {
	<-g.release
	return g.fakeCollector.Collect(ctx, source)
}

func TestGetBySourceConcurrentMissesShareOneCollection(t *testing.T) {
	t.Parallel()

	collector := &gatedCollector{fakeCollector: newFakeCollector(), release: make(chan struct{})}
	collector.records[legislation.SourceNational] = []legislation.Record{record("B1"), record("B2")}
	o := newOrchestrator(t, memory.NewRecordStore(runClock()), collector)

	const callers = 5
	var wg sync.WaitGroup
	counts := make([]int, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rows, _, err := o.GetBySource(context.Background(), legislation.SourceNational)
			counts[i], errs[i] = len(rows), err
		}(i)
	}
	// Let every caller miss the cache and join the in-flight collection.
	time.Sleep(100 * time.Millisecond)
	close(collector.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 2, counts[i])
	}
	assert.Equal(t, 1, collector.callCount(legislation.SourceNational))
}

func TestGetBySourceCollectionFailureIsEmpty(t *testing.T) {
	t.Parallel()

	collector := newFakeCollector()
	collector.errs[legislation.SourceAdmin] = scraper.ErrSourceUnavailable
	o := newOrchestrator(t, memory.NewRecordStore(runClock()), collector)

	rows, hit, err := o.GetBySource(context.Background(), legislation.SourceAdmin)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestGetBySourcePersistenceFailurePropagates(t *testing.T) {
	t.Parallel()

	collector := newFakeCollector()
	collector.records[legislation.SourceNational] = []legislation.Record{record("B1")}
	store := &failingStore{RecordStore: memory.NewRecordStore(runClock()), upsertErr: errors.New("disk full")}
	o := newOrchestrator(t, store, collector)

	_, _, err := o.GetBySource(context.Background(), legislation.SourceNational)
	require.ErrorContains(t, err, "disk full")

	_, _, err = o.GetBySource(context.Background(), "local")
	require.ErrorIs(t, err, legislation.ErrInvalidSource)
}

func TestRefreshAllIsolatesSources(t *testing.T) {
	t.Parallel()

	store := memory.NewRecordStore(runClock())
	ctx := context.Background()
	_, err := store.Upsert(ctx, []legislation.Record{record("OLD1"), record("OLD2")})
	require.NoError(t, err)

	collector := newFakeCollector()
	collector.errs[legislation.SourceNational] = scraper.ErrSourceUnavailable
	collector.records[legislation.SourceAdmin] = adminRecords(5)
	o := newOrchestrator(t, store, collector)

	result, err := o.RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, legislation.RefreshResult{RunID: "run-1", National: 0, Admin: 5}, result)

	stats, err := o.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, legislation.Stats{Total: 5, National: 0, Admin: 5}, stats)
}

func TestRefreshAllJoinsPersistenceErrors(t *testing.T) {
	t.Parallel()

	collector := newFakeCollector()
	collector.records[legislation.SourceNational] = []legislation.Record{record("B1")}
	collector.records[legislation.SourceAdmin] = adminRecords(2)
	store := &failingStore{RecordStore: memory.NewRecordStore(runClock()), upsertErr: errors.New("disk full")}
	o := newOrchestrator(t, store, collector)

	result, err := o.RefreshAll(context.Background())
	require.Error(t, err)
	assert.Zero(t, result.Total())
	assert.Equal(t, 1, collector.callCount(legislation.SourceNational))
	assert.Equal(t, 1, collector.callCount(legislation.SourceAdmin))
}

func TestRefreshSourceWritesCollected(t *testing.T) {
	t.Parallel()

	collector := newFakeCollector()
	collector.records[legislation.SourceAdmin] = adminRecords(3)
	o := newOrchestrator(t, memory.NewRecordStore(runClock()), collector)

	n, err := o.RefreshSource(context.Background(), legislation.SourceAdmin)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = o.RefreshSource(context.Background(), "local")
	require.ErrorIs(t, err, legislation.ErrInvalidSource)
}

func TestSweepSearchStats(t *testing.T) {
	t.Parallel()

	store := memory.NewRecordStore(fixedClock{t: runClock().t.AddDate(0, 0, -40)})
	ctx := context.Background()
	_, err := store.Upsert(ctx, []legislation.Record{record("B1")})
	require.NoError(t, err)
	o := newOrchestrator(t, store, newFakeCollector())

	hits, err := o.Search(ctx, "법안", "")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
	_, err = o.Search(ctx, "", "")
	require.Error(t, err)
	_, err = o.Search(ctx, "법안", "local")
	require.ErrorIs(t, err, legislation.ErrInvalidSource)

	n, err := o.Sweep(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = o.Sweep(ctx, 0)
	require.Error(t, err)

	stats, err := o.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Collector: newFakeCollector(), IDs: staticIDs{}, Clock: runClock()})
	require.Error(t, err)
	_, err = New(Options{Store: memory.NewRecordStore(nil), IDs: staticIDs{}, Clock: runClock()})
	require.Error(t, err)
	_, err = New(Options{Store: memory.NewRecordStore(nil), Collector: newFakeCollector()})
	require.Error(t, err)
}
