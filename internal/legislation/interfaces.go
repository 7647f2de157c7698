package legislation

import (
	"context"
	"io"
	"sort"
	"time"
)

// Store persists canonical records with upsert-by-natural-key semantics.
type Store interface {
	Upsert(ctx context.Context, records []Record) (int, error)
	ReadActiveBySource(ctx context.Context, source Source, limit int) ([]StoredRecord, error)
	DeleteBySource(ctx context.Context, source Source) (int, error)
	DeactivateOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	Search(ctx context.Context, keyword string, source Source, limit int) ([]StoredRecord, error)
	Stats(ctx context.Context) (Stats, error)
}

// Fetcher retrieves the raw body of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Notifier announces that a refresh cycle finished.
type Notifier interface {
	Notify(ctx context.Context, event RefreshEvent) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// RefreshEvent is sent to the notifier at the end of a crawl job.
type RefreshEvent struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"`
	National   int       `json:"national_count"`
	Admin      int       `json:"admin_count"`
	TargetDate string    `json:"target_date"`
	FinishedAt time.Time `json:"finished_at"`
}

// TargetDate returns the collection window day for a run: the day before now,
// in now's location.
func TargetDate(now time.Time) string {
	return now.AddDate(0, 0, -1).Format(DateLayout)
}

// RunDate returns now's calendar day.
func RunDate(now time.Time) string {
	return now.Format(DateLayout)
}

// SortRecords orders records by natural key in place.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Key.Less(records[j].Key)
	})
}
