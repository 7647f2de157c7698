// Package legislation defines the core types shared across the collection pipeline.
package legislation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date layout used for comment-period bounds.
const DateLayout = "2006-01-02"

// Source identifies the upstream branch a notice was collected from.
type Source string

// Source values persisted in the store.
const (
	SourceNational Source = "national"
	SourceAdmin    Source = "admin"
)

// Sources lists every known source in refresh order.
var Sources = []Source{SourceNational, SourceAdmin}

var (
	// ErrInvalidSource is returned when a source name is not recognized.
	ErrInvalidSource = errors.New("invalid source")
	// ErrInvalidRecord is returned when a record violates a model invariant.
	ErrInvalidRecord = errors.New("invalid record")
)

// ParseSource converts a raw name into a Source.
func ParseSource(raw string) (Source, error) {
	switch s := Source(strings.ToLower(strings.TrimSpace(raw))); s {
	case SourceNational, SourceAdmin:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, raw)
	}
}

// RawNotice is a notice as extracted from an upstream page or API row, before
// a natural key has been derived for it.
type RawNotice struct {
	BillID    string
	Title     string
	Committee string
	Proposer  string
	StartDate string
	EndDate   string
	Content   string
	LinkURL   string
	Source    Source
}

// Record is the canonical, deduplicated unit written to the store.
type Record struct {
	Key         NaturalKey `json:"-"`
	Title       string     `json:"title"`
	Committee   string     `json:"committee"`
	Proposer    string     `json:"proposer,omitempty"`
	StartDate   string     `json:"start_date"`
	EndDate     string     `json:"end_date"`
	Content     string     `json:"content"`
	LinkURL     string     `json:"link_url"`
	Source      Source     `json:"source"`
	CollectedAt time.Time  `json:"collected_at"`
}

// BillID returns the bill identifier for national records and an empty string otherwise.
func (r Record) BillID() string {
	if r.Key.Kind() != KeyNational {
		return ""
	}
	return r.Key.BillID()
}

// Validate checks the invariants every stored record must satisfy.
func (r Record) Validate() error {
	if r.Key.IsZero() {
		return fmt.Errorf("%w: missing natural key", ErrInvalidRecord)
	}
	if r.Key.Source() != r.Source {
		return fmt.Errorf("%w: key %s does not belong to source %s", ErrInvalidRecord, r.Key, r.Source)
	}
	var start, end time.Time
	var err error
	if r.StartDate != "" {
		if start, err = time.Parse(DateLayout, r.StartDate); err != nil {
			return fmt.Errorf("%w: start date %q", ErrInvalidRecord, r.StartDate)
		}
	}
	if r.EndDate != "" {
		if end, err = time.Parse(DateLayout, r.EndDate); err != nil {
			return fmt.Errorf("%w: end date %q", ErrInvalidRecord, r.EndDate)
		}
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return fmt.Errorf("%w: start %s after end %s", ErrInvalidRecord, r.StartDate, r.EndDate)
	}
	return nil
}

// SameContent reports whether two records carry identical stored fields.
func (r Record) SameContent(other Record) bool {
	return r.Title == other.Title &&
		r.Committee == other.Committee &&
		r.Proposer == other.Proposer &&
		r.StartDate == other.StartDate &&
		r.EndDate == other.EndDate &&
		r.Content == other.Content &&
		r.LinkURL == other.LinkURL
}

// PrepareBatch validates every record before any is written and keeps the
// last occurrence of each key, in first-seen order.
func PrepareBatch(records []Record) ([]Record, error) {
	index := make(map[NaturalKey]int, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if i, ok := index[r.Key]; ok {
			out[i] = r
			continue
		}
		index[r.Key] = len(out)
		out = append(out, r)
	}
	return out, nil
}

// StoredRecord is a Record plus the bookkeeping columns owned by the store.
type StoredRecord struct {
	Record
	ID        int64     `json:"id"`
	BillNo    string    `json:"bill_no,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Stats summarizes active rows per source.
type Stats struct {
	Total    int `json:"total"`
	National int `json:"national"`
	Admin    int `json:"admin"`
}

// RefreshResult reports per-source counts of a full refresh.
type RefreshResult struct {
	RunID    string `json:"run_id"`
	National int    `json:"national_count"`
	Admin    int    `json:"admin_count"`
}

// Total returns the combined record count.
func (r RefreshResult) Total() int {
	return r.National + r.Admin
}

// Count returns the count recorded for a source.
func (r RefreshResult) Count(source Source) int {
	if source == SourceAdmin {
		return r.Admin
	}
	return r.National
}
