// Package memory provides an in-memory record store for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/legisnotice/internal/legislation"
)

type rowKey struct {
	source legislation.Source
	key    legislation.NaturalKey
}

// RecordStore mirrors the Postgres store semantics on a map.
type RecordStore struct {
	mu     sync.RWMutex
	rows   map[rowKey]legislation.StoredRecord
	nextID int64
	now    func() time.Time
}

var _ legislation.Store = (*RecordStore)(nil)

// NewRecordStore constructs an empty store. A nil clock uses the wall clock.
func NewRecordStore(clock legislation.Clock) *RecordStore {
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &RecordStore{
		rows: make(map[rowKey]legislation.StoredRecord),
		now:  now,
	}
}

// Upsert inserts unseen keys and overwrites changed ones. Unchanged active rows
// keep their updated_at.
func (s *RecordStore) Upsert(ctx context.Context, records []legislation.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	batch, err := legislation.PrepareBatch(records)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	for _, r := range batch {
		k := rowKey{source: r.Source, key: r.Key}
		existing, ok := s.rows[k]
		if !ok {
			s.nextID++
			s.rows[k] = legislation.StoredRecord{
				Record:    r,
				ID:        s.nextID,
				BillNo:    r.BillID(),
				IsActive:  true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			continue
		}
		if existing.IsActive && existing.SameContent(r) {
			continue
		}
		existing.Record = r
		existing.BillNo = r.BillID()
		existing.IsActive = true
		existing.UpdatedAt = now
		s.rows[k] = existing
	}
	return len(batch), nil
}

// ReadActiveBySource returns active rows newest first.
func (s *RecordStore) ReadActiveBySource(ctx context.Context, source legislation.Source, limit int) ([]legislation.StoredRecord, error) {
	return s.selectRows(ctx, limit, func(r legislation.StoredRecord) bool {
		return r.Source == source
	})
}

// Search matches keyword case-insensitively against title, committee and content.
func (s *RecordStore) Search(ctx context.Context, keyword string, source legislation.Source, limit int) ([]legislation.StoredRecord, error) {
	needle := strings.ToLower(strings.TrimSpace(keyword))
	if needle == "" {
		return nil, fmt.Errorf("search keyword is required")
	}
	return s.selectRows(ctx, limit, func(r legislation.StoredRecord) bool {
		if source != "" && r.Source != source {
			return false
		}
		return strings.Contains(strings.ToLower(r.Title), needle) ||
			strings.Contains(strings.ToLower(r.Committee), needle) ||
			strings.Contains(strings.ToLower(r.Content), needle)
	})
}

func (s *RecordStore) selectRows(ctx context.Context, limit int, match func(legislation.StoredRecord) bool) ([]legislation.StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []legislation.StoredRecord
	for _, r := range s.rows {
		if r.IsActive && match(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteBySource removes every row of a source.
func (s *RecordStore) DeleteBySource(ctx context.Context, source legislation.Source) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.rows {
		if k.source == source {
			delete(s.rows, k)
			n++
		}
	}
	return n, nil
}

// DeactivateOlderThan soft-deletes active rows created before cutoff.
func (s *RecordStore) DeactivateOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	n := 0
	for k, r := range s.rows {
		if r.IsActive && r.CreatedAt.Before(cutoff) {
			r.IsActive = false
			r.UpdatedAt = now
			s.rows[k] = r
			n++
		}
	}
	return n, nil
}

// Stats counts active rows per source.
func (s *RecordStore) Stats(ctx context.Context) (legislation.Stats, error) {
	if err := ctx.Err(); err != nil {
		return legislation.Stats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats legislation.Stats
	for _, r := range s.rows {
		if !r.IsActive {
			continue
		}
		stats.Total++
		switch r.Source {
		case legislation.SourceNational:
			stats.National++
		case legislation.SourceAdmin:
			stats.Admin++
		}
	}
	return stats, nil
}

// Close is a no-op so the store can stand in for the Postgres one.
func (s *RecordStore) Close() {}
