// Package postgres provides the Postgres-backed record store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/legisnotice/internal/legislation"
)

const defaultTable = "legislation_notices"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for notice rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store needs; pgxmock satisfies it.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store persists records keyed by (source, natural_key).
type Store struct {
	pool  pool
	table string
}

var _ legislation.Store = (*Store)(nil)

// New creates a pool-backed Store using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, table: table}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) schema() []string {
	t := s.table
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	source TEXT NOT NULL,
	natural_key TEXT NOT NULL,
	bill_no TEXT,
	title TEXT NOT NULL,
	committee TEXT NOT NULL,
	proposer TEXT,
	start_date TEXT NOT NULL DEFAULT '',
	end_date TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	link_url TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	collected_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (source, natural_key)
)`, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_source_start_idx ON %[1]s (source, start_date)`, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_end_date_idx ON %[1]s (end_date)`, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_committee_idx ON %[1]s (committee)`, t),
	}
}

// EnsureSchema creates the table and its indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Upsert validates and writes the batch in one transaction. Rows whose stored
// fields are unchanged are left alone, so updated_at only moves on a real change.
func (s *Store) Upsert(ctx context.Context, records []legislation.Record) (int, error) {
	batch, err := legislation.PrepareBatch(records)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	query := s.upsertQuery()
	for _, r := range batch {
		if _, err := tx.Exec(ctx, query, upsertArgs(r)...); err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("upsert %s %s: %w", r.Source, r.Key, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return len(batch), nil
}

func (s *Store) upsertQuery() string {
	return fmt.Sprintf(`
INSERT INTO %[1]s (
	source,
	natural_key,
	bill_no,
	title,
	committee,
	proposer,
	start_date,
	end_date,
	content,
	link_url,
	collected_at
) VALUES (
	$1,$2,NULLIF($3,''),$4,$5,NULLIF($6,''),$7,$8,$9,$10,$11
)
ON CONFLICT (source, natural_key) DO UPDATE SET
	bill_no = EXCLUDED.bill_no,
	title = EXCLUDED.title,
	committee = EXCLUDED.committee,
	proposer = EXCLUDED.proposer,
	start_date = EXCLUDED.start_date,
	end_date = EXCLUDED.end_date,
	content = EXCLUDED.content,
	link_url = EXCLUDED.link_url,
	collected_at = EXCLUDED.collected_at,
	is_active = TRUE,
	updated_at = now()
WHERE (%[1]s.title, %[1]s.committee, %[1]s.proposer, %[1]s.start_date, %[1]s.end_date, %[1]s.content, %[1]s.link_url, %[1]s.is_active)
	IS DISTINCT FROM (EXCLUDED.title, EXCLUDED.committee, EXCLUDED.proposer, EXCLUDED.start_date, EXCLUDED.end_date, EXCLUDED.content, EXCLUDED.link_url, TRUE)`, s.table)
}

func upsertArgs(r legislation.Record) []any {
	return []any{
		string(r.Source),
		r.Key.String(),
		r.BillID(),
		r.Title,
		r.Committee,
		r.Proposer,
		r.StartDate,
		r.EndDate,
		r.Content,
		r.LinkURL,
		r.CollectedAt,
	}
}

const selectColumns = `id, source, natural_key, COALESCE(bill_no, ''), title, committee, COALESCE(proposer, ''),
	start_date, end_date, content, link_url, is_active, collected_at, created_at, updated_at`

// ReadActiveBySource returns active rows for a source, newest first. A
// non-positive limit returns every row.
func (s *Store) ReadActiveBySource(ctx context.Context, source legislation.Source, limit int) ([]legislation.StoredRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE source = $1 AND is_active ORDER BY created_at DESC, id DESC LIMIT $2`,
		selectColumns, s.table)
	rows, err := s.pool.Query(ctx, query, string(source), limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	return scanRecords(rows)
}

// Search matches keyword as a substring of title, committee or content.
// An empty source searches both.
func (s *Store) Search(ctx context.Context, keyword string, source legislation.Source, limit int) ([]legislation.StoredRecord, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("search keyword is required")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s
WHERE is_active
	AND ($2 = '' OR source = $2)
	AND (title ILIKE $1 ESCAPE '\' OR committee ILIKE $1 ESCAPE '\' OR content ILIKE $1 ESCAPE '\')
ORDER BY created_at DESC, id DESC LIMIT $3`, selectColumns, s.table)
	rows, err := s.pool.Query(ctx, query, likePattern(keyword), string(source), limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return scanRecords(rows)
}

// DeleteBySource hard-deletes every row of a source.
func (s *Store) DeleteBySource(ctx context.Context, source legislation.Source) (int, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE source = $1`, s.table), string(source))
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", source, err)
	}
	return int(tag.RowsAffected()), nil
}

// DeactivateOlderThan soft-deletes active rows created before cutoff.
func (s *Store) DeactivateOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	query := fmt.Sprintf(`UPDATE %s SET is_active = FALSE, updated_at = now() WHERE is_active AND created_at < $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deactivate rows: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats counts active rows per source.
func (s *Store) Stats(ctx context.Context) (legislation.Stats, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT source, count(*) FROM %s WHERE is_active GROUP BY source`, s.table))
	if err != nil {
		return legislation.Stats{}, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	var stats legislation.Stats
	for rows.Next() {
		var source string
		var n int64
		if err := rows.Scan(&source, &n); err != nil {
			return legislation.Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		switch legislation.Source(source) {
		case legislation.SourceNational:
			stats.National = int(n)
		case legislation.SourceAdmin:
			stats.Admin = int(n)
		}
		stats.Total += int(n)
	}
	if err := rows.Err(); err != nil {
		return legislation.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

func scanRecords(rows pgx.Rows) ([]legislation.StoredRecord, error) {
	defer rows.Close()

	var out []legislation.StoredRecord
	for rows.Next() {
		var (
			rec        legislation.StoredRecord
			source     string
			naturalKey string
		)
		if err := rows.Scan(
			&rec.ID,
			&source,
			&naturalKey,
			&rec.BillNo,
			&rec.Title,
			&rec.Committee,
			&rec.Proposer,
			&rec.StartDate,
			&rec.EndDate,
			&rec.Content,
			&rec.LinkURL,
			&rec.IsActive,
			&rec.CollectedAt,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Source = legislation.Source(source)
		key, err := legislation.ParseNaturalKey(rec.Source, naturalKey)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", rec.ID, err)
		}
		rec.Key = key
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as LIMIT ALL.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(keyword string) string {
	return "%" + likeEscaper.Replace(keyword) + "%"
}
