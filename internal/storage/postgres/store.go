// Package postgres persists crawl runs and per-site progress in Postgres.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/addrcrawl/internal/crawler"
	"github.com/JakeFAU/addrcrawl/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool the store uses; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements crawler.RunStore and store.ProgressRepository.
type Store struct {
	pool pool
}

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database.dsn is required")
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
	return &Store{pool: p}, nil
}

// NewWithPool wraps an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const upsertRunSQL = `
	INSERT INTO crawl_runs (
		id, source, workers, status, started_at, finished_at,
		total_sites, total_unique, total_responsive, total_unfound, total_bytes,
		total_time_ms, outcomes
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO UPDATE SET
		source = EXCLUDED.source,
		workers = EXCLUDED.workers,
		status = EXCLUDED.status,
		finished_at = EXCLUDED.finished_at,
		total_sites = EXCLUDED.total_sites,
		total_unique = EXCLUDED.total_unique,
		total_responsive = EXCLUDED.total_responsive,
		total_unfound = EXCLUDED.total_unfound,
		total_bytes = EXCLUDED.total_bytes,
		total_time_ms = EXCLUDED.total_time_ms,
		outcomes = EXCLUDED.outcomes;`

// StoreRun writes the final aggregate of a run.
func (s *Store) StoreRun(ctx context.Context, result crawler.Result) error {
	id, err := uuid.Parse(result.RunID)
	if err != nil {
		return fmt.Errorf("parse run id: %w", err)
	}
	counts := result.Outcomes
	if counts == nil {
		counts = map[crawler.Outcome]int64{}
	}
	outcomes, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal outcomes: %w", err)
	}
	status := store.RunSucceeded
	if result.Canceled {
		status = store.RunCanceled
	}
	if _, err := s.pool.Exec(
		ctx,
		upsertRunSQL,
		id,
		result.Source,
		result.Workers,
		status,
		result.StartedAt,
		result.FinishedAt,
		result.TotalSites,
		result.TotalUniqueSites,
		result.TotalResponsiveSites,
		result.TotalUnfound,
		result.TotalBytesDownloaded,
		result.TotalTime.Milliseconds(),
		outcomes,
	); err != nil {
		return fmt.Errorf("store run: %w", err)
	}
	return nil
}

// StartRun inserts a running row.
func (s *Store) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	const query = `
		INSERT INTO crawl_runs (id, status, started_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING;`
	if _, err := s.pool.Exec(ctx, query, runID, store.RunRunning, startedAt); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// FinishRun marks the run terminal.
func (s *Store) FinishRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	note *string,
) error {
	const query = `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, note = $3
		WHERE id = $4;`
	if _, err := s.pool.Exec(ctx, query, finishedAt, status, note, runID); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// UpsertSiteStats adds delta to the (run, site) row.
func (s *Store) UpsertSiteStats(
	ctx context.Context,
	runID uuid.UUID,
	site string,
	delta store.SiteDelta,
	at time.Time,
) error {
	const query = `
		INSERT INTO crawl_site_stats (run_id, site, last_update, items, unique_items, downloaded, bytes_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, site) DO UPDATE SET
			last_update = GREATEST(crawl_site_stats.last_update, EXCLUDED.last_update),
			items = crawl_site_stats.items + EXCLUDED.items,
			unique_items = crawl_site_stats.unique_items + EXCLUDED.unique_items,
			downloaded = crawl_site_stats.downloaded + EXCLUDED.downloaded,
			bytes_total = crawl_site_stats.bytes_total + EXCLUDED.bytes_total;`
	if _, err := s.pool.Exec(
		ctx,
		query,
		runID,
		site,
		at,
		delta.Items,
		delta.Unique,
		delta.Downloaded,
		delta.Bytes,
	); err != nil {
		return fmt.Errorf("upsert site stats: %w", err)
	}
	return nil
}

const selectRunColumns = `
	SELECT id, source, workers, status, started_at, finished_at,
		total_sites, total_unique, total_responsive, total_unfound, total_bytes, note
	FROM crawl_runs`

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	run, err := scanRun(s.pool.QueryRow(ctx, selectRunColumns+` WHERE id = $1;`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	query := selectRunColumns + `
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunSites returns site aggregates for one run, most recently updated first.
func (s *Store) ListRunSites(ctx context.Context, runID uuid.UUID, limit, offset int) ([]store.SiteStats, error) {
	const query = `
		SELECT run_id, site, last_update, items, unique_items, downloaded, bytes_total
		FROM crawl_site_stats
		WHERE run_id = $1
		ORDER BY last_update DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list run sites: %w", err)
	}
	defer rows.Close()

	var out []store.SiteStats
	for rows.Next() {
		var stat store.SiteStats
		if err := rows.Scan(
			&stat.RunID,
			&stat.Site,
			&stat.LastUpdate,
			&stat.Items,
			&stat.Unique,
			&stat.Downloaded,
			&stat.Bytes,
		); err != nil {
			return nil, fmt.Errorf("scan site stats row: %w", err)
		}
		out = append(out, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate site stats: %w", err)
	}
	return out, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var run store.Run
	err := row.Scan(
		&run.ID,
		&run.Source,
		&run.Workers,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&run.TotalSites,
		&run.TotalUnique,
		&run.TotalResponsive,
		&run.TotalUnfound,
		&run.TotalBytes,
		&run.Note,
	)
	return run, err
}
