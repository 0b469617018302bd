package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"atbb-scraper/config"
	"atbb-scraper/models"
)

// ErrDisabled is returned by Open when run history is turned off.
var ErrDisabled = errors.New("storage: run history disabled")

// Store keeps the history of capture runs in Postgres or SQLite.
type Store struct {
	db      *sql.DB
	dialect string
}

// RunRecord is one row of run history.
type RunRecord struct {
	ID         string
	PortalURL  string
	Browser    string
	Keyword    string
	Expected   int
	Captured   int
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

func Open(cfg config.Config) (*Store, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.DBDriver {
	case config.DriverPostgres:
		db, err = sql.Open("pgx", cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("open postgres connection: %w", err)
		}
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		db, err = sql.Open("sqlite", cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.DBPath, err)
		}
		db.SetMaxOpenConns(1)
	case config.DriverNone, "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.DBDriver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDriver, err)
	}

	store := &Store{db: db, dialect: cfg.DBDriver}
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun upserts the run and replaces its shots in one transaction.
func (s *Store) SaveRun(ctx context.Context, run models.RunResult) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, portal_url, browser, keyword, expected, captured, status, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE
		SET
			keyword = EXCLUDED.keyword,
			expected = EXCLUDED.expected,
			captured = EXCLUDED.captured,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at`,
		run.ID,
		run.PortalURL,
		run.Browser,
		run.Gallery.Keyword,
		run.Gallery.Expected,
		run.Gallery.Captured(),
		run.Status,
		run.ErrText,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("upsert run %s: %w", run.ID, err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM shots WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("clear shots of %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO shots (run_id, idx, path, bytes, captured_at, error)
		VALUES ($1, $2, $3, $4, $5, $6)`)
	if err != nil {
		return fmt.Errorf("prepare shot insert: %w", err)
	}
	defer stmt.Close()

	for _, shot := range run.Gallery.Shots {
		capturedAt := sql.NullTime{Time: shot.CapturedAt.UTC(), Valid: !shot.CapturedAt.IsZero()}
		if _, err = stmt.ExecContext(ctx, run.ID, shot.Index, shot.Path, shot.Bytes, capturedAt, shot.Err); err != nil {
			return fmt.Errorf("insert shot %d: %w", shot.Index, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, portal_url, browser, keyword, expected, captured, status, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.PortalURL, &r.Browser, &r.Keyword, &r.Expected, &r.Captured,
			&r.Status, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Shots returns the shots recorded for a run, in capture order.
func (s *Store) Shots(ctx context.Context, runID string) ([]models.Shot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, path, bytes, captured_at, error
		FROM shots
		WHERE run_id = $1
		ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query shots: %w", err)
	}
	defer rows.Close()

	var out []models.Shot
	for rows.Next() {
		var (
			shot models.Shot
			at   sql.NullTime
		)
		if err := rows.Scan(&shot.Index, &shot.Path, &shot.Bytes, &at, &shot.Err); err != nil {
			return nil, fmt.Errorf("scan shot: %w", err)
		}
		if at.Valid {
			shot.CapturedAt = at.Time
		}
		out = append(out, shot)
	}
	return out, rows.Err()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	ddl := postgresSchema
	if s.dialect == config.DriverSQLite {
		ddl = sqliteSchema
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		portal_url TEXT NOT NULL,
		browser TEXT NOT NULL,
		keyword TEXT NOT NULL DEFAULT '',
		expected INTEGER NOT NULL DEFAULT 0,
		captured INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE TABLE IF NOT EXISTS shots (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		bytes BIGINT NOT NULL DEFAULT 0,
		captured_at TIMESTAMPTZ,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, idx)
	);
`

const sqliteSchema = `
	PRAGMA busy_timeout = 10000;
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		portal_url TEXT NOT NULL,
		browser TEXT NOT NULL,
		keyword TEXT NOT NULL DEFAULT '',
		expected INTEGER NOT NULL DEFAULT 0,
		captured INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE TABLE IF NOT EXISTS shots (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		bytes INTEGER NOT NULL DEFAULT 0,
		captured_at DATETIME,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, idx)
	);
`
