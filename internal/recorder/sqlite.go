package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"MacroCanary/internal/model"
)

// SQLiteRecorder keeps one row per series code in a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the CSV export read while the scheduler writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS series_snapshots (
			code         TEXT PRIMARY KEY,
			fetched_at   INTEGER NOT NULL,
			saved_at     INTEGER NOT NULL,
			observations TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_fetched ON series_snapshots(fetched_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// SaveSnapshot upserts every series in one transaction.
func (r *SQLiteRecorder) SaveSnapshot(ctx context.Context, series []model.RawSeries) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO series_snapshots
		(code, fetched_at, saved_at, observations)
		VALUES (?,?,?,?)
		ON CONFLICT(code) DO UPDATE SET
			fetched_at = excluded.fetched_at,
			saved_at = excluded.saved_at,
			observations = excluded.observations`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, s := range series {
		data, err := encodeObservations(s.Observations)
		if err != nil {
			return fmt.Errorf("%s: %w", s.Code, err)
		}
		if _, err := stmt.ExecContext(ctx, s.Code, s.FetchedAt.UnixMilli(), now, string(data)); err != nil {
			return fmt.Errorf("upsert %s: %w", s.Code, err)
		}
	}
	return tx.Commit()
}

// LoadSnapshot returns every stored series ordered by code.
func (r *SQLiteRecorder) LoadSnapshot(ctx context.Context) ([]model.RawSeries, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT code, fetched_at, observations FROM series_snapshots ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.RawSeries
	for rows.Next() {
		var (
			code      string
			fetchedAt int64
			data      string
		)
		if err := rows.Scan(&code, &fetchedAt, &data); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		obs, err := decodeObservations([]byte(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", code, err)
		}
		out = append(out, model.RawSeries{
			Code:         code,
			Observations: obs,
			FetchedAt:    time.UnixMilli(fetchedAt).UTC(),
		})
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
