package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"aurora-hq/nexus/pkg/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS exchanges (
	id            TEXT PRIMARY KEY,
	request_id    TEXT NOT NULL,
	kind          TEXT NOT NULL,
	instance_id   TEXT NOT NULL,
	instance_url  TEXT NOT NULL,
	method        TEXT NOT NULL,
	path          TEXT NOT NULL,
	status        INTEGER NOT NULL,
	streamed      INTEGER NOT NULL,
	bytes_out     INTEGER NOT NULL,
	duration_ms   INTEGER NOT NULL,
	failure       TEXT,
	recorded_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exchanges_recorded_at ON exchanges(recorded_at);
CREATE INDEX IF NOT EXISTS idx_exchanges_kind ON exchanges(kind);
`

// SQLiteStorage persists records in a SQLite database.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the database at cfg.Path and
// prepares the schema.
func NewSQLiteStorage(cfg config.SQLiteConfig) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Op: "open", Err: err}
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	s := &SQLiteStorage{db: db}
	if err := s.initialize(cfg); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStorage) initialize(cfg config.SQLiteConfig) error {
	if cfg.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return &StorageError{Backend: "sqlite", Op: "enable_wal", Err: err}
		}
	}
	if cfg.BusyTimeout > 0 {
		stmt := fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())
		if _, err := s.db.Exec(stmt); err != nil {
			return &StorageError{Backend: "sqlite", Op: "set_busy_timeout", Err: err}
		}
	}
	if _, err := s.db.Exec(schema); err != nil {
		return &StorageError{Backend: "sqlite", Op: "create_schema", Err: err}
	}
	return nil
}

func (s *SQLiteStorage) Store(ctx context.Context, rec *Record) error {
	var failure any
	if rec.Failure != "" {
		failure = rec.Failure
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges (
			id, request_id, kind, instance_id, instance_url,
			method, path, status, streamed, bytes_out, duration_ms,
			failure, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, rec.Kind, rec.InstanceID, rec.InstanceURL,
		rec.Method, rec.Path, rec.Status, rec.Streamed, rec.BytesOut,
		rec.Duration.Milliseconds(), failure, rec.RecordedAt,
	)
	if err != nil {
		return &StorageError{Backend: "sqlite", Op: "store", Err: err}
	}
	return nil
}

func (s *SQLiteStorage) List(ctx context.Context, q Query) ([]*Record, error) {
	query := `
		SELECT id, request_id, kind, instance_id, instance_url,
		       method, path, status, streamed, bytes_out, duration_ms,
		       COALESCE(failure, ''), recorded_at
		FROM exchanges WHERE 1=1`
	var args []any

	if q.Kind != "" {
		query += " AND kind = ?"
		args = append(args, q.Kind)
	}
	if !q.Since.IsZero() {
		query += " AND recorded_at >= ?"
		args = append(args, q.Since)
	}
	query += " ORDER BY recorded_at DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Backend: "sqlite", Op: "list", Err: err}
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var rec Record
		var durationMs int64
		if err := rows.Scan(
			&rec.ID, &rec.RequestID, &rec.Kind, &rec.InstanceID, &rec.InstanceURL,
			&rec.Method, &rec.Path, &rec.Status, &rec.Streamed, &rec.BytesOut,
			&durationMs, &rec.Failure, &rec.RecordedAt,
		); err != nil {
			return nil, &StorageError{Backend: "sqlite", Op: "scan", Err: err}
		}
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Backend: "sqlite", Op: "list", Err: err}
	}
	return out, nil
}

func (s *SQLiteStorage) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM exchanges WHERE recorded_at < ?", cutoff)
	if err != nil {
		return 0, &StorageError{Backend: "sqlite", Op: "prune", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageError{Backend: "sqlite", Op: "prune", Err: err}
	}
	return n, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
