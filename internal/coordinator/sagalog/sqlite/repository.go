// Package sqlite stores the saga log in its own SQLite file.
//
// WAL mode is enabled on Open so the saga goroutine can write while the
// operator CLI reads a saga's history.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jcmexdev/storefront-sagas/internal/coordinator/sagalog"
	"github.com/jcmexdev/storefront-sagas/internal/pkg/apperr"

	// Pure-Go driver; no CGO in the container build.
	_ "modernc.org/sqlite"
)

// schema is append-only: each row is one transition. The latest row per
// saga_id is the saga's current state.
const schema = `
CREATE TABLE IF NOT EXISTS saga_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    -- refund claim id; several rows per saga
    saga_id         TEXT        NOT NULL,
    status          TEXT        NOT NULL,
    current_step    TEXT        NOT NULL DEFAULT '',
    -- written on STARTED only
    payload         TEXT,
    error_messages  TEXT        NOT NULL DEFAULT '[]',
    trace_id        TEXT        NOT NULL DEFAULT '',
    span_id         TEXT        NOT NULL DEFAULT '',
    -- fixed-width UTC text so it sorts lexically
    updated_at      TEXT        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_logs_saga_id ON saga_logs(saga_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_saga_logs_trace_id ON saga_logs(trace_id);
CREATE INDEX IF NOT EXISTS idx_saga_logs_status ON saga_logs(status);
`

// Repository implements sagalog.Repository and sagalog.Reader.
type Repository struct {
	db *sql.DB
}

var (
	_ sagalog.Repository = (*Repository)(nil)
	_ sagalog.Reader     = (*Repository)(nil)
)

// Open opens (or creates) the SQLite database at path and applies the
// schema.
//
//	repo, err := sqlite.Open("./data/saga.db")
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// Single writer connection.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Save inserts a new saga log entry. It is safe to call concurrently.
func (r *Repository) Save(ctx context.Context, entry *sagalog.SagaLog) error {
	const q = `
		INSERT INTO saga_logs
			(saga_id, status, current_step, payload, error_messages, trace_id, span_id, updated_at)
		VALUES
			(?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		entry.SagaID,
		string(entry.Status),
		entry.CurrentStep,
		nullableString(entry.Payload),
		entry.ErrorMessages,
		entry.TraceID,
		entry.SpanID,
		formatTime(entry.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save saga log for %q: %w", entry.SagaID, err)
	}
	return nil
}

const selectColumns = `
	SELECT saga_id, status, current_step, COALESCE(payload,''), error_messages,
	       trace_id, span_id, updated_at
	FROM   saga_logs`

// GetLatest returns the most recent log entry for sagaID.
func (r *Repository) GetLatest(ctx context.Context, sagaID string) (*sagalog.SagaLog, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+`
		WHERE  saga_id = ?
		ORDER  BY updated_at DESC, id DESC
		LIMIT  1`, sagaID)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("sqlite.GetLatest", fmt.Sprintf("saga %q not found", sagaID))
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get latest for %q: %w", sagaID, err)
	}
	return entry, nil
}

// ListBySaga returns every entry of sagaID, oldest first.
func (r *Repository) ListBySaga(ctx context.Context, sagaID string) ([]*sagalog.SagaLog, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+`
		WHERE  saga_id = ?
		ORDER  BY updated_at, id`, sagaID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list saga %q: %w", sagaID, err)
	}
	defer rows.Close()

	var out []*sagalog.SagaLog
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list saga %q: %w", sagaID, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ListByStatus returns the newest row of each saga whose current status is
// status. Rows are appended in order, so the highest id is the current one.
func (r *Repository) ListByStatus(ctx context.Context, status sagalog.Status, limit int) ([]*sagalog.SagaLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+`
		WHERE  status = ?
		  AND  id = (SELECT MAX(s.id) FROM saga_logs s WHERE s.saga_id = saga_logs.saga_id)
		ORDER  BY updated_at DESC, id DESC
		LIMIT  ?`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list sagas in %s: %w", status, err)
	}
	defer rows.Close()

	var out []*sagalog.SagaLog
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: list sagas in %s: %w", status, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*sagalog.SagaLog, error) {
	var entry sagalog.SagaLog
	var updatedAt string
	err := s.Scan(
		&entry.SagaID,
		&entry.Status,
		&entry.CurrentStep,
		&entry.Payload,
		&entry.ErrorMessages,
		&entry.TraceID,
		&entry.SpanID,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// nullableString stores NULL for the payload of non-STARTED rows.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
