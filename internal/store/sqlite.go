package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/seantiz/relay/internal/model"

	_ "modernc.org/sqlite"
)

const createExecutionsTable = `
CREATE TABLE IF NOT EXISTS executions (
    id          TEXT PRIMARY KEY,
    workflow_id TEXT NOT NULL,
    invoker_id  TEXT NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    progress    REAL NOT NULL DEFAULT 0,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME,
    duration_ms INTEGER
)`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    id           TEXT NOT NULL UNIQUE,
    execution_id TEXT NOT NULL,
    workflow_id  TEXT NOT NULL,
    kind         TEXT NOT NULL,
    step_id      TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    error        TEXT NOT NULL DEFAULT '',
    progress     REAL NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL
)`

const createEventsIndex = `CREATE INDEX IF NOT EXISTS idx_events_execution ON events (execution_id, seq)`

// ErrNotFound is returned when an execution has no recorded history.
var ErrNotFound = errors.New("execution not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite serialises writers; one connection also keeps ":memory:"
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createExecutionsTable, createEventsTable, createEventsIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordEvent appends an event to the log and folds it into the execution
// summary. Redelivery of an event id is ignored.
func (s *SQLiteStore) RecordEvent(ctx context.Context, ev model.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (
			id, execution_id, workflow_id, kind, step_id, status, error, progress, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ExecutionID, ev.WorkflowID, string(ev.Kind), ev.StepID, ev.Status, ev.Error, ev.Progress, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	} else if n == 0 {
		return tx.Commit()
	}

	switch {
	case ev.Kind == model.EventStepCompleted:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO executions (id, workflow_id, invoker_id, status, progress, started_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET progress = MAX(executions.progress, excluded.progress)`,
			ev.ExecutionID, ev.WorkflowID, ev.InvokerID, string(model.ExecutionRunning), ev.Progress, ev.Timestamp,
		)
	case ev.Terminal():
		err = finishExecution(ctx, tx, ev)
	default:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO executions (id, workflow_id, invoker_id, status, progress, started_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET status = excluded.status WHERE executions.finished_at IS NULL`,
			ev.ExecutionID, ev.WorkflowID, ev.InvokerID, ev.Status, ev.Progress, ev.Timestamp,
		)
	}
	if err != nil {
		return fmt.Errorf("upsert execution: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func finishExecution(ctx context.Context, tx *sql.Tx, ev model.Event) error {
	started := ev.Timestamp
	err := tx.QueryRowContext(ctx, "SELECT started_at FROM executions WHERE id = ?", ev.ExecutionID).Scan(&started)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read started_at: %w", err)
	}
	duration := ev.Timestamp.Sub(started).Milliseconds()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO executions (
			id, workflow_id, invoker_id, status, error, progress, started_at, finished_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			error = excluded.error,
			progress = excluded.progress,
			finished_at = excluded.finished_at,
			duration_ms = excluded.duration_ms`,
		ev.ExecutionID, ev.WorkflowID, ev.InvokerID, ev.Status, ev.Error, ev.Progress, started, ev.Timestamp, duration,
	)
	return err
}

const selectExecution = `SELECT id, workflow_id, invoker_id, status, error, progress,
	started_at, finished_at, duration_ms FROM executions`

func scanExecution(row interface{ Scan(...any) error }) (*ExecutionRecord, error) {
	r := &ExecutionRecord{}
	err := row.Scan(&r.ID, &r.WorkflowID, &r.InvokerID, &r.Status, &r.Error, &r.Progress,
		&r.StartedAt, &r.FinishedAt, &r.DurationMS)
	return r, err
}

// GetExecution returns the recorded summary of an execution.
func (s *SQLiteStore) GetExecution(ctx context.Context, id string) (*ExecutionRecord, error) {
	r, err := scanExecution(s.db.QueryRowContext(ctx, selectExecution+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return r, nil
}

// ListExecutions returns a page of execution summaries ordered by started_at
// DESC, optionally restricted to one workflow, with the matching total.
func (s *SQLiteStore) ListExecutions(ctx context.Context, workflowID string, limit, offset int) ([]*ExecutionRecord, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	where, args := "", []any{}
	if workflowID != "" {
		where, args = " WHERE workflow_id = ?", append(args, workflowID)
	}

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count executions: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		selectExecution+where+" ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var records []*ExecutionRecord
	for rows.Next() {
		r, err := scanExecution(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan execution: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate executions: %w", err)
	}

	return records, total, nil
}

// ListEvents returns every recorded event of an execution in arrival order.
func (s *SQLiteStore) ListEvents(ctx context.Context, executionID string) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.id, e.kind, e.execution_id, e.workflow_id, COALESCE(x.invoker_id, ''),
			e.step_id, e.status, e.error, e.progress, e.created_at
		FROM events e LEFT JOIN executions x ON x.id = e.execution_id
		WHERE e.execution_id = ? ORDER BY e.seq`, executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []model.Event{}
	for rows.Next() {
		var ev model.Event
		var kind string
		if err := rows.Scan(&ev.ID, &kind, &ev.ExecutionID, &ev.WorkflowID, &ev.InvokerID,
			&ev.StepID, &ev.Status, &ev.Error, &ev.Progress, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = model.EventKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// GetStats aggregates recorded executions by status and workflow. The
// average duration covers completed executions only.
func (s *SQLiteStore) GetStats(ctx context.Context) (*HistoryStats, error) {
	stats := &HistoryStats{
		CountByStatus:   make(map[string]int),
		CountByWorkflow: make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}

	if err := s.countBy(ctx, "status", stats.CountByStatus); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "workflow_id", stats.CountByWorkflow); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		"SELECT AVG(duration_ms) FROM executions WHERE status = ? AND duration_ms IS NOT NULL",
		string(model.ExecutionCompleted),
	).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgDurationMS = avg.Float64
	}
	return stats, nil
}

// countBy fills counts with COUNT(*) grouped by column. column is always a
// constant from this file.
func (s *SQLiteStore) countBy(ctx context.Context, column string, counts map[string]int) error {
	rows, err := s.db.QueryContext(ctx, "SELECT "+column+", COUNT(*) FROM executions GROUP BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan count by %s: %w", column, err)
		}
		counts[key] = n
	}
	return rows.Err()
}
