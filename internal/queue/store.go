// Package queue persists relay tasks in a SQLite database shared by
// producers and workers.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dsbridge/dsbridge/internal/dserr"
)

// Task statuses. A row stays in waiting until a worker claims it; the
// worker then finishes it as complete or error and the producer deletes
// it after reading the result.
const (
	StatusWaiting  = "waiting"
	StatusComplete = "complete"
	StatusError    = "error"
)

const schema = `
CREATE TABLE IF NOT EXISTS ds_tasker (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	status      TEXT NOT NULL,
	type_query  TEXT NOT NULL,
	param_conn  TEXT NOT NULL,
	param_query TEXT NOT NULL,
	result      TEXT,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	claimed_at  TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_ds_tasker_status ON ds_tasker(status, claimed_at);
`

// Task is a claimed unit of work. The param fields hold the encrypted
// envelopes exactly as the producer stored them.
type Task struct {
	ID         int64
	TypeQuery  string
	ParamConn  string
	ParamQuery string
}

// Result is what Poll reports back to a producer.
type Result struct {
	Status string
	Body   string
	Done   bool
}

// Store wraps the task table. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the task database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create queue directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}

	// SQLite allows a single writer; serialize through one connection
	// instead of bouncing off SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize queue schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue inserts a new waiting task and returns its id.
func (s *Store) Enqueue(ctx context.Context, typeQuery, paramConn, paramQuery string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ds_tasker (status, type_query, param_conn, param_query) VALUES (?, ?, ?, ?)`,
		StatusWaiting, typeQuery, paramConn, paramQuery)
	if err != nil {
		return 0, fmt.Errorf("enqueue task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue task: %w", err)
	}
	return id, nil
}

// Poll reports the current status of a task. Done is true once a worker
// has finished the task one way or the other.
func (s *Store) Poll(ctx context.Context, id int64) (Result, error) {
	var (
		status string
		body   sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, result FROM ds_tasker WHERE id = ?`, id).Scan(&status, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, dserr.New("queue.poll", dserr.KindNotFound, "task %d not found", id)
	}
	if err != nil {
		return Result{}, fmt.Errorf("poll task %d: %w", id, err)
	}
	return Result{
		Status: status,
		Body:   body.String,
		Done:   status == StatusComplete || status == StatusError,
	}, nil
}

// Delete removes a finished task.
func (s *Store) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM ds_tasker WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

// ClaimOldestWaiting atomically marks the oldest unclaimed waiting task
// as in flight and returns it. Returns nil when the queue is empty.
func (s *Store) ClaimOldestWaiting(ctx context.Context) (*Task, error) {
	var t Task
	err := s.db.QueryRowContext(ctx, `
		UPDATE ds_tasker
		SET claimed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = (
			SELECT id FROM ds_tasker
			WHERE status = ? AND claimed_at IS NULL
			ORDER BY id LIMIT 1
		)
		RETURNING id, type_query, param_conn, param_query`,
		StatusWaiting).Scan(&t.ID, &t.TypeQuery, &t.ParamConn, &t.ParamQuery)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return &t, nil
}

// Complete finishes a claimed task with the given status and result body.
func (s *Store) Complete(ctx context.Context, id int64, status, result string) error {
	if status != StatusComplete && status != StatusError {
		return dserr.New("queue.complete", dserr.KindValidation, "invalid final status %q", status)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ds_tasker SET status = ?, result = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, result, id)
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete task %d: %w", id, err)
	}
	if n == 0 {
		return dserr.New("queue.complete", dserr.KindNotFound, "task %d not found", id)
	}
	return nil
}

// ReapExpired deletes finished or abandoned tasks whose last update is
// older than the given age. Producers normally delete their own tasks;
// this catches the ones whose producer gave up or died.
func (s *Store) ReapExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ds_tasker WHERE updated_at < ?`, cutoff.Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("reap expired tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reap expired tasks: %w", err)
	}
	return n, nil
}

// ReleaseStale returns claimed-but-unfinished tasks to the waiting pool
// when their claim is older than the given age, so a crashed worker does
// not strand them.
func (s *Store) ReleaseStale(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	res, err := s.db.ExecContext(ctx, `
		UPDATE ds_tasker
		SET claimed_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE status = ? AND claimed_at IS NOT NULL AND claimed_at < ?`,
		StatusWaiting, cutoff.Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	}
	return n, nil
}
