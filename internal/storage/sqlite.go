package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/cardex/internal/models"
	"github.com/hyperjump/cardex/internal/pipeline"
)

// SQLiteStorage implements RunLog using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

var _ RunLog = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		failed_side TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);

	CREATE TABLE IF NOT EXISTS run_transitions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		side TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		at TIMESTAMP NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_transitions_run_id ON run_transitions(run_id, seq);
	`
	_, err := db.Exec(schema)
	return err
}

// RunStarted inserts an idle run. Starting an existing ID resets it.
func (s *SQLiteStorage) RunStarted(ctx context.Context, runID string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_transitions WHERE run_id = ?`, runID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, state, created_at, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state = excluded.state, reason = '', failed_side = '',
		 message = '', created_at = excluded.created_at, updated_at = excluded.updated_at`,
		runID, string(pipeline.StateIdle), at.UTC(), at.UTC(),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Transition appends t and moves the run to its state.
func (s *SQLiteStorage) Transition(ctx context.Context, runID string, t pipeline.Transition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE runs SET state = ?, updated_at = ? WHERE id = ?`,
		string(t.State), t.At.UTC(), runID,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO run_transitions (run_id, side, state, at) VALUES (?, ?, ?, ?)`,
		runID, string(t.Side), string(t.State), t.At.UTC(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// RunFinished stores the terminal state, reason and user message.
func (s *SQLiteStorage) RunFinished(ctx context.Context, o *pipeline.Outcome) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, reason = ?, failed_side = ?, message = ?, updated_at = ?
		 WHERE id = ?`,
		string(o.State), string(o.Reason), string(o.FailedSide), pipeline.UserMessage(o.Err()),
		o.FinishedAt.UTC(), o.RunID,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, o.RunID)
	}
	return nil
}

// GetRun returns a run with its transitions in order.
func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	var state, reason string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, state, reason, failed_side, message, created_at, updated_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &state, &reason, &run.FailedSide, &run.Message, &run.CreatedAt, &run.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	run.State = pipeline.State(state)
	run.Reason = pipeline.Reason(reason)

	transitions, err := s.transitions(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Transitions = transitions
	return &run, nil
}

func (s *SQLiteStorage) transitions(ctx context.Context, runID string) ([]pipeline.Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT side, state, at FROM run_transitions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []pipeline.Transition{}
	for rows.Next() {
		var side, state string
		var t pipeline.Transition
		if err := rows.Scan(&side, &state, &t.At); err != nil {
			return nil, err
		}
		t.Side = models.Side(side)
		t.State = pipeline.State(state)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListRuns returns runs newest first, without transitions.
func (s *SQLiteStorage) ListRuns(ctx context.Context, offset, limit int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, state, reason, failed_side, message, created_at, updated_at
		 FROM runs ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var state, reason string
		if err := rows.Scan(&run.ID, &state, &reason, &run.FailedSide, &run.Message, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, err
		}
		run.State = pipeline.State(state)
		run.Reason = pipeline.Reason(reason)
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// CountRuns returns the total number of runs.
func (s *SQLiteStorage) CountRuns(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&count)
	return count, err
}

// Stats counts runs by state and failed runs by reason.
func (s *SQLiteStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByState:  make(map[pipeline.State]int64),
		ByReason: make(map[pipeline.Reason]int64),
	}
	rows, err := s.db.QueryContext(ctx, `SELECT state, reason, COUNT(*) FROM runs GROUP BY state, reason`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var state, reason string
		var n int64
		if err := rows.Scan(&state, &reason, &n); err != nil {
			return nil, err
		}
		stats.Runs += n
		stats.ByState[pipeline.State(state)] += n
		if reason != "" {
			stats.ByReason[pipeline.Reason(reason)] += n
		}
	}
	return stats, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
