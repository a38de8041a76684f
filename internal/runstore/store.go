// Package runstore persists run history: one row per generation or revision
// run, one row per compile attempt, and the slide-to-page map of the last
// successful build.
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSuccess   RunStatus = "success"
	StatusExhausted RunStatus = "exhausted"
	StatusFatal     RunStatus = "fatal"
)

// Run is one generation or revision run.
type Run struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"` // generate or revise
	Status       RunStatus `json:"status"`
	Engine       string    `json:"engine,omitempty"`
	Language     string    `json:"language,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	Message      string    `json:"message,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// Attempt is one compile attempt within a run.
type Attempt struct {
	RunID     string        `json:"run_id"`
	Number    int           `json:"number"`
	Success   bool          `json:"success"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Store is a SQLite-backed run history.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates the store at dbPath, ":memory:" for tests.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		engine TEXT,
		language TEXT,
		artifact_path TEXT,
		message TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		success INTEGER NOT NULL,
		error_kind TEXT,
		detail TEXT,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON attempts(run_id);
	CREATE TABLE IF NOT EXISTS page_map (
		run_id TEXT NOT NULL,
		slide_number INTEGER NOT NULL,
		page INTEGER NOT NULL,
		PRIMARY KEY (run_id, slide_number)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateRun records a run starting now with status running.
func (s *Store) CreateRun(ctx context.Context, id, kind, engine, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (id, kind, status, engine, language, started_at) VALUES (?, ?, ?, ?, ?, ?)",
		id, kind, StatusRunning, engine, language, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, status RunStatus, artifactPath, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET status = ?, artifact_path = ?, message = ?, finished_at = ? WHERE id = ?",
		status, artifactPath, message, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAttempt appends one compile attempt to a run.
func (s *Store) RecordAttempt(ctx context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO attempts (run_id, number, success, error_kind, detail, duration_ms) VALUES (?, ?, ?, ?, ?, ?)",
		a.RunID, a.Number, boolToInt(a.Success), a.ErrorKind, a.Detail, a.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// SavePageMap replaces the slide-to-page rows for a run.
func (s *Store) SavePageMap(ctx context.Context, runID string, pages map[int]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM page_map WHERE run_id = ?", runID); err != nil {
		return fmt.Errorf("clear page map: %w", err)
	}
	for slide, page := range pages {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO page_map (run_id, slide_number, page) VALUES (?, ?, ?)",
			runID, slide, page,
		); err != nil {
			return fmt.Errorf("insert page map row: %w", err)
		}
	}
	return tx.Commit()
}

// GetRun returns a run with its attempts.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, []Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, kind, status, engine, language, artifact_path, message, started_at, finished_at FROM runs WHERE id = ?",
		id,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, number, success, error_kind, detail, duration_ms FROM attempts WHERE run_id = ? ORDER BY number",
		id,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var success int
		var durationMS int64
		if err := rows.Scan(&a.RunID, &a.Number, &success, &a.ErrorKind, &a.Detail, &durationMS); err != nil {
			return nil, nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.Success = success != 0
		a.Duration = time.Duration(durationMS) * time.Millisecond
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return run, attempts, nil
}

// GetPageMap returns the slide-to-page rows for a run. Missing rows are not
// an error: callers fall back to the positional rule.
func (s *Store) GetPageMap(ctx context.Context, runID string) (map[int]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT slide_number, page FROM page_map WHERE run_id = ?", runID)
	if err != nil {
		return nil, fmt.Errorf("query page map: %w", err)
	}
	defer rows.Close()

	pages := make(map[int]int)
	for rows.Next() {
		var slide, page int
		if err := rows.Scan(&slide, &page); err != nil {
			return nil, fmt.Errorf("scan page map row: %w", err)
		}
		pages[slide] = page
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page map: %w", err)
	}
	return pages, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, status, engine, language, artifact_path, message, started_at, finished_at FROM runs ORDER BY started_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var r Run
	var engine, language, artifact, message sql.NullString
	var startedAt int64
	var finishedAt sql.NullInt64
	err := row.Scan(&r.ID, &r.Kind, &r.Status, &engine, &language, &artifact, &message, &startedAt, &finishedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	r.Engine = engine.String
	r.Language = language.String
	r.ArtifactPath = artifact.String
	r.Message = message.String
	r.StartedAt = time.Unix(startedAt, 0)
	if finishedAt.Valid {
		r.FinishedAt = time.Unix(finishedAt.Int64, 0)
	}
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
