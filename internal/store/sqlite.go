// Package store — SQLite Store implementation (modernc.org/sqlite,
// pure Go). WAL keeps reads available while the engine writes run
// updates.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/causekit/causekit/pkg/models"

	_ "modernc.org/sqlite"
)

const schemaVersion = 1

// SQLiteStore implements Store with a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and runs
// migrations. The parent directory is created if missing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn when run updates and API reads overlap.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}

	var v int
	if err := db.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return fmt.Errorf("pragma user_version: %w", err)
	}
	if v >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL,
  template_id TEXT NOT NULL DEFAULT '',
  provider_used TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT '',
  request_json TEXT NOT NULL DEFAULT 'null',
  outcome_json TEXT,
  started_at_unix_ms INTEGER NOT NULL,
  completed_at_unix_ms INTEGER,
  duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at_unix_ms DESC);
CREATE INDEX IF NOT EXISTS idx_runs_completed ON runs(completed_at_unix_ms);
`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version=%d;`, schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ── Run Store ───────────────────────────────────────────────

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.AnalysisRun) error {
	reqJSON, outJSON, err := marshalRunPayloads(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs(id, status, template_id, provider_used, error,
		                  request_json, outcome_json, started_at_unix_ms,
		                  completed_at_unix_ms, duration_ms)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.TemplateID, run.ProviderUsed, run.Error,
		reqJSON, outJSON, run.StartedAt.UnixMilli(),
		unixMilliOrNil(run.CompletedAt), run.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.AnalysisRun) error {
	reqJSON, outJSON, err := marshalRunPayloads(run)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status=?, template_id=?, provider_used=?, error=?,
		                 request_json=?, outcome_json=?, started_at_unix_ms=?,
		                 completed_at_unix_ms=?, duration_ms=?
		 WHERE id=?`,
		string(run.Status), run.TemplateID, run.ProviderUsed, run.Error,
		reqJSON, outJSON, run.StartedAt.UnixMilli(),
		unixMilliOrNil(run.CompletedAt), run.DurationMs, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n == 0 {
		return &ErrNotFound{Entity: "run", Key: run.ID}
	}
	return nil
}

const runColumns = `id, status, template_id, provider_used, error,
	request_json, outcome_json, started_at_unix_ms, completed_at_unix_ms, duration_ms`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*models.AnalysisRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Entity: "run", Key: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]models.AnalysisRun, error) {
	q := `SELECT ` + runColumns + ` FROM runs`
	var conds []string
	var args []interface{}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.TemplateID != "" {
		conds = append(conds, "template_id = ?")
		args = append(args, filter.TemplateID)
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q += " ORDER BY started_at_unix_ms DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	return collectRuns(rows)
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return &ErrNotFound{Entity: "run", Key: id}
	}
	return nil
}

func (s *SQLiteStore) ListRunsCompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.AnalysisRun, error) {
	q := `SELECT ` + runColumns + ` FROM runs
	      WHERE completed_at_unix_ms IS NOT NULL AND completed_at_unix_ms < ?
	      ORDER BY completed_at_unix_ms ASC`
	args := []interface{}{cutoff.UnixMilli()}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs before: %w", err)
	}
	defer rows.Close()
	return collectRuns(rows)
}

// ── Row mapping ─────────────────────────────────────────────

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.AnalysisRun, error) {
	var (
		run         models.AnalysisRun
		status      string
		reqJSON     string
		outJSON     sql.NullString
		startedMs   int64
		completedMs sql.NullInt64
	)
	err := row.Scan(&run.ID, &status, &run.TemplateID, &run.ProviderUsed, &run.Error,
		&reqJSON, &outJSON, &startedMs, &completedMs, &run.DurationMs)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)
	run.StartedAt = time.UnixMilli(startedMs).UTC()
	if completedMs.Valid {
		t := time.UnixMilli(completedMs.Int64).UTC()
		run.CompletedAt = &t
	}
	if reqJSON != "" && reqJSON != "null" {
		var req models.AnalysisRequest
		if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
			return nil, fmt.Errorf("unmarshal request: %w", err)
		}
		run.Request = &req
	}
	if outJSON.Valid && outJSON.String != "" && outJSON.String != "null" {
		var out models.Outcome
		if err := json.Unmarshal([]byte(outJSON.String), &out); err != nil {
			return nil, fmt.Errorf("unmarshal outcome: %w", err)
		}
		run.Outcome = &out
	}
	return &run, nil
}

func collectRuns(rows *sql.Rows) ([]models.AnalysisRun, error) {
	var result []models.AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		result = append(result, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return result, nil
}

func marshalRunPayloads(run *models.AnalysisRun) (reqJSON string, outJSON interface{}, err error) {
	req, err := json.Marshal(run.Request)
	if err != nil {
		return "", nil, fmt.Errorf("marshal request: %w", err)
	}
	if run.Outcome == nil {
		return string(req), nil, nil
	}
	out, err := json.Marshal(run.Outcome)
	if err != nil {
		return "", nil, fmt.Errorf("marshal outcome: %w", err)
	}
	return string(req), string(out), nil
}

// unixMilliOrNil maps a nil completion time to a SQL NULL.
func unixMilliOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
