//go:build !mips64 && !mips64le && !ppc64 && !s390x

package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO required)
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    name TEXT,
    flow_id TEXT,
    flow_name TEXT,
    deployment_id TEXT,
    deployment_name TEXT,
    state_type TEXT,
    state_name TEXT,
    start_time INTEGER,
    expected_start_time INTEGER,
    total_run_time REAL DEFAULT 0,
    tags TEXT,
    created INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_effective ON runs(COALESCE(start_time, expected_start_time));
CREATE INDEX IF NOT EXISTS idx_runs_flow ON runs(flow_id);
CREATE INDEX IF NOT EXISTS idx_runs_deployment ON runs(deployment_id);
`

const runColumns = `id, name, flow_id, flow_name, deployment_id, deployment_name,
	state_type, state_name, start_time, expected_start_time, total_run_time, tags, created`

// SQLiteStore implements Store using SQLite with WAL mode.
type SQLiteStore struct {
	db      *sql.DB
	maxRows int
	pruneMu sync.Mutex
	logger  *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// It enables WAL mode for better concurrent performance.
func NewSQLiteStore(path string, maxRows int, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// SQLite works best with single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SQLiteStore{
		db:      db,
		maxRows: maxRows,
		logger:  logger,
	}, nil
}

// Insert creates or replaces a run.
func (s *SQLiteStore) Insert(run *Run) error {
	tags, err := json.Marshal(run.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	_, err = s.db.Exec(`INSERT OR REPLACE INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.FlowID, run.FlowName, run.DeploymentID, run.DeploymentName,
		string(run.StateType), run.StateName, timeToMs(run.StartTime), timeToMs(run.ExpectedStartTime),
		run.TotalRunTime, string(tags), run.Created,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	// Trigger pruning check (best effort, non-blocking)
	go s.maybePrune()

	return nil
}

// GetByID retrieves a single run.
func (s *SQLiteStore) GetByID(id string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List retrieves runs with filtering.
func (s *SQLiteStore) List(opts ListOptions) ([]Run, error) {
	where, args := whereClause(opts)
	query := `SELECT ` + runColumns + ` FROM runs` + where
	query += " ORDER BY " + effectiveTime + " IS NULL, " + effectiveTime + " DESC, created DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else if opts.Offset > 0 {
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// CountMatching returns the number of runs passing the filters.
func (s *SQLiteStore) CountMatching(opts ListOptions) (int, error) {
	where, args := whereClause(opts)
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return count, nil
}

const effectiveTime = "COALESCE(start_time, expected_start_time)"

func whereClause(opts ListOptions) (string, []any) {
	where := " WHERE 1=1"
	var args []any

	if opts.FlowID != "" {
		where += " AND flow_id = ?"
		args = append(args, opts.FlowID)
	}
	if opts.DeploymentID != "" {
		where += " AND deployment_id = ?"
		args = append(args, opts.DeploymentID)
	}
	if opts.StateType != "" {
		where += " AND state_type = ?"
		args = append(args, string(opts.StateType))
	}

	switch {
	case opts.Untimed:
		where += " AND " + effectiveTime + " IS NULL"
	default:
		if !opts.Start.IsZero() {
			where += " AND " + effectiveTime + " >= ?"
			args = append(args, opts.Start.UnixMilli())
		}
		if !opts.End.IsZero() {
			where += " AND " + effectiveTime + " < ?"
			args = append(args, opts.End.UnixMilli())
		}
	}
	return where, args
}

// Count returns the number of stored runs.
func (s *SQLiteStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// maybePrune deletes the oldest runs once the table exceeds maxRows.
func (s *SQLiteStore) maybePrune() {
	s.pruneMu.Lock()
	defer s.pruneMu.Unlock()

	count, err := s.Count()
	if err != nil {
		s.logger.Error("prune count query failed", "err", err)
		return
	}
	if count <= s.maxRows {
		return
	}

	toDelete := count - s.maxRows
	const batchSize = 500
	if toDelete > batchSize {
		toDelete = batchSize
	}

	_, err = s.db.Exec(`
		DELETE FROM runs WHERE id IN (
			SELECT id FROM runs ORDER BY created ASC LIMIT ?
		)
	`, toDelete)
	if err != nil {
		s.logger.Error("prune failed", "err", err)
	} else {
		s.logger.Debug("pruned old runs", "deleted", toDelete)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var name, flowID, flowName, deploymentID, deploymentName, stateType, stateName, tags sql.NullString
	var startTime, expectedStartTime sql.NullInt64

	err := row.Scan(
		&run.ID, &name, &flowID, &flowName, &deploymentID, &deploymentName,
		&stateType, &stateName, &startTime, &expectedStartTime, &run.TotalRunTime, &tags, &run.Created,
	)
	if err != nil {
		return nil, err
	}

	run.Name = name.String
	run.FlowID = flowID.String
	run.FlowName = flowName.String
	run.DeploymentID = deploymentID.String
	run.DeploymentName = deploymentName.String
	run.StateType = StateType(stateType.String)
	run.StateName = stateName.String
	run.StartTime = msToTime(startTime)
	run.ExpectedStartTime = msToTime(expectedStartTime)

	if tags.Valid && tags.String != "" && tags.String != "null" {
		if err := json.Unmarshal([]byte(tags.String), &run.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}

	return &run, nil
}

func timeToMs(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func msToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
