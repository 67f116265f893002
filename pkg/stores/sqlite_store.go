package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"

	"github.com/checkupjs/checkup/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Init opens the database connection. File databases use WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if s.path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// SaveRun records a run and everything it produced in one transaction.
// Meta task results are stored alongside plugin results with Meta set.
func (s *SQLiteStore) SaveRun(ctx context.Context, out *engine.RunOutput, meta RunMeta) (*Run, error) {
	if out == nil {
		return nil, fmt.Errorf("run output is required")
	}

	flags, err := json.Marshal(out.Flags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run flags: %w", err)
	}

	status := out.Status
	if status == "" {
		status = engine.StatusFor(len(out.Results), len(out.Errors))
	}

	now := time.Now().UTC()
	startedAt := meta.StartedAt.UTC()
	if meta.StartedAt.IsZero() {
		startedAt = now
	}
	run := &Run{
		ID:          out.RunID,
		Cwd:         meta.Cwd,
		ConfigPath:  meta.ConfigPath,
		Status:      status,
		Flags:       string(flags),
		ResultCount: len(out.Results),
		ErrorCount:  len(out.Errors),
		ActionCount: len(out.Actions),
		StartedAt:   startedAt,
		CreatedAt:   now,
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Cwd == "" {
		run.Cwd = out.Flags.Cwd
	}
	if !meta.CompletedAt.IsZero() {
		completedAt := meta.CompletedAt.UTC()
		run.CompletedAt = &completedAt
		run.DurationMs = completedAt.Sub(startedAt).Milliseconds()
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, cwd, config_path, status, flags, result_count, error_count,
			action_count, started_at, completed_at, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Cwd,
		run.ConfigPath,
		run.Status,
		run.Flags,
		run.ResultCount,
		run.ErrorCount,
		run.ActionCount,
		run.StartedAt,
		run.CompletedAt,
		run.DurationMs,
		run.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	if err := insertTaskResults(ctx, tx, run.ID, out.Info, true); err != nil {
		return nil, err
	}
	if err := insertTaskResults(ctx, tx, run.ID, out.Results, false); err != nil {
		return nil, err
	}

	for _, taskErr := range out.Errors {
		msg := ""
		if taskErr.Err != nil {
			msg = taskErr.Err.Error()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO task_errors (run_id, task_name, message) VALUES (?, ?, ?)`,
			run.ID, taskErr.TaskName, msg,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create task error: %w", err)
		}
	}

	for _, action := range out.Actions {
		items, err := json.Marshal(action.Items)
		if err != nil {
			return nil, fmt.Errorf("failed to encode action items: %w", err)
		}
		if action.Items == nil {
			items = []byte("[]")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO actions (run_id, name, summary, details, input, default_threshold, items)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, run.ID, action.Name, action.Summary, action.Details, action.Input, action.DefaultThreshold, string(items))
		if err != nil {
			return nil, fmt.Errorf("failed to create action: %w", err)
		}
	}

	if err := s.CommitTx(tx); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}

	return run, nil
}

func insertTaskResults(ctx context.Context, tx *sql.Tx, runID string, results []*engine.TaskResult, meta bool) error {
	for _, result := range results {
		if result == nil {
			continue
		}
		payload, err := json.Marshal(result.Result)
		if err != nil {
			return fmt.Errorf("failed to encode result of %s: %w", result.Info.TaskName, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_results (run_id, task_name, display_name, category, task_group, meta, result)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			runID,
			result.Info.TaskName,
			result.Info.TaskDisplayName,
			result.Info.Category,
			result.Info.Group,
			meta,
			string(payload),
		)
		if err != nil {
			return fmt.Errorf("failed to create task result: %w", err)
		}
	}
	return nil
}

const runColumns = `id, cwd, config_path, status, flags, result_count, error_count,
	action_count, started_at, completed_at, duration_ms, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	err := row.Scan(
		&run.ID,
		&run.Cwd,
		&run.ConfigPath,
		&run.Status,
		&run.Flags,
		&run.ResultCount,
		&run.ErrorCount,
		&run.ActionCount,
		&run.StartedAt,
		&run.CompletedAt,
		&run.DurationMs,
		&run.CreatedAt,
	)
	return run, err
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// LatestRun returns the most recent run recorded for cwd.
func (s *SQLiteStore) LatestRun(ctx context.Context, cwd string) (*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE cwd = ? ORDER BY started_at DESC, created_at DESC LIMIT 1`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, cwd))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no runs recorded for %s", cwd)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	return run, nil
}

// ListRuns lists runs with pagination, newest first
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, created_at DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// DeleteRun deletes a run and, through cascading keys, its contents
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// PruneRuns deletes all but the newest keep runs and returns how many were
// removed.
func (s *SQLiteStore) PruneRuns(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative: %d", keep)
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (
			SELECT id FROM runs ORDER BY started_at DESC, created_at DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// ListTaskResults lists a run's task results in insertion order, meta
// results first.
func (s *SQLiteStore) ListTaskResults(ctx context.Context, runID string) ([]*TaskResultRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, task_name, display_name, category, task_group, meta, result
		FROM task_results
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task results: %w", err)
	}
	defer rows.Close()

	records := []*TaskResultRecord{}
	for rows.Next() {
		r := &TaskResultRecord{}
		if err := rows.Scan(&r.ID, &r.RunID, &r.TaskName, &r.DisplayName, &r.Category, &r.Group, &r.Meta, &r.Result); err != nil {
			return nil, fmt.Errorf("failed to scan task result: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task results: %w", err)
	}

	return records, nil
}

// ListTaskErrors lists a run's task failures.
func (s *SQLiteStore) ListTaskErrors(ctx context.Context, runID string) ([]*TaskErrorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, task_name, message FROM task_errors WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task errors: %w", err)
	}
	defer rows.Close()

	records := []*TaskErrorRecord{}
	for rows.Next() {
		r := &TaskErrorRecord{}
		if err := rows.Scan(&r.ID, &r.RunID, &r.TaskName, &r.Message); err != nil {
			return nil, fmt.Errorf("failed to scan task error: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task errors: %w", err)
	}

	return records, nil
}

// ListActions lists a run's actions.
func (s *SQLiteStore) ListActions(ctx context.Context, runID string) ([]*ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, name, summary, details, input, default_threshold, items
		FROM actions
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	records := []*ActionRecord{}
	for rows.Next() {
		r := &ActionRecord{}
		var items string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Name, &r.Summary, &r.Details, &r.Input, &r.DefaultThreshold, &items); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		if err := json.Unmarshal([]byte(items), &r.Items); err != nil {
			return nil, fmt.Errorf("failed to decode action items: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actions: %w", err)
	}

	return records, nil
}

// ActionHistory returns the input of the named action over the most recent
// limit runs that produced it, newest first.
func (s *SQLiteStore) ActionHistory(ctx context.Context, name string, limit int) ([]*ActionPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.started_at, a.input
		FROM actions a
		JOIN runs r ON r.id = a.run_id
		WHERE a.name = ?
		ORDER BY r.started_at DESC, a.id DESC
		LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query action history: %w", err)
	}
	defer rows.Close()

	points := []*ActionPoint{}
	for rows.Next() {
		p := &ActionPoint{}
		if err := rows.Scan(&p.RunID, &p.StartedAt, &p.Input); err != nil {
			return nil, fmt.Errorf("failed to scan action history: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action history: %w", err)
	}

	return points, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

var _ Store = (*SQLiteStore)(nil)
