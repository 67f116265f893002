package stores

import (
	"context"
	"database/sql"
	"time"

	"github.com/checkupjs/checkup/pkg/engine"
)

// Run is one recorded checkup run.
type Run struct {
	ID          string           `json:"id"`
	Cwd         string           `json:"cwd"`
	ConfigPath  string           `json:"config_path"`
	Status      engine.RunStatus `json:"status"`
	Flags       string           `json:"flags"` // JSON blob of engine.RunFlags
	ResultCount int              `json:"result_count"`
	ErrorCount  int              `json:"error_count"`
	ActionCount int              `json:"action_count"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	DurationMs  int64            `json:"duration_ms"`
	CreatedAt   time.Time        `json:"created_at"`
}

// TaskResultRecord is a stored task result.
type TaskResultRecord struct {
	ID          int64  `json:"id"`
	RunID       string `json:"run_id"`
	TaskName    string `json:"task_name"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Group       string `json:"group"`
	Meta        bool   `json:"meta"`   // produced by a meta task
	Result      string `json:"result"` // JSON blob
}

// TaskErrorRecord is a stored task failure.
type TaskErrorRecord struct {
	ID       int64  `json:"id"`
	RunID    string `json:"run_id"`
	TaskName string `json:"task_name"`
	Message  string `json:"message"`
}

// ActionRecord is a stored action.
type ActionRecord struct {
	ID               int64    `json:"id"`
	RunID            string   `json:"run_id"`
	Name             string   `json:"name"`
	Summary          string   `json:"summary"`
	Details          string   `json:"details"`
	Input            float64  `json:"input"`
	DefaultThreshold float64  `json:"default_threshold"`
	Items            []string `json:"items"`
}

// ActionPoint is one run's value for an action, used to follow a metric
// across runs.
type ActionPoint struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Input     float64   `json:"input"`
}

// RunMeta describes a run beyond what engine.RunOutput carries.
type RunMeta struct {
	Cwd         string
	ConfigPath  string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Store defines the interface for run history persistence.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Run operations
	SaveRun(ctx context.Context, out *engine.RunOutput, meta RunMeta) (*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	LatestRun(ctx context.Context, cwd string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, keep int) (int64, error)

	// Run contents
	ListTaskResults(ctx context.Context, runID string) ([]*TaskResultRecord, error)
	ListTaskErrors(ctx context.Context, runID string) ([]*TaskErrorRecord, error)
	ListActions(ctx context.Context, runID string) ([]*ActionRecord, error)
	ActionHistory(ctx context.Context, name string, limit int) ([]*ActionPoint, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
