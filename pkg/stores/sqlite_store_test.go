package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/checkupjs/checkup/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: MemoryPath,
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleOutput(runID string) *engine.RunOutput {
	return &engine.RunOutput{
		RunID:  runID,
		Status: engine.RunStatusPartial,
		Flags:  engine.RunFlags{Cwd: "/work/app", Format: "summary"},
		Info: []*engine.TaskResult{
			{
				Info:   engine.TaskInfo{TaskName: "meta/project", TaskDisplayName: "Project", Category: "meta"},
				Result: map[string]interface{}{"name": "app", "version": "1.0.0"},
			},
		},
		Results: []*engine.TaskResult{
			{
				Info:   engine.TaskInfo{TaskName: "javascript/eslint-disables", TaskDisplayName: "Number of eslint-disable Usages", Category: "linting"},
				Result: map[string]interface{}{"total": 4},
			},
		},
		Errors: []engine.TaskError{
			{TaskName: "javascript/broken", Err: errors.New("boom")},
		},
		Actions: []engine.Action{
			{
				Name:             "reduce-eslint-disable-usages",
				Summary:          "Reduce number of eslint-disable usages",
				Details:          "4 usages of eslint-disable",
				Input:            4,
				DefaultThreshold: 2,
				Items:            []string{"Total eslint-disable usages: 4"},
			},
		},
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "history.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	// A second migration is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected an error for an empty path")
	}

	store, err := NewSQLiteStore(Config{Path: MemoryPath})
	if err != nil {
		t.Fatal(err)
	}
	if store.cfg.MaxOpenConns != 1 {
		t.Errorf("in-memory MaxOpenConns = %d, want 1", store.cfg.MaxOpenConns)
	}
	if err := store.HealthCheck(context.Background()); err == nil {
		t.Error("expected health check to fail before Init")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"runs", "task_results", "task_errors", "actions"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestSaveRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	run, err := store.SaveRun(ctx, sampleOutput("run-1"), RunMeta{
		ConfigPath:  "/work/app/.checkuprc",
		StartedAt:   started,
		CompletedAt: started.Add(1500 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if run.DurationMs != 1500 {
		t.Errorf("DurationMs = %d, want 1500", run.DurationMs)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Cwd != "/work/app" || got.Status != engine.RunStatusPartial {
		t.Errorf("unexpected run %+v", got)
	}
	if got.ResultCount != 1 || got.ErrorCount != 1 || got.ActionCount != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", got.ResultCount, got.ErrorCount, got.ActionCount)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set")
	}

	results, err := store.ListTaskResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListTaskResults() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d task results, want 2", len(results))
	}
	if !results[0].Meta || results[0].TaskName != "meta/project" {
		t.Errorf("first result = %+v, want meta/project", results[0])
	}
	if results[1].Meta || results[1].Result != `{"total":4}` {
		t.Errorf("second result = %+v", results[1])
	}

	taskErrors, err := store.ListTaskErrors(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListTaskErrors() error = %v", err)
	}
	if len(taskErrors) != 1 || taskErrors[0].Message != "boom" {
		t.Errorf("unexpected task errors %+v", taskErrors)
	}

	actions, err := store.ListActions(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListActions() error = %v", err)
	}
	want := []*ActionRecord{{
		ID:               1,
		RunID:            "run-1",
		Name:             "reduce-eslint-disable-usages",
		Summary:          "Reduce number of eslint-disable usages",
		Details:          "4 usages of eslint-disable",
		Input:            4,
		DefaultThreshold: 2,
		Items:            []string{"Total eslint-disable usages: 4"},
	}}
	if diff := cmp.Diff(want, actions); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveRun_Defaults(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	out := &engine.RunOutput{Flags: engine.RunFlags{Cwd: "/tmp/x"}}
	run, err := store.SaveRun(ctx, out, RunMeta{})
	if err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if run.ID == "" {
		t.Error("expected a generated run ID")
	}
	if run.Status != engine.RunStatusSucceeded {
		t.Errorf("Status = %s, want succeeded", run.Status)
	}
	if run.CompletedAt != nil {
		t.Error("expected no completion time")
	}

	if _, err := store.SaveRun(ctx, nil, RunMeta{}); err == nil {
		t.Error("expected an error for a nil output")
	}
}

func TestSaveRun_DuplicateIDRollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.SaveRun(ctx, sampleOutput("dup"), RunMeta{}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SaveRun(ctx, sampleOutput("dup"), RunMeta{}); err == nil {
		t.Fatal("expected an error for a duplicate run ID")
	}

	actions, err := store.ListActions(ctx, "dup")
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 {
		t.Errorf("got %d actions, want 1", len(actions))
	}
}

func TestRunQueries(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		out := sampleOutput(id)
		out.Actions[0].Input = float64(i + 3)
		if _, err := store.SaveRun(ctx, out, RunMeta{StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("SaveRun(%s) error = %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	ids := make([]string, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"c", "b", "a"}, ids); diff != "" {
		t.Errorf("run order mismatch (-want +got):\n%s", diff)
	}

	latest, err := store.LatestRun(ctx, "/work/app")
	if err != nil {
		t.Fatalf("LatestRun() error = %v", err)
	}
	if latest.ID != "c" {
		t.Errorf("LatestRun() = %s, want c", latest.ID)
	}
	if _, err := store.LatestRun(ctx, "/elsewhere"); err == nil {
		t.Error("expected an error for a directory with no runs")
	}

	points, err := store.ActionHistory(ctx, "reduce-eslint-disable-usages", 2)
	if err != nil {
		t.Fatalf("ActionHistory() error = %v", err)
	}
	inputs := []float64{}
	for _, p := range points {
		inputs = append(inputs, p.Input)
	}
	if diff := cmp.Diff([]float64{5, 4}, inputs); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteAndPruneRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if _, err := store.SaveRun(ctx, sampleOutput(id), RunMeta{StartedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.DeleteRun(ctx, "b"); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}
	if err := store.DeleteRun(ctx, "b"); err == nil {
		t.Error("expected an error deleting a missing run")
	}

	results, err := store.ListTaskResults(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("deleted run still has %d task results", len(results))
	}

	removed, err := store.PruneRuns(ctx, 1)
	if err != nil {
		t.Fatalf("PruneRuns() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("PruneRuns() removed %d, want 1", removed)
	}
	if _, err := store.GetRun(ctx, "a"); err == nil {
		t.Error("expected run a to be pruned")
	}
	if _, err := store.GetRun(ctx, "c"); err != nil {
		t.Errorf("newest run was pruned: %v", err)
	}

	if _, err := store.PruneRuns(ctx, -1); err == nil {
		t.Error("expected an error for a negative keep")
	}
}
