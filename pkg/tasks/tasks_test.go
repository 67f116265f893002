package tasks

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/checkupjs/checkup/pkg/engine"
	"github.com/checkupjs/checkup/pkg/testutil"
)

func newProject(t *testing.T) *testutil.Project {
	t.Helper()
	p := testutil.NewProject(t, "foo", "1.2.3")
	p.AddFile("index.js", "const a = 1;\nconst b = 2;\n")
	p.AddFile("lib/util.ts", "export {};\n\n// trailing")
	p.AddFile("README.md", "# foo\n")
	p.WriteSync()
	return p
}

func TestProjectMetaTask(t *testing.T) {
	p := newProject(t)
	cfg := engine.DefaultConfig()
	cfg.Plugins = []string{"checkup-plugin-javascript"}

	task := NewProjectMetaTask(testutil.ContextForProject(p, cfg), "0.9.0")

	result, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := engine.ValidateResult(result); err != nil {
		t.Fatalf("result does not satisfy the contract: %v", err)
	}
	if result.Info.TaskName != "meta/project" {
		t.Errorf("task name = %s, want meta/project", result.Info.TaskName)
	}

	meta, ok := result.Result.(ProjectMeta)
	if !ok {
		t.Fatalf("unexpected payload type %T", result.Result)
	}
	if meta.Project.Name != "foo" || meta.Project.Version != "1.2.3" {
		t.Errorf("unexpected project identity %+v", meta.Project)
	}
	if meta.Project.TotalFiles != 3 {
		t.Errorf("total files = %d, want 3", meta.Project.TotalFiles)
	}
	if meta.CLI.Version != "0.9.0" {
		t.Errorf("cli version = %s", meta.CLI.Version)
	}

	wantHash, _ := ConfigHash(cfg)
	if meta.CLI.ConfigHash != wantHash || len(wantHash) != 64 {
		t.Errorf("config hash = %s, want %s", meta.CLI.ConfigHash, wantHash)
	}
}

func TestConfigHash_ChangesWithConfig(t *testing.T) {
	a, _ := ConfigHash(engine.DefaultConfig())
	cfg := engine.DefaultConfig()
	cfg.Tasks["meta/lines-of-code"] = engine.Off()
	b, _ := ConfigHash(cfg)

	if a == b {
		t.Error("expected different configs to hash differently")
	}
}

func TestReadPackageJSON(t *testing.T) {
	p := newProject(t)
	p.Dependencies["ember-source"] = "^4.0.0"
	p.WriteSync()

	pkg, err := ReadPackageJSON(p.BaseDir)
	if err != nil {
		t.Fatalf("ReadPackageJSON() error = %v", err)
	}
	if pkg.Name != "foo" || pkg.Dependencies["ember-source"] != "^4.0.0" {
		t.Errorf("unexpected package %+v", pkg)
	}

	empty, err := ReadPackageJSON(t.TempDir())
	if err != nil {
		t.Fatalf("ReadPackageJSON() on missing file error = %v", err)
	}
	if empty.Name != "" {
		t.Errorf("expected empty package, got %+v", empty)
	}
}

func TestRepositoryURL(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`"https://github.com/foo/bar"`, "https://github.com/foo/bar"},
		{`{"type": "git", "url": "git+https://github.com/foo/bar.git"}`, "git+https://github.com/foo/bar.git"},
		{`42`, ""},
		{``, ""},
	}

	for _, tt := range tests {
		if got := repositoryURL([]byte(tt.raw)); got != tt.want {
			t.Errorf("repositoryURL(%s) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestLinesOfCodeTask(t *testing.T) {
	p := newProject(t)
	task := NewLinesOfCodeTask(testutil.ContextForProject(p, nil))

	result, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Info.TaskName != "meta/lines-of-code" {
		t.Errorf("task name = %s", result.Info.TaskName)
	}

	want := LinesOfCode{
		Total: 5,
		Extensions: []ExtensionLineCount{
			{Extension: "js", Files: 1, Lines: 2},
			{Extension: "ts", Files: 1, Lines: 3},
		},
	}
	if diff := cmp.Diff(want, result.Result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestLinesOfCodeTask_ExtensionsOption(t *testing.T) {
	p := newProject(t)
	cfg := testutil.ConfigWithTasks(map[string]engine.TaskConfigValue{
		"meta/lines-of-code": engine.Tuple(engine.TaskStateOn, map[string]interface{}{
			"extensions": []interface{}{".md"},
		}),
	})
	task := NewLinesOfCodeTask(testutil.ContextForProject(p, cfg))

	result, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	loc := result.Result.(LinesOfCode)
	if loc.Total != 1 || len(loc.Extensions) != 1 || loc.Extensions[0].Extension != "md" {
		t.Errorf("unexpected result %+v", loc)
	}
}

func TestLinesOfCodeTask_Disabled(t *testing.T) {
	p := newProject(t)
	cfg := testutil.ConfigWithTasks(map[string]engine.TaskConfigValue{
		"meta/lines-of-code": engine.Off(),
	})
	task := NewLinesOfCodeTask(testutil.ContextForProject(p, cfg))

	result, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	loc := result.Result.(LinesOfCode)
	if loc.Total != 0 || len(loc.Extensions) != 0 {
		t.Errorf("expected empty result for disabled task, got %+v", loc)
	}
}
