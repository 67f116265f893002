package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/checkupjs/checkup/pkg/engine"
	"github.com/checkupjs/checkup/pkg/telemetry"
	"github.com/checkupjs/checkup/pkg/testutil"
)

var testInfo = BuildInfo{Version: "1.2.3", Commit: "abc", BuildDate: "today", LogLevel: "disabled"}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(testInfo)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newProject(t *testing.T) string {
	t.Helper()
	project := testutil.NewProject(t, "cli-fixture", "2.0.0")
	project.AddFile(".checkuprc", `{"excludePaths": [], "plugins": ["javascript"], "tasks": {}}`).
		AddFile("index.js", "// eslint-disable\n// eslint-disable-next-line\n/* eslint-disable */\n")
	project.WriteSync()
	return project.BaseDir
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "checkup 1.2.3\n") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestConfigInitCommand(t *testing.T) {
	dir := t.TempDir()

	if _, err := execute(t, "config", "init", dir, "--plugin", "javascript"); err != nil {
		t.Fatalf("config init error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, ".checkuprc"))
	if err != nil {
		t.Fatal(err)
	}
	var cfg engine.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Plugins) != 1 || cfg.Plugins[0] != "checkup-plugin-javascript" {
		t.Errorf("plugins = %v", cfg.Plugins)
	}

	_, err = execute(t, "config", "init", dir)
	if !engine.IsKind(err, engine.ErrorKindConfigFileExists) {
		t.Errorf("second init error = %v, want ConfigFileExists", err)
	}
}

func TestRunCommand_JSON(t *testing.T) {
	dir := newProject(t)

	for _, args := range [][]string{
		{"--cwd", dir, "--format", "json"},
		{"run", "--cwd", dir, "--format", "json"},
	} {
		out, err := execute(t, args...)
		if err != nil {
			t.Fatalf("%v: error = %v", args, err)
		}

		var got struct {
			Status  string          `json:"status"`
			Actions []engine.Action `json:"actions"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("%v: output is not JSON: %v\n%s", args, err, out)
		}
		if got.Status != "succeeded" {
			t.Errorf("%v: status = %s", args, got.Status)
		}
		if len(got.Actions) != 1 || got.Actions[0].Input != 3 {
			t.Errorf("%v: actions = %+v", args, got.Actions)
		}
	}
}

func TestRunCommand_ListTasks(t *testing.T) {
	dir := newProject(t)

	out, err := execute(t, "-d", dir, "-l")
	if err != nil {
		t.Fatalf("error = %v", err)
	}
	want := "meta/lines-of-code\njavascript/eslint-disables\n"
	if out != want {
		t.Errorf("output = %q, want %q", out, want)
	}
}

func TestRunCommand_OutputFileAndHistory(t *testing.T) {
	dir := newProject(t)
	history := filepath.Join(t.TempDir(), "history.db")
	metrics := filepath.Join(t.TempDir(), "checkup.prom")

	_, err := execute(t, "run", "-d", dir, "-f", "yaml", "-o", "reports/out.yaml",
		"--history", history, "--metrics", metrics)
	if err != nil {
		t.Fatalf("error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "reports", "out.yaml"))
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "runId: ") {
		t.Errorf("unexpected report %q", data)
	}
	if _, err := os.Stat(history); err != nil {
		t.Errorf("history database not created: %v", err)
	}
	metricsData, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("metrics not written: %v", err)
	}
	if !strings.Contains(string(metricsData), "checkup_") {
		t.Errorf("metrics file has no checkup metrics")
	}
}

func TestRunCommand_Errors(t *testing.T) {
	dir := newProject(t)

	tests := []struct {
		name string
		args []string
		kind engine.ErrorKind
	}{
		{"output file without format", []string{"-d", dir, "-o", "out.json"}, engine.ErrorKindInvalidFlags},
		{"unknown format", []string{"-d", dir, "-f", "sarif"}, engine.ErrorKindInvalidFlags},
		{"unknown trace exporter", []string{"-d", dir, "--trace", "jaeger"}, engine.ErrorKindInvalidFlags},
		{"unknown flag", []string{"--bogus"}, engine.ErrorKindInvalidFlags},
		{"unknown task", []string{"-d", dir, "-t", "nope/task", "-f", "json"}, engine.ErrorKindTasksNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if !engine.IsKind(err, tt.kind) {
				t.Errorf("error = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestSubscribeWatchEvents(t *testing.T) {
	events := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})
	var out bytes.Buffer
	reruns := 0
	subscribeWatchEvents(events, &out, func() { reruns++ })

	events.PublishConfigReloaded("/p/.checkuprc")
	events.PublishRulesReloaded(2)
	events.PublishTaskStarted("run-1", "javascript/eslint-disables")
	events.PublishRunCompleted("run-1", "succeeded", 0)

	if reruns != 2 {
		t.Errorf("reruns = %d, want 2", reruns)
	}
	want := []string{
		"Config /p/.checkuprc reloaded",
		"2 action rules reloaded",
		"Run run-1 completed with status: succeeded",
	}
	if diff := cmp.Diff(want, strings.Split(strings.TrimSpace(out.String()), "\n")); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscribeWatchEvents_Disabled(t *testing.T) {
	var out bytes.Buffer
	reruns := 0
	subscribeWatchEvents(nil, &out, func() { reruns++ })

	events := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: false})
	subscribeWatchEvents(events, &out, func() { reruns++ })
	events.PublishConfigReloaded("/p/.checkuprc")

	if reruns != 0 || out.Len() != 0 {
		t.Errorf("expected no reruns or output, got %d reruns and %q", reruns, out.String())
	}
}
