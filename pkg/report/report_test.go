package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/checkupjs/checkup/pkg/engine"
	"github.com/checkupjs/checkup/pkg/tasks"
)

func sampleOutput() *engine.RunOutput {
	return &engine.RunOutput{
		RunID:  "run-1",
		Status: engine.RunStatusPartial,
		Flags:  engine.RunFlags{Cwd: "/work/app", Format: engine.OutputFormatSummary},
		Info: []*engine.TaskResult{
			{
				Info: engine.TaskInfo{TaskName: "meta/project", TaskDisplayName: "Project", Category: "meta"},
				Result: tasks.ProjectMeta{
					Project: tasks.ProjectInfo{Name: "app", Version: "1.2.3", TotalFiles: 2},
				},
			},
		},
		Results: []*engine.TaskResult{
			{
				Info: engine.TaskInfo{TaskName: "meta/lines-of-code", TaskDisplayName: "Lines of Code", Category: "metrics"},
				Result: tasks.LinesOfCode{
					Total:      12,
					Extensions: []tasks.ExtensionLineCount{{Extension: "js", Files: 2, Lines: 12}},
				},
			},
			{
				Info:   engine.TaskInfo{TaskName: "javascript/eslint-disables", TaskDisplayName: "Number of eslint-disable Usages", Category: "linting"},
				Result: map[string]interface{}{"total": 4},
			},
		},
		Errors: []engine.TaskError{{TaskName: "javascript/broken", Err: errors.New("boom")}},
		Actions: []engine.Action{{
			Name:             "reduce-eslint-disable-usages",
			Summary:          "Reduce number of eslint-disable usages",
			Details:          "4 usages of eslint-disable",
			Input:            4,
			DefaultThreshold: 2,
			Items:            []string{"Total eslint-disable usages: 4"},
		}},
	}
}

func TestSummaryReporter(t *testing.T) {
	registry := engine.NewReporterRegistry()
	RegisterBuiltinReporters(registry)

	var buf bytes.Buffer
	if err := NewSummaryReporter(registry, true).Report(&buf, sampleOutput()); err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	want := `Checkup report generated for app v1.2.3
This project has 2 files.

Metrics
  Lines of Code
    Total: 12 lines
    js: 12 lines in 2 files

Linting
  Number of eslint-disable Usages
    total: 4

Errors
  javascript/broken: boom

Actions
  - Reduce number of eslint-disable usages (4 usages of eslint-disable)
      Total eslint-disable usages: 4

Status: partial
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestSummaryReporter_TaskReporterError(t *testing.T) {
	registry := engine.NewReporterRegistry()
	registry.RegisterTaskReporter("javascript/eslint-disables", func(w io.Writer, _ *engine.TaskResult) error {
		return fmt.Errorf("cannot render")
	})

	err := NewSummaryReporter(registry, true).Report(io.Discard, sampleOutput())
	if err == nil || !strings.Contains(err.Error(), "javascript/eslint-disables") {
		t.Errorf("Report() error = %v, want one naming the task", err)
	}
}

func TestSummaryReporter_NoProject(t *testing.T) {
	var buf bytes.Buffer
	if err := NewSummaryReporter(nil, true).Report(&buf, &engine.RunOutput{}); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != "Checkup report\n\n" {
		t.Errorf("summary = %q", got)
	}
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONReporter{}).Report(&buf, sampleOutput()); err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	var decoded struct {
		RunID   string              `json:"runId"`
		Status  string              `json:"status"`
		RawErrs []map[string]string `json:"errors"`
		Actions []engine.Action     `json:"actions"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.RunID != "run-1" || decoded.Status != "partial" {
		t.Errorf("unexpected header %+v", decoded)
	}
	if diff := cmp.Diff([]map[string]string{{"taskName": "javascript/broken", "error": "boom"}}, decoded.RawErrs); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(sampleOutput().Actions, decoded.Actions); diff != "" {
		t.Errorf("actions mismatch (-want +got):\n%s", diff)
	}
}

func TestStructuredReporters_EmptyLists(t *testing.T) {
	out := &engine.RunOutput{RunID: "r", Status: engine.RunStatusSucceeded}

	var js bytes.Buffer
	if err := (JSONReporter{}).Report(&js, out); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"info": []`, `"results": []`, `"errors": []`, `"actions": []`} {
		if !strings.Contains(js.String(), key) {
			t.Errorf("JSON report missing %s:\n%s", key, js.String())
		}
	}

	var ym bytes.Buffer
	if err := (YAMLReporter{}).Report(&ym, out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ym.String(), "actions: []") {
		t.Errorf("YAML report missing empty actions:\n%s", ym.String())
	}
}

func TestYAMLReporter(t *testing.T) {
	var buf bytes.Buffer
	if err := (YAMLReporter{}).Report(&buf, sampleOutput()); err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if decoded["runId"] != "run-1" {
		t.Errorf("runId = %v", decoded["runId"])
	}
	errs, ok := decoded["errors"].([]interface{})
	if !ok || len(errs) != 1 {
		t.Fatalf("errors = %#v", decoded["errors"])
	}
	if first := errs[0].(map[string]interface{}); first["error"] != "boom" {
		t.Errorf("error entry = %v", first)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		format  engine.OutputFormat
		want    Reporter
		wantErr bool
	}{
		{format: "", want: &SummaryReporter{}},
		{format: engine.OutputFormatSummary, want: &SummaryReporter{}},
		{format: engine.OutputFormatJSON, want: JSONReporter{}},
		{format: engine.OutputFormatYAML, want: YAMLReporter{}},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			got, err := New(tt.format, Options{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if fmt.Sprintf("%T", got) != fmt.Sprintf("%T", tt.want) {
				t.Errorf("New() = %T, want %T", got, tt.want)
			}
		})
	}
}

func TestWrite_OutputFile(t *testing.T) {
	dir := t.TempDir()
	out := sampleOutput()
	out.Flags = engine.RunFlags{Cwd: dir, Format: engine.OutputFormatJSON, OutputFile: "reports/checkup.json"}

	var stdout bytes.Buffer
	path, err := Write(&stdout, out, Options{})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if want := filepath.Join(dir, "reports", "checkup.json"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
	if stdout.Len() != 0 {
		t.Error("expected nothing on stdout")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Error("report file is not valid JSON")
	}
}

func TestWrite_Stdout(t *testing.T) {
	out := sampleOutput()
	out.Flags.Format = engine.OutputFormatYAML

	var stdout bytes.Buffer
	path, err := Write(&stdout, out, Options{})
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if !strings.HasPrefix(stdout.String(), "runId: run-1") {
		t.Errorf("unexpected YAML head:\n%s", stdout.String())
	}
}
