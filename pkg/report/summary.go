package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gookit/color"

	"github.com/checkupjs/checkup/pkg/engine"
	"github.com/checkupjs/checkup/pkg/tasks"
)

const (
	projectTaskName     = tasks.MetaPluginName + "/project"
	linesOfCodeTaskName = tasks.MetaPluginName + "/lines-of-code"
)

var (
	bold   = color.New(color.OpBold)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

// SummaryReporter writes a human-readable digest of a run. Results are
// grouped by category in the order categories first appear; results with a
// registered task reporter are rendered by it.
type SummaryReporter struct {
	tasks   *engine.ReporterRegistry
	noColor bool
}

// NewSummaryReporter creates a summary reporter. A nil registry renders
// every result with the generic renderer.
func NewSummaryReporter(taskReporters *engine.ReporterRegistry, noColor bool) *SummaryReporter {
	if taskReporters == nil {
		taskReporters = engine.NewReporterRegistry()
	}
	return &SummaryReporter{tasks: taskReporters, noColor: noColor}
}

// Report implements Reporter.
func (r *SummaryReporter) Report(w io.Writer, out *engine.RunOutput) error {
	var buf bytes.Buffer

	r.writeHeader(&buf, out)

	for _, group := range groupByCategory(out.Results) {
		fmt.Fprintln(&buf, bold.Sprint(categoryTitle(group.category)))
		for _, result := range group.results {
			if err := r.writeResult(&buf, result); err != nil {
				return err
			}
		}
		fmt.Fprintln(&buf)
	}

	if len(out.Errors) > 0 {
		fmt.Fprintln(&buf, red.Sprint(bold.Sprint("Errors")))
		for _, taskErr := range out.Errors {
			msg := ""
			if taskErr.Err != nil {
				msg = taskErr.Err.Error()
			}
			fmt.Fprintf(&buf, "  %s: %s\n", taskErr.TaskName, msg)
		}
		fmt.Fprintln(&buf)
	}

	if len(out.Actions) > 0 {
		fmt.Fprintln(&buf, yellow.Sprint(bold.Sprint("Actions")))
		for _, action := range out.Actions {
			line := "  - " + action.Summary
			if action.Details != "" {
				line += " (" + action.Details + ")"
			}
			fmt.Fprintln(&buf, line)
			for _, item := range action.Items {
				fmt.Fprintf(&buf, "      %s\n", item)
			}
		}
		fmt.Fprintln(&buf)
	}

	if out.Status != "" {
		fmt.Fprintf(&buf, "Status: %s\n", out.Status)
	}

	text := buf.String()
	if r.noColor {
		text = engine.StripANSI(text)
	}
	_, err := io.WriteString(w, text)
	return err
}

func (r *SummaryReporter) writeHeader(w io.Writer, out *engine.RunOutput) {
	var project tasks.ProjectMeta
	found := false
	for _, result := range out.Info {
		if result != nil && result.Info.TaskName == projectTaskName && decodeInto(result.Result, &project) == nil {
			found = true
			break
		}
	}

	title := "Checkup report"
	if found && project.Project.Name != "" {
		title = "Checkup report generated for " + project.Project.Name
		if project.Project.Version != "" {
			title += " v" + project.Project.Version
		}
	}
	fmt.Fprintln(w, bold.Sprint(title))

	if found {
		fmt.Fprintf(w, "This project has %d files.\n", project.Project.TotalFiles)
		if project.Project.Repository != "" {
			fmt.Fprintf(w, "Repository: %s\n", project.Project.Repository)
		}
	}
	fmt.Fprintln(w)
}

func (r *SummaryReporter) writeResult(w io.Writer, result *engine.TaskResult) error {
	fmt.Fprintf(w, "  %s\n", result.Info.TaskDisplayName)

	if render, ok := r.tasks.Get(result.Info.TaskName); ok {
		var buf bytes.Buffer
		if err := render(&buf, result); err != nil {
			return fmt.Errorf("failed to render %s: %w", result.Info.TaskName, err)
		}
		writeIndented(w, buf.String(), "    ")
		return nil
	}

	return writeGeneric(w, result.Result)
}

// writeGeneric renders scalar fields of an object payload as key: value
// lines and anything else as compact JSON.
func writeGeneric(w io.Writer, payload interface{}) error {
	var generic interface{}
	if err := decodeInto(payload, &generic); err != nil {
		return fmt.Errorf("failed to render result: %w", err)
	}

	obj, ok := generic.(map[string]interface{})
	if !ok {
		data, _ := json.Marshal(generic)
		fmt.Fprintf(w, "    %s\n", data)
		return nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := obj[k].(type) {
		case map[string]interface{}, []interface{}:
			data, _ := json.Marshal(v)
			fmt.Fprintf(w, "    %s: %s\n", k, data)
		default:
			fmt.Fprintf(w, "    %s: %v\n", k, v)
		}
	}
	return nil
}

func writeIndented(w io.Writer, text, prefix string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		if line == "" {
			fmt.Fprintln(w)
			continue
		}
		fmt.Fprintln(w, prefix+line)
	}
}

type categoryGroup struct {
	category string
	results  []*engine.TaskResult
}

func groupByCategory(results []*engine.TaskResult) []categoryGroup {
	var groups []categoryGroup
	index := make(map[string]int)

	for _, result := range results {
		if result == nil {
			continue
		}
		i, ok := index[result.Info.Category]
		if !ok {
			i = len(groups)
			index[result.Info.Category] = i
			groups = append(groups, categoryGroup{category: result.Info.Category})
		}
		groups[i].results = append(groups[i].results, result)
	}
	return groups
}

func categoryTitle(category string) string {
	if category == "" {
		return "Uncategorized"
	}
	return strings.ToUpper(category[:1]) + category[1:]
}

// decodeInto converts a result payload to v through JSON.
func decodeInto(payload interface{}, v interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// RegisterBuiltinReporters adds task reporters for checkup's built-in tasks.
func RegisterBuiltinReporters(r *engine.ReporterRegistry) {
	r.RegisterTaskReporter(linesOfCodeTaskName, reportLinesOfCode)
}

func reportLinesOfCode(w io.Writer, result *engine.TaskResult) error {
	var loc tasks.LinesOfCode
	if err := decodeInto(result.Result, &loc); err != nil {
		return err
	}

	fmt.Fprintf(w, "Total: %d lines\n", loc.Total)
	for _, ext := range loc.Extensions {
		fmt.Fprintf(w, "%s: %d lines in %d files\n", ext.Extension, ext.Lines, ext.Files)
	}
	return nil
}
