package javascript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/checkupjs/checkup/pkg/engine"
)

// EslintDisablesTaskName is the fully qualified name of the eslint-disable task.
const EslintDisablesTaskName = ShortName + "/eslint-disables"

var (
	eslintDisablePattern = regexp.MustCompile(`^eslint-disable(?:-next-line|-line)?\b`)
	sourceExtensions     = map[string]bool{".js": true, ".jsx": true, ".mjs": true, ".cjs": true, ".ts": true, ".tsx": true}
)

// EslintDisables is the result payload of the eslint-disable task.
type EslintDisables struct {
	Total     int                     `json:"total" yaml:"total"`
	Locations []EslintDisableLocation `json:"locations" yaml:"locations"`
}

// EslintDisableLocation is one eslint-disable comment.
type EslintDisableLocation struct {
	File      string `json:"file" yaml:"file"` // relative to the run's cwd
	Line      int    `json:"line" yaml:"line"`
	Directive string `json:"directive" yaml:"directive"`
}

// EslintDisablesTask counts eslint-disable comments in JavaScript and
// TypeScript sources.
type EslintDisablesTask struct {
	engine.BaseTask
}

// NewEslintDisablesTask creates the eslint-disable task.
func NewEslintDisablesTask(ctx engine.TaskContext) *EslintDisablesTask {
	return &EslintDisablesTask{
		BaseTask: engine.NewBaseTask(engine.TaskIdentity{
			Name:        "eslint-disables",
			PluginName:  ShortName,
			DisplayName: "Number of eslint-disable Usages",
			Category:    "linting",
		}, ctx),
	}
}

// Run implements engine.Task. A disabled task reports no usages.
func (t *EslintDisablesTask) Run(ctx context.Context) (*engine.TaskResult, error) {
	result := EslintDisables{Locations: []EslintDisableLocation{}}
	if !t.Config().Enabled {
		return engine.NewTaskResult(t, result), nil
	}

	tc := t.Context()
	parse, ok := tc.Parsers().Get(CommentsParserName)
	if !ok {
		return nil, fmt.Errorf("parser %s is not registered", CommentsParserName)
	}

	for _, path := range tc.Paths() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !sourceExtensions[filepath.Ext(path)] {
			continue
		}

		source, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		parsed, err := parse(ctx, path, source)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		comments, ok := parsed.([]Comment)
		if !ok {
			return nil, fmt.Errorf("parser %s returned %T", CommentsParserName, parsed)
		}

		rel := path
		if r, err := filepath.Rel(tc.Cwd(), path); err == nil {
			rel = filepath.ToSlash(r)
		}
		for _, c := range comments {
			directive := eslintDisablePattern.FindString(c.Text)
			if directive == "" {
				continue
			}
			result.Locations = append(result.Locations, EslintDisableLocation{File: rel, Line: c.Line, Directive: directive})
		}
	}

	sort.SliceStable(result.Locations, func(i, j int) bool {
		if result.Locations[i].File != result.Locations[j].File {
			return result.Locations[i].File < result.Locations[j].File
		}
		return result.Locations[i].Line < result.Locations[j].Line
	})
	result.Total = len(result.Locations)

	return engine.NewTaskResult(t, result), nil
}

// eslintDisableRule flags projects whose eslint-disable count meets the
// threshold option.
var eslintDisableRule = engine.ThresholdRule{
	Name:             "reduce-eslint-disable-usages",
	Summary:          "Reduce number of eslint-disable usages",
	DefaultThreshold: 2,
	Details:          func(m float64) string { return fmt.Sprintf("%v usages of eslint-disable", m) },
	Items:            func(m float64) []string { return []string{fmt.Sprintf("Total eslint-disable usages: %v", m)} },
}

// evaluateEslintDisables is the action evaluator for the task.
func evaluateEslintDisables(result *engine.TaskResult, config engine.TaskConfig) []engine.Action {
	payload, err := decodeEslintDisables(result)
	if err != nil {
		return nil
	}
	return eslintDisableRule.Evaluate(float64(payload.Total), config)
}

// reportEslintDisables renders the task result for the summary.
func reportEslintDisables(w io.Writer, result *engine.TaskResult) error {
	payload, err := decodeEslintDisables(result)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Total: %d\n", payload.Total)

	var files []string
	perFile := make(map[string]int)
	for _, loc := range payload.Locations {
		if perFile[loc.File] == 0 {
			files = append(files, loc.File)
		}
		perFile[loc.File]++
	}
	for _, f := range files {
		fmt.Fprintf(w, "%s: %d\n", f, perFile[f])
	}
	return nil
}

func decodeEslintDisables(result *engine.TaskResult) (EslintDisables, error) {
	if payload, ok := result.Result.(EslintDisables); ok {
		return payload, nil
	}
	var payload EslintDisables
	data, err := json.Marshal(result.Result)
	if err != nil {
		return payload, err
	}
	err = json.Unmarshal(data, &payload)
	return payload, err
}
