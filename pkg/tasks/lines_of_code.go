package tasks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/checkupjs/checkup/pkg/engine"
)

// LinesOfCode is the result payload of the lines-of-code task.
type LinesOfCode struct {
	Total      int                  `json:"total" yaml:"total"`
	Extensions []ExtensionLineCount `json:"extensions" yaml:"extensions"`
}

// ExtensionLineCount is the line total for one file extension.
type ExtensionLineCount struct {
	Extension string `json:"extension" yaml:"extension"`
	Files     int    `json:"files" yaml:"files"`
	Lines     int    `json:"lines" yaml:"lines"`
}

// DefaultLineCountExtensions are counted unless the "extensions" option says otherwise.
var DefaultLineCountExtensions = []string{"js", "ts", "jsx", "tsx", "mjs", "cjs", "hbs", "json", "css", "scss", "html"}

// LinesOfCodeTask counts lines per file extension over the run's paths.
type LinesOfCodeTask struct {
	engine.BaseTask
}

// NewLinesOfCodeTask creates the lines-of-code task.
func NewLinesOfCodeTask(ctx engine.TaskContext) *LinesOfCodeTask {
	return &LinesOfCodeTask{
		BaseTask: engine.NewBaseTask(engine.TaskIdentity{
			Name:        "lines-of-code",
			PluginName:  MetaPluginName,
			DisplayName: "Lines of Code",
			Category:    "metrics",
		}, ctx),
	}
}

// Run implements engine.Task. A disabled task reports an empty count.
func (t *LinesOfCodeTask) Run(ctx context.Context) (*engine.TaskResult, error) {
	result := LinesOfCode{Extensions: []ExtensionLineCount{}}

	cfg := t.Config()
	if !cfg.Enabled {
		return engine.NewTaskResult(t, result), nil
	}

	wanted := make(map[string]bool)
	for _, ext := range extensionsOption(cfg.Options) {
		wanted[strings.TrimPrefix(ext, ".")] = true
	}

	counts := make(map[string]*ExtensionLineCount)
	for _, path := range t.Context().Paths() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if !wanted[ext] {
			continue
		}

		lines, err := countLines(path)
		if err != nil {
			return nil, err
		}

		c, ok := counts[ext]
		if !ok {
			c = &ExtensionLineCount{Extension: ext}
			counts[ext] = c
		}
		c.Files++
		c.Lines += lines
		result.Total += lines
	}

	for _, c := range counts {
		result.Extensions = append(result.Extensions, *c)
	}
	sort.Slice(result.Extensions, func(i, j int) bool {
		return result.Extensions[i].Extension < result.Extensions[j].Extension
	})

	return engine.NewTaskResult(t, result), nil
}

func extensionsOption(options map[string]interface{}) []string {
	raw, ok := options["extensions"].([]interface{})
	if !ok {
		return DefaultLineCountExtensions
	}
	exts := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			exts = append(exts, s)
		}
	}
	return exts
}

// countLines counts lines, including a final line without a newline.
func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return lines, nil
}
