// Package report renders a run's output. The summary reporter is meant for
// terminals; the JSON and YAML reporters emit the full engine.RunOutput.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/checkupjs/checkup/pkg/engine"
)

// Reporter writes a run's output.
type Reporter interface {
	Report(w io.Writer, out *engine.RunOutput) error
}

// Options configures the reporters returned by New.
type Options struct {
	// TaskReporters renders individual results in the summary.
	TaskReporters *engine.ReporterRegistry

	// NoColor strips terminal colors from the summary.
	NoColor bool
}

// New returns the reporter for a format. An empty format selects the summary.
func New(format engine.OutputFormat, opts Options) (Reporter, error) {
	switch format {
	case "", engine.OutputFormatSummary:
		return NewSummaryReporter(opts.TaskReporters, opts.NoColor), nil
	case engine.OutputFormatJSON:
		return JSONReporter{}, nil
	case engine.OutputFormatYAML:
		return YAMLReporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Write renders out with the format selected by its flags. When
// out.Flags.OutputFile is set the report goes to that file, resolved
// against out.Flags.Cwd, and its path is returned; otherwise it goes to w.
func Write(w io.Writer, out *engine.RunOutput, opts Options) (string, error) {
	reporter, err := New(out.Flags.Format, opts)
	if err != nil {
		return "", err
	}

	if out.Flags.OutputFile == "" {
		return "", reporter.Report(w, out)
	}

	path := out.Flags.OutputFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(out.Flags.Cwd, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	if err := reporter.Report(f, out); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}
