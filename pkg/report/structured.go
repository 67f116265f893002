package report

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/checkupjs/checkup/pkg/engine"
)

// JSONReporter writes the run output as indented JSON.
type JSONReporter struct{}

// Report implements Reporter.
func (JSONReporter) Report(w io.Writer, out *engine.RunOutput) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(withEmptySlices(out)); err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}
	return nil
}

// YAMLReporter writes the run output as YAML.
type YAMLReporter struct{}

// Report implements Reporter.
func (YAMLReporter) Report(w io.Writer, out *engine.RunOutput) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(withEmptySlices(out)); err != nil {
		return fmt.Errorf("failed to encode YAML report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode YAML report: %w", err)
	}
	return nil
}

// withEmptySlices returns a copy of out whose nil lists encode as empty.
func withEmptySlices(out *engine.RunOutput) *engine.RunOutput {
	c := *out
	if c.Info == nil {
		c.Info = []*engine.TaskResult{}
	}
	if c.Results == nil {
		c.Results = []*engine.TaskResult{}
	}
	if c.Errors == nil {
		c.Errors = []engine.TaskError{}
	}
	if c.Actions == nil {
		c.Actions = []engine.Action{}
	}
	return &c
}
