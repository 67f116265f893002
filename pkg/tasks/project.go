// Package tasks contains the tasks built into checkup itself: the project
// meta task that always runs, and the lines-of-code task.
package tasks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/checkupjs/checkup/pkg/engine"
)

// MetaPluginName owns the built-in tasks.
const MetaPluginName = "meta"

// ProjectMeta is the result payload of the project task.
type ProjectMeta struct {
	Project ProjectInfo `json:"project" yaml:"project"`
	CLI     CLIInfo     `json:"cli" yaml:"cli"`
}

// ProjectInfo describes the analyzed project.
type ProjectInfo struct {
	Name       string `json:"name" yaml:"name"`
	Version    string `json:"version" yaml:"version"`
	Repository string `json:"repository,omitempty" yaml:"repository,omitempty"`
	TotalFiles int    `json:"totalFiles" yaml:"totalFiles"`
}

// CLIInfo describes the checkup invocation.
type CLIInfo struct {
	Version      string   `json:"version" yaml:"version"`
	Schema       string   `json:"schema" yaml:"schema"`
	ConfigHash   string   `json:"configHash" yaml:"configHash"`
	Plugins      []string `json:"plugins" yaml:"plugins"`
	ExcludePaths []string `json:"excludePaths" yaml:"excludePaths"`
	Args         []string `json:"args" yaml:"args"`
}

// ProjectMetaTask reports the project identity and run configuration.
type ProjectMetaTask struct {
	engine.BaseTask

	version string
}

// NewProjectMetaTask creates the project meta task.
func NewProjectMetaTask(ctx engine.TaskContext, version string) *ProjectMetaTask {
	return &ProjectMetaTask{
		BaseTask: engine.NewBaseTask(engine.TaskIdentity{
			Name:        "project",
			PluginName:  MetaPluginName,
			DisplayName: "Project",
			Category:    "meta",
		}, ctx),
		version: version,
	}
}

// Run implements engine.Task.
func (t *ProjectMetaTask) Run(ctx context.Context) (*engine.TaskResult, error) {
	tc := t.Context()
	pkg := tc.Pkg()
	cfg := tc.Config()

	hash, err := ConfigHash(cfg)
	if err != nil {
		return nil, err
	}

	meta := ProjectMeta{
		Project: ProjectInfo{
			Name:       pkg.Name,
			Version:    pkg.Version,
			Repository: repositoryURL(pkg.Repository),
			TotalFiles: len(tc.Paths()),
		},
		CLI: CLIInfo{
			Version:      t.version,
			Schema:       cfg.Schema,
			ConfigHash:   hash,
			Plugins:      cfg.Plugins,
			ExcludePaths: cfg.ExcludePaths,
			Args:         tc.CLIArguments(),
		},
	}

	return engine.NewTaskResult(t, meta), nil
}

// ConfigHash is the hex sha256 of the config's canonical JSON.
func ConfigHash(cfg *engine.Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to serialize config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// repositoryURL accepts both the string and the {"url": ...} forms.
func repositoryURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.URL
	}
	return ""
}

// ReadPackageJSON reads dir/package.json. A missing file yields an empty value.
func ReadPackageJSON(dir string) (engine.PackageJSON, error) {
	var pkg engine.PackageJSON

	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return pkg, nil
		}
		return pkg, fmt.Errorf("failed to read package.json: %w", err)
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return pkg, fmt.Errorf("failed to parse package.json: %w", err)
	}
	return pkg, nil
}
