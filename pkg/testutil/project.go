// Package testutil provides fixtures for testing tasks and plugins: a
// temporary project on disk and a TaskContext builder.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/checkupjs/checkup/pkg/engine"
)

// Project is a throwaway project directory with a package.json.
type Project struct {
	Name            string
	Version         string
	BaseDir         string
	Files           map[string]string
	Dependencies    map[string]string
	DevDependencies map[string]string

	t testing.TB
}

// NewProject creates an empty project rooted in a test temp dir.
func NewProject(t testing.TB, name, version string) *Project {
	t.Helper()
	return &Project{
		Name:            name,
		Version:         version,
		BaseDir:         t.TempDir(),
		Files:           make(map[string]string),
		Dependencies:    make(map[string]string),
		DevDependencies: make(map[string]string),
		t:               t,
	}
}

// AddFile stages a file, relative to BaseDir, for WriteSync.
func (p *Project) AddFile(rel, content string) *Project {
	p.Files[rel] = content
	return p
}

// Pkg returns the package.json contents WriteSync writes.
func (p *Project) Pkg() engine.PackageJSON {
	return engine.PackageJSON{
		Name:            p.Name,
		Version:         p.Version,
		Dependencies:    copyMap(p.Dependencies),
		DevDependencies: copyMap(p.DevDependencies),
	}
}

// WriteSync writes package.json and every staged file. It fails the test on error.
func (p *Project) WriteSync() {
	p.t.Helper()

	pkg, err := json.MarshalIndent(p.Pkg(), "", "  ")
	if err != nil {
		p.t.Fatalf("failed to encode package.json: %v", err)
	}
	p.write("package.json", string(pkg))

	for rel, content := range p.Files {
		p.write(rel, content)
	}
}

func (p *Project) write(rel, content string) {
	p.t.Helper()

	path := filepath.Join(p.BaseDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		p.t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		p.t.Fatalf("failed to write %s: %v", rel, err)
	}
}

// FilePaths returns the absolute paths of the staged files, sorted.
func (p *Project) FilePaths() []string {
	paths := make([]string, 0, len(p.Files))
	for rel := range p.Files {
		paths = append(paths, filepath.Join(p.BaseDir, filepath.FromSlash(rel)))
	}
	sort.Strings(paths)
	return paths
}

func copyMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
