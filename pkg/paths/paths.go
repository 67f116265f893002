// Package paths resolves the set of files a checkup run analyzes.
package paths

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultExcludePaths are always excluded, in addition to the configured ones.
var DefaultExcludePaths = []string{
	"**/node_modules/**",
	"**/bower_components/**",
	"**/.git/**",
	"**/.checkup/**",
	"**/dist/**",
	"**/tmp/**",
}

// Matcher tests slash-separated relative paths against globs.
type Matcher struct {
	patterns []string
	globs    []glob.Glob
}

// NewMatcher compiles patterns. A pattern starting with "**/" also
// matches at the root.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(filepath.ToSlash(pattern))
		pattern = strings.TrimPrefix(pattern, "./")
		if pattern == "" {
			continue
		}

		variants := []string{pattern}
		if strings.HasPrefix(pattern, "**/") {
			variants = append(variants, strings.TrimPrefix(pattern, "**/"))
		}
		for _, v := range variants {
			g, err := glob.Compile(v, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid path pattern %q: %w", pattern, err)
			}
			m.globs = append(m.globs, g)
		}
		m.patterns = append(m.patterns, pattern)
	}
	return m, nil
}

// Patterns returns the compiled patterns.
func (m *Matcher) Patterns() []string {
	return append([]string{}, m.patterns...)
}

// Match reports whether rel matches any pattern.
func (m *Matcher) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range m.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// matchDir reports whether everything under the directory rel is excluded.
func (m *Matcher) matchDir(rel string) bool {
	return m.Match(rel) || m.Match(rel+"/")
}

// Resolve expands patterns relative to root into a sorted list of absolute
// file paths. A pattern may be a file, a directory (walked recursively) or a
// glob matched against root-relative paths. No patterns means the whole root.
func Resolve(root string, patterns []string, excludePaths []string) ([]string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	excludes, err := NewMatcher(append(append([]string{}, DefaultExcludePaths...), excludePaths...))
	if err != nil {
		return nil, err
	}

	if len(patterns) == 0 {
		patterns = []string{"."}
	}

	found := make(map[string]struct{})
	add := func(abs string) {
		rel, err := filepath.Rel(absRoot, abs)
		if err == nil && !excludes.Match(rel) {
			found[abs] = struct{}{}
		}
	}

	var globPatterns []string
	for _, pattern := range patterns {
		target := pattern
		if !filepath.IsAbs(target) {
			target = filepath.Join(absRoot, target)
		}

		info, statErr := os.Stat(target)
		switch {
		case statErr == nil && info.IsDir():
			if err := walk(absRoot, target, excludes, func(abs, _ string) { add(abs) }); err != nil {
				return nil, err
			}
		case statErr == nil:
			add(target)
		default:
			globPatterns = append(globPatterns, pattern)
		}
	}

	if len(globPatterns) > 0 {
		includes, err := NewMatcher(globPatterns)
		if err != nil {
			return nil, err
		}
		err = walk(absRoot, absRoot, excludes, func(abs, rel string) {
			if includes.Match(rel) {
				add(abs)
			}
		})
		if err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(found))
	for path := range found {
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// walk visits every regular file under dir that is not excluded, passing
// its absolute path and its slash-separated path relative to root.
func walk(root, dir string, excludes *Matcher, visit func(abs, rel string)) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && excludes.matchDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		visit(path, rel)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return nil
}

// Relative converts absolute paths to root-relative, slash-separated paths.
func Relative(root string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			rel = f
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}
