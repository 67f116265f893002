package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadDelay debounces bursts of rule file changes.
const ReloadDelay = 500 * time.Millisecond

// Loader loads action rules from .rego and .star files.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a new rule loader.
func NewLoader(logger *zerolog.Logger) *Loader {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Loader{
		logger: l.With().Str("component", "policy-loader").Logger(),
	}
}

// LoadFromPaths loads rules from a list of file or directory paths. Rules
// within a directory are returned in lexical path order.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]ActionRule, error) {
	var allRules []ActionRule

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rules, err := l.loadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		allRules = append(allRules, rules...)
	}

	l.logger.Debug().
		Int("total", len(allRules)).
		Int("sources", len(paths)).
		Msg("Action rules loaded from paths")

	return allRules, nil
}

// loadFromPath loads rules from a single path (file or directory).
func (l *Loader) loadFromPath(path string) ([]ActionRule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		return l.loadFromDirectory(path)
	}

	rule, err := l.LoadFile(path)
	if err != nil {
		return nil, err
	}

	return []ActionRule{*rule}, nil
}

// loadFromDirectory loads all rule files from a directory recursively.
// Unreadable or unsupported files are skipped with a warning.
func (l *Loader) loadFromDirectory(dirPath string) ([]ActionRule, error) {
	var files []string

	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || languageFor(path) == "" {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Strings(files)

	rules := make([]ActionRule, 0, len(files))
	for _, path := range files {
		rule, err := l.LoadFile(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to load action rule file")
			continue
		}
		rules = append(rules, *rule)
	}
	return rules, nil
}

// LoadFile loads a rule from a single file. The language follows the
// extension: .rego or .star.
func (l *Loader) LoadFile(filePath string) (*ActionRule, error) {
	language := languageFor(filePath)
	if language == "" {
		return nil, fmt.Errorf("unsupported file type: %s", filePath)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	base := filepath.Base(filePath)
	rule := &ActionRule{
		Name:        strings.TrimSuffix(base, filepath.Ext(base)),
		Description: extractDescription(string(data)),
		Language:    language,
		Source:      string(data),
		Path:        filePath,
		Enabled:     true,
		LoadedAt:    time.Now(),
	}

	l.logger.Debug().
		Str("path", filePath).
		Str("rule", rule.Name).
		Msg("Action rule loaded from file")

	return rule, nil
}

func languageFor(path string) Language {
	switch filepath.Ext(path) {
	case ".rego":
		return LanguageRego
	case ".star":
		return LanguageStarlark
	default:
		return ""
	}
}

// extractDescription joins the leading comment block of a rule file.
func extractDescription(content string) string {
	lines := strings.Split(content, "\n")
	var description strings.Builder

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
			if comment != "" {
				if description.Len() > 0 {
					description.WriteString(" ")
				}
				description.WriteString(comment)
			}
		} else if trimmed != "" || description.Len() > 0 {
			// Stop at the first non-comment line
			break
		}
	}

	return description.String()
}

// Watch reloads rules from paths whenever a rule file changes and passes
// them to reloadFn. It blocks until ctx is done.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]ActionRule) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("failed to stat path for watching: %w", err)
		}

		if info.IsDir() {
			if err := watchDirectory(watcher, path); err != nil {
				return fmt.Errorf("failed to watch directory %s: %w", path, err)
			}
			continue
		}
		if err := watcher.Add(filepath.Dir(path)); err != nil {
			return fmt.Errorf("failed to watch file %s: %w", path, err)
		}
	}

	l.logger.Info().
		Int("paths", len(paths)).
		Msg("Started watching action rule paths")

	var reloadTimer *time.Timer
	defer func() {
		if reloadTimer != nil {
			reloadTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 || languageFor(event.Name) == "" {
				continue
			}

			l.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Action rule file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(ReloadDelay, func() {
				if err := l.reload(ctx, paths, reloadFn); err != nil {
					l.logger.Error().Err(err).Msg("Failed to reload action rules")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// watchDirectory adds a directory and its subdirectories to the watcher.
func watchDirectory(watcher *fsnotify.Watcher, dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// reload loads all rules from watched paths and applies them.
func (l *Loader) reload(ctx context.Context, paths []string, reloadFn func([]ActionRule) error) error {
	rules, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to reload action rules: %w", err)
	}

	if err := reloadFn(rules); err != nil {
		return fmt.Errorf("failed to apply reloaded action rules: %w", err)
	}

	l.logger.Info().
		Int("count", len(rules)).
		Msg("Action rules reloaded")

	return nil
}
