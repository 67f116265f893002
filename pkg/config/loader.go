package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/checkupjs/checkup/pkg/engine"
)

// ConfigFileName is the name of the config file looked up in the project root.
const ConfigFileName = ".checkuprc"

// RemoteFetchTimeout bounds the download of a remote config.
const RemoteFetchTimeout = 10 * time.Second

const pluginPrefix = "checkup-plugin-"

var defaultSchemas = NewSchemaRegistry()

// ResolveConfigPath returns the config path for a project root.
func ResolveConfigPath(root string) string {
	return filepath.Join(root, ConfigFileName)
}

// GetConfigPath resolves the config to read. An empty explicit path resolves
// to the config in cwd. An http(s) URL is downloaded to a temporary file and
// that file's path is returned. A local explicit path must exist.
func GetConfigPath(ctx context.Context, explicit, cwd string) (string, error) {
	if explicit == "" {
		return ResolveConfigPath(cwd), nil
	}

	if IsRemote(explicit) {
		return fetchRemoteConfig(ctx, explicit)
	}

	path := explicit
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	if _, err := os.Stat(path); err != nil {
		return "", engine.NewCheckupError(engine.ErrorKindConfigNotFound, engine.ErrorOptions{
			ConfigPath: path,
			Err:        err,
		})
	}
	return path, nil
}

// IsRemote reports whether path is an http(s) URL.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// fetchRemoteConfig downloads url into a temp file and returns its path.
func fetchRemoteConfig(ctx context.Context, url string) (string, error) {
	fetchErr := func(err error) error {
		return engine.NewCheckupError(engine.ErrorKindRemoteConfigFetch, engine.ErrorOptions{URL: url, Err: err})
	}

	reqCtx, cancel := context.WithTimeout(ctx, RemoteFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fetchErr(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fetchErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fetchErr(fmt.Errorf("unexpected status %s", resp.Status))
	}

	tmp, err := os.CreateTemp("", "checkuprc-*.json")
	if err != nil {
		return "", fetchErr(fmt.Errorf("failed to create temp file: %w", err))
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", fetchErr(fmt.Errorf("failed to write config: %w", err))
	}

	return tmp.Name(), nil
}

// ReadConfig reads and validates the config at path. A directory is resolved
// to the config file inside it. A missing file yields the default config.
func ReadConfig(path string) (*engine.Config, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = ResolveConfigPath(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return engine.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return ParseConfig(path, data)
}

// ParseConfig validates and decodes config bytes. path is only used in errors.
func ParseConfig(path string, data []byte) (*engine.Config, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, engine.NewCheckupError(engine.ErrorKindInvalidJSON, engine.ErrorOptions{
			ConfigPath: path,
			Err:        describeJSONError(err),
		})
	}

	if err := defaultSchemas.ValidateAgainstSchema(context.Background(), ConfigSchemaName, raw); err != nil {
		return nil, engine.NewCheckupError(engine.ErrorKindInvalidConfig, engine.ErrorOptions{
			ConfigPath: path,
			Err:        err,
		})
	}

	var cfg engine.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, engine.NewCheckupError(engine.ErrorKindInvalidConfig, engine.ErrorOptions{
			ConfigPath: path,
			Err:        err,
		})
	}

	if cfg.Schema == "" {
		cfg.Schema = engine.ConfigSchemaURL
	}
	if cfg.ExcludePaths == nil {
		cfg.ExcludePaths = []string{}
	}
	if cfg.Tasks == nil {
		cfg.Tasks = map[string]engine.TaskConfigValue{}
	}
	cfg.Plugins = NormalizePluginNames(cfg.Plugins)

	return &cfg, nil
}

// jsonPositionError carries the parser message and the byte position it failed at.
type jsonPositionError struct {
	msg      string
	position int64
	err      error
}

func (e *jsonPositionError) Error() string {
	return fmt.Sprintf("%s (at position %d)", e.msg, e.position)
}

func (e *jsonPositionError) Unwrap() error {
	return e.err
}

func describeJSONError(err error) error {
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return err
	}
	// Offset counts the offending byte itself.
	position := syntaxErr.Offset - 1
	if position < 0 {
		position = 0
	}
	return &jsonPositionError{msg: syntaxErr.Error(), position: position, err: err}
}

// WriteConfig writes a config into root and returns its path. Top-level
// fields set in overrides replace the defaults; they are written verbatim. An
// existing config is never overwritten.
func WriteConfig(root string, overrides *engine.Config) (string, error) {
	path := ResolveConfigPath(root)

	if _, err := os.Stat(path); err == nil {
		return "", engine.NewCheckupError(engine.ErrorKindConfigFileExists, engine.ErrorOptions{
			ConfigDestination: root,
		})
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to check for existing config: %w", err)
	}

	cfg := engine.DefaultConfig()
	if overrides != nil {
		if overrides.Schema != "" {
			cfg.Schema = overrides.Schema
		}
		if overrides.ExcludePaths != nil {
			cfg.ExcludePaths = append([]string{}, overrides.ExcludePaths...)
		}
		if overrides.Plugins != nil {
			cfg.Plugins = append([]string{}, overrides.Plugins...)
		}
		if overrides.Tasks != nil {
			cfg.Tasks = overrides.Clone().Tasks
		}
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to serialize config: %w", err)
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, data, "", "  "); err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}
	indented.WriteByte('\n')

	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory %s: %w", root, err)
	}

	// O_EXCL keeps a concurrent writer from being clobbered.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", engine.NewCheckupError(engine.ErrorKindConfigFileExists, engine.ErrorOptions{
				ConfigDestination: root,
			})
		}
		return "", fmt.Errorf("failed to create config %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(indented.Bytes()); err != nil {
		return "", fmt.Errorf("failed to write config %s: %w", path, err)
	}

	return path, nil
}

// NormalizePluginNames expands short plugin names to package names and
// removes duplicates, keeping the first occurrence.
//
//	ember                   -> checkup-plugin-ember
//	@scope/ember            -> @scope/checkup-plugin-ember
//	checkup-plugin-ember    -> checkup-plugin-ember
func NormalizePluginNames(names []string) []string {
	normalized := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))

	for _, name := range names {
		n := NormalizePluginName(name)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}
	return normalized
}

// NormalizePluginName expands a single plugin name.
func NormalizePluginName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if strings.HasPrefix(name, "@") {
		scope, pkg, ok := strings.Cut(name, "/")
		if !ok || pkg == "" {
			return scope + "/checkup-plugin"
		}
		if strings.HasPrefix(pkg, pluginPrefix) {
			return name
		}
		return scope + "/" + pluginPrefix + pkg
	}

	if strings.HasPrefix(name, pluginPrefix) {
		return name
	}
	return pluginPrefix + name
}

// MergeExcludePaths returns the CLI exclude paths when any were given, and
// the config's otherwise.
func MergeExcludePaths(cli, fromConfig []string) []string {
	if len(cli) > 0 {
		return append([]string{}, cli...)
	}
	return append([]string{}, fromConfig...)
}
