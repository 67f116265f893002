package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeRule(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	return path
}

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRule(t, dir, "eslint.rego", eslintRego)

	rule, err := NewLoader(nil).LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if rule.Name != "eslint" || rule.Language != LanguageRego || !rule.Enabled {
		t.Errorf("unexpected rule %+v", rule)
	}
	if rule.Description != "Flags heavy eslint-disable use." {
		t.Errorf("description = %q", rule.Description)
	}
	if rule.Source != eslintRego || rule.Path != path {
		t.Error("source or path not recorded")
	}

	if _, err := NewLoader(nil).LoadFile(writeRule(t, dir, "notes.txt", "x")); err == nil {
		t.Error("expected an error for an unsupported extension")
	}
}

func TestLoader_LoadFromPaths(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "b/eslint.star", eslintStarlark)
	writeRule(t, dir, "a/eslint.rego", eslintRego)
	writeRule(t, dir, "README.md", "# rules")

	rules, err := NewLoader(nil).LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() error = %v", err)
	}

	got := make([]Language, 0, len(rules))
	for _, r := range rules {
		got = append(got, r.Language)
	}
	if diff := cmp.Diff([]Language{LanguageRego, LanguageStarlark}, got); diff != "" {
		t.Errorf("languages mismatch (-want +got):\n%s", diff)
	}

	if _, err := NewLoader(nil).LoadFromPaths(context.Background(), []string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected an error for a missing path")
	}
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"# one\n# two\npackage p", "one two"},
		{"package p\n# trailing", ""},
		{"#\n# spaced\n\npackage p", "spaced"},
	}

	for _, tt := range tests {
		if got := extractDescription(tt.content); got != tt.want {
			t.Errorf("extractDescription(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func TestLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "eslint.rego", eslintRego)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan []ActionRule, 1)
	done := make(chan error, 1)
	go func() {
		done <- NewLoader(nil).Watch(ctx, []string{dir}, func(rules []ActionRule) error {
			select {
			case reloaded <- rules:
			default:
			}
			return nil
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeRule(t, dir, "eslint.star", eslintStarlark)

	select {
	case rules := <-reloaded:
		if len(rules) != 2 {
			t.Errorf("reloaded %d rules, want 2", len(rules))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}
