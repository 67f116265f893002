package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/checkupjs/checkup/pkg/engine"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	tmp := t.TempDir()
	path := writeRawConfig(t, tmp, `{"excludePaths": [], "plugins": [], "tasks": {}}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type reload struct {
		cfg *engine.Config
		err error
	}
	reloads := make(chan reload, 4)
	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, path, nil, func(cfg *engine.Config, err error) {
			reloads <- reload{cfg, err}
		})
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)

	updated := `{"excludePaths": ["**/dist"], "plugins": ["ember"], "tasks": {}}`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("failed to update config: %v", err)
	}

	select {
	case r := <-reloads:
		if r.err != nil {
			t.Fatalf("reload error = %v", r.err)
		}
		if len(r.cfg.Plugins) != 1 || r.cfg.Plugins[0] != "checkup-plugin-ember" {
			t.Errorf("unexpected plugins after reload: %v", r.cfg.Plugins)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), "/nonexistent/dir/.checkuprc", nil, func(*engine.Config, error) {})
	if err == nil {
		t.Error("expected error watching a missing directory")
	}
}
