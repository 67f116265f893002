package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/checkupjs/checkup/pkg/engine"
)

// WatchDebounce coalesces bursts of file events into a single reload.
const WatchDebounce = 100 * time.Millisecond

// ChangeFunc receives the re-read config, or the error that reading it produced.
type ChangeFunc func(cfg *engine.Config, err error)

// Watch reloads the config at path whenever it is written, created or
// replaced, and calls fn with the result. It blocks until ctx is done.
//
// The parent directory is watched rather than the file so editors that
// save by rename keep triggering reloads.
func Watch(ctx context.Context, path string, logger *zerolog.Logger, fn ChangeFunc) error {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "config-watch").Str("path", path).Logger()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(absPath), err)
	}

	log.Debug().Msg("Watching config")

	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
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
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(WatchDebounce)
			} else {
				debounce.Reset(WatchDebounce)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			cfg, err := ReadConfig(absPath)
			if err != nil {
				log.Warn().Err(err).Msg("Config reload failed")
			} else {
				log.Info().Msg("Config reloaded")
			}
			fn(cfg, err)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Watcher error")
		}
	}
}
