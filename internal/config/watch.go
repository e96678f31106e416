package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"pulseboard/internal/logger"
)

// Watch monitors the definitions file and calls onChange with the freshly
// loaded definitions each time it is written. It runs until ctx is
// cancelled. If a reload fails (invalid YAML or a bad definition), the
// error is logged and the previous definitions stay active; onChange is
// not called.
func Watch(ctx context.Context, path string, onChange func(*Definitions)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log := logger.WithComponent("config")
	log.Info().Str("path", path).Msg("watching definitions for changes")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save via rename, so catch Create as well.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			defs, err := LoadDefinitions(path)
			if err != nil {
				log.Error().Err(err).Str("path", path).
					Msg("definitions reload failed, keeping previous set")
				continue
			}

			log.Info().
				Str("path", path).
				Int("monitors", len(defs.Monitors)).
				Int("rules", len(defs.Rules)).
				Msg("definitions reloaded")
			onChange(defs)

			// Re-add in case an atomic save replaced the inode.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error().Err(err).Msg("definitions watcher error")
		}
	}
}
