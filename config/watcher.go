package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// Watch re-reads path whenever it is written and passes the parsed values
// to onChange. Only keys present in the file are reported. Watch blocks
// until ctx is cancelled.
func Watch(ctx context.Context, path string, onChange func(map[string]string)) error {
	if path == "" {
		return fmt.Errorf("config: no env file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files on save, so watch the directory instead of the file.
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("config: watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			values, err := godotenv.Read(abs)
			if err != nil {
				continue
			}
			onChange(values)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("config: watcher: %w", err)
		}
	}
}
