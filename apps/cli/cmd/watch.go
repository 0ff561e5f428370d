package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

// watch sends the request once, then again after every change to the body
// or schema file, until ctx is done
func (x *exchanger) watch(ctx context.Context) error {
	files := x.o.watchedFiles()
	if x.o.schema != "" {
		files = append(files, x.o.schema)
	}
	if len(files) == 0 {
		return usageError(errors.New("--watch needs --json-file, --data @file or --schema"))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files instead of writing them, so the
	// directories are watched and events filtered by name.
	targets := make(map[string]bool, len(files))
	watchedDirs := make(map[string]bool)
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		targets[abs] = true

		dir := filepath.Dir(abs)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		watchedDirs[dir] = true
	}

	x.runWatched(ctx)

	rerun := make(chan string, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !targets[name] {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case rerun <- name:
				default:
				}
			})

		case name := <-rerun:
			fmt.Fprintf(x.out, "\nFile changed: %s\nRe-sending...\n\n", name)
			x.runWatched(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			x.g.logger.Error().Err(err).Msg("watcher error")
		}
	}
}

// runWatched sends once and reports failures without ending the watch
func (x *exchanger) runWatched(ctx context.Context) {
	err := x.once(ctx)
	var exitErr *ExitError
	if err != nil && (!errors.As(err, &exitErr) || !exitErr.Silent) {
		fmt.Fprintf(x.out, "Error: %v\n", err)
	}
	if ctx.Err() == nil {
		fmt.Fprintf(x.out, "\nWatching for changes... (press Ctrl+C to stop)\n")
	}
}
