package config

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Editors often write a file in several steps
const watchDebounce = 500 * time.Millisecond

// Watch reloads path whenever it changes and passes every valid result to onChange.
// Invalid edits are logged and ignored. Watching stops when ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: atomic saves replace the file and would drop a direct watch
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	log.Printf("👁️  Watching %s for changes (hot-reload enabled)", path)
	go watchLoop(ctx, watcher, absPath, onChange)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, absPath string, onChange func(*Config)) {
	defer watcher.Close()

	filename := filepath.Base(absPath)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				cfg, err := LoadFile(absPath)
				if err != nil {
					log.Printf("❌ Ignoring invalid configuration change: %v", err)
					return
				}
				log.Printf("🔄 Reloaded configuration from %s", absPath)
				onChange(cfg)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  Config watcher error: %v", err)
		}
	}
}
