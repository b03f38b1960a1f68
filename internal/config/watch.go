package config

import (
	"log"

	"github.com/fsnotify/fsnotify"
)

// WatchForExternalEdits watches the profile's config file and invokes
// logger whenever it is written to outside of this process. The
// daemon does not hot-reload mp_db_path/mp_type from such an edit —
// reattaching instrumentation while a poll is in flight is unsafe
// (see DESIGN.md) — so this only warns that a restart is needed. It
// runs until done is closed.
func WatchForExternalEdits(profile string, logger *log.Logger, done <-chan struct{}) error {
	path, err := Path(profile)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					logger.Printf("config file %s was modified externally; restart sync2gmd to pick up the change", path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Printf("config watcher error: %v", err)
			}
		}
	}()

	return nil
}
