package docs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last filesystem
// event before rebuilding the snapshot. Editors and sync tools write files
// in bursts; one reload per burst is enough.
const DefaultDebounce = 500 * time.Millisecond

// Watch blocks watching the docs directory and reloads the snapshot after
// changes settle for the debounce window. New subdirectories are added to
// the watch as they appear. Returns when ctx is cancelled.
func (s *Store) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if s.dir == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	if _, err := os.Stat(s.dir); err != nil {
		s.logger.Warn("docs dir not watchable", "dir", s.dir, "error", err)
		<-ctx.Done()
		return ctx.Err()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create docs watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, s.dir); err != nil {
		return err
	}
	s.logger.Info("watching docs dir", "dir", s.dir, "debounce", debounce)

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watcher.Add(ev.Name); err != nil {
						s.logger.Warn("watch new docs subdir failed", "dir", ev.Name, "error", err)
					}
					timer.Reset(debounce)
					continue
				}
			}
			if !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			timer.Reset(debounce)

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("docs watcher error", "error", werr)

		case <-timer.C:
			if err := s.Load(); err != nil {
				s.logger.Error("docs snapshot reload failed", "error", err)
			}
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
