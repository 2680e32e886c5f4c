package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

// DefaultDebounce is how long the watcher waits for a burst of changes to settle.
const DefaultDebounce = 2 * time.Second

// Watcher watches library directories and reports settled changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	relevant func(path string) bool
	onChange func()

	mu      sync.Mutex
	watched map[string]bool
	timer   *time.Timer
}

// NewWatcher watches roots recursively. onChange is called once per burst of
// changes to audio files, playlists or directories.
func NewWatcher(roots []string, debounce time.Duration, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watcher")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	scanner := NewScanner(nil, nil)
	w := &Watcher{
		watcher:  fw,
		debounce: debounce,
		relevant: func(path string) bool {
			return scanner.Supported(path) || IsPlaylistFile(path)
		},
		onChange: onChange,
		watched:  make(map[string]bool),
	}

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			_ = fw.Close()
			return nil, errors.Wrapf(err, "failed to resolve path %s", root)
		}
		if err := w.addRecursive(abs); err != nil {
			_ = fw.Close()
			return nil, errors.Wrapf(err, "failed to watch %s", abs)
		}
	}
	zlog.Info().Msgf("library: watching %d directories", w.WatchedCount())
	return w, nil
}

// Run processes filesystem events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			zlog.Warn().Msgf("library: watch error: %v", err)
		}
	}
}

// WatchedCount returns the number of watched directories.
func (w *Watcher) WatchedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.watched)
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.stopTimer()
	return w.watcher.Close()
}

func (w *Watcher) handle(event fsnotify.Event) {
	isDir := false
	if event.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			isDir = true
			if err := w.addRecursive(event.Name); err != nil {
				zlog.Warn().Msgf("library: failed to watch new directory %s: %v", event.Name, err)
			}
		}
	}

	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if w.removeWatch(event.Name) {
			isDir = true
		}
	}

	if !isDir && !w.relevant(event.Name) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	zlog.Debug().Msgf("library: change detected: %s %s", event.Op, event.Name)
	w.trigger()
}

// trigger (re)starts the debounce timer.
func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}

		w.mu.Lock()
		defer w.mu.Unlock()
		if w.watched[path] {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			zlog.Warn().Msgf("library: failed to watch %s: %v", path, err)
			return nil
		}
		w.watched[path] = true
		return nil
	})
}

func (w *Watcher) removeWatch(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watched[path] {
		return false
	}
	_ = w.watcher.Remove(path)
	delete(w.watched, path)
	return true
}
