package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads sources.yaml on write and create events and stages the
// new SourceRegistry for Swap; its callback receives only reload and watch
// errors. Per §5, reloads must never be applied
// mid-batch; callers invoke Swap between ingest runs, never from inside
// one, so the watcher only stages the latest parse and lets the caller
// decide when to pick it up.
type Watcher struct {
	path    string
	fw      *fsnotify.Watcher
	mu      sync.Mutex
	latest  *SourceRegistry
	onError func(error)
}

// NewWatcher starts watching the directory containing path for changes to
// sources.yaml, parsing eagerly once at startup.
func NewWatcher(path string, onError func(error)) (*Watcher, error) {
	f, err := LoadSourcesFile(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{path: path, fw: fw, latest: NewSourceRegistry(f), onError: onError}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			f, err := LoadSourcesFile(w.path)
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				}
				continue
			}
			w.mu.Lock()
			w.latest = NewSourceRegistry(f)
			w.mu.Unlock()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// Swap returns the most recently parsed registry. Called between ingest
// batches only.
func (w *Watcher) Swap() *SourceRegistry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest
}

// Close stops the underlying filesystem watch.
func (w *Watcher) Close() error {
	return w.fw.Close()
}
