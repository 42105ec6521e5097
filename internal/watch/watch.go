// Package watch turns file changes under an asset directory into reload
// requests. Requests are only queued here; caches apply them on their
// owner goroutine at the next Update.
package watch

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"gpu-resource-cache/internal/logging"
)

// Reloader accepts reload requests from any goroutine. Unknown names must
// be ignored.
type Reloader interface {
	RequestReload(name string)
}

// Indexer learns about files that appear after startup.
type Indexer interface {
	Add(p string)
}

// Watcher watches a directory tree.
type Watcher struct {
	root  string
	index Indexer
	log   *slog.Logger
	w     *fsnotify.Watcher

	mu        sync.Mutex
	reloaders []Reloader

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New watches root and every directory below it. index may be nil.
func New(root string, index Indexer, log *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{
		root:  root,
		index: index,
		log:   logging.OrNop(log),
		w:     fw,
		done:  make(chan struct{}),
	}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(p)
		}
		return nil
	})
	if err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch: %s: %w", root, err)
	}
	return w, nil
}

// Notify adds r to the reloaders told about changes.
func (w *Watcher) Notify(r Reloader) {
	w.mu.Lock()
	w.reloaders = append(w.reloaders, r)
	w.mu.Unlock()
}

// Start runs the event loop until Close.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-w.done:
				return
			case event, ok := <-w.w.Events:
				if !ok {
					return
				}
				w.handle(event)
			case err, ok := <-w.w.Errors:
				if !ok {
					return
				}
				w.log.Warn("watch error", "err", err)
			}
		}
	}()
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			// Files created in a new directory arrive as their own events.
			if err := w.w.Add(event.Name); err != nil {
				w.log.Warn("watch directory failed", "path", rel, "err", err)
			}
			return
		}
		if w.index != nil {
			w.index.Add(rel)
		}
	}

	w.log.Debug("asset changed", "path", rel, "op", event.Op.String())
	w.mu.Lock()
	rs := append([]Reloader(nil), w.reloaders...)
	w.mu.Unlock()
	for _, r := range rs {
		r.RequestReload(rel)
		if base := path.Base(rel); base != rel {
			r.RequestReload(base)
		}
	}
}

// Close stops the event loop and releases the watcher.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.w.Close()
		w.wg.Wait()
	})
	return err
}
