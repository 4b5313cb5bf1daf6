package tools

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// IndexWatcher re-indexes the local search index file when it changes on
// disk, e.g. after a local docs build copies a new search_index.js in.
type IndexWatcher struct {
	watcher  *fsnotify.Watcher
	target   string
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// StartIndexWatcher watches the docs directory until ctx is cancelled or
// Stop is called.
func StartIndexWatcher(ctx context.Context) (*IndexWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	target := filepath.Join(dataDir, indexFile)
	// Watch the directory: atomic writes replace the file, which drops a
	// watch on the file itself
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	w := &IndexWatcher{
		watcher:  watcher,
		target:   filepath.Clean(target),
		debounce: settings.Index.WatchDebounce,
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run(ctx)

	log.Printf("✓ Watching %s for changes", target)
	return w, nil
}

func (w *IndexWatcher) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Warning: File watcher error: %v", err)
		}
	}
}

// schedule (re)starts the debounce timer; editors and copies emit several
// events per save
func (w *IndexWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reindex)
}

func (w *IndexWatcher) reindex() {
	w.mu.Lock()
	select {
	case <-w.done:
		w.mu.Unlock()
		return
	default:
	}
	// Stop waits for a re-index already past this point
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	startTime := time.Now()
	rebuilt, err := reindexLocalFile()
	if err != nil {
		log.Printf("Warning: Re-indexing %s failed, keeping current index: %v", w.target, err)
		return
	}
	if rebuilt {
		log.Printf("✓ Re-indexed %s in %v", w.target, time.Since(startTime).Round(time.Millisecond))
	}
}

// Stop ends watching, cancels a pending re-index and waits for a running one
func (w *IndexWatcher) Stop() error {
	w.mu.Lock()
	select {
	case <-w.done:
		w.mu.Unlock()
		return nil
	default:
		close(w.done)
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
