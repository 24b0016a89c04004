// Package watch reports replacements of a single file.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
)

var logger = loggo.GetLogger("templatestore.watch")

const debounce = 50 * time.Millisecond

// NewWatcher starts watching the directory holding path. Watching the
// directory rather than the file survives the file being renamed over.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Trace(err)
	}
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, errors.Annotatef(err, "watch %q", dir)
	}
	return &Watcher{
		watcher: w,
		base:    filepath.Base(path),
	}, nil
}

type Watcher struct {
	watcher *fsnotify.Watcher
	base    string
}

// Run calls fn after each burst of changes to the file until ctx is done.
// fn runs on a single worker goroutine; changes seen while it runs are
// folded into one more call. Run returns only after fn has returned.
func (w *Watcher) Run(ctx context.Context, fn func()) error {
	defer w.watcher.Close()

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	dirty := make(chan struct{}, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		work(ctx, dirty, fn)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != w.base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				logger.Tracef("%s: %s", ev.Op, ev.Name)
				select {
				case dirty <- struct{}{}:
				default:
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warningf("watching %q: %v", w.base, err)
		}
	}
}

func work(ctx context.Context, dirty chan struct{}, fn func()) {
	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-dirty:
		}
		timer.Reset(debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		// the burst is covered by this call
		select {
		case <-dirty:
		default:
		}
		fn()
	}
}

// Watch is NewWatcher followed by Run.
func Watch(ctx context.Context, path string, fn func()) error {
	w, err := NewWatcher(path)
	if err != nil {
		return err
	}
	return w.Run(ctx, fn)
}
