// Package watch reruns a task whenever a file changes.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/skdltmxn/pdbproxy/internal/logger"
)

// DefaultDebounce collapses the burst of events a linker or editor produces
// while rewriting a file.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports changes to one file. The parent directory is watched so
// that files replaced by rename are still seen.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	debounce time.Duration
	log      *zap.SugaredLogger

	mu    sync.Mutex
	timer *time.Timer
	fire  chan struct{}
}

// New starts watching path. A debounce of 0 selects DefaultDebounce.
func New(path string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", path)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "create fsnotify watcher")
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}

	return &Watcher{
		path:     abs,
		fsw:      fsw,
		debounce: debounce,
		log:      logger.ComponentLogger("watch").With(logger.FieldFile, abs),
		fire:     make(chan struct{}, 1),
	}, nil
}

// Run calls fn after every settled change until ctx is done. Calls never
// overlap. An error from fn is logged and watching continues.
func (w *Watcher) Run(ctx context.Context, fn func() error) error {
	defer w.fsw.Close()
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.log.Debugw("change detected", "op", ev.Op.String())
			w.schedule()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warnw("watcher error", logger.FieldError, err)

		case <-w.fire:
			start := time.Now()
			if err := fn(); err != nil {
				w.log.Errorw("rerun failed", logger.FieldError, err)
				continue
			}
			w.log.Infow("rerun finished", logger.FieldDuration, time.Since(start).Milliseconds())
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.fire <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}
