package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a change triggers a run.
const DefaultDebounce = time.Second

// Watcher re-runs the pipeline whenever the drivers directory changes.
type Watcher struct {
	runner   *Runner
	debounce time.Duration
	logger   *slog.Logger
}

// NewWatcher returns a watcher for runner's drivers directory.
func NewWatcher(runner *Runner, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		runner:   runner,
		debounce: debounce,
		logger:   logger.With("component", "watch"),
	}
}

// Watch runs once, then again after every burst of changes until ctx is
// cancelled. Changes seen while a run is in progress cause exactly one
// follow-up run. Run errors are logged and do not stop the watcher.
func (w *Watcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	repo := w.runner.deps.Repo
	if err := fw.Add(repo.Root()); err != nil {
		return fmt.Errorf("watch %s: %w", repo.Root(), err)
	}
	names, err := repo.Scan()
	if err != nil {
		return err
	}
	for _, name := range names {
		w.add(fw, repo.Dir(name))
	}
	w.logger.Info("watching drivers", "dir", repo.Root(), "drivers", len(names), "debounce", w.debounce)

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		running bool
		pending bool
		done    = make(chan struct{}, 1)
	)
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
		} else {
			timer.Reset(w.debounce)
		}
		fire = timer.C
	}
	start := func() {
		running = true
		go func() {
			if _, err := w.runner.Run(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("run failed", "err", err)
			}
			done <- struct{}{}
		}()
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	start()
	for {
		select {
		case <-ctx.Done():
			if running {
				<-done
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("change", "path", ev.Name, "op", ev.Op.String())
			if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == filepath.Clean(repo.Root()) {
				w.add(fw, ev.Name)
			}
			if running {
				pending = true
				continue
			}
			schedule()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "err", err)

		case <-fire:
			fire = nil
			start()

		case <-done:
			running = false
			if pending {
				pending = false
				schedule()
			}
		}
	}
}

// add watches a driver directory; plain files are ignored.
func (w *Watcher) add(fw *fsnotify.Watcher, dir string) {
	base := filepath.Base(dir)
	if strings.HasPrefix(base, ".") {
		return
	}
	if err := fw.Add(dir); err != nil {
		w.logger.Debug("not watched", "path", dir, "err", err)
	}
}

// relevant filters out chmod noise and hidden files such as the
// temporary files of descriptor writes.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	if p := w.runner.cfg.ReportPath; p != "" {
		name := filepath.Clean(ev.Name)
		if name == filepath.Clean(p) || name == filepath.Clean(p+".tmp") {
			return false
		}
	}
	return true
}
