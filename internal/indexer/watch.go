package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kalambet/sift/internal/transcript"
)

// watchDebounce is the quiet period after the last filesystem event before
// an incremental pass runs. Agents often write a burst of lines per turn.
const watchDebounce = 1 * time.Second

// Watcher re-runs incremental index passes when files under the sessions
// root change.
type Watcher struct {
	maintainer *Maintainer
	root       string
	fsw        *fsnotify.Watcher
	onPass     func(Stats)

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
}

// NewWatcher creates a watcher over root. onPass, if non-nil, receives the
// stats of every triggered pass.
func NewWatcher(maintainer *Maintainer, root string, onPass func(Stats)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		maintainer: maintainer,
		root:       root,
		fsw:        fsw,
		onPass:     onPass,
	}, nil
}

// Run watches until ctx is cancelled. Every directory under the root is
// registered; directories created while watching are picked up from their
// create events.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case fswErr, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.maintainer.logger.Warn("watch error", "error", fswErr)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.fsw.Add(event.Name)
		}
	}

	if _, ok := transcript.FormatForPath(event.Name); !ok && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.schedulePass()
}

func (w *Watcher) schedulePass() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(watchDebounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if !w.pending {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	stats, err := w.maintainer.Run(w.root, false)
	if err != nil {
		w.maintainer.logger.Error("watch-triggered pass failed", "error", err)
		return
	}
	if w.onPass != nil {
		w.onPass(stats)
	}
}
