package services

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hugo-content/pkg/logger"
	"hugo-content/pkg/models"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// ChangeFunc receives the outcome of re-parsing a changed file. record is nil
// when the file was removed or failed to parse.
type ChangeFunc func(path string, record *models.ContentRecord, err error)

// Watcher re-parses content files as they change on disk and keeps a Store
// current.
type Watcher struct {
	dir      string
	store    *Store
	debounce time.Duration
	log      logger.Logger
	onChange ChangeFunc
}

// NewWatcher watches dir, the directory backing the store's filesystem.
func NewWatcher(dir string, store *Store, debounce time.Duration, log logger.Logger, onChange ChangeFunc) *Watcher {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Watcher{dir: dir, store: store, debounce: debounce, log: log, onChange: onChange}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addTree(fw, w.dir); err != nil {
		return err
	}
	w.log.Info("Watching content", logger.String("dir", w.dir), logger.Duration("debounce", w.debounce))

	pending := map[string]struct{}{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(fw, ev.Name); err != nil {
						w.log.Warn("Failed to watch new directory", logger.String("dir", ev.Name), logger.Error(err))
					}
					continue
				}
			}
			rel, ok := w.relative(ev.Name)
			if !ok || !w.store.loader.Matches(rel) || !w.store.InTree(rel) {
				continue
			}
			pending[rel] = struct{}{}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Watcher error", logger.Error(err))
		case <-timer.C:
			w.flush(ctx, pending)
			pending = map[string]struct{}{}
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]struct{}) {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		record, err := w.store.Reload(ctx, p)
		switch {
		case err != nil:
			w.log.Warn("Content file failed to parse", logger.String("path", p), logger.Error(err))
		case record == nil:
			w.log.Info("Content file removed", logger.String("path", p))
		default:
			w.log.Info("Content file reloaded", logger.String("path", p), logger.Int("keys", len(record.Keys())))
		}
		if w.onChange != nil {
			w.onChange(p, record, err)
		}
	}
}

func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := fw.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

func (w *Watcher) relative(name string) (string, bool) {
	rel, err := filepath.Rel(w.dir, name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}
