// Package watch reports debounced file changes inside dependency checkouts.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thiagokokada/gitdeps/internal/debounce"
	"github.com/thiagokokada/gitdeps/internal/git"
)

const DefaultDelay = 350 * time.Millisecond

// Watcher watches every directory of the registered checkouts, skipping
// their metadata, and calls onChange with the checkout folder after changes
// settle.
type Watcher struct {
	root     string
	folders  []string
	onChange func(folder string)

	mu       sync.Mutex
	fs       *fsnotify.Watcher
	debounce *debounce.Group[string]
}

type Option func(*options)

type options struct {
	delay time.Duration
}

func WithDelay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

// New starts watching folders, given relative to root. Missing folders are
// picked up when they are created.
func New(root string, folders []string, onChange func(folder string), opts ...Option) (*Watcher, error) {
	o := options{delay: DefaultDelay}
	for _, opt := range opts {
		opt(&o)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	w := &Watcher{root: filepath.Clean(root), onChange: onChange, fs: fsw}
	for _, f := range folders {
		w.folders = append(w.folders, filepath.Clean(f))
	}
	w.debounce = debounce.NewGroup(o.delay, w.fire)

	paths := []string{w.root}
	for _, f := range w.folders {
		// Parents let the watcher see a checkout appear.
		for dir := filepath.Dir(f); dir != "."; dir = filepath.Dir(dir) {
			paths = append(paths, filepath.Join(w.root, dir))
		}
	}
	for _, p := range paths {
		if err := w.add(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Join(err, fsw.Close())
		}
	}
	for _, f := range w.folders {
		if err := w.addTree(filepath.Join(w.root, f)); err != nil {
			return nil, errors.Join(err, fsw.Close())
		}
	}
	return w, nil
}

func (w *Watcher) add(path string) error {
	slog.Debug("adding path to FS watcher", slog.String("path", path))
	if err := w.fs.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	return nil
}

// addTree watches dir and its subdirectories, metadata excluded.
func (w *Watcher) addTree(dir string) error {
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if isMetadata(d.Name()) {
			return filepath.SkipDir
		}
		return w.add(p)
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Run forwards events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return w.Close()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.Error("fsnotify error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if ShouldIgnore(ev.Name) {
		return
	}
	folder, ok := w.folderOf(ev.Name)
	if !ok {
		return
	}
	if ev.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			if err := w.watchNew(ev.Name, folder); err != nil {
				slog.Error("watch new directory", slog.String("path", ev.Name), slog.Any("error", err))
			}
		}
	}
	slog.Debug("fsnotify event",
		slog.String("op", ev.Op.String()),
		slog.String("path", ev.Name),
		slog.String("folder", folder),
	)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Trigger(folder)
	}
}

// watchNew starts watching a directory created after New. A new parent of
// folder is watched on its own; the folder may already exist below it.
func (w *Watcher) watchNew(path, folder string) error {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return err
	}
	if rel == folder || strings.HasPrefix(rel, folder+string(filepath.Separator)) {
		return w.addTree(path)
	}
	if err := w.add(path); err != nil {
		return err
	}
	return w.addTree(filepath.Join(w.root, folder))
}

func (w *Watcher) fire(folder string) {
	slog.Debug("change settled", slog.String("folder", folder))
	w.onChange(folder)
}

// folderOf maps path to the registered folder containing it. A path that is
// a parent of a folder maps to that folder, so creating a checkout counts as
// a change to it.
func (w *Watcher) folderOf(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || !filepath.IsLocal(rel) {
		return "", false
	}
	best := ""
	for _, f := range w.folders {
		switch {
		case rel == f, strings.HasPrefix(rel, f+string(filepath.Separator)):
			if len(f) > len(best) {
				best = f
			}
		case strings.HasPrefix(f, rel+string(filepath.Separator)):
			if best == "" {
				best = f
			}
		}
	}
	return best, best != ""
}

// Close stops the watcher and drops pending notifications.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	return w.fs.Close()
}

func isMetadata(name string) bool {
	return name == git.MetadataDir || name == git.HiddenMetadataDir
}

// ShouldIgnore reports whether a change to name is noise: anything under a
// metadata directory, and lock or ipc files.
func ShouldIgnore(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".lock" || ext == ".ipc" {
		return true
	}
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if isMetadata(part) {
			return true
		}
	}
	return false
}
