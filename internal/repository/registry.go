package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/thiagokokada/gitdeps/internal/git/backend"
)

var ErrConflict = errors.New("conflicting repository configuration")

// Registry deduplicates tasks by Identity.Key. It is an explicit object so
// tests and embedders can hold isolated registries.
type Registry struct {
	backend     backend.Backend
	observer    Observer
	logger      *slog.Logger
	credentials backend.CredentialProvider

	mu    sync.Mutex
	tasks []*Task
}

type Option func(*Registry)

func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithCredentials sets the provider handed to every task created afterwards.
func WithCredentials(p backend.CredentialProvider) Option {
	return func(r *Registry) { r.credentials = p }
}

func NewRegistry(b backend.Backend, opts ...Option) *Registry {
	r := &Registry{backend: b, observer: nopObserver{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the task for id, creating it on first use. An identity that
// shares the key of a registered task but tracks another branch, tag or
// sub-path is rejected with ErrConflict.
func (r *Registry) Get(id Identity) (*Task, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t := r.find(id.Key()); t != nil {
		if existing := t.Identity(); existing.conflicts(id) {
			return nil, fmt.Errorf("%w: %s is already registered as %s", ErrConflict, id, existing)
		}
		return t, nil
	}
	t := newTask(State{Identity: id, Credentials: r.credentials}, r.backend, r.observer, r.logger)
	r.tasks = append(r.tasks, t)
	return t, nil
}

// Lookup returns the registered task for id without creating one.
func (r *Registry) Lookup(id Identity) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.find(id.Key())
	return t, t != nil
}

func (r *Registry) find(key Key) *Task {
	for _, t := range r.tasks {
		if t.Identity().Key() == key {
			return t
		}
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Tasks returns a snapshot of the registered tasks.
func (r *Registry) Tasks() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Task(nil), r.tasks...)
}

// Remove deletes the checkout of id from disk and forgets its task. It
// refuses while an operation of that task is running.
func (r *Registry) Remove(id Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i, t := range r.tasks {
		if t.Identity().Key() == id.Key() {
			idx = i
			break
		}
	}
	if idx < 0 {
		if err := removeCheckout(id.Path()); err != nil {
			return fmt.Errorf("remove %s: %w", id.Path(), err)
		}
		return nil
	}
	if err := r.tasks[idx].Remove(); err != nil {
		return err
	}
	r.tasks = append(r.tasks[:idx], r.tasks[idx+1:]...)
	return nil
}

// removeCheckout deletes path recursively. git marks pack files read-only,
// which some platforms refuse to delete, so write permission is restored
// first.
func removeCheckout(path string) error {
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := info.Mode().Perm() | 0o200
		if d.IsDir() {
			mode |= 0o700
		}
		return os.Chmod(p, mode)
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.RemoveAll(path)
}
