package repository

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/thiagokokada/gitdeps/internal/git/backend"
)

// fakeBackend records every operation. Without execFunc it simulates a
// well-behaved git: clone creates the metadata directory (and the sparse
// path), reset prints its marker, everything else succeeds silently.
type fakeBackend struct {
	execFunc func(dir string, op backend.Operation, cb backend.Callbacks) (bool, string)

	mu    sync.Mutex
	calls []backend.Operation
	dirs  []string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Execute(dir string, op backend.Operation, cb backend.Callbacks) (bool, string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.dirs = append(f.dirs, dir)
	f.mu.Unlock()
	if f.execFunc != nil {
		return f.execFunc(dir, op, cb)
	}
	return simulate(dir, op, cb)
}

func simulate(dir string, op backend.Operation, cb backend.Callbacks) (bool, string) {
	running := "Running: '" + op.Describe(1) + "' in '" + dir + "'"
	if cb.Progress != nil {
		cb.Progress(backend.Report{OK: true, Fraction: backend.NoFraction, Message: running})
	}
	switch op.Kind {
	case backend.KindClone:
		target := filepath.Join(dir, op.Target)
		if err := os.MkdirAll(filepath.Join(target, ".git"), 0o755); err != nil {
			return false, err.Error()
		}
		if sparse := backend.NormalizeSparsePath(op.SparsePath); sparse != "" {
			if err := os.MkdirAll(filepath.Join(target, filepath.FromSlash(sparse)), 0o755); err != nil {
				return false, err.Error()
			}
		}
		if cb.Progress != nil {
			cb.Progress(backend.Report{OK: true, Fraction: 0.5, Message: "Receiving objects:  50% (1/2)"})
		}
	case backend.KindReset:
		return true, running + "\nHEAD is now at 1234567 subject\n"
	}
	return true, running + "\n"
}

func (f *fakeBackend) kinds() []backend.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]backend.Kind, len(f.calls))
	for i, op := range f.calls {
		kinds[i] = op.Kind
	}
	return kinds
}

func (f *fakeBackend) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls, f.dirs = nil, nil
}

func (f *fakeBackend) call(i int) (string, backend.Operation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirs[i], f.calls[i]
}
