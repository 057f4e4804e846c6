package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/thiagokokada/gitdeps/internal/git"
	"github.com/thiagokokada/gitdeps/internal/git/backend"
	"github.com/thiagokokada/gitdeps/internal/progress"
)

// DefaultCommitMessage is used when the caller has nothing better. Callers
// should warn the user before pushing with it.
const DefaultCommitMessage = "Empty commit message"

func IsDefaultMessage(msg string) bool {
	return msg == DefaultCommitMessage
}

var (
	ErrInProgress = errors.New("an operation is already in progress")
	ErrNotFound   = errors.New("repository not found")
)

// Task owns one checkout. At most one operation runs at a time; a request made
// while one is in flight is rejected, never queued.
type Task struct {
	state    State
	backend  backend.Backend
	progress *progress.Channel
	observer Observer
	ctx      context.Context

	inProgress     atomic.Bool
	cancelled      atomic.Bool
	lastSucceeded  atomic.Bool
	refreshPending atomic.Bool

	mu       sync.Mutex
	done     chan struct{}
	status   []backend.StatusEntry
	statusOK bool
}

func newTask(state State, b backend.Backend, obs Observer, logger *slog.Logger) *Task {
	id := state.Identity
	log := clog.NewLogger(logger).With(
		"folder", id.Folder,
		"url", id.URL,
		"ref", id.Ref(),
	)
	return &Task{
		state:    state,
		backend:  b,
		progress: progress.New(),
		observer: obs,
		ctx:      clog.WithLogger(context.Background(), log),
	}
}

func (t *Task) Identity() Identity { return t.state.Identity }

func (t *Task) InProgress() bool { return t.inProgress.Load() }

func (t *Task) LastOperationSuccess() bool { return t.lastSucceeded.Load() }

// RefreshPending reports whether a mutating operation finished successfully
// since the last AckRefresh.
func (t *Task) RefreshPending() bool { return t.refreshPending.Load() }

func (t *Task) AckRefresh() { t.refreshPending.Store(false) }

// GetLastProgress polls the progress channel; see progress.Channel.
func (t *Task) GetLastProgress() progress.Event { return t.progress.GetLastProgress() }

func (t *Task) Progress() *progress.Channel { return t.progress }

// Cancel asks the running operation to stop. It is advisory: the library
// strategy honors it on its next transfer callback, a running git process is
// never interrupted.
func (t *Task) Cancel() { t.cancelled.Store(true) }

// Valid reports whether the checkout exists on disk.
func (t *Task) Valid() bool { return git.IsValid(t.state.Identity.Path()) }

// LastStatus returns the entries of the last successful status operation.
func (t *Task) LastStatus() ([]backend.StatusEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]backend.StatusEntry(nil), t.status...), t.statusOK
}

// HasUncommittedChanges reports whether the last status found local changes.
func (t *Task) HasUncommittedChanges() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusOK && len(t.status) > 0
}

// Wait blocks until no operation is running or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryUpdate clones the checkout when it does not exist yet, otherwise resets
// it to the remote tip. It returns false when another operation is running.
func (t *Task) TryUpdate() bool {
	return t.start(opUpdate, (*job).update)
}

// TryPush commits every local change with message and pushes it to branch
// (the identity's branch when empty).
func (t *Task) TryPush(message, branch string) bool {
	return t.start(opPush, func(j *job) error { return j.push(message, branch) })
}

func (t *Task) TryStatus() bool {
	return t.start(opStatus, (*job).status)
}

// TryClearLocalChanges discards untracked and modified files and resets to
// the remote tip.
func (t *Task) TryClearLocalChanges() bool {
	return t.start(opClear, (*job).clear)
}

// BlockAndUpdateStatus runs a status operation on the calling goroutine. It
// returns false without doing anything when another operation is running.
func (t *Task) BlockAndUpdateStatus() ([]backend.StatusEntry, bool) {
	done, ok := t.claim(opStatus)
	if !ok {
		return nil, false
	}
	t.run(opStatus, t.state, (*job).status, done)
	if !t.LastOperationSuccess() {
		return nil, false
	}
	return t.LastStatus()
}

func (t *Task) start(op string, fn func(*job) error) bool {
	done, ok := t.claim(op)
	if !ok {
		return false
	}
	go t.run(op, t.state, fn, done)
	return true
}

func (t *Task) claim(op string) (chan struct{}, bool) {
	done, ok := t.acquire()
	if !ok {
		t.observer.Rejected(op)
		clog.FromContext(t.ctx).Debugf("%s rejected: %v", op, ErrInProgress)
		return nil, false
	}
	t.cancelled.Store(false)
	t.progress.Reset()
	t.observer.Started(op)
	return done, true
}

// acquire sets the in-progress flag and publishes the channel closed when the
// operation ends. Both happen under mu so Wait never sees a stale channel.
func (t *Task) acquire() (chan struct{}, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.inProgress.CompareAndSwap(false, true) {
		return nil, false
	}
	t.done = make(chan struct{})
	return t.done, true
}

// release clears the in-progress flag and wakes the Wait callers.
func (t *Task) release(done chan struct{}) {
	t.inProgress.Store(false)
	close(done)
}

// run executes one operation and publishes its terminal event. The metadata
// directory is hidden again before the terminal event is pushed, and the
// in-progress flag is cleared on every path, including panics.
func (t *Task) run(op string, state State, fn func(*job) error, done chan struct{}) {
	start := time.Now()
	log := clog.FromContext(t.ctx)
	j := &job{task: t, state: state, op: op, message: "Complete"}

	defer t.release(done)

	err := j.execute(fn)
	t.lastSucceeded.Store(err == nil)
	t.observer.Finished(op, err == nil, time.Since(start))
	if err != nil {
		log.Errorf("%s failed: %v%s", op, err, hint(err.Error()))
		t.progress.Push(progress.Event{Fraction: j.fraction(0), Message: eventMessage(err), Error: true})
		return
	}
	if op != opStatus {
		t.refreshPending.Store(true)
	}
	log.Infof("%s finished in %s", op, time.Since(start).Round(time.Millisecond))
	t.progress.Push(progress.Event{Fraction: 1, Message: j.message})
}

// Remove deletes the checkout from disk. It fails with ErrInProgress while an
// operation is running.
func (t *Task) Remove() error {
	id := t.state.Identity
	done, ok := t.acquire()
	if !ok {
		return fmt.Errorf("remove %s: %w", id.Folder, ErrInProgress)
	}
	defer t.release(done)

	path := id.Path()
	if err := removeCheckout(path); err != nil {
		t.lastSucceeded.Store(false)
		t.progress.Push(progress.Event{Message: err.Error(), Error: true})
		return fmt.Errorf("remove %s: %w", path, err)
	}
	t.setStatus(nil, false)
	t.lastSucceeded.Store(true)
	t.refreshPending.Store(true)
	t.progress.Reset()
	t.progress.Push(progress.Event{Fraction: 1, Message: "Removed repository at " + path})
	clog.FromContext(t.ctx).Infof("removed repository at %s", path)
	return nil
}

func (t *Task) setStatus(entries []backend.StatusEntry, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status, t.statusOK = entries, ok
}

// CheckRemote verifies that the remote exposes the tracked branch or tag. It
// does not touch the checkout and may run concurrently with other operations.
func (t *Task) CheckRemote() error {
	id := t.state.Identity
	op := backend.Operation{Kind: backend.KindLsRemote, URL: id.URL, Branch: id.Branch, Tag: id.Tag}
	ok, out := t.backend.Execute(existingDir(id.Root), op, backend.Callbacks{Credentials: t.state.Credentials})
	if !ok {
		return fmt.Errorf("ls-remote %s: %s", id.URL, out)
	}
	refs, err := backend.ParseLsRemote(out)
	if err != nil {
		return err
	}
	want := backend.RefKindBranch
	if id.Tag != "" {
		want = backend.RefKindTag
	}
	for _, ref := range refs {
		if ref.Kind == want && ref.Name == id.Ref() {
			return nil
		}
	}
	return fmt.Errorf("%s: %w: %s", id.URL, ErrRemoteRefNotFound, id.Ref())
}

var ErrRemoteRefNotFound = errors.New("remote ref not found")

// notFoundMessage is shown when an operation needs a checkout that does not
// exist.
const notFoundMessage = "Repository not found."

func eventMessage(err error) string {
	if errors.Is(err, ErrNotFound) {
		return notFoundMessage
	}
	return err.Error()
}
