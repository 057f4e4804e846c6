package repository

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chainguard-dev/clog"

	"github.com/thiagokokada/gitdeps/internal/git"
	"github.com/thiagokokada/gitdeps/internal/git/backend"
	"github.com/thiagokokada/gitdeps/internal/progress"
)

const (
	opUpdate = "update"
	opPush   = "push"
	opStatus = "status"
	opClear  = "clear"
)

// StepError is returned when a backend step fails. Its message is the
// captured output of the step.
type StepError struct {
	Kind   backend.Kind
	Output string
}

func (e *StepError) Error() string {
	if out := strings.TrimSpace(e.Output); out != "" {
		return out
	}
	return e.Kind.String() + " failed"
}

// job is one run of an operation against a State snapshot.
type job struct {
	task    *Task
	state   State
	op      string
	message string

	total int // number of backend steps planned
	index int // 1-based index of the running step

	mu      sync.Mutex // progress callbacks may arrive from several goroutines
	reached float64    // highest fraction reported so far
}

// execute makes the metadata visible, runs fn and hides the metadata again,
// converting panics into errors.
func (j *job) execute(fn func(*job) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected fault during %s: %v", j.op, r)
		}
	}()

	path := j.state.Identity.Path()
	if err := git.SetVisible(path, true, j.say); err != nil {
		return err
	}
	defer func() {
		if herr := git.SetVisible(path, false, j.say); herr != nil && err == nil {
			err = herr
		}
	}()
	return fn(j)
}

func (j *job) say(msg string) {
	j.task.progress.Push(progress.Event{Fraction: j.fraction(0), Message: msg})
}

// fraction maps the completion of the running step onto the whole operation.
// It never goes backwards within one job.
func (j *job) fraction(step float64) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.total == 0 || j.index == 0 {
		return j.reached
	}
	done := float64(j.index-1) + min(max(step, 0), 1)
	j.reached = max(j.reached, done/float64(j.total))
	return j.reached
}

func (j *job) plan(steps int) {
	j.total, j.index = steps, 0
}

// step runs one backend operation in dir. When marker is not empty the output
// must contain it even if the backend reported success.
func (j *job) step(dir string, op backend.Operation, marker string) (string, error) {
	j.index++
	if j.index > j.total {
		j.total = j.index
	}
	j.say(fmt.Sprintf("Step %d/%d: %s", j.index, j.total, op.Kind))

	cb := backend.Callbacks{
		Progress: func(r backend.Report) {
			// Failures surface once, as the terminal event.
			if r.OK {
				j.task.progress.Push(progress.Event{Fraction: j.fraction(r.Fraction), Message: r.Message})
			}
		},
		Cancelled:   j.task.cancelled.Load,
		Credentials: j.state.Credentials,
	}
	ok, out := j.task.backend.Execute(dir, op, cb)
	if !ok {
		return out, &StepError{Kind: op.Kind, Output: out}
	}
	if marker != "" && !strings.Contains(out, marker) {
		return out, &StepError{Kind: op.Kind, Output: out + "\nexpected output not found: " + marker}
	}
	j.task.progress.Push(progress.Event{Fraction: j.fraction(1), Message: fmt.Sprintf("%s done", op.Kind)})
	return out, nil
}

func (j *job) requireCheckout() error {
	if !git.IsValid(j.state.Identity.Path()) {
		return ErrNotFound
	}
	return nil
}

func (j *job) update() error {
	id := j.state.Identity
	if !git.IsValid(id.Path()) {
		return j.clone()
	}
	clog.FromContext(j.task.ctx).Debugf("refreshing %s", id.Path())
	return j.resetToRemote(false)
}

func (j *job) clone() error {
	id := j.state.Identity
	sparse := id.Sparse()
	j.plan(1)
	if sparse != "" {
		j.plan(2)
	}
	if err := os.MkdirAll(filepath.Dir(id.Path()), 0o755); err != nil {
		return fmt.Errorf("create checkout parent: %w", err)
	}
	_, err := j.step(id.Root, backend.Operation{
		Kind:       backend.KindClone,
		URL:        id.URL,
		Branch:     id.Branch,
		Tag:        id.Tag,
		Target:     id.Folder,
		SparsePath: sparse,
	}, "")
	if err != nil {
		return err
	}
	if sparse == "" {
		return nil
	}
	if _, err := j.step(id.Path(), backend.Operation{Kind: backend.KindSparseSet, SparsePath: sparse}, ""); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(id.Path(), filepath.FromSlash(sparse))); err != nil {
		return fmt.Errorf("sparse checkout of %q did not materialize: %w", sparse, err)
	}
	return nil
}

// resetToRemote force-checks out the branch, fetches the tracked ref and
// hard-resets to it. With clean set, untracked files are removed first.
func (j *job) resetToRemote(clean bool) error {
	id := j.state.Identity
	dir := id.Path()
	sparse := id.Sparse()

	steps := 2
	if id.Tag == "" {
		steps++
	}
	if clean {
		steps++
	}
	j.plan(steps)

	if clean {
		if _, err := j.step(dir, backend.Operation{Kind: backend.KindClean}, ""); err != nil {
			return err
		}
	}
	if id.Tag == "" {
		op := backend.Operation{Kind: backend.KindCheckout, Branch: id.Branch, Force: true, SparsePath: sparse}
		if _, err := j.step(dir, op, ""); err != nil {
			return err
		}
	}
	fetch := backend.Operation{Kind: backend.KindFetch, URL: id.URL, Branch: id.Branch, Tag: id.Tag}
	if _, err := j.step(dir, fetch, ""); err != nil {
		return err
	}
	reset := backend.Operation{Kind: backend.KindReset, Target: id.RemoteTarget(), SparsePath: sparse}
	_, err := j.step(dir, reset, "HEAD is now at")
	return err
}

func (j *job) clear() error {
	if err := j.requireCheckout(); err != nil {
		return err
	}
	return j.resetToRemote(true)
}

func (j *job) push(message, branch string) error {
	if err := j.requireCheckout(); err != nil {
		return err
	}
	id := j.state.Identity
	if branch == "" {
		branch = id.Branch
	}
	if branch == "" {
		return errors.New("push needs a branch: the dependency is pinned to a tag")
	}
	if IsDefaultMessage(message) {
		clog.FromContext(j.task.ctx).Warnf("pushing with the default commit message %q", message)
	}

	dir := id.Path()
	j.plan(5)
	steps := []backend.Operation{
		{Kind: backend.KindCheckout, Branch: branch, SparsePath: id.Sparse()},
		{Kind: backend.KindPull, URL: id.URL, Branch: branch},
		{Kind: backend.KindAdd},
		{Kind: backend.KindCommit, Message: message},
		{Kind: backend.KindPush, URL: id.URL, Branch: branch},
	}
	for _, op := range steps {
		if _, err := j.step(dir, op, ""); err != nil {
			return err
		}
	}
	j.message = fmt.Sprintf("Pushed to %s", branch)
	return nil
}

func (j *job) status() error {
	if err := j.requireCheckout(); err != nil {
		j.task.setStatus(nil, false)
		return err
	}
	j.plan(1)
	out, err := j.step(j.state.Identity.Path(), backend.Operation{Kind: backend.KindStatus}, "")
	if err != nil {
		j.task.setStatus(nil, false)
		return err
	}
	entries := backend.ParseStatus(out)
	j.task.setStatus(entries, true)
	switch len(entries) {
	case 0:
		j.message = "No local changes."
	case 1:
		j.message = "1 local change."
	default:
		j.message = fmt.Sprintf("%d local changes.", len(entries))
	}
	return nil
}
