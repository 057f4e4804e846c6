package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Native performs every operation in-process with go-git. Output mirrors what
// the git executable prints for the same command closely enough that callers
// can look for the same markers ("HEAD is now at").
type Native struct {
	opts options
}

var _ Backend = (*Native)(nil)

func NewNative(opts ...Option) *Native {
	return &Native{opts: buildOptions(opts)}
}

func (n *Native) Name() string { return "native" }

func (n *Native) Execute(dir string, op Operation, cb Callbacks) (bool, string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	display := op.Describe(n.opts.depth)
	tr := newTranscript(cb, cancel)
	tr.say(fmt.Sprintf("Running: '%s' in '%s'", display, dir))

	err := n.dispatch(ctx, dir, op, tr)
	tr.flush()
	if err == nil {
		return true, tr.output()
	}
	if ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
		err = fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return false, tr.fail(fmt.Sprintf("Error in command: '%s' running in '%s', %v", display, dir, err))
}

func (n *Native) dispatch(ctx context.Context, dir string, op Operation, tr *transcript) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if _, err := op.Args(n.opts.depth); err != nil {
		return err
	}
	if tr.cb.cancelled() {
		return ErrCancelled
	}

	switch op.Kind {
	case KindClone:
		return n.clone(ctx, dir, op, tr)
	case KindLsRemote:
		return n.lsRemote(ctx, op, tr)
	}

	repo, err := git.PlainOpen(dir)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	switch op.Kind {
	case KindSparseSet:
		return checkoutSparse(repo, op.sparsePath())
	case KindCheckout:
		return checkoutBranch(repo, op)
	case KindFetch:
		return n.fetch(ctx, repo, op, tr)
	case KindReset:
		return resetHard(repo, op, tr)
	case KindStatus:
		return status(repo, tr)
	case KindAdd:
		wt, err := repo.Worktree()
		if err != nil {
			return err
		}
		return wt.AddWithOptions(&git.AddOptions{All: true})
	case KindCommit:
		return n.commit(repo, op, tr)
	case KindPull:
		return n.pull(ctx, repo, op, tr)
	case KindPush:
		return n.push(ctx, repo, op, tr)
	case KindClean:
		return clean(repo, tr)
	}
	return fmt.Errorf("unsupported operation %s", op.Kind)
}

func (n *Native) auth(url string, cb Callbacks) (transport.AuthMethod, error) {
	if cb.Credentials == nil || url == "" {
		return nil, nil
	}
	ep, err := transport.NewEndpoint(url)
	if err != nil {
		return nil, err
	}
	allowed := CredentialDefault
	switch ep.Protocol {
	case "http", "https":
		allowed |= CredentialUserPass
	case "ssh":
		allowed |= CredentialSSHKey
	default:
		return nil, nil
	}
	return cb.Credentials.Credentials(url, ep.User, allowed)
}

func (n *Native) remoteURL(repo *git.Repository, op Operation) string {
	if op.URL != "" {
		return op.URL
	}
	remote, err := repo.Remote(op.remote())
	if err != nil || len(remote.Config().URLs) == 0 {
		return ""
	}
	return remote.Config().URLs[0]
}

func refName(op Operation) plumbing.ReferenceName {
	if op.Tag != "" {
		return plumbing.NewTagReferenceName(op.Tag)
	}
	return plumbing.NewBranchReferenceName(op.Branch)
}

func (n *Native) clone(ctx context.Context, dir string, op Operation, tr *transcript) error {
	auth, err := n.auth(op.URL, tr.cb)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	sparse := op.sparsePath()
	tr.say(fmt.Sprintf("Cloning into '%s'...", op.Target))
	repo, err := git.PlainCloneContext(ctx, filepath.Join(dir, op.Target), false, &git.CloneOptions{
		URL:           op.URL,
		Auth:          auth,
		RemoteName:    op.remote(),
		ReferenceName: refName(op),
		SingleBranch:  true,
		Depth:         n.opts.depth,
		NoCheckout:    sparse != "",
		Tags:          git.NoTags,
		Progress:      tr,
	})
	if err != nil {
		return err
	}
	if sparse == "" {
		return nil
	}
	return checkoutSparse(repo, sparse)
}

func checkoutSparse(repo *git.Repository, sparse string) error {
	if sparse == "" {
		return fmt.Errorf("sparse-checkout: sub-path is required")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	head, err := repo.Head()
	if err != nil {
		return err
	}
	opts := &git.CheckoutOptions{Force: true, SparseCheckoutDirectories: []string{sparse}}
	if head.Name().IsBranch() {
		opts.Branch = head.Name()
	} else {
		opts.Hash = head.Hash()
	}
	return wt.Checkout(opts)
}

// checkoutBranch mirrors "git checkout [-f] -B <branch>": the branch is
// (re)pointed at HEAD and then checked out. Without Force local changes are
// kept.
func checkoutBranch(repo *git.Repository, op Operation) error {
	head, err := repo.Head()
	if err != nil {
		return err
	}
	branch := plumbing.NewBranchReferenceName(op.Branch)
	if err := repo.Storer.SetReference(plumbing.NewHashReference(branch, head.Hash())); err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	opts := &git.CheckoutOptions{Branch: branch, Force: op.Force, Keep: !op.Force}
	if sparse := op.sparsePath(); sparse != "" {
		opts.SparseCheckoutDirectories = []string{sparse}
	}
	return keepUntracked(wt, func() error { return wt.Checkout(opts) })
}

func (n *Native) fetch(ctx context.Context, repo *git.Repository, op Operation, tr *transcript) error {
	auth, err := n.auth(n.remoteURL(repo, op), tr.cb)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: op.remote(),
		RefSpecs:   []config.RefSpec{config.RefSpec(op.FetchRefSpec())},
		Depth:      n.opts.depth,
		Auth:       auth,
		Progress:   tr,
		Tags:       git.NoTags,
		Force:      true,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		tr.say("Already up to date.")
		return nil
	}
	return err
}

func resetHard(repo *git.Repository, op Operation, tr *transcript) error {
	hash, err := repo.ResolveRevision(plumbing.Revision(op.Target))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", op.Target, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	ro := &git.ResetOptions{Commit: *hash, Mode: git.HardReset}
	err = keepUntracked(wt, func() error {
		if sparse := op.sparsePath(); sparse != "" {
			return wt.ResetSparsely(ro, []string{sparse})
		}
		return wt.Reset(ro)
	})
	if err != nil {
		return err
	}
	subject := ""
	if commit, err := repo.CommitObject(*hash); err == nil {
		subject, _, _ = strings.Cut(commit.Message, "\n")
	}
	tr.say(fmt.Sprintf("HEAD is now at %s %s", hash.String()[:7], subject))
	return nil
}

type untrackedFile struct {
	path string
	mode os.FileMode
	data []byte
}

// keepUntracked runs fn, which may be a forced checkout or a hard reset, and
// puts back the untracked files it deleted. go-git removes them on both, while
// git only does so on "clean". Files that fn replaced with tracked content are
// left alone.
func keepUntracked(wt *git.Worktree, fn func() error) error {
	st, err := wt.Status()
	if err != nil {
		return err
	}
	root := wt.Filesystem.Root()
	var saved []untrackedFile
	for path := range st {
		if !st.IsUntracked(path) {
			continue
		}
		abs := filepath.Join(root, filepath.FromSlash(path))
		fi, err := os.Lstat(abs)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return fmt.Errorf("save untracked %s: %w", path, err)
		}
		saved = append(saved, untrackedFile{path: abs, mode: fi.Mode().Perm(), data: data})
	}

	fnErr := fn()

	var errs []error
	for _, f := range saved {
		if _, err := os.Lstat(f.path); !errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := os.WriteFile(f.path, f.data, f.mode); err != nil {
			errs = append(errs, fmt.Errorf("restore untracked %s: %w", f.path, err))
		}
	}
	return errors.Join(append([]error{fnErr}, errs...)...)
}

func status(repo *git.Repository, tr *transcript) error {
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	st, err := wt.Status()
	if err != nil {
		return err
	}
	var lines []string
	for path, fs := range st {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		if fs.Staging == git.Renamed {
			path = path + " -> " + fs.Extra
		}
		lines = append(lines, fmt.Sprintf("%c%c %s", fs.Staging, fs.Worktree, path))
	}
	slices.Sort(lines)
	for _, line := range lines {
		tr.say(line)
	}
	return nil
}

func (n *Native) commit(repo *git.Repository, op Operation, tr *transcript) error {
	if strings.TrimSpace(op.Message) == "" {
		tr.say("Aborting commit due to empty commit message.")
		return errors.New("empty commit message")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	name, email := n.opts.committerName, n.opts.committerEmail
	if cfg, err := repo.ConfigScoped(config.SystemScope); err == nil {
		if cfg.User.Name != "" {
			name = cfg.User.Name
		}
		if cfg.User.Email != "" {
			email = cfg.User.Email
		}
	}
	hash, err := wt.Commit(op.Message, &git.CommitOptions{
		Author: &object.Signature{Name: name, Email: email, When: time.Now()},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		tr.say("nothing to commit, working tree clean")
		return errors.New("nothing to commit")
	}
	if err != nil {
		return err
	}
	branch := "HEAD"
	if head, err := repo.Head(); err == nil && head.Name().IsBranch() {
		branch = head.Name().Short()
	}
	subject, _, _ := strings.Cut(op.Message, "\n")
	tr.say(fmt.Sprintf("[%s %s] %s", branch, hash.String()[:7], subject))
	return nil
}

func (n *Native) pull(ctx context.Context, repo *git.Repository, op Operation, tr *transcript) error {
	auth, err := n.auth(n.remoteURL(repo, op), tr.cb)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    op.remote(),
		ReferenceName: plumbing.NewBranchReferenceName(op.Branch),
		SingleBranch:  true,
		Depth:         n.opts.depth,
		Auth:          auth,
		Progress:      tr,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		tr.say("Already up to date.")
		return nil
	}
	return err
}

func (n *Native) push(ctx context.Context, repo *git.Repository, op Operation, tr *transcript) error {
	auth, err := n.auth(n.remoteURL(repo, op), tr.cb)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	ref := plumbing.NewBranchReferenceName(op.Branch)
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: op.remote(),
		RefSpecs:   []config.RefSpec{config.RefSpec(ref + ":" + ref)},
		Auth:       auth,
		Progress:   tr,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		tr.say("Everything up-to-date")
		return nil
	}
	return err
}

func clean(repo *git.Repository, tr *transcript) error {
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	st, err := wt.Status()
	if err != nil {
		return err
	}
	var removed []string
	for path := range st {
		if st.IsUntracked(path) {
			removed = append(removed, path)
		}
	}
	slices.Sort(removed)
	if err := wt.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return err
	}
	for _, path := range removed {
		tr.say("Removing " + filepath.ToSlash(path))
	}
	return nil
}

func (n *Native) lsRemote(ctx context.Context, op Operation, tr *transcript) error {
	auth, err := n.auth(op.URL, tr.cb)
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: op.remote(),
		URLs: []string{op.URL},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		return err
	}
	want := []plumbing.ReferenceName{refName(op)}
	if op.Tag != "" {
		want = append(want, plumbing.ReferenceName(refName(op)+"^{}"))
	}
	var lines []string
	for _, ref := range refs {
		if slices.Contains(want, ref.Name()) && ref.Type() == plumbing.HashReference {
			lines = append(lines, ref.Hash().String()+"\t"+ref.Name().String())
		}
	}
	slices.Sort(lines)
	for _, line := range lines {
		tr.say(line)
	}
	return nil
}
