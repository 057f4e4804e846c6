// Package gittest builds throwaway upstream repositories for tests.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const Branch = "main"

// RequireGit skips the test when no git executable is available. go-git's
// local transport spawns git-upload-pack and git-receive-pack.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git executable not available")
	}
}

// HermeticEnv returns KEY=VALUE pairs that hide the user's and the system's
// git configuration from a spawned git, so no identity is configured.
func HermeticEnv(t testing.TB) []string {
	t.Helper()
	home := t.TempDir()
	global := filepath.Join(home, ".gitconfig")
	if err := os.WriteFile(global, nil, 0o644); err != nil {
		t.Fatalf("write gitconfig: %v", err)
	}
	return []string{
		"HOME=" + home,
		"XDG_CONFIG_HOME=" + home,
		"GIT_CONFIG_GLOBAL=" + global,
		"GIT_CONFIG_NOSYSTEM=1",
	}
}

// Remote is a bare repository fed from a private seed clone.
type Remote struct {
	URL  string
	seed *git.Repository
	dir  string
}

// NewRemote creates a bare repository whose "main" branch holds files.
func NewRemote(t testing.TB, files map[string]string) *Remote {
	t.Helper()
	RequireGit(t)

	bareDir := filepath.Join(t.TempDir(), "upstream.git")
	mainRef := plumbing.NewBranchReferenceName(Branch)
	if _, err := git.PlainInitWithOptions(bareDir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: mainRef},
		Bare:        true,
	}); err != nil {
		t.Fatalf("init bare: %v", err)
	}

	seedDir := t.TempDir()
	seed, err := git.PlainInitWithOptions(seedDir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: mainRef},
	})
	if err != nil {
		t.Fatalf("init seed: %v", err)
	}
	if _, err := seed.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{bareDir}}); err != nil {
		t.Fatalf("create remote: %v", err)
	}
	r := &Remote{URL: bareDir, seed: seed, dir: seedDir}
	r.Commit(t, files, "initial")
	return r
}

// Commit writes files into the seed, commits and pushes them upstream. It
// returns the new commit hash.
func (r *Remote) Commit(t testing.TB, files map[string]string, msg string) string {
	t.Helper()
	wt, err := r.seed.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	for name, content := range files {
		WriteFile(t, filepath.Join(r.dir, name), content)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		t.Fatalf("add: %v", err)
	}
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Upstream", Email: "upstream@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	r.push(t, "refs/heads/"+Branch)
	return hash.String()
}

// Tag creates a lightweight tag on the seed HEAD and pushes it.
func (r *Remote) Tag(t testing.TB, name string) {
	t.Helper()
	head, err := r.seed.Head()
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if _, err := r.seed.CreateTag(name, head.Hash(), nil); err != nil {
		t.Fatalf("tag: %v", err)
	}
	r.push(t, "refs/tags/"+name)
}

func (r *Remote) push(t testing.TB, ref string) {
	t.Helper()
	err := r.seed.Push(&git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{config.RefSpec(ref + ":" + ref)},
	})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		t.Fatalf("push %s: %v", ref, err)
	}
}

// Head returns the hash "main" points to in the bare repository.
func (r *Remote) Head(t testing.TB) string {
	t.Helper()
	bare, err := git.PlainOpen(r.URL)
	if err != nil {
		t.Fatalf("open bare: %v", err)
	}
	ref, err := bare.Reference(plumbing.NewBranchReferenceName(Branch), true)
	if err != nil {
		t.Fatalf("resolve %s: %v", Branch, err)
	}
	return ref.Hash().String()
}

// HeadMessage returns the message of the commit "main" points to upstream.
func (r *Remote) HeadMessage(t testing.TB) string {
	t.Helper()
	bare, err := git.PlainOpen(r.URL)
	if err != nil {
		t.Fatalf("open bare: %v", err)
	}
	commit, err := bare.CommitObject(plumbing.NewHash(r.Head(t)))
	if err != nil {
		t.Fatalf("commit object: %v", err)
	}
	return commit.Message
}

func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func ReadFile(t testing.TB, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(b)
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
