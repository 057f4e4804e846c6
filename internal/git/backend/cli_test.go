package backend

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/google/go-cmp/cmp"

	"github.com/thiagokokada/gitdeps/internal/gittest"
)

func newTestCLI(t *testing.T) *CLI {
	t.Helper()
	gittest.RequireGit(t)
	c, err := NewCLI(WithDepth(0), WithEnv(
		"GIT_AUTHOR_NAME=Test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=Test", "GIT_COMMITTER_EMAIL=test@example.com",
	))
	if err != nil {
		t.Skipf("git CLI unavailable: %v", err)
	}
	return c
}

func TestCLI_AuthArgs(t *testing.T) {
	t.Parallel()

	c := &CLI{opts: buildOptions(nil)}
	var gotUser string
	var gotAllowed CredentialType
	cb := Callbacks{Credentials: CredentialFunc(func(url, user string, allowed CredentialType) (transport.AuthMethod, error) {
		gotUser, gotAllowed = user, allowed
		return &githttp.BasicAuth{Username: "bot", Password: "s3cret"}, nil
	})}

	args, masked := c.authArgs(Operation{Kind: KindFetch, URL: "https://alice@example.com/r.git", Branch: "main"}, cb)
	wantArgs := []string{"-c", "http.extraHeader=Authorization: Basic Ym90OnMzY3JldA=="}
	if diff := cmp.Diff(wantArgs, args); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
	if strings.Contains(strings.Join(masked, " "), "Ym90") {
		t.Fatalf("masked args leak the secret: %v", masked)
	}
	if gotUser != "alice" || !gotAllowed.Has(CredentialUserPass) {
		t.Fatalf("provider called with user=%q allowed=%v", gotUser, gotAllowed)
	}
}

func TestCLI_AuthArgs_Skipped(t *testing.T) {
	t.Parallel()

	c := &CLI{opts: buildOptions(nil)}
	called := false
	provider := CredentialFunc(func(string, string, CredentialType) (transport.AuthMethod, error) {
		called = true
		return nil, errors.New("should not be used")
	})

	for _, op := range []Operation{
		{Kind: KindStatus, URL: "https://example.com/r.git"},
		{Kind: KindFetch, URL: "git@example.com:r.git", Branch: "main"},
		{Kind: KindFetch, URL: "/srv/git/r.git", Branch: "main"},
	} {
		if args, _ := c.authArgs(op, Callbacks{Credentials: provider}); args != nil {
			t.Fatalf("authArgs(%+v) = %v, want nil", op, args)
		}
	}
	if called {
		t.Fatal("provider consulted for a non-http operation")
	}
}

func TestCLI_CloneStatusReset(t *testing.T) {
	t.Parallel()

	c := newTestCLI(t)
	remote := gittest.NewRemote(t, map[string]string{"README.md": "v1\n", "pkg/lib/a.txt": "a\n", "pkg/other/b.txt": "b\n"})
	root := t.TempDir()

	rec := &recorder{}
	ok, out := c.Execute(root, Operation{Kind: KindClone, URL: remote.URL, Branch: gittest.Branch, Target: "dep"}, rec.callbacks())
	if !ok {
		t.Fatalf("clone failed:\n%s", out)
	}
	if !strings.HasPrefix(out, "Running: 'git clone --progress ") {
		t.Fatalf("clone output does not start with the running line:\n%s", out)
	}
	dir := filepath.Join(root, "dep")

	gittest.WriteFile(t, filepath.Join(dir, "untracked.txt"), "keep me")
	entries := ParseStatus(mustExecute(t, c, dir, Operation{Kind: KindStatus}))
	if diff := cmp.Diff([]StatusEntry{{Code: "??", Path: "untracked.txt"}}, entries); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}

	remote.Commit(t, map[string]string{"README.md": "v2\n"}, "second")
	mustExecute(t, c, dir, Operation{Kind: KindFetch, Branch: gittest.Branch})
	out = mustExecute(t, c, dir, Operation{Kind: KindReset, Target: "origin/" + gittest.Branch})
	if !strings.Contains(out, "HEAD is now at") {
		t.Fatalf("reset output missing marker:\n%s", out)
	}
	if got := gittest.ReadFile(t, filepath.Join(dir, "README.md")); got != "v2\n" {
		t.Fatalf("README.md = %q, want v2", got)
	}
	if !gittest.Exists(filepath.Join(dir, "untracked.txt")) {
		t.Fatal("reset removed an untracked file")
	}
}

func TestCLI_SparseSet(t *testing.T) {
	t.Parallel()

	c := newTestCLI(t)
	remote := gittest.NewRemote(t, map[string]string{"README.md": "v1\n", "pkg/lib/a.txt": "a\n", "pkg/other/b.txt": "b\n"})
	root := t.TempDir()

	mustExecute(t, c, root, Operation{Kind: KindClone, URL: remote.URL, Branch: gittest.Branch, Target: "dep", SparsePath: "pkg/lib"})
	dir := filepath.Join(root, "dep")
	mustExecute(t, c, dir, Operation{Kind: KindSparseSet, SparsePath: "pkg/lib"})

	if !gittest.Exists(filepath.Join(dir, "pkg", "lib", "a.txt")) {
		t.Fatal("sparse path missing")
	}
	if gittest.Exists(filepath.Join(dir, "pkg", "other", "b.txt")) {
		t.Fatal("path outside the sparse set was checked out")
	}
}

func TestCLI_NonZeroExit(t *testing.T) {
	t.Parallel()

	c := newTestCLI(t)
	rec := &recorder{}
	ok, out := c.Execute(t.TempDir(), Operation{Kind: KindStatus}, rec.callbacks())
	if ok {
		t.Fatalf("status outside a repository succeeded:\n%s", out)
	}
	if !strings.Contains(strings.ToLower(out), "not a git repository") {
		t.Fatalf("output missing git diagnostic:\n%s", out)
	}
	if f := rec.failures(); len(f) != 1 || f[0].Message != out {
		t.Fatalf("failure reports = %+v", f)
	}
}

func TestCLI_StatusReportsModifiedTrackedFile(t *testing.T) {
	t.Parallel()

	c := newTestCLI(t)
	remote := gittest.NewRemote(t, map[string]string{"README.md": "v1\n", "lib.txt": "lib\n"})
	root := t.TempDir()
	mustExecute(t, c, root, Operation{Kind: KindClone, URL: remote.URL, Branch: gittest.Branch, Target: "dep"})
	dir := filepath.Join(root, "dep")

	gittest.WriteFile(t, filepath.Join(dir, "lib.txt"), "edited\n")
	if err := os.Remove(filepath.Join(dir, "README.md")); err != nil {
		t.Fatal(err)
	}
	entries := ParseStatus(mustExecute(t, c, dir, Operation{Kind: KindStatus}))
	want := []StatusEntry{{Code: " D", Path: "README.md"}, {Code: " M", Path: "lib.txt"}}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestCLI_CommitFallbackIdentity(t *testing.T) {
	t.Parallel()

	gittest.RequireGit(t)
	c, err := NewCLI(WithDepth(0), WithEnv(gittest.HermeticEnv(t)...), WithCommitter("Vendor Bot", "bot@example.com"))
	if err != nil {
		t.Skipf("git CLI unavailable: %v", err)
	}
	remote := gittest.NewRemote(t, map[string]string{"README.md": "v1\n"})

	tests := []struct {
		name      string
		localUser bool
		wantName  string
		wantEmail string
	}{
		{name: "no identity configured", wantName: "Vendor Bot", wantEmail: "bot@example.com"},
		{name: "repository identity wins", localUser: true, wantName: "Local User", wantEmail: "local@example.com"},
	}
	for _, tt := range tests {
		root := t.TempDir()
		mustExecute(t, c, root, Operation{Kind: KindClone, URL: remote.URL, Branch: gittest.Branch, Target: "dep"})
		dir := filepath.Join(root, "dep")
		repo, err := git.PlainOpen(dir)
		if err != nil {
			t.Fatalf("%s: open: %v", tt.name, err)
		}
		if tt.localUser {
			cfg, err := repo.Config()
			if err != nil {
				t.Fatalf("%s: config: %v", tt.name, err)
			}
			cfg.User.Name, cfg.User.Email = "Local User", "local@example.com"
			if err := repo.SetConfig(cfg); err != nil {
				t.Fatalf("%s: set config: %v", tt.name, err)
			}
		}

		gittest.WriteFile(t, filepath.Join(dir, "fix.txt"), "fix\n")
		mustExecute(t, c, dir, Operation{Kind: KindAdd})
		mustExecute(t, c, dir, Operation{Kind: KindCommit, Message: "Vendor fix"})

		head, err := repo.Head()
		if err != nil {
			t.Fatalf("%s: head: %v", tt.name, err)
		}
		commit, err := repo.CommitObject(head.Hash())
		if err != nil {
			t.Fatalf("%s: commit: %v", tt.name, err)
		}
		if commit.Author.Name != tt.wantName || commit.Author.Email != tt.wantEmail {
			t.Fatalf("%s: author = %s <%s>, want %s <%s>", tt.name, commit.Author.Name, commit.Author.Email, tt.wantName, tt.wantEmail)
		}
		if commit.Committer.Email != tt.wantEmail {
			t.Fatalf("%s: committer email = %q, want %q", tt.name, commit.Committer.Email, tt.wantEmail)
		}
	}
}
