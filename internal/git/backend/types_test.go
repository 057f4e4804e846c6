package backend

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOperationArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		op    Operation
		depth int
		want  []string
	}{
		{
			name:  "clone_full",
			op:    Operation{Kind: KindClone, URL: "https://example.com/r.git", Branch: "main", Target: "dep"},
			depth: 1,
			want:  []string{"clone", "--progress", "https://example.com/r.git", "--filter=blob:none", "--single-branch", "--branch", "main", "--depth", "1", "dep"},
		},
		{
			name: "clone_sparse_tag_full_history",
			op:   Operation{Kind: KindClone, URL: "u", Branch: "main", Tag: "v1.2", Target: "dep", SparsePath: "/pkg/lib/"},
			want: []string{"clone", "--progress", "u", "--filter=blob:none", "--sparse", "--single-branch", "--branch", "v1.2", "dep"},
		},
		{
			name: "sparse_set",
			op:   Operation{Kind: KindSparseSet, SparsePath: `pkg\lib`},
			want: []string{"sparse-checkout", "set", "pkg/lib"},
		},
		{
			name: "checkout_force",
			op:   Operation{Kind: KindCheckout, Branch: "main", Force: true},
			want: []string{"checkout", "-f", "-B", "main"},
		},
		{
			name: "checkout_keep",
			op:   Operation{Kind: KindCheckout, Branch: "main"},
			want: []string{"checkout", "-B", "main"},
		},
		{
			name:  "fetch_branch",
			op:    Operation{Kind: KindFetch, Branch: "dev"},
			depth: 1,
			want:  []string{"fetch", "--progress", "origin", "+refs/heads/dev:refs/remotes/origin/dev", "--depth", "1"},
		},
		{
			name: "fetch_tag",
			op:   Operation{Kind: KindFetch, Branch: "main", Tag: "v1"},
			want: []string{"fetch", "--progress", "origin", "+refs/tags/v1:refs/tags/v1"},
		},
		{
			name: "reset",
			op:   Operation{Kind: KindReset, Target: "origin/main"},
			want: []string{"reset", "--hard", "origin/main"},
		},
		{name: "status", op: Operation{Kind: KindStatus}, want: []string{"status", "--porcelain"}},
		{name: "add", op: Operation{Kind: KindAdd}, want: []string{"add", "--all"}},
		{name: "commit", op: Operation{Kind: KindCommit, Message: "it's done"}, want: []string{"commit", "-m", "it's done"}},
		{
			name: "pull",
			op:   Operation{Kind: KindPull, Branch: "main", Remote: "upstream"},
			want: []string{"pull", "--no-rebase", "--no-edit", "upstream", "main"},
		},
		{name: "push", op: Operation{Kind: KindPush, Branch: "main"}, want: []string{"push", "--progress", "origin", "main"}},
		{name: "clean", op: Operation{Kind: KindClean}, want: []string{"clean", "-fd"}},
		{
			name: "ls_remote",
			op:   Operation{Kind: KindLsRemote, URL: "u", Branch: "main"},
			want: []string{"ls-remote", "u", "main"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.op.Args(tt.depth)
			if err != nil {
				t.Fatalf("Args() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Args() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOperationArgs_MissingFields(t *testing.T) {
	t.Parallel()

	for _, op := range []Operation{
		{Kind: KindClone, URL: "u", Branch: "main"},
		{Kind: KindSparseSet, SparsePath: "/"},
		{Kind: KindCheckout},
		{Kind: KindFetch},
		{Kind: KindReset},
		{Kind: KindPull},
		{Kind: KindPush},
		{Kind: KindLsRemote, Branch: "main"},
		{Kind: Kind(200)},
	} {
		if _, err := op.Args(1); err == nil {
			t.Fatalf("Args(%+v) = nil error, want error", op)
		}
	}
}

func TestNormalizeSparsePath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":               "",
		".":              "",
		"/":              "",
		"  ":             "",
		"pkg":            "pkg",
		"/pkg/lib/":      "pkg/lib",
		`pkg\lib`:        "pkg/lib",
		"pkg/./lib//x":   "pkg/lib/x",
		"../outside/dir": "outside/dir",
	}
	for in, want := range tests {
		if got := NormalizeSparsePath(in); got != want {
			t.Fatalf("NormalizeSparsePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKind(t *testing.T) {
	t.Parallel()

	if got := KindSparseSet.String(); got != "sparse-checkout" {
		t.Fatalf("KindSparseSet.String() = %q", got)
	}
	if got := Kind(99).String(); got != "kind(99)" {
		t.Fatalf("Kind(99).String() = %q", got)
	}
	for _, k := range []Kind{KindClone, KindFetch, KindPull, KindPush, KindLsRemote} {
		if !k.Network() {
			t.Fatalf("%s.Network() = false, want true", k)
		}
	}
	for _, k := range []Kind{KindStatus, KindReset, KindCommit, KindClean} {
		if k.Network() {
			t.Fatalf("%s.Network() = true, want false", k)
		}
	}
}
