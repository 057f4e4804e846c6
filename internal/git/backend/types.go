package backend

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

const DefaultRemote = "origin"

type Kind uint8

const (
	KindClone Kind = iota
	KindSparseSet
	KindCheckout
	KindFetch
	KindReset
	KindStatus
	KindAdd
	KindCommit
	KindPull
	KindPush
	KindClean
	KindLsRemote
)

var kindNames = [...]string{
	KindClone:     "clone",
	KindSparseSet: "sparse-checkout",
	KindCheckout:  "checkout",
	KindFetch:     "fetch",
	KindReset:     "reset",
	KindStatus:    "status",
	KindAdd:       "add",
	KindCommit:    "commit",
	KindPull:      "pull",
	KindPush:      "push",
	KindClean:     "clean",
	KindLsRemote:  "ls-remote",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Network reports whether the operation talks to a remote.
func (k Kind) Network() bool {
	switch k {
	case KindClone, KindFetch, KindPull, KindPush, KindLsRemote:
		return true
	}
	return false
}

type Operation struct {
	Kind Kind

	URL    string
	Branch string
	// Tag takes precedence over Branch for Clone, Fetch and LsRemote.
	Tag string
	// Target is the destination folder (relative to the working directory)
	// for Clone and the revision for Reset.
	Target string
	// SparsePath restricts the checkout to a sub-path of the repository.
	SparsePath string
	Remote     string
	Message    string
	// Force discards local modifications on Checkout.
	Force bool
}

func (op Operation) remote() string {
	if op.Remote == "" {
		return DefaultRemote
	}
	return op.Remote
}

func (op Operation) ref() string {
	if op.Tag != "" {
		return op.Tag
	}
	return op.Branch
}

func (op Operation) sparsePath() string {
	return NormalizeSparsePath(op.SparsePath)
}

// FetchRefSpec maps the tracked ref onto its local counterpart: branches land
// in the remote-tracking namespace, tags are mirrored as-is.
func (op Operation) FetchRefSpec() string {
	if op.Tag != "" {
		return fmt.Sprintf("+refs/tags/%s:refs/tags/%s", op.Tag, op.Tag)
	}
	return fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", op.Branch, op.remote(), op.Branch)
}

// NormalizeSparsePath returns the slash-separated sub-path, or "" when the
// path designates the repository root.
func NormalizeSparsePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
	if p == "" {
		return ""
	}
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "." {
		return ""
	}
	return p
}

// Args renders the operation as git command line arguments. Both strategies
// use it: the CLI to build the process, Native to describe what it does.
func (op Operation) Args(depth int) ([]string, error) {
	switch op.Kind {
	case KindClone:
		if op.URL == "" || op.ref() == "" || op.Target == "" {
			return nil, fmt.Errorf("clone: url, ref and target are required")
		}
		args := []string{"clone", "--progress", op.URL, "--filter=blob:none"}
		if op.sparsePath() != "" {
			args = append(args, "--sparse")
		}
		args = append(args, "--single-branch", "--branch", op.ref())
		if depth > 0 {
			args = append(args, "--depth", strconv.Itoa(depth))
		}
		return append(args, op.Target), nil
	case KindSparseSet:
		if op.sparsePath() == "" {
			return nil, fmt.Errorf("sparse-checkout: sub-path is required")
		}
		return []string{"sparse-checkout", "set", op.sparsePath()}, nil
	case KindCheckout:
		if op.Branch == "" {
			return nil, fmt.Errorf("checkout: branch is required")
		}
		if op.Force {
			return []string{"checkout", "-f", "-B", op.Branch}, nil
		}
		return []string{"checkout", "-B", op.Branch}, nil
	case KindFetch:
		if op.ref() == "" {
			return nil, fmt.Errorf("fetch: ref is required")
		}
		args := []string{"fetch", "--progress", op.remote(), op.FetchRefSpec()}
		if depth > 0 {
			args = append(args, "--depth", strconv.Itoa(depth))
		}
		return args, nil
	case KindReset:
		if op.Target == "" {
			return nil, fmt.Errorf("reset: target revision is required")
		}
		return []string{"reset", "--hard", op.Target}, nil
	case KindStatus:
		return []string{"status", "--porcelain"}, nil
	case KindAdd:
		return []string{"add", "--all"}, nil
	case KindCommit:
		return []string{"commit", "-m", op.Message}, nil
	case KindPull:
		if op.Branch == "" {
			return nil, fmt.Errorf("pull: branch is required")
		}
		return []string{"pull", "--no-rebase", "--no-edit", op.remote(), op.Branch}, nil
	case KindPush:
		if op.Branch == "" {
			return nil, fmt.Errorf("push: branch is required")
		}
		return []string{"push", "--progress", op.remote(), op.Branch}, nil
	case KindClean:
		return []string{"clean", "-fd"}, nil
	case KindLsRemote:
		if op.URL == "" || op.ref() == "" {
			return nil, fmt.Errorf("ls-remote: url and ref are required")
		}
		return []string{"ls-remote", op.URL, op.ref()}, nil
	}
	return nil, fmt.Errorf("unsupported operation %s", op.Kind)
}

// Describe renders the operation the way it appears in "Running:" lines.
func (op Operation) Describe(depth int) string {
	args, err := op.Args(depth)
	if err != nil {
		return "git " + op.Kind.String()
	}
	return "git " + strings.Join(args, " ")
}

type RefKind uint8

const (
	RefKindBranch RefKind = iota
	RefKindTag
	RefKindOther
)

type Ref struct {
	Hash string
	Kind RefKind
	Name string // short name: main, v1
}

// StatusEntry is one line of porcelain status output.
type StatusEntry struct {
	Code string // two-letter XY code, "??" for untracked
	Path string
}
