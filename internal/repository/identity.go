package repository

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/thiagokokada/gitdeps/internal/git/backend"
)

// Identity describes one vendored checkout.
type Identity struct {
	URL    string
	Branch string
	// Tag pins the checkout to a tag. When set it takes precedence over
	// Branch for updates; Branch stays the push target.
	Tag string
	// Root is the host directory holding all checkouts.
	Root string
	// Folder is the checkout directory, relative to Root.
	Folder string
	// SubPath restricts the checkout to a directory of the repository.
	// "", "." and "/" mean the whole repository.
	SubPath string
}

// Key is the deduplication key: two identities with the same key refer to the
// same physical checkout.
type Key struct {
	URL    string
	Root   string
	Folder string
}

func (id Identity) Key() Key {
	return Key{URL: id.URL, Root: filepath.Clean(id.Root), Folder: filepath.Clean(id.Folder)}
}

// Path is the absolute or root-relative location of the checkout.
func (id Identity) Path() string {
	return filepath.Join(id.Root, id.Folder)
}

// Sparse returns the normalized sparse sub-path, or "" for a full checkout.
func (id Identity) Sparse() string {
	return backend.NormalizeSparsePath(id.SubPath)
}

// Ref is the ref tracked by updates: the tag when pinned, else the branch.
func (id Identity) Ref() string {
	if id.Tag != "" {
		return id.Tag
	}
	return id.Branch
}

// RemoteTarget is the revision updates hard-reset to.
func (id Identity) RemoteTarget() string {
	if id.Tag != "" {
		return id.Tag
	}
	return backend.DefaultRemote + "/" + id.Branch
}

func (id Identity) Validate() error {
	var errs []error
	if id.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if id.Branch == "" && id.Tag == "" {
		errs = append(errs, errors.New("branch or tag is required"))
	}
	if id.Root == "" {
		errs = append(errs, errors.New("root is required"))
	}
	if id.Folder == "" {
		errs = append(errs, errors.New("folder is required"))
	} else if !filepath.IsLocal(id.Folder) {
		errs = append(errs, fmt.Errorf("folder %q must stay inside the root", id.Folder))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid identity %s: %w", id, err)
	}
	return nil
}

// conflicts reports whether other shares the key of id but tracks a different
// ref or sub-path.
func (id Identity) conflicts(other Identity) bool {
	return id.Key() == other.Key() &&
		(id.Branch != other.Branch || id.Tag != other.Tag || id.Sparse() != other.Sparse())
}

func (id Identity) String() string {
	ref := id.Branch
	if id.Tag != "" {
		ref = "tag " + id.Tag
	}
	s := fmt.Sprintf("%s@%s -> %s", id.URL, ref, id.Path())
	if sparse := id.Sparse(); sparse != "" {
		s += " [" + sparse + "]"
	}
	return s
}

// State is the snapshot a worker runs against. It is passed by value so the
// worker never reads fields of the owning Task while an operation runs.
type State struct {
	Identity    Identity
	Credentials backend.CredentialProvider
}
