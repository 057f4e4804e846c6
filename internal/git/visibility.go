package git

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	// MetadataDir is the name git recognizes.
	MetadataDir = ".git"
	// HiddenMetadataDir is the name used while the checkout is at rest, so the
	// host's file watcher does not treat the checkout as version-controlled.
	HiddenMetadataDir = ".gitsubrepository"
)

var ErrInconsistentMetadata = errors.New("both metadata directories exist")

type MetadataState uint8

const (
	MetadataMissing MetadataState = iota
	MetadataVisible
	MetadataHidden
	MetadataConflict
)

func (s MetadataState) String() string {
	switch s {
	case MetadataVisible:
		return "visible"
	case MetadataHidden:
		return "hidden"
	case MetadataConflict:
		return "conflict"
	}
	return "missing"
}

// State inspects the metadata directory of the checkout at path.
func State(path string) MetadataState {
	visible := isDir(filepath.Join(path, MetadataDir))
	hidden := isDir(filepath.Join(path, HiddenMetadataDir))
	switch {
	case visible && hidden:
		return MetadataConflict
	case visible:
		return MetadataVisible
	case hidden:
		return MetadataHidden
	}
	return MetadataMissing
}

// IsValid reports whether path holds a checkout, visible or hidden.
func IsValid(path string) bool {
	s := State(path)
	return s == MetadataVisible || s == MetadataHidden
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// toggleMu serializes every rename in the process. The renames touch the
// namespace a host file watcher observes.
var toggleMu sync.Mutex

// SetVisible renames the metadata directory of the checkout at path to its
// visible or hidden name. It is a no-op when the directory is already in the
// requested state or when there is no checkout yet. report, when non-nil,
// receives a human readable line describing what happened.
func SetVisible(path string, visible bool, report func(string)) error {
	return setVisible(path, visible, ExecutableHooks && runtime.GOOS != "windows", report)
}

func setVisible(path string, visible, fixHooks bool, report func(string)) error {
	toggleMu.Lock()
	defer toggleMu.Unlock()

	say := func(format string, args ...any) {
		if report != nil {
			report(fmt.Sprintf(format, args...))
		}
	}
	name := filepath.Base(path)
	from, to := HiddenMetadataDir, MetadataDir
	verb, done := "Enabling", "enabled"
	if !visible {
		from, to = to, from
		verb, done = "Disabling", "disabled"
	}

	switch State(path) {
	case MetadataConflict:
		return fmt.Errorf("%s: %w", path, ErrInconsistentMetadata)
	case MetadataMissing:
		return nil
	}
	src := filepath.Join(path, from)
	if !isDir(src) {
		say("%s already %s.", name, done)
		return nil
	}

	say("%s git for %s", verb, name)
	dst := filepath.Join(path, to)
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("rename %s: %w", from, err)
	}
	if fixHooks {
		if err := restoreHookModes(dst); err != nil {
			return fmt.Errorf("restore hook permissions: %w", err)
		}
	}
	return nil
}

// restoreHookModes re-applies the executable bit to every hook script.
func restoreHookModes(metadataDir string) error {
	hooks := filepath.Join(metadataDir, "hooks")
	entries, err := os.ReadDir(hooks)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if err := os.Chmod(filepath.Join(hooks, entry.Name()), info.Mode().Perm()|0o111); err != nil {
			return err
		}
	}
	return nil
}
