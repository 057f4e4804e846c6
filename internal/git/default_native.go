//go:build !gitcli

package git

import "github.com/thiagokokada/gitdeps/internal/git/backend"

// BackendName identifies the strategy compiled into this binary.
const BackendName = "native"

// ExecutableHooks is false because go-git never runs hook scripts.
const ExecutableHooks = false

func NewBackend(opts ...backend.Option) (backend.Backend, error) {
	return backend.NewNative(opts...), nil
}
