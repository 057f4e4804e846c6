//go:build gitcli

package git

import "github.com/thiagokokada/gitdeps/internal/git/backend"

const BackendName = "gitcli"

// ExecutableHooks is true because the git executable runs hook scripts and
// some filesystems drop the executable bit when a directory is renamed.
const ExecutableHooks = true

func NewBackend(opts ...backend.Option) (backend.Backend, error) {
	cli, err := backend.NewCLI(opts...)
	if err != nil {
		return nil, err
	}
	return cli, nil
}
