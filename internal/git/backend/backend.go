package backend

import (
	"errors"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Backend executes a single version-control subcommand against a working
// directory.
//
// Implementations never return errors past this boundary: every failure is
// converted into ok=false with a diagnostic output, and is also delivered
// through Callbacks.Progress with Report.OK unset. The shell strategy (CLI)
// and the library strategy (Native) satisfy the same contract, so callers must
// not care which one is active.
type Backend interface {
	Name() string
	Execute(dir string, op Operation, cb Callbacks) (ok bool, output string)
}

// NoFraction marks a Report that carries no completion ratio.
const NoFraction = -1.0

var ErrCancelled = errors.New("operation cancelled")

type Report struct {
	OK       bool
	Fraction float64
	Message  string
}

type Callbacks struct {
	// Progress receives every line of output as soon as it is produced.
	Progress func(Report)
	// Cancelled is polled from transfer callbacks. It is advisory: a blocking
	// process wait is never interrupted.
	Cancelled func() bool
	// Credentials is consulted synchronously before network operations.
	Credentials CredentialProvider
}

func (cb Callbacks) report(ok bool, fraction float64, msg string) {
	if cb.Progress == nil {
		return
	}
	cb.Progress(Report{OK: ok, Fraction: fraction, Message: msg})
}

func (cb Callbacks) cancelled() bool {
	return cb.Cancelled != nil && cb.Cancelled()
}

type CredentialType uint8

const (
	CredentialUserPass CredentialType = 1 << iota
	CredentialSSHKey
	CredentialDefault
)

func (c CredentialType) Has(other CredentialType) bool {
	return c&other != 0
}

// CredentialProvider resolves credentials for a remote URL. A nil AuthMethod
// with a nil error means "no credentials", letting the transport fall back to
// its own defaults (ssh-agent, git credential helpers).
type CredentialProvider interface {
	Credentials(url, usernameHint string, allowed CredentialType) (transport.AuthMethod, error)
}

type CredentialFunc func(url, usernameHint string, allowed CredentialType) (transport.AuthMethod, error)

func (f CredentialFunc) Credentials(url, usernameHint string, allowed CredentialType) (transport.AuthMethod, error) {
	return f(url, usernameHint, allowed)
}
