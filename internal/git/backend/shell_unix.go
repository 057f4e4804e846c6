//go:build !windows

package backend

import (
	"os/exec"

	"al.essio.dev/pkg/shellescape"
)

func shellCommand(cmdline string) *exec.Cmd {
	return exec.Command("/bin/sh", "-c", cmdline)
}

func quoteCommand(args []string) string {
	return shellescape.QuoteCommand(args)
}
