package repository

import (
	"os"
	"strings"
)

// hint returns a troubleshooting suffix for well-known failure output.
func hint(diagnostic string) string {
	lower := strings.ToLower(diagnostic)
	switch {
	case strings.Contains(lower, "permission denied"), strings.Contains(lower, "authentication"):
		return " (check that you have access to the repository and that ssh keys or tokens are configured)"
	case strings.Contains(lower, "could not resolve host"), strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "timed out"), strings.Contains(lower, "network is unreachable"):
		return " (check your network connection)"
	case strings.Contains(lower, "not found"), strings.Contains(lower, "does not exist"):
		return " (check that the url, branch and tag are correct)"
	}
	return ""
}

// existingDir returns dir when it exists, else the temp directory, so
// commands that do not need a checkout still get a valid working directory.
func existingDir(dir string) string {
	if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
		return dir
	}
	return os.TempDir()
}
