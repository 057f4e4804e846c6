package backend

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// Minimum supported git version for the CLI strategy. "clone --sparse" together
// with "--filter=blob:none" and "sparse-checkout set" needs 2.28.
var minGitVersion = gitVersion{major: 2, minor: 28}

type gitVersion struct {
	major, minor, patch int
}

func MinGitVersion() string {
	return minGitVersion.String()
}

func (v gitVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
}

func (v gitVersion) less(other gitVersion) bool {
	if v.major != other.major {
		return v.major < other.major
	}
	if v.minor != other.minor {
		return v.minor < other.minor
	}
	return v.patch < other.patch
}

// parseGitVersionOutput accepts "git version 2.44.0", vendor suffixes such as
// "(Apple Git-146)" or ".windows.1", and bare "2.42.1".
func parseGitVersionOutput(out string) (gitVersion, bool) {
	s := strings.TrimSpace(out)
	if _, rest, found := strings.Cut(s, "git version"); found {
		s = strings.TrimSpace(rest)
	}
	start := strings.IndexAny(s, "0123456789")
	if start < 0 {
		return gitVersion{}, false
	}
	s = s[start:]
	if end := strings.IndexFunc(s, func(r rune) bool { return (r < '0' || r > '9') && r != '.' }); end >= 0 {
		s = s[:end]
	}
	parts := strings.Split(strings.Trim(s, "."), ".")
	if len(parts) < 2 {
		return gitVersion{}, false
	}
	var v gitVersion
	var err error
	if v.major, err = strconv.Atoi(parts[0]); err != nil {
		return gitVersion{}, false
	}
	if v.minor, err = strconv.Atoi(parts[1]); err != nil {
		return gitVersion{}, false
	}
	if len(parts) >= 3 {
		v.patch, _ = strconv.Atoi(parts[2])
	}
	return v, true
}

func validateGitVersionOutput(out string) error {
	got, ok := parseGitVersionOutput(out)
	if !ok {
		return fmt.Errorf("unable to parse git version output: %q", strings.TrimSpace(out))
	}
	if got.less(minGitVersion) {
		return fmt.Errorf("git %s is too old; gitdeps requires git >= %s", got, minGitVersion)
	}
	return nil
}

var probeGitVersion = sync.OnceValues(func() (string, error) {
	outBytes, err := exec.Command("git", "--version").CombinedOutput()
	out := strings.TrimSpace(string(outBytes))
	if err != nil {
		if out != "" {
			return out, fmt.Errorf("git --version: %v: %s", err, out)
		}
		return out, fmt.Errorf("git --version: %w", err)
	}
	return out, nil
})

// GitVersion returns the raw "git --version" output of the git on PATH.
func GitVersion() (string, error) {
	return probeGitVersion()
}

func ensureMinGitVersion() error {
	out, err := probeGitVersion()
	if err != nil {
		return err
	}
	return validateGitVersionOutput(out)
}
