package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/thiagokokada/gitdeps/internal/gittest"
)

// writeConfig writes a gitdeps.yaml in a fresh directory tracking remote as
// dependency "lib" and returns its path. It also hides the user's git configuration, so commits rely on the
// fallback identity.
func writeConfig(t *testing.T, remote *gittest.Remote, extra string) string {
	t.Helper()
	for _, kv := range gittest.HermeticEnv(t) {
		k, v, _ := strings.Cut(kv, "=")
		t.Setenv(k, v)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "gitdeps.yaml")
	gittest.WriteFile(t, path, fmt.Sprintf(`root: deps
depth: 0
dependencies:
  - name: lib
    url: %s
    branch: %s
%s`, remote.URL, gittest.Branch, extra))
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), args, strings.NewReader(""), &out, &errOut)
	t.Logf("gitdeps %s\nstdout:\n%s\nstderr:\n%s", strings.Join(args, " "), out.String(), errOut.String())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "gitdeps ") {
		t.Fatalf("version output = %q, want gitdeps prefix", out)
	}
}

func TestUnknownDependency(t *testing.T) {
	remote := gittest.NewRemote(t, map[string]string{"README.md": "hello\n"})
	cfg := writeConfig(t, remote, "")

	_, err := runCmd(t, "--config", cfg, "update", "missing")
	if err == nil || !strings.Contains(err.Error(), `unknown dependency "missing"`) {
		t.Fatalf("update error = %v, want unknown dependency", err)
	}
}

func TestMissingConfig(t *testing.T) {
	_, err := runCmd(t, "--config", filepath.Join(t.TempDir(), "gitdeps.yaml"), "status")
	if err == nil {
		t.Fatal("status error = nil, want missing config error")
	}
}

func TestUpdateStatusClear(t *testing.T) {
	remote := gittest.NewRemote(t, map[string]string{"README.md": "hello\n"})
	cfg := writeConfig(t, remote, "")
	checkout := filepath.Join(filepath.Dir(cfg), "deps", "lib")

	out, err := runCmd(t, "--config", cfg, "update")
	if err != nil {
		t.Fatalf("update error = %v", err)
	}
	if !strings.Contains(out, "[lib] ") {
		t.Fatalf("update output = %q, want progress lines", out)
	}
	if got := gittest.ReadFile(t, filepath.Join(checkout, "README.md")); got != "hello\n" {
		t.Fatalf("README.md = %q, want %q", got, "hello\n")
	}

	out, err = runCmd(t, "--config", cfg, "status")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "lib: No local changes.") {
		t.Fatalf("status output = %q, want clean checkout", out)
	}

	gittest.WriteFile(t, filepath.Join(checkout, "local.txt"), "scratch\n")
	out, err = runCmd(t, "--config", cfg, "status", "lib")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	if !strings.Contains(out, "lib: 1 local change.") || !strings.Contains(out, "?? local.txt") {
		t.Fatalf("status output = %q, want the untracked file", out)
	}

	if _, err := runCmd(t, "--config", cfg, "clear", "lib"); err != nil {
		t.Fatalf("clear error = %v", err)
	}
	if gittest.Exists(filepath.Join(checkout, "local.txt")) {
		t.Fatal("local.txt survived clear")
	}

	if _, err := runCmd(t, "--config", cfg, "remove", "lib"); err != nil {
		t.Fatalf("remove error = %v", err)
	}
	if gittest.Exists(checkout) {
		t.Fatal("checkout survived remove")
	}
}

func TestStatusWithoutCheckout(t *testing.T) {
	remote := gittest.NewRemote(t, map[string]string{"README.md": "hello\n"})
	cfg := writeConfig(t, remote, "")

	out, err := runCmd(t, "--config", cfg, "status")
	if err == nil {
		t.Fatal("status error = nil, want failure without a checkout")
	}
	if !strings.Contains(out, "lib: ") {
		t.Fatalf("status output = %q, want the failure message", out)
	}
}

func TestPushRefusesDefaultMessage(t *testing.T) {
	remote := gittest.NewRemote(t, map[string]string{"README.md": "hello\n"})
	cfg := writeConfig(t, remote, "")

	_, err := runCmd(t, "--config", cfg, "push", "lib")
	if !errors.Is(err, errDefaultMessage) {
		t.Fatalf("push error = %v, want %v", err, errDefaultMessage)
	}
}

func TestPush(t *testing.T) {
	remote := gittest.NewRemote(t, map[string]string{"README.md": "hello\n"})
	cfg := writeConfig(t, remote, "")
	checkout := filepath.Join(filepath.Dir(cfg), "deps", "lib")

	if _, err := runCmd(t, "--config", cfg, "update"); err != nil {
		t.Fatalf("update error = %v", err)
	}
	gittest.WriteFile(t, filepath.Join(checkout, "fix.txt"), "patched\n")
	out, err := runCmd(t, "--config", cfg, "push", "lib", "-m", "Vendor fix")
	if err != nil {
		t.Fatalf("push error = %v", err)
	}
	if !strings.Contains(out, "Pushed to "+gittest.Branch) {
		t.Fatalf("push output = %q, want the push confirmation", out)
	}
	if got := remote.HeadMessage(t); !strings.HasPrefix(got, "Vendor fix") {
		t.Fatalf("upstream head message = %q, want %q", got, "Vendor fix")
	}
}

func TestCheck(t *testing.T) {
	remote := gittest.NewRemote(t, map[string]string{"README.md": "hello\n"})
	remote.Tag(t, "v1.0.0")
	cfg := writeConfig(t, remote, `  - name: pinned
    url: `+remote.URL+`
    tag: v1.0.0
  - name: gone
    url: `+remote.URL+`
    branch: nope
`)

	out, err := runCmd(t, "--config", cfg, "check", "lib", "pinned")
	if err != nil {
		t.Fatalf("check error = %v", err)
	}
	for _, want := range []string{"[lib] ok main", "[pinned] ok v1.0.0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("check output = %q, want %q", out, want)
		}
	}

	if _, err := runCmd(t, "--config", cfg, "check", "gone"); err == nil {
		t.Fatal("check error = nil for a missing branch")
	}
}
