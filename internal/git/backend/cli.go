package backend

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"

	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/sync/errgroup"
)

// CLI runs the git executable through the platform shell. The exit code is
// authoritative; everything written to stdout and stderr is treated as
// informational output, since git reports progress on stderr.
type CLI struct {
	opts options
}

var _ Backend = (*CLI)(nil)

func NewCLI(opts ...Option) (*CLI, error) {
	if err := ensureMinGitVersion(); err != nil {
		return nil, err
	}
	return &CLI{opts: buildOptions(opts)}, nil
}

func (c *CLI) Name() string { return "gitcli" }

func (c *CLI) Execute(dir string, op Operation, cb Callbacks) (bool, string) {
	args, err := op.Args(c.opts.depth)
	if err == nil && cb.cancelled() {
		err = ErrCancelled
	}
	if err != nil {
		msg := fmt.Sprintf("Error in command: '%s' running in '%s', %v", op.Describe(c.opts.depth), dir, err)
		cb.report(false, NoFraction, msg)
		return false, msg
	}
	auth, masked := c.authArgs(op, cb)
	cmdline := quoteCommand(slices.Concat([]string{"git"}, auth, args))
	display := quoteCommand(slices.Concat([]string{"git"}, masked, args))
	var env []string
	if op.Kind == KindCommit {
		env = c.identityEnv(dir)
	}
	return c.run(dir, cmdline, display, env, cb)
}

func (c *CLI) environ() []string {
	env := append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	return append(env, c.opts.env...)
}

// identityEnv returns the fallback author and committer for a commit in dir
// when git has no user.name or user.email configured for it.
func (c *CLI) identityEnv(dir string) []string {
	environ := c.environ()
	configured := func(key string) bool {
		cmd := exec.Command("git", "config", "--get", key)
		cmd.Dir = dir
		cmd.Env = environ
		out, err := cmd.Output()
		return err == nil && strings.TrimSpace(string(out)) != ""
	}
	var env []string
	fallback := func(key, value string) {
		if !slices.ContainsFunc(environ, func(kv string) bool { return strings.HasPrefix(kv, key+"=") }) {
			env = append(env, key+"="+value)
		}
	}
	if !configured("user.name") {
		fallback("GIT_AUTHOR_NAME", c.opts.committerName)
		fallback("GIT_COMMITTER_NAME", c.opts.committerName)
	}
	if !configured("user.email") {
		fallback("GIT_AUTHOR_EMAIL", c.opts.committerEmail)
		fallback("GIT_COMMITTER_EMAIL", c.opts.committerEmail)
	}
	return env
}

// authArgs turns provider credentials into a one-shot http.extraHeader so
// nothing is persisted in the repository configuration. Only http(s) remotes
// can use it; ssh relies on the agent or the user's ssh configuration.
func (c *CLI) authArgs(op Operation, cb Callbacks) (args, masked []string) {
	if cb.Credentials == nil || !op.Kind.Network() || op.URL == "" {
		return nil, nil
	}
	u, err := url.Parse(op.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, nil
	}
	auth, err := cb.Credentials.Credentials(op.URL, u.User.Username(), CredentialUserPass|CredentialDefault)
	if err != nil {
		cb.report(true, NoFraction, "credentials: "+err.Error())
		return nil, nil
	}
	var header, kind string
	switch a := auth.(type) {
	case *githttp.BasicAuth:
		kind = "Basic"
		header = base64.StdEncoding.EncodeToString([]byte(a.Username + ":" + a.Password))
	case *githttp.TokenAuth:
		kind = "Bearer"
		header = a.Token
	default:
		return nil, nil
	}
	return []string{"-c", "http.extraHeader=Authorization: " + kind + " " + header},
		[]string{"-c", "http.extraHeader=Authorization: " + kind + " ***"}
}

func (c *CLI) run(dir, cmdline, display string, env []string, cb Callbacks) (bool, string) {
	var (
		mu  sync.Mutex
		out strings.Builder
	)
	emit := func(line string) {
		msg := strings.TrimSpace(line)
		mu.Lock()
		defer mu.Unlock()
		out.WriteString(line)
		out.WriteByte('\n')
		cb.report(true, parseFraction(msg), msg)
	}
	fail := func(err error) (bool, string) {
		msg := fmt.Sprintf("Error in command: '%s' running in '%s', %v", display, dir, err)
		mu.Lock()
		out.WriteString(msg)
		output := out.String()
		mu.Unlock()
		cb.report(false, NoFraction, msg)
		return false, output
	}

	emit(fmt.Sprintf("Running: '%s' in '%s'", display, dir))

	cmd := shellCommand(cmdline)
	cmd.Dir = dir
	// Stdin stays nil so git reads from the null device and can never block
	// on a prompt.
	cmd.Env = append(c.environ(), env...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fail(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fail(err)
	}
	if err := cmd.Start(); err != nil {
		return fail(err)
	}

	var g errgroup.Group
	for _, r := range []io.Reader{stdout, stderr} {
		g.Go(func() error {
			sc := bufio.NewScanner(r)
			sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			sc.Split(scanProgressLines)
			for sc.Scan() {
				// Leading spaces are kept: " M file" is a status entry.
				if line := strings.TrimRight(sc.Text(), " \t\r\n"); strings.TrimSpace(line) != "" {
					emit(line)
				}
			}
			if err := sc.Err(); err != nil {
				_, _ = io.Copy(io.Discard, r)
				return err
			}
			return nil
		})
	}
	scanErr := g.Wait()
	waitErr := cmd.Wait()

	mu.Lock()
	output := out.String()
	mu.Unlock()

	var exitErr *exec.ExitError
	switch {
	case errors.As(waitErr, &exitErr):
		cb.report(false, NoFraction, output)
		return false, output
	case waitErr != nil:
		return fail(waitErr)
	case scanErr != nil:
		return fail(scanErr)
	}
	return true, output
}
