package backend

import (
	"bytes"
	"context"
	"strings"
	"sync"
)

// transcript collects the output of an in-process operation. It doubles as the
// sideband progress writer handed to go-git, splitting meter redraws into
// lines and polling for cancellation on every write.
type transcript struct {
	mu      sync.Mutex
	cb      Callbacks
	cancel  context.CancelFunc
	out     strings.Builder
	pending []byte
}

func newTranscript(cb Callbacks, cancel context.CancelFunc) *transcript {
	return &transcript{cb: cb, cancel: cancel}
}

func (t *transcript) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cb.cancelled() {
		t.cancel()
	}
	t.pending = append(t.pending, p...)
	for {
		i := bytes.IndexAny(t.pending, "\r\n")
		if i < 0 {
			break
		}
		t.lineLocked(string(t.pending[:i]))
		t.pending = t.pending[i+1:]
	}
	return len(p), nil
}

// lineLocked records line with its leading whitespace intact; porcelain status
// codes start with a space.
func (t *transcript) lineLocked(line string) {
	line = strings.TrimRight(line, " \t\r\n")
	msg := strings.TrimSpace(line)
	if msg == "" {
		return
	}
	t.out.WriteString(line)
	t.out.WriteByte('\n')
	t.cb.report(true, parseFraction(msg), msg)
}

func (t *transcript) say(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lineLocked(line)
}

func (t *transcript) flush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) > 0 {
		t.lineLocked(string(t.pending))
		t.pending = nil
	}
}

// fail appends msg and delivers the whole transcript as the failure report.
func (t *transcript) fail(msg string) string {
	t.mu.Lock()
	t.out.WriteString(msg)
	output := t.out.String()
	t.mu.Unlock()
	t.cb.report(false, NoFraction, output)
	return output
}

func (t *transcript) output() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.out.String()
}
