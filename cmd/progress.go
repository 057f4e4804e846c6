package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/thiagokokada/gitdeps/internal/progress"
	"github.com/thiagokokada/gitdeps/internal/repository"
)

const pollInterval = 100 * time.Millisecond

// printer serializes lines written by concurrent followers.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) event(name string, e progress.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case e.Error:
		fmt.Fprintf(p.out, "[%s] error: %s\n", name, e.Message)
	case e.Fraction > 0:
		fmt.Fprintf(p.out, "[%s] %3.0f%% %s\n", name, e.Fraction*100, e.Message)
	default:
		fmt.Fprintf(p.out, "[%s] %s\n", name, e.Message)
	}
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// follow polls the progress of a started operation and prints every event
// until the terminal one. It cancels the operation when ctx is done and
// reports whether it succeeded.
func follow(ctx context.Context, p *printer, name string, t *repository.Task) bool {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastSeq uint64
	emit := func(e progress.Event) {
		if e.Seq > lastSeq {
			lastSeq = e.Seq
			p.event(name, e)
		}
	}
	cancelled := false
	for {
		for t.Progress().Len() > 1 {
			emit(t.GetLastProgress())
		}
		if !t.InProgress() {
			// The terminal event was pushed before the flag was cleared.
			for t.Progress().Len() > 1 {
				emit(t.GetLastProgress())
			}
			emit(t.GetLastProgress())
			return t.LastOperationSuccess()
		}
		emit(t.GetLastProgress())

		select {
		case <-ticker.C:
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				t.Cancel()
			}
			// Keep draining until the worker gives up.
			time.Sleep(pollInterval)
		}
	}
}
