package backend

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTranscript_KeepsLeadingWhitespace(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	tr := newTranscript(rec.callbacks(), func() {})
	_, _ = tr.Write([]byte(" M lib.txt  \r\n?? new.txt\n   \n"))
	_, _ = tr.Write([]byte(" D gone.txt"))
	tr.flush()

	want := " M lib.txt\n?? new.txt\n D gone.txt\n"
	if got := tr.output(); got != want {
		t.Fatalf("output() = %q, want %q", got, want)
	}
	wantEntries := []StatusEntry{{Code: " M", Path: "lib.txt"}, {Code: "??", Path: "new.txt"}, {Code: " D", Path: "gone.txt"}}
	if diff := cmp.Diff(wantEntries, ParseStatus(tr.output())); diff != "" {
		t.Fatalf("ParseStatus mismatch (-want +got):\n%s", diff)
	}

	var messages []string
	for _, r := range rec.reports {
		messages = append(messages, r.Message)
	}
	if diff := cmp.Diff([]string{"M lib.txt", "?? new.txt", "D gone.txt"}, messages); diff != "" {
		t.Fatalf("reported messages (-want +got):\n%s", diff)
	}
}

func TestTranscript_CancelsOnWrite(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := newTranscript(Callbacks{Cancelled: func() bool { return true }}, cancel)
	_, _ = tr.Write([]byte("Receiving objects:  10% (1/10)\r"))
	if ctx.Err() == nil {
		t.Fatal("Write() did not cancel the operation")
	}
}
