package progress

import (
	"math"
	"sync"
	"testing"
)

func TestGetLastProgress_Empty(t *testing.T) {
	t.Parallel()

	c := New()
	if got := c.GetLastProgress(); got != Pending {
		t.Fatalf("GetLastProgress() = %+v, want %+v", got, Pending)
	}
	if got := c.GetLastProgress(); got != Pending {
		t.Fatalf("second GetLastProgress() = %+v, want %+v", got, Pending)
	}
}

func TestGetLastProgress_DequeuesThenPeeksTerminal(t *testing.T) {
	t.Parallel()

	c := New()
	c.Push(Event{Fraction: 0.1, Message: "a"})
	c.Push(Event{Fraction: 0.5, Message: "b"})
	c.Push(Event{Fraction: 1, Message: "done"})

	var got []string
	for range 5 {
		got = append(got, c.GetLastProgress().Message)
	}
	want := []string{"a", "b", "done", "done", "done"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("poll %d = %q, want %q (all=%q)", i, got[i], want[i], got)
		}
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

func TestPush_SequenceAndClamp(t *testing.T) {
	t.Parallel()

	c := New()
	tests := []struct {
		in, want float64
	}{
		{in: -1, want: 0},
		{in: 0.25, want: 0.25},
		{in: 7, want: 1},
		{in: math.NaN(), want: 0},
	}
	for i, tt := range tests {
		e := c.Push(Event{Fraction: tt.in})
		if e.Fraction != tt.want {
			t.Fatalf("Push(%v).Fraction = %v, want %v", tt.in, e.Fraction, tt.want)
		}
		if e.Seq != uint64(i+1) {
			t.Fatalf("Push #%d Seq = %d", i+1, e.Seq)
		}
	}
	if last, ok := c.Last(); !ok || last.Seq != 4 {
		t.Fatalf("Last() = %+v, %v", last, ok)
	}

	c.Reset()
	if _, ok := c.Last(); ok {
		t.Fatal("Last() after Reset reported an event")
	}
	if e := c.Push(Event{}); e.Seq != 5 {
		t.Fatalf("Seq after Reset = %d, want 5", e.Seq)
	}
}

func TestChannel_OrderUnderConcurrentPolling(t *testing.T) {
	t.Parallel()

	const n = 1000
	c := New()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range n {
			c.Push(Event{Fraction: float64(i) / n})
		}
	}()

	var last uint64
	for last < n {
		e := c.GetLastProgress()
		if e.Seq < last {
			t.Fatalf("sequence went backwards: %d after %d", e.Seq, last)
		}
		last = e.Seq
	}
	wg.Wait()
}
