// Package progress carries progress events from a background worker to a
// polling consumer.
package progress

import (
	"math"
	"sync"
)

type Event struct {
	// Seq increases by one for every event pushed to a Channel, starting at 1.
	// The zero value marks the synthetic Pending event.
	Seq      uint64
	Fraction float64
	Message  string
	Error    bool
}

// Pending is returned by GetLastProgress before anything was pushed.
var Pending = Event{Message: "Update Pending"}

// Channel is an unbounded queue with a single producer and a single
// consumer. It never blocks either side for longer than a slice append.
type Channel struct {
	mu     sync.Mutex
	events []Event
	seq    uint64
}

func New() *Channel {
	return &Channel{}
}

// Push enqueues e, clamping its fraction into [0, 1], and returns the stored
// event.
func (c *Channel) Push(e Event) Event {
	e.Fraction = clamp(e.Fraction)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	e.Seq = c.seq
	c.events = append(c.events, e)
	return e
}

// GetLastProgress dequeues the oldest event while more than one is queued and
// only peeks once a single event is left, so the terminal event of an
// operation stays observable to a consumer that polls after completion.
func (c *Channel) GetLastProgress() Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch len(c.events) {
	case 0:
		return Pending
	case 1:
		return c.events[0]
	}
	e := c.events[0]
	c.events[0] = Event{}
	c.events = c.events[1:]
	return e
}

// Last peeks the newest event without consuming anything.
func (c *Channel) Last() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return Pending, false
	}
	return c.events[len(c.events)-1], true
}

func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Reset drops queued events. Sequence numbers keep increasing.
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
