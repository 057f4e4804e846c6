package debounce

import (
	"sync"
	"time"
)

// afterFunc is replaced in tests to fire timers by hand.
var afterFunc = time.AfterFunc

// Debouncer runs fn once, delay after the last Trigger.
type Debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	gen   uint64
	fn    func()
}

func New(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	// A timer that already fired cannot be stopped; the generation check
	// drops its callback.
	d.timer = afterFunc(d.delay, func() {
		d.mu.Lock()
		current := gen == d.gen
		if current {
			d.timer = nil
		}
		d.mu.Unlock()
		if current {
			d.fn()
		}
	})
}

// Stop cancels a pending call.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a call is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Group debounces independently per key.
type Group[K comparable] struct {
	mu    sync.Mutex
	delay time.Duration
	fn    func(K)
	items map[K]*Debouncer
}

func NewGroup[K comparable](delay time.Duration, fn func(K)) *Group[K] {
	return &Group[K]{delay: delay, fn: fn, items: map[K]*Debouncer{}}
}

func (g *Group[K]) Trigger(key K) {
	g.mu.Lock()
	d, ok := g.items[key]
	if !ok {
		d = New(g.delay, func() { g.fn(key) })
		g.items[key] = d
	}
	g.mu.Unlock()
	d.Trigger()
}

// Stop cancels every pending call.
func (g *Group[K]) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, d := range g.items {
		d.Stop()
	}
}
