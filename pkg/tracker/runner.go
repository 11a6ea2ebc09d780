package tracker

import (
	"context"
	"sync"
)

// Runner serialises work per key. While a run is in flight, further requests
// for the same key collapse into one follow-up run: the latest request's
// function is the one executed, and every collapsed caller gets its result.
// Different keys never wait on each other.
type Runner struct {
	mu      sync.Mutex
	flights map[string]*flight
}

type flight struct {
	next *call
}

type call struct {
	fn      func(context.Context) error
	waiters int
	done    chan struct{}
	err     error
}

func NewRunner() *Runner {
	return &Runner{flights: map[string]*flight{}}
}

// Do runs fn for key, or coalesces it into the pending follow-up. coalesced
// reports whether the caller rode on a follow-up run.
func (r *Runner) Do(ctx context.Context, key string, fn func(context.Context) error) (coalesced bool, err error) {
	r.mu.Lock()
	if f, ok := r.flights[key]; ok {
		if f.next == nil {
			f.next = &call{done: make(chan struct{})}
		}
		c := f.next
		c.fn = fn
		c.waiters++
		r.mu.Unlock()
		select {
		case <-c.done:
			return true, c.err
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
	f := &flight{}
	r.flights[key] = f
	r.mu.Unlock()

	err = fn(ctx)

	// Follow-ups belong to callers that may still be waiting even if this
	// caller's context is gone.
	bg := context.WithoutCancel(ctx)
	for {
		r.mu.Lock()
		c := f.next
		if c == nil {
			delete(r.flights, key)
			r.mu.Unlock()
			return false, err
		}
		f.next = nil
		r.mu.Unlock()

		c.err = c.fn(bg)
		close(c.done)
	}
}

// InFlight reports whether key currently has a run in progress.
func (r *Runner) InFlight(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.flights[key]
	return ok
}
