// Package session tracks in-flight analyses so that a result arriving after
// the user started a newer analysis for the same key is dropped.
package session

import (
	"context"
	"sync"
)

// Ticket identifies one in-flight analysis.
type Ticket struct {
	Key        string
	Generation uint64
}

type entry struct {
	generation uint64
	cancel     context.CancelFunc
}

// Tracker hands out increasing generations per key. Starting a new
// generation cancels the previous one's context.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*entry)}
}

// Begin starts a new generation for key and returns a context that is
// cancelled when the generation is superseded or finished.
func (t *Tracker) Begin(ctx context.Context, key string) (context.Context, Ticket) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	} else if e.cancel != nil {
		e.cancel()
	}
	e.generation++
	e.cancel = cancel

	return ctx, Ticket{Key: key, Generation: e.generation}
}

// Current reports whether tk is still the latest generation for its key.
func (t *Tracker) Current(tk Ticket) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[tk.Key]
	return ok && e.generation == tk.Generation
}

// Finish releases tk's context. A finished ticket stays current until a
// newer generation begins.
func (t *Tracker) Finish(tk Ticket) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[tk.Key]; ok && e.generation == tk.Generation && e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

// Cancel supersedes any in-flight generation for key, e.g. when the user
// navigates away.
func (t *Tracker) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[key]; ok {
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
		e.generation++
	}
}
