package review

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Registry holds open sessions and serialises calls per reviewer. Sessions
// for distinct reviewers never contend on the same lock.
type Registry struct {
	store Store
	items []Item
	opts  Options

	mu      sync.Mutex
	entries map[string]*entry
}

// entry is guarded by mu. Once removed is set the entry is no longer in the
// map and callers must look up a fresh one.
type entry struct {
	mu      sync.Mutex
	session *Session
	removed bool
}

// NewRegistry returns a registry serving items from store.
func NewRegistry(store Store, items []Item, opts Options) *Registry {
	return &Registry{
		store:   store,
		items:   items,
		opts:    opts,
		entries: make(map[string]*entry),
	}
}

// Store returns the backing profile store.
func (r *Registry) Store() Store { return r.store }

// QueueLength returns the number of items every reviewer works through.
func (r *Registry) QueueLength() int { return len(r.items) }

func (r *Registry) entry(reviewer string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[reviewer]
	if !ok {
		e = &entry{}
		r.entries[reviewer] = e
	}
	return e
}

// Login applies the login rules and opens a session for reviewer.
func (r *Registry) Login(ctx context.Context, reviewer string) (Status, error) {
	reviewer = strings.TrimSpace(reviewer)
	if err := Login(ctx, r.store, reviewer); err != nil {
		return Status{}, err
	}
	var st Status
	err := r.With(ctx, reviewer, func(s *Session) error {
		st = s.Status()
		return nil
	})
	return st, err
}

// With runs fn with the reviewer's session, starting one if needed. Calls
// for the same reviewer run one at a time. Reviewers whose session cannot be
// started are not tracked.
func (r *Registry) With(ctx context.Context, reviewer string, fn func(*Session) error) error {
	for {
		e := r.entry(reviewer)
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		err := r.with(ctx, reviewer, e, fn)
		e.mu.Unlock()
		return err
	}
}

// with runs under e.mu.
func (r *Registry) with(ctx context.Context, reviewer string, e *entry, fn func(*Session) error) error {
	if e.session == nil {
		s, err := Start(ctx, r.store, reviewer, r.items, r.opts)
		if err != nil {
			r.remove(reviewer, e)
			return err
		}
		e.session = s
	}
	return fn(e.session)
}

// remove drops e from the map. The caller holds e.mu.
func (r *Registry) remove(reviewer string, e *entry) {
	e.session = nil
	e.removed = true
	r.mu.Lock()
	if r.entries[reviewer] == e {
		delete(r.entries, reviewer)
	}
	r.mu.Unlock()
}

// Close drops the reviewer's in-memory session once any call in progress for
// it has returned. Persisted state is untouched.
func (r *Registry) Close(reviewer string) bool {
	r.mu.Lock()
	e, ok := r.entries[reviewer]
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false
	}
	open := e.session != nil
	r.remove(reviewer, e)
	return open
}

// Active returns the reviewers with an open session, sorted.
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for id := range r.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
