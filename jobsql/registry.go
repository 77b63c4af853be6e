package jobsql

import (
	"errors"
	"sync"
)

var errRegistryClosed = errors.New("registry closed")

// Registry tracks the statements of a connection that are currently inside
// Execute, so the connection can cancel them when it shuts down. A statement
// is only held while it executes.
type Registry struct {
	mu     sync.Mutex
	active map[*Statement]struct{}
	closed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[*Statement]struct{})}
}

func (r *Registry) register(s *Statement) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errRegistryClosed
	}
	r.active[s] = struct{}{}
	return nil
}

func (r *Registry) unregister(s *Statement) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, s)
}

// Len returns the number of executing statements.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// CancelAll cancels every executing statement and returns how many there were.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	stmts := r.snapshot()
	r.mu.Unlock()
	for _, s := range stmts {
		s.Cancel()
	}
	return len(stmts)
}

// Close cancels every executing statement, empties the registry and rejects
// later registrations.
func (r *Registry) Close() int {
	r.mu.Lock()
	r.closed = true
	stmts := r.snapshot()
	clear(r.active)
	r.mu.Unlock()
	for _, s := range stmts {
		s.Cancel()
	}
	return len(stmts)
}

// snapshot must be called with r.mu held.
func (r *Registry) snapshot() []*Statement {
	stmts := make([]*Statement, 0, len(r.active))
	for s := range r.active {
		stmts = append(stmts, s)
	}
	return stmts
}
