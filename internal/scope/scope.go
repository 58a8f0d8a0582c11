// Package scope provides a minimal structured-scope reference
// implementation of the engine's Scope collaborator (see the root
// package's collab.go): deterministic, exactly-once, LIFO-ordered
// finalizer execution on scope release. Naming and shape are borrowed
// from Orizon's internal/runtime/concurrency scope-lifetime conventions —
// keep the structure simple, run finalizers in reverse-registration
// order.
//
// Production embedders with a fiber runtime of their own typically
// already have a scope tied to fiber lifetime; this package exists so
// the root package's SubscribeScoped has something concrete to run
// against in tests and examples.
package scope

import (
	"sync"

	"github.com/google/uuid"
)

// Scope is a LIFO finalizer list, released at most once.
type Scope struct {
	id uuid.UUID

	mu         sync.Mutex
	finalizers []func()
	released   bool
}

// New allocates a fresh, open scope tagged with a debug UUID.
func New() *Scope {
	return &Scope{id: uuid.New()}
}

// ID returns the scope's debug identifier, for log correlation.
func (s *Scope) ID() uuid.UUID { return s.id }

// AddFinalizer registers action to run on Release, in LIFO order
// alongside any peer finalizers already registered. Registering on an
// already-released scope runs action immediately, matching the
// "guaranteed exactly-once execution on scope exit" contract even for a
// finalizer added after the fact.
func (s *Scope) AddFinalizer(action func()) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		action()
		return
	}
	s.finalizers = append(s.finalizers, action)
	s.mu.Unlock()
}

// Release runs every registered finalizer in reverse-registration order,
// exactly once. Subsequent calls are no-ops.
func (s *Scope) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	fs := s.finalizers
	s.finalizers = nil
	s.mu.Unlock()

	for i := len(fs) - 1; i >= 0; i-- {
		fs[i]()
	}
}
