package stm

import (
	"context"

	"github.com/orizon-lang/gostm/internal/scheduler"
)

// Scheduler is the external fiber scheduler collaborator (§6 "Consumed
// from collaborators"). The engine never creates or tears down fibers
// itself; it only asks the scheduler who is currently running, parks that
// fiber's wakeup handle, resumes a handle, and checks for cancellation at
// the deterministic checkpoints described in §5 "Cancellation".
//
// internal/scheduler provides a goroutine-backed reference implementation;
// production embedders are expected to supply their own, the way a fiber
// runtime would.
type Scheduler interface {
	// CurrentFiberID identifies the fiber driving the calling goroutine.
	// Used only for diagnostics (logging, debug handle naming).
	CurrentFiberID() any

	// Park suspends the current fiber. The fiber must not resume until h
	// is fired. Park may block the calling goroutine directly (as
	// internal/scheduler does) or hand off to a cooperative scheduler.
	Park(h *Handle)

	// Resume wakes a parked fiber; it is equivalent to h.Fire() but lets
	// the scheduler hook resumption bookkeeping (run queue admission,
	// metrics, ...). The commit coordinator itself does not call Resume:
	// it fires collected handles directly (fireAll in commit.go).
	Resume(h *Handle)

	// IsCancelled reports whether the current fiber has been asked to
	// stop. The executor polls this between primitives (§5).
	IsCancelled() bool
}

// Scope is the external structured-scope collaborator (§6). It guarantees
// exactly-once, LIFO-ordered execution of finalizers on scope exit —
// internal/scope is a reference implementation; production embedders
// typically already have one tied to their fiber's lifetime.
type Scope interface {
	// AddFinalizer registers action to run when the scope releases.
	// Finalizers run in reverse registration order, alongside any peer
	// finalizers already registered by the embedder.
	AddFinalizer(action func())
}

// goroutineScheduler adapts internal/scheduler.Goroutine to Scheduler.
// The adaptation exists only to break an import cycle: internal/scheduler
// cannot import this package (it would need to, to spell *Handle in its
// own method signatures) without this package importing it right back for
// the package-default Scheduler used by Atomically. The adapter is the
// one place that knows both types.
type goroutineScheduler struct {
	g *scheduler.Goroutine
}

func (s goroutineScheduler) CurrentFiberID() any { return s.g.CurrentFiberID() }
func (s goroutineScheduler) Park(h *Handle)      { s.g.Park(h) }
func (s goroutineScheduler) Resume(h *Handle)    { s.g.Resume(h) }
func (s goroutineScheduler) IsCancelled() bool   { return s.g.IsCancelled() }

// defaultScheduler backs the zero-configuration Atomically entry point: a
// plain goroutine scheduler whose fibers never get cancelled, for callers
// that have no fiber runtime of their own.
var defaultScheduler Scheduler = goroutineScheduler{g: scheduler.New(context.Background())}
