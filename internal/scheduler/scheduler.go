// Package scheduler provides a goroutine-backed reference implementation
// of the engine's Scheduler collaborator (see the root package's
// collab.go). It plays the same role for this module that
// internal/runtime/kernel plays for a full fiber runtime — naming
// borrowed from that shape (ParkToken-style handles, context-driven
// cancellation) — but scaled down to exactly the surface the STM engine
// needs: fiber identity, park/resume, and cancellation polling.
//
// It is a demonstration collaborator. Embedders with an actual fiber
// scheduler are expected to implement the Scheduler interface directly
// against their own run queue instead of using this package.
package scheduler

import (
	"context"
	"sync/atomic"
)

// Waiter is the minimal surface this package needs from a wakeup handle:
// block until fired. The root package's *stm.Handle satisfies it.
type Waiter interface {
	Wait()
}

// Goroutine is a Scheduler backed directly by OS threads: "current fiber"
// is just the calling goroutine, Park blocks it on the handle's channel,
// and cancellation is driven by the one context.Context given to New,
// shared by every fiber that uses this scheduler.
type Goroutine struct {
	ctx context.Context

	idSeq atomic.Uint64
}

// New returns a Goroutine scheduler whose fibers are cancelled when ctx is
// done. A nil ctx means fibers are never cancelled.
func New(ctx context.Context) *Goroutine {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Goroutine{ctx: ctx}
}

// fiberID is the diagnostic identity handed back by CurrentFiberID.
type fiberID uint64

func (f fiberID) String() string {
	return "fiber-goroutine"
}

// CurrentFiberID returns a coarse identity; this scheduler does not track
// true per-goroutine identity (Go exposes none), so every caller reports
// the same diagnostic tag. Production schedulers with real fiber records
// should return something stable per fiber instead.
func (g *Goroutine) CurrentFiberID() any {
	return fiberID(0)
}

// Park blocks the calling goroutine until h is fired or the scheduler's
// context is cancelled. On cancellation it still returns (not blocking
// forever); the caller's next IsCancelled check will observe the
// cancellation and abort the attempt.
func (g *Goroutine) Park(h Waiter) {
	type done struct{}
	ch := make(chan done, 1)
	go func() {
		h.Wait()
		ch <- done{}
	}()
	select {
	case <-ch:
	case <-g.ctx.Done():
	}
}

// Resume fires h. Exposed for symmetry with the Scheduler interface;
// callers normally just call h.Fire() directly, since this scheduler adds
// no bookkeeping on resumption.
func (g *Goroutine) Resume(h interface{ Fire() }) {
	h.Fire()
}

// IsCancelled reports whether the scheduler's context has been cancelled.
func (g *Goroutine) IsCancelled() bool {
	select {
	case <-g.ctx.Done():
		return true
	default:
		return false
	}
}
