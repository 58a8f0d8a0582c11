package stm

import "sync/atomic"

// Handle is a one-shot continuation belonging to a parked fiber: it bears
// a wakeup channel the scheduler's Park implementation blocks on, and a
// Fire operation the commit coordinator calls when a cell the fiber
// observed is written. A single Handle may be registered in many cells'
// wakeup registries at once; Fire is idempotent, so at most one
// resumption happens per park no matter how many of those cells fire it.
type Handle struct {
	fired atomic.Bool
	done  chan struct{}
	id    string
}

// NewHandle allocates a fresh, unfired wakeup handle tagged with a
// debug-only identifier (commitAttempt in commit.go logs it when a
// transaction parks on retry).
func NewHandle(debugID string) *Handle {
	return &Handle{done: make(chan struct{}), id: debugID}
}

// Fire resumes the parked fiber exactly once. Subsequent calls are no-ops,
// which is what lets a single Handle sit in several cells' registries
// without producing duplicate resumptions.
func (h *Handle) Fire() {
	if h.fired.CompareAndSwap(false, true) {
		close(h.done)
	}
}

// Wait blocks until Fire is called. The reference scheduler in
// internal/scheduler implements Park in terms of Wait; a scheduler that
// cooperatively yields fibers instead of blocking OS threads would use
// the channel directly (Handle.Done).
func (h *Handle) Wait() {
	<-h.done
}

// Done exposes the underlying channel for select-based schedulers that
// need to wait on cancellation and the wakeup simultaneously.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// wakeupRegistry is the per-cell set of handles parked on that cell. All
// operations run exclusively under the commit lock (see commit.go); the
// type itself holds no lock of its own.
type wakeupRegistry struct {
	pending map[*Handle]struct{}
}

func newWakeupRegistry() *wakeupRegistry {
	return &wakeupRegistry{pending: make(map[*Handle]struct{})}
}

// register adds h to the set of handles waiting on this registry's cell.
func (r *wakeupRegistry) register(h *Handle) {
	r.pending[h] = struct{}{}
}

// takeAndClear empties the registry and returns what it held.
func (r *wakeupRegistry) takeAndClear() []*Handle {
	if len(r.pending) == 0 {
		return nil
	}
	out := make([]*Handle, 0, len(r.pending))
	for h := range r.pending {
		out = append(out, h)
	}
	r.pending = make(map[*Handle]struct{})
	return out
}
