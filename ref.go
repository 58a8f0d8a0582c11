package stm

import "sync"

// cell is the untyped heart of a versioned ref: one mutable slot, a
// monotonic version bumped on every committed write, and the registry of
// fibers parked waiting for that slot to change. Ref[T] is the typed handle
// callers hold; cell is what the journal and commit coordinator key on,
// since a journal must be able to hold entries for cells of differing T in
// a single map (see journal.go).
//
// cell.mu only ever guards a version+value peek from outside the commit
// lock (journal validation, AtomicGet/AtomicSet); all committing mutation
// happens with the commit lock already held, per §4.4.
type cell struct {
	mu      sync.Mutex
	version uint64
	val     any
	todos   *wakeupRegistry
}

func newCell(v any) *cell {
	return &cell{val: v, todos: newWakeupRegistry()}
}

// snapshot returns the cell's current version and value without taking the
// commit lock. Used for the journal's first-touch seed and for the cheap
// mid-transaction validity peek (§4.3 "after each primitive...").
func (c *cell) snapshot() (uint64, any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version, c.val
}

// Ref is a single versioned cell of type T — the only mutable primitive in
// the transaction model (§3 Cell). Refs are shared by reference; only the
// commit coordinator mutates the underlying cell, and only inside the
// commit lock.
type Ref[T any] struct {
	c *cell
}

// NewRef returns a new Ref holding v.
func NewRef[T any](v T) *Ref[T] {
	return &Ref[T]{c: newCell(v)}
}

// unsafeGet implements §4.1's unsafe_get(journal): the first touch of a
// cell installs a fresh journal entry seeded from the live cell, and
// returns it; later touches return the journal's tentative value. Not safe
// to call outside executor code that owns j exclusively.
func (c *cell) unsafeGet(j *journal) any {
	if e := j.lookup(c); e != nil {
		return e.tentative
	}
	ver, val := c.snapshot()
	j.add(c, &entry{cell: c, observedVersion: ver, tentative: val})
	return val
}

// unsafeSet implements §4.1's unsafe_set(journal, v): installs or updates
// the journal entry for c, flipping was_written.
func (c *cell) unsafeSet(j *journal, v any) {
	if e := j.lookup(c); e != nil {
		e.tentative = v
		e.written = true
		j.readOnly = false
		return
	}
	ver, _ := c.snapshot()
	j.add(c, &entry{cell: c, observedVersion: ver, tentative: v, written: true})
	j.readOnly = false
}

// pendingTodos reports how many wakeup handles are parked on c. Diagnostic only —
// the commit coordinator mutates todos directly under the commit lock.
func (c *cell) pendingTodos() int {
	return len(c.todos.pending)
}

// AtomicGet reads v's current value without running a full transaction: a
// lone read needs no journal, no retry loop, just the commit lock held
// for the duration of the peek so it cannot race a concurrent commit.
func AtomicGet[T any](v *Ref[T]) T {
	commitMu.Lock()
	defer commitMu.Unlock()
	v.c.mu.Lock()
	defer v.c.mu.Unlock()
	return v.c.val.(T)
}

// AtomicModify atomically replaces v's value with f(current) and returns
// the new value, as a single fast-path transaction (no journal needed for
// a lone read-modify-write of one ref, same rationale as AtomicGet).
func AtomicModify[T any](v *Ref[T], f func(T) T) T {
	commitMu.Lock()
	v.c.mu.Lock()
	next := f(v.c.val.(T))
	v.c.val = next
	v.c.version++
	v.c.mu.Unlock()
	handles := v.c.todos.takeAndClear()
	commitMu.Unlock()
	fireAll(handles)
	return next
}

// AtomicSet writes val to v outside of any transaction and wakes every
// fiber parked on v.
func AtomicSet[T any](v *Ref[T], val T) {
	commitMu.Lock()
	v.c.mu.Lock()
	v.c.val = val
	v.c.version++
	v.c.mu.Unlock()
	handles := v.c.todos.takeAndClear()
	commitMu.Unlock()
	fireAll(handles)
}
