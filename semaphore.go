package stm

import "errors"

// ErrNegativePermits is returned by NewSemaphore for a non-positive
// permit count (§6 "Constructors for ... semaphores (permit count)").
var ErrNegativePermits = errors.New("stm: semaphore permits must be positive")

// Semaphore is a counting semaphore built purely on a bounded Ref[int]
// (§6): Acquire retries while no permits remain, Release always succeeds.
// There is no separate admission strategy here — a semaphore has exactly
// one sensible policy, backpressure, so it is not built on Queue.
type Semaphore struct {
	permits *Ref[int]
	max     int
}

// NewSemaphore returns a Semaphore starting with permits available
// permits, out of a maximum of permits.
func NewSemaphore(permits int) (*Semaphore, error) {
	if permits <= 0 {
		return nil, ErrNegativePermits
	}
	return &Semaphore{permits: NewRef(permits), max: permits}, nil
}

// AcquireTerm builds the transaction that takes one permit, retrying
// while none are available.
func (s *Semaphore) AcquireTerm() *Term {
	return FlatMap(ReadRef(s.permits), func(v any) *Term {
		n := v.(int)
		if n <= 0 {
			return RetryTerm()
		}
		return WriteRef(s.permits, n-1)
	})
}

// AcquireNTerm builds the transaction that takes n permits atomically,
// retrying while fewer than n are available.
func (s *Semaphore) AcquireNTerm(n int) *Term {
	return FlatMap(ReadRef(s.permits), func(v any) *Term {
		avail := v.(int)
		if avail < n {
			return RetryTerm()
		}
		return WriteRef(s.permits, avail-n)
	})
}

// ReleaseTerm builds the transaction that returns one permit. Releasing
// beyond the semaphore's configured maximum is the caller's bug to avoid;
// WriteRef trusts its caller the same way.
func (s *Semaphore) ReleaseTerm() *Term {
	return FlatMap(ReadRef(s.permits), func(v any) *Term {
		return WriteRef(s.permits, v.(int)+1)
	})
}

// ReleaseNTerm builds the transaction that returns n permits.
func (s *Semaphore) ReleaseNTerm(n int) *Term {
	return FlatMap(ReadRef(s.permits), func(v any) *Term {
		return WriteRef(s.permits, v.(int)+n)
	})
}

func (s *Semaphore) Acquire()       { Atomically(s.AcquireTerm()) }
func (s *Semaphore) AcquireN(n int) { Atomically(s.AcquireNTerm(n)) }
func (s *Semaphore) Release()       { Atomically(s.ReleaseTerm()) }
func (s *Semaphore) ReleaseN(n int) { Atomically(s.ReleaseNTerm(n)) }

func (s *Semaphore) Available() int {
	v, _ := Atomically(Map(ReadRef(s.permits), func(n int) int { return n }))
	return v.(int)
}

// WithPermit runs f after acquiring one permit and releases it
// afterward regardless of whether f panics.
func (s *Semaphore) WithPermit(f func()) {
	s.Acquire()
	defer s.Release()
	f()
}
