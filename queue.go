package stm

import "errors"

// Strategy is a transactional collection's admission policy for a full
// bounded structure (§4.6, §6 "Configuration").
type Strategy uint8

const (
	// Backpressure blocks the producer (via Retry) until room frees up.
	Backpressure Strategy = iota
	// Dropping refuses new elements once full, returning false.
	Dropping
	// Sliding evicts the oldest element to make room for the newest.
	Sliding
	// Unbounded never refuses; capacity is ignored.
	Unbounded
)

// ErrQueueShutdown is returned by queue operations once Shutdown has been
// committed (§4.6 "shutdown sets the flag; all subsequent operations
// either fail with a shutdown error or ... return a terminal signal").
var ErrQueueShutdown = errors.New("stm: queue shut down")

// qnode is one value node of the queue's singly linked list. next is
// itself a Ref, matching §3's "each node is itself a ref holding
// Option<Node<T>>" — a nil *qnode stands in for None.
type qnode[T any] struct {
	val  T
	next *Ref[*qnode[T]]
}

// Queue is the transactional FIFO of §4.6: refs holding head/tail
// pointers, size, and shutdown state over a linked list of value nodes,
// plus an immutable capacity and admission Strategy fixed at construction
// (§6 "Configuration: capacity ..., admission strategy").
type Queue[T any] struct {
	head     *Ref[*qnode[T]]
	tail     *Ref[*qnode[T]]
	size     *Ref[int]
	shutdown *Ref[bool]
	capacity int
	strategy Strategy
}

func newQueue[T any](capacity int, strategy Strategy) *Queue[T] {
	return &Queue[T]{
		head:     NewRef[*qnode[T]](nil),
		tail:     NewRef[*qnode[T]](nil),
		size:     NewRef(0),
		shutdown: NewRef(false),
		capacity: capacity,
		strategy: strategy,
	}
}

// NewBoundedQueue returns a backpressure queue of the given capacity:
// Offer retries while full (§6 "bounded(n)").
func NewBoundedQueue[T any](capacity int) *Queue[T] { return newQueue[T](capacity, Backpressure) }

// NewDroppingQueue returns a queue that discards offers once full
// (§6 "dropping(n)").
func NewDroppingQueue[T any](capacity int) *Queue[T] { return newQueue[T](capacity, Dropping) }

// NewSlidingQueue returns a queue that evicts its oldest element to admit
// a new one once full (§6 "sliding(n)").
func NewSlidingQueue[T any](capacity int) *Queue[T] { return newQueue[T](capacity, Sliding) }

// NewUnboundedQueue returns a queue with no capacity limit (§6
// "unbounded()").
func NewUnboundedQueue[T any]() *Queue[T] { return newQueue[T](0, Unbounded) }

func (q *Queue[T]) sizeTerm() *Term {
	return Map(ReadRef(q.size), func(v int) int { return v })
}

func (q *Queue[T]) isShutdownTerm() *Term {
	return Map(ReadRef(q.shutdown), func(v bool) bool { return v })
}

// appendTerm links a fresh node holding v onto the tail and bumps size.
// Assumes the caller has already cleared capacity for the append.
func (q *Queue[T]) appendTerm(v T) *Term {
	n := &qnode[T]{val: v, next: NewRef[*qnode[T]](nil)}
	return FlatMap(ReadRef(q.tail), func(tv any) *Term {
		t := tv.(*qnode[T])
		var link *Term
		if t == nil {
			link = FlatMap(WriteRef(q.head, n), func(any) *Term { return WriteRef(q.tail, n) })
		} else {
			link = FlatMap(WriteRef(t.next, n), func(any) *Term { return WriteRef(q.tail, n) })
		}
		return FlatMap(link, func(any) *Term {
			return FlatMap(ReadRef(q.size), func(sv any) *Term {
				return WriteRef(q.size, sv.(int)+1)
			})
		})
	})
}

// popTerm unlinks and returns the head node's value, decrementing size.
// Caller must have already established the queue is non-empty.
func (q *Queue[T]) popTerm() *Term {
	return FlatMap(ReadRef(q.head), func(hv any) *Term {
		h := hv.(*qnode[T])
		return FlatMap(ReadRef(h.next), func(nv any) *Term {
			next := nv.(*qnode[T])
			afterHead := FlatMap(WriteRef(q.head, next), func(any) *Term {
				if next == nil {
					return WriteRef(q.tail, (*qnode[T])(nil))
				}
				return Succeed(nil)
			})
			return FlatMap(afterHead, func(any) *Term {
				return FlatMap(ReadRef(q.size), func(sv any) *Term {
					return FlatMap(WriteRef(q.size, sv.(int)-1), func(any) *Term {
						return Succeed(h.val)
					})
				})
			})
		})
	})
}

// OfferTerm builds the transaction for offering v (§4.6). Compose it with
// other terms (Zip, OrTry, ...) when the offer must be atomic alongside
// other cell operations.
func (q *Queue[T]) OfferTerm(v T) *Term {
	return FlatMap(q.isShutdownTerm(), func(sd any) *Term {
		if sd.(bool) {
			return Fail(ErrQueueShutdown)
		}
		if q.strategy == Unbounded {
			return FlatMap(q.appendTerm(v), func(any) *Term { return Succeed(true) })
		}
		return FlatMap(q.sizeTerm(), func(sv any) *Term {
			size := sv.(int)
			if size < q.capacity {
				return FlatMap(q.appendTerm(v), func(any) *Term { return Succeed(true) })
			}
			switch q.strategy {
			case Backpressure:
				return RetryTerm()
			case Dropping:
				return Succeed(false)
			case Sliding:
				return FlatMap(q.popTerm(), func(any) *Term {
					return FlatMap(q.appendTerm(v), func(any) *Term { return Succeed(true) })
				})
			default:
				return FlatMap(q.appendTerm(v), func(any) *Term { return Succeed(true) })
			}
		})
	})
}

// OfferAllTerm offers every element of vs in order, as one transaction.
func (q *Queue[T]) OfferAllTerm(vs []T) *Term {
	t := Succeed(true)
	for _, v := range vs {
		v := v
		t = FlatMap(t, func(any) *Term { return q.OfferTerm(v) })
	}
	return t
}

// TakeTerm builds the blocking-take transaction: Retry while empty,
// Fail(ErrQueueShutdown) once shut down and drained (§4.6 "take on empty
// retries ... shutdown ... return a terminal signal").
func (q *Queue[T]) TakeTerm() *Term {
	return FlatMap(q.sizeTerm(), func(sv any) *Term {
		if sv.(int) > 0 {
			return q.popTerm()
		}
		return FlatMap(q.isShutdownTerm(), func(sd any) *Term {
			if sd.(bool) {
				return Fail(ErrQueueShutdown)
			}
			return RetryTerm()
		})
	})
}

// PollTerm returns (value, true) if the queue is non-empty, else
// (zero, false), without blocking.
func (q *Queue[T]) PollTerm() *Term {
	return FlatMap(q.sizeTerm(), func(sv any) *Term {
		if sv.(int) == 0 {
			var zero T
			return Succeed([2]any{zero, false})
		}
		return Map(q.popTerm(), func(v T) [2]any { return [2]any{v, true} })
	})
}

// PeekTerm returns (value, true) for the head element without removing
// it, or (zero, false) if empty.
func (q *Queue[T]) PeekTerm() *Term {
	return FlatMap(ReadRef(q.head), func(hv any) *Term {
		h := hv.(*qnode[T])
		if h == nil {
			var zero T
			return Succeed([2]any{zero, false})
		}
		return Succeed([2]any{h.val, true})
	})
}

// TakeAllTerm drains every currently queued element (empty slice if none)
// without blocking.
func (q *Queue[T]) TakeAllTerm() *Term {
	return FlatMap(q.sizeTerm(), func(sv any) *Term {
		n := sv.(int)
		out := make([]T, 0, n)
		t := Succeed(any(out))
		for i := 0; i < n; i++ {
			t = FlatMap(t, func(acc any) *Term {
				return Map(q.popTerm(), func(v T) []T {
					return append(acc.([]T), v)
				})
			})
		}
		return t
	})
}

// TakeUpToTerm drains at most n currently queued elements without
// blocking.
func (q *Queue[T]) TakeUpToTerm(n int) *Term {
	return FlatMap(q.sizeTerm(), func(sv any) *Term {
		want := sv.(int)
		if n < want {
			want = n
		}
		out := make([]T, 0, want)
		t := Succeed(any(out))
		for i := 0; i < want; i++ {
			t = FlatMap(t, func(acc any) *Term {
				return Map(q.popTerm(), func(v T) []T {
					return append(acc.([]T), v)
				})
			})
		}
		return t
	})
}

// ShutdownTerm marks the queue shut down.
func (q *Queue[T]) ShutdownTerm() *Term {
	return WriteRef(q.shutdown, true)
}

// AwaitShutdownTerm retries until Shutdown has committed.
func (q *Queue[T]) AwaitShutdownTerm() *Term {
	return FlatMap(q.isShutdownTerm(), func(sd any) *Term {
		if !sd.(bool) {
			return RetryTerm()
		}
		return Succeed(nil)
	})
}

// The methods below are the ergonomic top-level surface: each runs its
// Term via the package-default scheduler, for callers with no fiber
// runtime composing a larger transaction around it.

func (q *Queue[T]) Offer(v T) (bool, error) {
	r, err := Atomically(q.OfferTerm(v))
	if err != nil {
		return false, err
	}
	return r.(bool), nil
}

func (q *Queue[T]) OfferAll(vs []T) error {
	_, err := Atomically(q.OfferAllTerm(vs))
	return err
}

func (q *Queue[T]) Take() (T, error) {
	v, err := Atomically(q.TakeTerm())
	var zero T
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (q *Queue[T]) Poll() (T, bool) {
	v, _ := Atomically(q.PollTerm())
	pair := v.([2]any)
	return pair[0].(T), pair[1].(bool)
}

func (q *Queue[T]) Peek() (T, bool) {
	v, _ := Atomically(q.PeekTerm())
	pair := v.([2]any)
	return pair[0].(T), pair[1].(bool)
}

func (q *Queue[T]) TakeAll() []T {
	v, _ := Atomically(q.TakeAllTerm())
	return v.([]T)
}

func (q *Queue[T]) TakeUpTo(n int) []T {
	v, _ := Atomically(q.TakeUpToTerm(n))
	return v.([]T)
}

func (q *Queue[T]) Size() int {
	v, _ := Atomically(q.sizeTerm())
	return v.(int)
}

func (q *Queue[T]) IsEmpty() bool { return q.Size() == 0 }

func (q *Queue[T]) IsFull() bool {
	if q.strategy == Unbounded {
		return false
	}
	return q.Size() >= q.capacity
}

func (q *Queue[T]) Shutdown() { Atomically(q.ShutdownTerm()) }

func (q *Queue[T]) AwaitShutdown() { Atomically(q.AwaitShutdownTerm()) }
