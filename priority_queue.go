package stm

// PriorityQueue is the ordered variant of Queue (§6 "ordering function
// (for priority queues)"), built on the same ref-backed singly linked
// list as Queue but admitting elements by sorted insertion instead of
// tail append. less(a, b) reports whether a sorts strictly before b;
// Take always yields the current minimum.
type PriorityQueue[T any] struct {
	head     *Ref[*qnode[T]]
	tail     *Ref[*qnode[T]]
	size     *Ref[int]
	shutdown *Ref[bool]
	capacity int
	strategy Strategy
	less     func(a, b T) bool
}

// NewPriorityQueue returns a PriorityQueue with the given capacity,
// admission strategy, and ordering function.
func NewPriorityQueue[T any](capacity int, strategy Strategy, less func(a, b T) bool) *PriorityQueue[T] {
	return &PriorityQueue[T]{
		head:     NewRef[*qnode[T]](nil),
		tail:     NewRef[*qnode[T]](nil),
		size:     NewRef(0),
		shutdown: NewRef(false),
		capacity: capacity,
		strategy: strategy,
		less:     less,
	}
}

func (q *PriorityQueue[T]) sizeTerm() *Term {
	return Map(ReadRef(q.size), func(v int) int { return v })
}

func (q *PriorityQueue[T]) bumpSizeTerm(delta int) *Term {
	return FlatMap(ReadRef(q.size), func(sv any) *Term {
		return WriteRef(q.size, sv.(int)+delta)
	})
}

// insertTerm inserts a node for v at its sorted position, maintaining a
// stable ascending order by less.
func (q *PriorityQueue[T]) insertTerm(v T) *Term {
	n := &qnode[T]{val: v, next: NewRef[*qnode[T]](nil)}
	return FlatMap(ReadRef(q.head), func(hv any) *Term {
		head := hv.(*qnode[T])
		if head == nil || q.less(v, head.val) {
			return FlatMap(WriteRef(n.next, head), func(any) *Term {
				setHead := WriteRef(q.head, n)
				if head == nil {
					setHead = FlatMap(setHead, func(any) *Term { return WriteRef(q.tail, n) })
				}
				return setHead
			})
		}
		return q.insertAfterTerm(head, n)
	})
}

func (q *PriorityQueue[T]) insertAfterTerm(prev, n *qnode[T]) *Term {
	return FlatMap(ReadRef(prev.next), func(nv any) *Term {
		next := nv.(*qnode[T])
		if next == nil || q.less(n.val, next.val) {
			return FlatMap(WriteRef(n.next, next), func(any) *Term {
				link := WriteRef(prev.next, n)
				if next == nil {
					link = FlatMap(link, func(any) *Term { return WriteRef(q.tail, n) })
				}
				return link
			})
		}
		return q.insertAfterTerm(next, n)
	})
}

// popTerm removes and returns the minimum element (the head), matching
// Queue.popTerm's shape.
func (q *PriorityQueue[T]) popTerm() *Term {
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
				return FlatMap(q.bumpSizeTerm(-1), func(any) *Term {
					return Succeed(h.val)
				})
			})
		})
	})
}

// OfferTerm builds the transaction for offering v at its sorted position.
func (q *PriorityQueue[T]) OfferTerm(v T) *Term {
	return FlatMap(Map(ReadRef(q.shutdown), func(b bool) bool { return b }), func(sd any) *Term {
		if sd.(bool) {
			return Fail(ErrQueueShutdown)
		}
		if q.strategy == Unbounded {
			return FlatMap(q.insertTerm(v), func(any) *Term { return FlatMap(q.bumpSizeTerm(1), func(any) *Term { return Succeed(true) }) })
		}
		return FlatMap(q.sizeTerm(), func(sv any) *Term {
			size := sv.(int)
			if size < q.capacity {
				return FlatMap(q.insertTerm(v), func(any) *Term { return FlatMap(q.bumpSizeTerm(1), func(any) *Term { return Succeed(true) }) })
			}
			switch q.strategy {
			case Backpressure:
				return RetryTerm()
			case Dropping:
				return Succeed(false)
			case Sliding:
				// Evict the current maximum (tail) to admit v. v is always
				// admitted, even when it sorts after the evicted element.
				return FlatMap(q.evictTailTerm(), func(any) *Term {
					return FlatMap(q.insertTerm(v), func(any) *Term {
						return Succeed(true)
					})
				})
			default:
				return FlatMap(q.insertTerm(v), func(any) *Term { return FlatMap(q.bumpSizeTerm(1), func(any) *Term { return Succeed(true) }) })
			}
		})
	})
}

// evictTailTerm removes the current maximum element (the tail) without
// changing size, used by the sliding strategy so a full priority queue
// gives up its largest element rather than its oldest.
func (q *PriorityQueue[T]) evictTailTerm() *Term {
	return FlatMap(ReadRef(q.head), func(hv any) *Term {
		head := hv.(*qnode[T])
		if head == nil {
			return Succeed(nil)
		}
		return q.dropTailFrom(nil, head)
	})
}

func (q *PriorityQueue[T]) dropTailFrom(prev, cur *qnode[T]) *Term {
	return FlatMap(ReadRef(cur.next), func(nv any) *Term {
		next := nv.(*qnode[T])
		if next != nil {
			return q.dropTailFrom(cur, next)
		}
		// cur is the tail.
		if prev == nil {
			return FlatMap(WriteRef(q.head, (*qnode[T])(nil)), func(any) *Term {
				return WriteRef(q.tail, (*qnode[T])(nil))
			})
		}
		return FlatMap(WriteRef(prev.next, (*qnode[T])(nil)), func(any) *Term {
			return WriteRef(q.tail, prev)
		})
	})
}

// TakeTerm blocks (via Retry) while empty, returning the current minimum.
func (q *PriorityQueue[T]) TakeTerm() *Term {
	return FlatMap(q.sizeTerm(), func(sv any) *Term {
		if sv.(int) > 0 {
			return q.popTerm()
		}
		return FlatMap(Map(ReadRef(q.shutdown), func(b bool) bool { return b }), func(sd any) *Term {
			if sd.(bool) {
				return Fail(ErrQueueShutdown)
			}
			return RetryTerm()
		})
	})
}

func (q *PriorityQueue[T]) ShutdownTerm() *Term { return WriteRef(q.shutdown, true) }

func (q *PriorityQueue[T]) Offer(v T) (bool, error) {
	r, err := Atomically(q.OfferTerm(v))
	if err != nil {
		return false, err
	}
	return r.(bool), nil
}

func (q *PriorityQueue[T]) Take() (T, error) {
	v, err := Atomically(q.TakeTerm())
	var zero T
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (q *PriorityQueue[T]) Size() int {
	v, _ := Atomically(q.sizeTerm())
	return v.(int)
}

func (q *PriorityQueue[T]) Shutdown() { Atomically(q.ShutdownTerm()) }
