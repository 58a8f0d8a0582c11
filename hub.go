package stm

import "errors"

// ErrHubShutdown is returned by Publish/Take once a hub has been shut
// down and, for Take, fully drained (§4.7 "Failure semantics").
var ErrHubShutdown = errors.New("stm: hub shut down")

// hubNode is one publisher node (§3 "Transactional hub"): val and the
// next link are fixed at creation, so the only field ever mutated after
// publication is remaining, and that mutation happens through its own
// ref (§5 "Hub publisher nodes are shared-immutable except for their
// remaining_subscribers counter").
type hubNode[T any] struct {
	val       T
	remaining *Ref[int]
	next      *Ref[*hubNode[T]]
}

// Hub is the multi-publisher/multi-subscriber broadcast structure of
// §4.7: a ring of publisher nodes with per-subscriber cursors. Every
// mutation — append, slide, cursor advance, subscriber add/remove — is a
// ref write, so hub operations compose with everything else in this
// package inside a single transaction.
type Hub[T any] struct {
	head     *Ref[*hubNode[T]]
	tail     *Ref[*hubNode[T]]
	size     *Ref[int]
	subCount *Ref[int]
	subs     *Ref[[]*Subscriber[T]]
	shutdown *Ref[bool]
	capacity int
	strategy Strategy
}

// Subscriber is one live cursor into a Hub's publisher-node list (§3
// "Each subscriber is a ref pointing at its current position"). Obtain
// one with Hub.Subscribe or Hub.SubscribeTerm; release it with
// Hub.Unsubscribe, or automatically via SubscribeScoped.
type Subscriber[T any] struct {
	cursor *Ref[*hubNode[T]]
	hub    *Hub[T]
}

func newHub[T any](capacity int, strategy Strategy) *Hub[T] {
	return &Hub[T]{
		head:     NewRef[*hubNode[T]](nil),
		tail:     NewRef[*hubNode[T]](nil),
		size:     NewRef(0),
		subCount: NewRef(0),
		subs:     NewRef[[]*Subscriber[T]](nil),
		shutdown: NewRef(false),
		capacity: capacity,
		strategy: strategy,
	}
}

// NewBoundedHub returns a backpressure hub of the given capacity (§6
// "constructors for ... hubs (same four constructors)").
func NewBoundedHub[T any](capacity int) *Hub[T] { return newHub[T](capacity, Backpressure) }

// NewDroppingHub returns a hub that discards publications once full.
func NewDroppingHub[T any](capacity int) *Hub[T] { return newHub[T](capacity, Dropping) }

// NewSlidingHub returns a hub that evicts its oldest still-referenced
// message to admit a new one once full.
func NewSlidingHub[T any](capacity int) *Hub[T] { return newHub[T](capacity, Sliding) }

// NewUnboundedHub returns a hub with no capacity limit.
func NewUnboundedHub[T any]() *Hub[T] { return newHub[T](0, Unbounded) }

// PublishTerm builds the publish(v) transaction (§4.7). With zero live
// subscribers it succeeds with true by convention (§9 Open Question (a));
// callers relying on back-pressure toward at least one live subscriber
// should check SubscriberCount first.
func (h *Hub[T]) PublishTerm(v T) *Term {
	return FlatMap(ReadRef(h.shutdown), func(sdv any) *Term {
		if sdv.(bool) {
			return Fail(ErrHubShutdown)
		}
		return FlatMap(ReadRef(h.subCount), func(scv any) *Term {
			subCount := scv.(int)
			if subCount == 0 {
				return Succeed(true)
			}
			if h.strategy == Unbounded {
				return h.appendTerm(v, subCount)
			}
			return FlatMap(ReadRef(h.size), func(sv any) *Term {
				size := sv.(int)
				if size < h.capacity {
					return h.appendTerm(v, subCount)
				}
				switch h.strategy {
				case Backpressure:
					return RetryTerm()
				case Dropping:
					return Succeed(false)
				case Sliding:
					return FlatMap(h.slideTerm(), func(any) *Term {
						return h.appendTerm(v, subCount)
					})
				default:
					return h.appendTerm(v, subCount)
				}
			})
		})
	})
}

// appendTerm links a freshly allocated node onto the tail, seeded with
// subCount pending deliveries, and bumps size.
func (h *Hub[T]) appendTerm(v T, subCount int) *Term {
	n := &hubNode[T]{val: v, remaining: NewRef(subCount), next: NewRef[*hubNode[T]](nil)}
	return FlatMap(ReadRef(h.tail), func(tv any) *Term {
		t := tv.(*hubNode[T])
		var link *Term
		if t == nil {
			link = FlatMap(WriteRef(h.head, n), func(any) *Term { return WriteRef(h.tail, n) })
		} else {
			link = FlatMap(WriteRef(t.next, n), func(any) *Term { return WriteRef(h.tail, n) })
		}
		return FlatMap(link, func(any) *Term {
			return FlatMap(ReadRef(h.size), func(sv any) *Term {
				return FlatMap(WriteRef(h.size, sv.(int)+1), func(any) *Term {
					return Succeed(true)
				})
			})
		})
	})
}

// slideTerm removes the head node unconditionally (§4.7 "slide"),
// repointing any subscriber cursor whose next Take would have read it, and decrements
// size. It does not touch remaining_subscribers bookkeeping for the
// evicted node — the node is simply dropped, matching the sliding
// strategy's contract that surviving order, not delivery completeness,
// is preserved.
func (h *Hub[T]) slideTerm() *Term {
	return FlatMap(ReadRef(h.head), func(hv any) *Term {
		head := hv.(*hubNode[T])
		if head == nil {
			return Succeed(nil)
		}
		return FlatMap(ReadRef(head.next), func(nv any) *Term {
			next := nv.(*hubNode[T])
			advance := WriteRef(h.head, next)
			if next == nil {
				advance = FlatMap(advance, func(any) *Term { return WriteRef(h.tail, (*hubNode[T])(nil)) })
			}
			return FlatMap(advance, func(any) *Term {
				return FlatMap(h.advanceCursorsPastTerm(head, next), func(any) *Term {
					return FlatMap(ReadRef(h.size), func(sv any) *Term {
						return WriteRef(h.size, sv.(int)-1)
					})
				})
			})
		})
	})
}

// advanceCursorsPastTerm repoints any subscriber cursor whose next Take
// would read evicted (a cursor on an already-reclaimed node linking to
// evicted) to nil, so that subscriber's next Take resumes from the new
// head, survivor, instead of the evicted node. A cursor sitting on evicted
// itself is left alone: that subscriber already consumed evicted, and
// evicted.next still links to survivor.
func (h *Hub[T]) advanceCursorsPastTerm(evicted, survivor *hubNode[T]) *Term {
	return FlatMap(ReadRef(h.subs), func(sv any) *Term {
		subs := sv.([]*Subscriber[T])
		t := Succeed(nil)
		for _, s := range subs {
			s := s
			t = FlatMap(t, func(any) *Term {
				return FlatMap(ReadRef(s.cursor), func(cv any) *Term {
					c := cv.(*hubNode[T])
					if c == nil || c == evicted {
						return Succeed(nil)
					}
					return FlatMap(ReadRef(c.next), func(nv any) *Term {
						if nv.(*hubNode[T]) == evicted {
							return WriteRef(s.cursor, (*hubNode[T])(nil))
						}
						return Succeed(nil)
					})
				})
			})
		}
		return t
	})
}

// SubscribeTerm builds the subscribe() transaction (§4.7): a fresh cursor
// positioned at the current tail, so the subscriber only observes
// messages published from this point on.
func (h *Hub[T]) SubscribeTerm() *Term {
	return FlatMap(ReadRef(h.tail), func(tv any) *Term {
		s := &Subscriber[T]{cursor: NewRef(tv.(*hubNode[T])), hub: h}
		return FlatMap(ReadRef(h.subs), func(sv any) *Term {
			subs := sv.([]*Subscriber[T])
			next := append(append([]*Subscriber[T]{}, subs...), s)
			return FlatMap(WriteRef(h.subs, next), func(any) *Term {
				return FlatMap(ReadRef(h.subCount), func(cv any) *Term {
					return FlatMap(WriteRef(h.subCount, cv.(int)+1), func(any) *Term {
						return Succeed(s)
					})
				})
			})
		})
	})
}

// UnsubscribeTerm builds the unsubscribe(s) transaction (§4.7): remove s
// from the subscriber set, then walk every node s had not yet consumed,
// decrementing its remaining_subscribers and reclaiming any node that
// reaches zero at the head. Unsubscribing an s that is no longer in the
// subscriber set changes nothing.
func (h *Hub[T]) UnsubscribeTerm(s *Subscriber[T]) *Term {
	removeSub := FlatMap(ReadRef(h.subs), func(sv any) *Term {
		subs := sv.([]*Subscriber[T])
		next := make([]*Subscriber[T], 0, len(subs))
		for _, x := range subs {
			if x != s {
				next = append(next, x)
			}
		}
		if len(next) == len(subs) {
			return Succeed(false)
		}
		return FlatMap(WriteRef(h.subs, next), func(any) *Term { return Succeed(true) })
	})
	decCount := FlatMap(ReadRef(h.subCount), func(cv any) *Term {
		return WriteRef(h.subCount, cv.(int)-1)
	})
	walk := FlatMap(ReadRef(s.cursor), func(cv any) *Term {
		return h.decrementUnconsumedFromTerm(cv.(*hubNode[T]))
	})
	return FlatMap(removeSub, func(removed any) *Term {
		if !removed.(bool) {
			// s was already unsubscribed: nothing left to release.
			return Succeed(nil)
		}
		return FlatMap(decCount, func(any) *Term {
			return FlatMap(walk, func(any) *Term {
				return Succeed(nil)
			})
		})
	})
}

func (h *Hub[T]) decrementUnconsumedFromTerm(cursor *hubNode[T]) *Term {
	if cursor == nil {
		return FlatMap(ReadRef(h.head), func(hv any) *Term {
			return h.decrementChainTerm(hv.(*hubNode[T]))
		})
	}
	return FlatMap(ReadRef(cursor.next), func(nv any) *Term {
		next := nv.(*hubNode[T])
		if next == nil {
			// cursor is either the tail (nothing left unconsumed) or a node
			// left behind when the hub drained, in which case every node now
			// in the hub was published after it.
			return FlatMap(ReadRef(h.tail), func(tv any) *Term {
				if tv.(*hubNode[T]) == cursor {
					return Succeed(nil)
				}
				return h.decrementUnconsumedFromTerm(nil)
			})
		}
		return h.decrementChainTerm(next)
	})
}

// decrementChainTerm walks n, n.next, ... to the tail, decrementing each
// node's remaining_subscribers by one and reclaiming any that reach zero
// while sitting at the head. Recursion here only builds the term tree at
// construction time (bounded by the un-consumed backlog for one
// subscriber); the executor still interprets the resulting tree with its
// explicit continuation stack.
func (h *Hub[T]) decrementChainTerm(n *hubNode[T]) *Term {
	if n == nil {
		return Succeed(nil)
	}
	return FlatMap(ReadRef(n.remaining), func(rv any) *Term {
		rem := rv.(int) - 1
		dec := WriteRef(n.remaining, rem)
		return FlatMap(dec, func(any) *Term {
			reclaim := Succeed(nil)
			if rem <= 0 {
				reclaim = h.maybeAdvanceHeadTerm(n)
			}
			return FlatMap(reclaim, func(any) *Term {
				return FlatMap(ReadRef(n.next), func(nx any) *Term {
					return h.decrementChainTerm(nx.(*hubNode[T]))
				})
			})
		})
	})
}

// maybeAdvanceHeadTerm reclaims n by advancing publisher_head past it,
// but only if n is still the head — a node whose counter reaches zero
// while buried behind other unconsumed nodes stays put until the head
// catches up to it.
func (h *Hub[T]) maybeAdvanceHeadTerm(n *hubNode[T]) *Term {
	return FlatMap(ReadRef(h.head), func(hv any) *Term {
		if hv.(*hubNode[T]) != n {
			return Succeed(nil)
		}
		return FlatMap(ReadRef(n.next), func(nv any) *Term {
			next := nv.(*hubNode[T])
			advance := WriteRef(h.head, next)
			if next == nil {
				advance = FlatMap(advance, func(any) *Term { return WriteRef(h.tail, (*hubNode[T])(nil)) })
			}
			return FlatMap(advance, func(any) *Term {
				return FlatMap(ReadRef(h.size), func(sv any) *Term {
					return WriteRef(h.size, sv.(int)-1)
				})
			})
		})
	})
}

// TakeTerm builds s's take() transaction (§4.7): retries while s's cursor
// has caught up to the tail, otherwise delivers the next node's value and
// advances the cursor past it.
func (h *Hub[T]) TakeTerm(s *Subscriber[T]) *Term {
	return FlatMap(ReadRef(s.cursor), func(cv any) *Term {
		cur := cv.(*hubNode[T])
		return FlatMap(ReadRef(h.tail), func(tv any) *Term {
			tail := tv.(*hubNode[T])
			if cur == tail {
				return FlatMap(ReadRef(h.shutdown), func(sdv any) *Term {
					if sdv.(bool) {
						return Fail(ErrHubShutdown)
					}
					return RetryTerm()
				})
			}
			var nextTerm *Term
			if cur == nil {
				nextTerm = ReadRef(h.head)
			} else {
				nextTerm = ReadRef(cur.next)
			}
			return FlatMap(nextTerm, func(nv any) *Term {
				next := nv.(*hubNode[T])
				if next == nil && cur != nil {
					// cur was the last node when the hub drained and head/tail
					// were reset to nil, so nothing published since is linked
					// after it: resume from the head, as a fresh cursor does.
					return FlatMap(WriteRef(s.cursor, (*hubNode[T])(nil)), func(any) *Term { return h.TakeTerm(s) })
				}
				return FlatMap(WriteRef(s.cursor, next), func(any) *Term {
					return FlatMap(ReadRef(next.remaining), func(rv any) *Term {
						rem := rv.(int) - 1
						dec := WriteRef(next.remaining, rem)
						return FlatMap(dec, func(any) *Term {
							reclaim := Succeed(nil)
							if rem <= 0 {
								reclaim = h.maybeAdvanceHeadTerm(next)
							}
							return FlatMap(reclaim, func(any) *Term {
								return Succeed(next.val)
							})
						})
					})
				})
			})
		})
	})
}

// ShutdownTerm marks the hub shut down: new publications fail, and
// subscribers observe ErrHubShutdown once they have drained everything
// already published.
func (h *Hub[T]) ShutdownTerm() *Term { return WriteRef(h.shutdown, true) }

// Ergonomic top-level surface, mirroring queue.go: each runs its Term via
// the package-default scheduler for callers with no fiber runtime of
// their own composing a larger transaction.

func (h *Hub[T]) Publish(v T) (bool, error) {
	r, err := Atomically(h.PublishTerm(v))
	if err != nil {
		return false, err
	}
	RecordHubBacklog(h.Size())
	return r.(bool), nil
}

func (h *Hub[T]) Subscribe() *Subscriber[T] {
	s, _ := Atomically(h.SubscribeTerm())
	return s.(*Subscriber[T])
}

func (h *Hub[T]) Unsubscribe(s *Subscriber[T]) { Atomically(h.UnsubscribeTerm(s)) }

func (h *Hub[T]) Take(s *Subscriber[T]) (T, error) {
	v, err := Atomically(h.TakeTerm(s))
	var zero T
	if err != nil {
		return zero, err
	}
	RecordHubBacklog(h.Size())
	return v.(T), nil
}

func (h *Hub[T]) Shutdown() { Atomically(h.ShutdownTerm()) }

func (h *Hub[T]) SubscriberCount() int {
	v, _ := Atomically(Map(ReadRef(h.subCount), func(n int) int { return n }))
	return v.(int)
}

func (h *Hub[T]) Size() int {
	v, _ := Atomically(Map(ReadRef(h.size), func(n int) int { return n }))
	return v.(int)
}
