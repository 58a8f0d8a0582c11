package stm

// ScopedSubscription pairs a live Hub Subscriber with the scope that owns
// its lifetime (§9 "Scoped subscriptions ⇒ acquisition/release pair").
// Its zero value is not usable; obtain one from SubscribeScoped.
type ScopedSubscription[T any] struct {
	Sub *Subscriber[T]
	hub *Hub[T]
}

// SubscribeScoped subscribes to hub and registers the matching unsubscribe
// as a finalizer on scope (§4.7 "subscribe_scoped: paired with the scope
// collaborator; on scope release, unsubscribe is performed under a new
// transaction"). The finalizer is idempotent under retry: Hub.Unsubscribe
// on an already-removed Subscriber finds it absent from the subscriber set
// and changes nothing, so a scope released twice by a cancelled-then-retried
// fiber cannot double-release hub bookkeeping.
func SubscribeScoped[T any](scope Scope, hub *Hub[T]) *ScopedSubscription[T] {
	sub := hub.Subscribe()
	scope.AddFinalizer(func() {
		hub.Unsubscribe(sub)
	})
	return &ScopedSubscription[T]{Sub: sub, hub: hub}
}

// Take reads the next value published to this scoped subscription. Any
// take in progress when the owning scope releases observes
// post-unsubscribe state, since both the take and the unsubscribe run as
// ordinary transactions serialized by the commit lock (§4.7).
func (s *ScopedSubscription[T]) Take() (T, error) {
	return s.hub.Take(s.Sub)
}
