package stm

// kind tags the variant a Term node holds. Terms form an immutable tree
// (§3 "Transaction term"): the same value may be re-executed by the
// executor any number of times, so constructors never capture mutable
// state beyond the closures the caller supplies.
type kind uint8

const (
	kSucceed kind = iota
	kFail
	kRetry
	kDie
	kSync
	kRead
	kWrite
	kFlatMap
	kFold
	kOrTry
	kProvideEnv
	kWithEnv
	kInterrupt
)

// Term is a suspended description of a transaction: a tagged node in the
// combinator tree over the primitives listed in §3. Build one with the
// package-level constructors (Succeed, Fail, Retry, ...) and composition
// functions (FlatMap, Fold, OrTry, ...), then hand it to Atomically.
//
// Every other combinator in this package (Map, Zip, Catch, Tap, Ensuring,
// ...) desugars to these primitives, per §3's "All other combinators ...
// desugar to these."
type Term struct {
	kind kind

	// kSucceed / kFail / kDie payload.
	value any
	err   error

	// kSync.
	thunk func() any

	// kRead / kWrite.
	cell   *cell
	writeV any

	// kFlatMap.
	sub   *Term
	cont  func(any) *Term

	// kFold.
	onFail func(error) *Term
	onSucc func(any) *Term

	// kOrTry.
	first  *Term
	second *Term

	// kProvideEnv / kWithEnv.
	env      any
	withEnvF func(any) *Term
}

// Succeed builds a transaction that immediately succeeds with v.
func Succeed(v any) *Term { return &Term{kind: kSucceed, value: v} }

// Fail builds a transaction that aborts with a recoverable error.
func Fail(err error) *Term { return &Term{kind: kFail, err: err} }

// RetryTerm builds a transaction that explicitly blocks: the attempt is
// abandoned and re-run once any cell it observed changes. Named RetryTerm
// (not Retry) because Retry is already the ResultKind constant for this
// outcome (exec.go).
func RetryTerm() *Term { return &Term{kind: kRetry} }

// Die builds a transaction that aborts with an unrecoverable defect.
func Die(defect any) *Term { return &Term{kind: kDie, value: defect} }

// Interrupt builds a transaction that aborts as though the owning fiber
// had been cancelled.
func Interrupt() *Term { return &Term{kind: kInterrupt} }

// Sync lifts a pure host computation into the transaction tree. f must be
// referentially transparent: the executor may invoke it more than once if
// the attempt is retried or restarted.
func Sync(f func() any) *Term { return &Term{kind: kSync, thunk: f} }

// ReadRef builds a transaction that reads ref through the journal.
func ReadRef[T any](ref *Ref[T]) *Term { return &Term{kind: kRead, cell: ref.c} }

// WriteRef builds a transaction that writes v to ref through the journal.
func WriteRef[T any](ref *Ref[T], v T) *Term {
	return &Term{kind: kWrite, cell: ref.c, writeV: v}
}

// FlatMap sequences t, feeding its Success value to k to produce the next
// term. Failure, Retry, and Die pass through untouched (§4.3 fold
// "traps Failure (not Retry and not Die)" implies FlatMap traps nothing).
func FlatMap(t *Term, k func(any) *Term) *Term {
	return &Term{kind: kFlatMap, sub: t, cont: k}
}

// Fold traps t's outcome: onFail runs on Failure, onSucc runs on Success.
// Retry and Die are never trapped (§4.3).
func Fold(t *Term, onFail func(error) *Term, onSucc func(any) *Term) *Term {
	return &Term{kind: kFold, sub: t, onFail: onFail, onSucc: onSucc}
}

// OrTry runs t1 on a child journal; if it retries, t1's reads are merged
// into the parent journal and t2 runs instead. Any other outcome of t1
// adopts its child journal wholesale and t2 never runs (§4.3).
func OrTry(t1, t2 *Term) *Term {
	return &Term{kind: kOrTry, first: t1, second: t2}
}

// ProvideEnv binds ctx as the environment visible to WithEnv within t. The
// binding is not undone when t finishes: WithEnv nodes the executor reaches
// later in the same attempt also see ctx, until another ProvideEnv runs.
func ProvideEnv(ctx any, t *Term) *Term {
	return &Term{kind: kProvideEnv, env: ctx, sub: t}
}

// WithEnv builds the next term from the environment bound by the most
// recently executed ProvideEnv in the current attempt (nil if none).
func WithEnv(f func(any) *Term) *Term {
	return &Term{kind: kWithEnv, withEnvF: f}
}

// --- derived combinators (§3: "All other combinators ... desugar to
// these"; concretized per SPEC_FULL's Supplemented Features) ---

// Map transforms t's Success value with f; f runs outside the journal, so
// it must be pure.
func Map[A, B any](t *Term, f func(A) B) *Term {
	return FlatMap(t, func(a any) *Term {
		return Succeed(f(a.(A)))
	})
}

// Zip runs t1 then t2, pairing their Success values.
func Zip[A, B any](t1, t2 *Term) *Term {
	return FlatMap(t1, func(a any) *Term {
		return FlatMap(t2, func(b any) *Term {
			return Succeed([2]any{a, b})
		})
	})
}

// ZipWith runs t1 then t2, combining their Success values with f.
func ZipWith[A, B, C any](t1, t2 *Term, f func(A, B) C) *Term {
	return FlatMap(t1, func(a any) *Term {
		return FlatMap(t2, func(b any) *Term {
			return Succeed(f(a.(A), b.(B)))
		})
	})
}

// Catch recovers from a Failure by running handler with the error.
func Catch(t *Term, handler func(error) *Term) *Term {
	return Fold(t, handler, Succeed)
}

// CatchAll is an alias of Catch kept for readers coming from the
// combinator-heavy style of the source ecosystem this tree mirrors.
func CatchAll(t *Term, handler func(error) *Term) *Term {
	return Catch(t, handler)
}

// Tap runs f on t's Success value for its side effect (e.g. a log line
// staged via Sync) and then passes the value through unchanged.
func Tap(t *Term, f func(any)) *Term {
	return FlatMap(t, func(a any) *Term {
		f(a)
		return Succeed(a)
	})
}

// Ensuring runs finalizer after t completes with Success or Failure, by
// folding both paths through a common tail, then passes t's outcome on.
// Being built on Fold, it does not run finalizer when t retries or dies.
// finalizer itself must not retry or fail.
func Ensuring(t *Term, finalizer *Term) *Term {
	return Fold(t,
		func(err error) *Term {
			return FlatMap(finalizer, func(any) *Term { return Fail(err) })
		},
		func(v any) *Term {
			return FlatMap(finalizer, func(any) *Term { return Succeed(v) })
		},
	)
}

// OrElseSucceed replaces any Failure from t with a successful fallback.
func OrElseSucceed(t *Term, fallback any) *Term {
	return Catch(t, func(error) *Term { return Succeed(fallback) })
}

// OrElseFail replaces any Failure from t with a different error.
func OrElseFail(t *Term, err error) *Term {
	return Catch(t, func(error) *Term { return Fail(err) })
}
