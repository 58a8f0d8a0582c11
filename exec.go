package stm

// ResultKind is one of the four transaction outcomes from §7, plus the
// scheduler-routed interruption outcome from §5 "Cancellation" (which is
// not one of the four — it never reaches the commit coordinator's publish
// path at all).
type ResultKind uint8

const (
	// Success means the transaction committed and produced Value.
	Success ResultKind = iota
	// Failure means the transaction ended with an error; Err is
	// delivered, recoverable via Fold/Catch. The commit coordinator still
	// publishes the attempt's writes (commitAttempt step 4).
	Failure
	// Retry is never visible to callers of Atomically: it means the
	// executor should park and re-run transparently.
	Retry
	// Died means a defect escaped; the attempt's writes are still
	// published (commitAttempt step 4) and the defect propagates as a
	// panic from Atomically (§7).
	Died
	// Interrupted means the scheduler reported cancellation mid-attempt.
	Interrupted
)

// Result is the executor's verdict for one interpretation of a Term.
type Result struct {
	Kind   ResultKind
	Value  any
	Err    error
	Defect any
}

// frameKind tags what a stack frame should do when the bubbling Result
// reaches it.
type frameKind uint8

const (
	frameFlatMap frameKind = iota
	frameFold
	frameOrTry
)

type frame struct {
	kind frameKind

	// frameFlatMap
	cont func(any) *Term

	// frameFold
	onFail func(error) *Term
	onSucc func(any) *Term

	// frameOrTry
	fallback      *Term
	parentJournal *journal
}

// interpret walks term against j using an explicit continuation stack, per
// §4.3 and §9 ("do not rely on host recursion"). env is the value visible
// to WithEnv nodes. It returns the bubbled-up Result together with the
// journal the outcome should be validated/committed against, or
// restart=true if a mid-execution cell changed out from under the
// attempt.
func interpret(term *Term, j *journal, env any, sched Scheduler) (res Result, out *journal, restart bool) {
	var stack []frame
	cur := term
	curJournal := j

	checkValid := func() bool {
		if curJournal.isInvalid() {
			return false
		}
		return true
	}

	for {
		if sched != nil && sched.IsCancelled() {
			return Result{Kind: Interrupted}, curJournal, false
		}

		var r Result
		switch cur.kind {
		case kSucceed:
			r = Result{Kind: Success, Value: cur.value}
		case kFail:
			r = Result{Kind: Failure, Err: cur.err}
		case kRetry:
			r = Result{Kind: Retry}
		case kDie:
			r = Result{Kind: Died, Defect: cur.value}
		case kInterrupt:
			return Result{Kind: Interrupted}, curJournal, false
		case kSync:
			r = Result{Kind: Success, Value: cur.thunk()}
		case kRead:
			r = Result{Kind: Success, Value: cur.cell.unsafeGet(curJournal)}
		case kWrite:
			cur.cell.unsafeSet(curJournal, cur.writeV)
			r = Result{Kind: Success, Value: nil}
		case kWithEnv:
			cur = cur.withEnvF(env)
			continue
		case kProvideEnv:
			env = cur.env
			cur = cur.sub
			continue
		case kFlatMap:
			stack = append(stack, frame{kind: frameFlatMap, cont: cur.cont})
			cur = cur.sub
			continue
		case kFold:
			stack = append(stack, frame{kind: frameFold, onFail: cur.onFail, onSucc: cur.onSucc})
			cur = cur.sub
			continue
		case kOrTry:
			child := curJournal.branch()
			stack = append(stack, frame{kind: frameOrTry, fallback: cur.second, parentJournal: curJournal})
			curJournal = child
			cur = cur.first
			continue
		default:
			panic("stm: unknown term kind")
		}

		if !checkValid() {
			return Result{}, curJournal, true
		}

		// Unwind the stack against r until either it is fully consumed
		// (top-level outcome) or a frame turns it back into a term to
		// interpret.
		for {
			if len(stack) == 0 {
				return r, curJournal, false
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			switch f.kind {
			case frameFlatMap:
				if r.Kind == Success {
					cur = f.cont(r.Value)
					goto resume
				}
				// Failure/Retry/Die/Interrupted pass through untouched.
			case frameFold:
				switch r.Kind {
				case Failure:
					cur = f.onFail(r.Err)
					goto resume
				case Success:
					cur = f.onSucc(r.Value)
					goto resume
				}
				// Retry/Die/Interrupted pass through untouched.
			case frameOrTry:
				child := curJournal
				curJournal = f.parentJournal
				if r.Kind == Retry {
					curJournal.mergeReadsFrom(child)
					cur = f.fallback
					goto resume
				}
				// Success/Failure/Die/Interrupted: adopt child wholesale
				// and keep propagating r upward.
				curJournal.adopt(child)
			}
		}
	resume:
		continue
	}
}
