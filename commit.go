package stm

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orizon-lang/gostm/internal/obslog"
)

// commitMu is the single global mutex serialising commits and retry-parks
// (§4.4 "the coordinator owns a single global mutex — the commit lock").
// Only one transaction attempt is ever validating or publishing at a time,
// which is what makes the wakeup-registration race in §4.4's design
// rationale impossible: a writer either takes commitMu after a parker has
// registered (and so fires it) or before (in which case the parker's own
// next validation, taken under the same lock, sees the version change and
// reruns immediately instead of parking).
var commitMu sync.Mutex

var pkgLogger = obslog.Default()

// SetLogger replaces the package's internal diagnostics logger. Engines
// embedding gostm typically call this once at startup with a logger built
// via internal/obslog's Config, or simply reuse their own *zap.Logger.
func SetLogger(l *zap.Logger) {
	if l != nil {
		pkgLogger = l
	}
}

// fireAll resumes every handle in hs. Called after commitMu has been
// released (§4.4 step 4: "release the lock; fire every collected handle
// exactly once").
func fireAll(hs []*Handle) {
	for _, h := range hs {
		h.Fire()
	}
}

// ErrInterrupted is returned by Atomically when the scheduler reports
// cancellation mid-attempt (§5 "Cancellation", §7).
var ErrInterrupted = fmt.Errorf("stm: interrupted")

// Defect wraps a value passed to Die so panics raised by Atomically are
// distinguishable from unrelated panics in caller code.
type Defect struct {
	Value any
}

func (d Defect) Error() string {
	return fmt.Sprintf("stm: defect: %v", d.Value)
}

// Atomically submits term using the package-default reference scheduler
// (see internal/scheduler), the way a caller with no fiber runtime of its
// own would. It returns Success's value or Failure's error; Retry is
// invisible; Die is raised as a panic carrying a Defect.
func Atomically(term *Term) (any, error) {
	return AtomicallyWith(defaultScheduler, term)
}

// AtomicallyWith submits term against an explicit Scheduler collaborator
// (§6 "atomically(term) -> outcome"). This is the entry point production
// embedders with their own fiber runtime are expected to use.
func AtomicallyWith(sched Scheduler, term *Term) (any, error) {
	attempts := 0
	for {
		attempts++
		recordAttempt()
		j := newJournal()
		res, outJournal, restart := interpret(term, j, nil, sched)
		if restart {
			pkgLogger.Debug("attempt invalidated mid-execution, restarting", zap.Int("attempts", attempts))
			continue
		}

		if res.Kind == Interrupted {
			return nil, ErrInterrupted
		}

		outcome, retryRequested := commitAttempt(outJournal, res, sched)
		if retryRequested {
			continue
		}
		recordOutcome(outcome.Kind)

		switch outcome.Kind {
		case Success:
			return outcome.Value, nil
		case Failure:
			return nil, outcome.Err
		case Died:
			pkgLogger.Warn("transaction died", zap.Any("defect", outcome.Defect), zap.Int("attempts", attempts))
			panic(Defect{Value: outcome.Defect})
		case Interrupted:
			return nil, ErrInterrupted
		default:
			panic("stm: unreachable outcome kind")
		}
	}
}

// commitAttempt implements the four-step commit protocol of §4.4. It
// returns the outcome to deliver to the caller and whether the whole
// attempt must be re-run (either because validation failed, or because
// the transaction retried and has since been woken).
func commitAttempt(j *journal, res Result, sched Scheduler) (Result, bool) {
	commitMu.Lock()

	// Step 2: re-validate under the lock.
	if j.isInvalid() {
		commitMu.Unlock()
		return Result{}, true
	}

	// Step 3: Retry parks the fiber.
	if res.Kind == Retry {
		h := NewHandle(fmt.Sprintf("fiber-%s", debugFiberTag(sched)))
		for c := range j.entries {
			c.todos.register(h)
		}
		commitMu.Unlock()
		recordOutcome(Retry)
		pkgLogger.Debug("transaction parked on retry", zap.String("handle", h.id), zap.Int("observed_cells", len(j.entries)))
		sched.Park(h)
		return Result{}, true
	}

	// Step 4: Success/Failure/Die — publish writes, if any, and wake
	// observers of the cells that actually changed. (Interrupted never gets
	// here: AtomicallyWith returns before calling commitAttempt.)
	var toFire []*Handle
	for c, e := range j.entries {
		if !e.written {
			continue
		}
		c.mu.Lock()
		c.version++
		c.val = e.tentative
		c.mu.Unlock()
		toFire = append(toFire, c.todos.takeAndClear()...)
	}
	commitMu.Unlock()
	fireAll(toFire)

	return res, false
}

// debugFiberTag returns a short UUID for log correlation, or the
// scheduler's own fiber identity when it has a meaningful String form.
func debugFiberTag(sched Scheduler) string {
	if sched == nil {
		return uuid.NewString()[:8]
	}
	if s, ok := sched.CurrentFiberID().(fmt.Stringer); ok {
		return s.String()
	}
	return uuid.NewString()[:8]
}
