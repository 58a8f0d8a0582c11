package stm

// entry is a journal entry (§3 "Journal entry"): for one cell touched by a
// transaction attempt, the version observed on first touch, the tentative
// value subsequent reads/writes see, and whether the entry has been
// written. At most one entry exists per cell in a journal.
type entry struct {
	cell            *cell
	observedVersion uint64
	tentative       any
	written         bool
}

// journal is the per-attempt tentative view of cell state (§3 "Journal").
// It is created fresh for every transaction attempt and discarded on
// commit or abort; it is never shared between concurrent attempts.
type journal struct {
	entries  map[*cell]*entry
	readOnly bool
}

func newJournal() *journal {
	return &journal{entries: make(map[*cell]*entry), readOnly: true}
}

func (j *journal) add(c *cell, e *entry) {
	j.entries[c] = e
}

func (j *journal) lookup(c *cell) *entry {
	return j.entries[c]
}

func (j *journal) isReadOnly() bool {
	return j.readOnly
}

// isInvalid is the journal's sole validation predicate (§4.2): true iff any
// observed entry's recorded version differs from the cell's live version.
// Called both as a cheap mid-execution peek (§4.3) and, under the commit
// lock, as the authoritative pre-commit check (§4.4).
func (j *journal) isInvalid() bool {
	for c, e := range j.entries {
		if ver, _ := c.snapshot(); ver != e.observedVersion {
			return true
		}
	}
	return false
}

// branch returns a child journal seeded with a copy of j's current
// entries, for executing the first arm of or_try (§4.3). Because the copy
// starts identical to the parent, cells the parent already touched remain
// visible to the child; anything the child newly reads or writes lands
// only in the child's own map until the caller decides whether to merge
// reads back (on Retry) or adopt the child wholesale (otherwise).
func (j *journal) branch() *journal {
	child := &journal{entries: make(map[*cell]*entry, len(j.entries)), readOnly: j.readOnly}
	for c, e := range j.entries {
		cp := *e
		child.entries[c] = &cp
	}
	return child
}

// mergeReadsFrom folds child's read-only entries into j, so that an outer
// transaction that abandoned a retried or_try branch still observes the
// cells that branch read (and so still wakes when they change). Entries
// the child wrote are never merged here: writes in an aborted branch must
// never leak into the parent (§4.3).
func (j *journal) mergeReadsFrom(child *journal) {
	for c, e := range child.entries {
		if !e.written {
			j.entries[c] = e
		}
	}
	// an unmerged write-only entry from the parent's own prior state, if
	// any, is already present in j and untouched by this loop.
}

// adopt replaces j's entries wholesale with child's, used when or_try's
// first arm reaches Success, Failure, or Die (§4.3: "adopt the child
// journal wholesale").
func (j *journal) adopt(child *journal) {
	j.entries = child.entries
	j.readOnly = child.readOnly
}
