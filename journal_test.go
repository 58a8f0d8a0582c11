package stm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJournalIsInvalidOnVersionChange(t *testing.T) {
	r := NewRef(1)
	j := newJournal()
	r.c.unsafeGet(j)
	require.False(t, j.isInvalid())

	AtomicSet(r, 2)
	require.True(t, j.isInvalid())
}

func TestJournalAtMostOneEntryPerCell(t *testing.T) {
	r := NewRef(1)
	j := newJournal()
	r.c.unsafeGet(j)
	r.c.unsafeSet(j, 5)
	r.c.unsafeGet(j)
	require.Len(t, j.entries, 1)
	require.Equal(t, 5, j.lookup(r.c).tentative)
	require.True(t, j.lookup(r.c).written)
}

func TestJournalReadOnlyFlipsOnWrite(t *testing.T) {
	r := NewRef(1)
	j := newJournal()
	require.True(t, j.isReadOnly())
	r.c.unsafeGet(j)
	require.True(t, j.isReadOnly())
	r.c.unsafeSet(j, 2)
	require.False(t, j.isReadOnly())
}

func TestJournalBranchMergeReadsOnRetry(t *testing.T) {
	a, b, c := NewRef(1), NewRef(2), NewRef(3)
	parent := newJournal()
	a.c.unsafeGet(parent)

	child := parent.branch()
	b.c.unsafeGet(child)     // a plain read in the retried branch
	c.c.unsafeSet(child, 99) // a write in the aborted branch

	parent.mergeReadsFrom(child)

	require.Contains(t, parent.entries, a.c)
	require.Contains(t, parent.entries, b.c, "reads from a retried branch must still be observed by the parent")
	require.NotContains(t, parent.entries, c.c, "writes from an abandoned branch must not leak into the parent")
	require.Equal(t, 2, parent.entries[b.c].tentative)
}

func TestJournalAdoptWholesale(t *testing.T) {
	a, b := NewRef(1), NewRef(2)
	parent := newJournal()
	a.c.unsafeGet(parent)

	child := parent.branch()
	b.c.unsafeSet(child, 42)

	parent.adopt(child)

	require.Contains(t, parent.entries, b.c)
	require.True(t, parent.entries[b.c].written)
	require.Equal(t, 42, parent.entries[b.c].tentative)
}
