package stm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRefAtomicGetSet(t *testing.T) {
	r := NewRef("a")
	require.Equal(t, "a", AtomicGet(r))
	AtomicSet(r, "b")
	require.Equal(t, "b", AtomicGet(r))
}

func TestAtomicModify(t *testing.T) {
	r := NewRef(10)
	got := AtomicModify(r, func(n int) int { return n * 3 })
	require.Equal(t, 30, got)
	require.Equal(t, 30, AtomicGet(r))
}

func TestVersionMonotonic(t *testing.T) {
	r := NewRef(0)
	for i := 0; i < 5; i++ {
		AtomicSet(r, i)
	}
	require.EqualValues(t, 5, r.c.version)
}

func TestUnsafeGetSeedsJournalOnce(t *testing.T) {
	r := NewRef(1)
	j := newJournal()
	v1 := r.c.unsafeGet(j)
	r.c.unsafeSet(j, 2)
	v2 := r.c.unsafeGet(j)
	require.Equal(t, 1, v1)
	require.Equal(t, 2, v2)
	require.Len(t, j.entries, 1)
}
