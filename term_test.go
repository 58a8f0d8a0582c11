package stm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Round-trip laws from spec §8.

func TestFlatMapSucceedLaw(t *testing.T) {
	k := func(x any) *Term { return Succeed(x.(int) + 1) }
	v, err := Atomically(FlatMap(Succeed(41), k))
	require.NoError(t, err)
	kv, err := Atomically(k(41))
	require.NoError(t, err)
	require.Equal(t, kv, v)
}

func TestFoldFailLaw(t *testing.T) {
	f := func(e error) *Term { return Succeed("handled:" + e.Error()) }
	v, err := Atomically(Fold(Fail(errBoom), f, Succeed))
	require.NoError(t, err)
	fv, err := Atomically(f(errBoom))
	require.NoError(t, err)
	require.Equal(t, fv, v)
}

func TestOrTryRetryLaw(t *testing.T) {
	y := NewRef(9)
	direct, err := Atomically(ReadRef(y))
	require.NoError(t, err)
	viaOrTry, err := Atomically(OrTry(RetryTerm(), ReadRef(y)))
	require.NoError(t, err)
	require.Equal(t, direct, viaOrTry)
}

func TestOrTrySucceedLaw(t *testing.T) {
	v1, err := Atomically(OrTry(Succeed(5), RetryTerm()))
	require.NoError(t, err)
	v2, err := Atomically(Succeed(5))
	require.NoError(t, err)
	require.Equal(t, v2, v1)
}

func TestMapZipCatch(t *testing.T) {
	x := NewRef(3)
	v, err := Atomically(Map(ReadRef(x), func(n int) int { return n * 2 }))
	require.NoError(t, err)
	require.Equal(t, 6, v)

	a, b := NewRef(1), NewRef(2)
	pair, err := Atomically(ZipWith(ReadRef(a), ReadRef(b), func(x, y int) int { return x + y }))
	require.NoError(t, err)
	require.Equal(t, 3, pair)

	recovered, err := Atomically(Catch(Fail(errBoom), func(error) *Term { return Succeed("ok") }))
	require.NoError(t, err)
	require.Equal(t, "ok", recovered)
}

func TestEnsuringRunsOnBothPaths(t *testing.T) {
	ran := NewRef(0)
	bumpFinalizer := FlatMap(ReadRef(ran), func(v any) *Term { return WriteRef(ran, v.(int)+1) })

	_, err := Atomically(Ensuring(Succeed(1), bumpFinalizer))
	require.NoError(t, err)
	_, _ = Atomically(Ensuring(Fail(errBoom), bumpFinalizer))
	require.Equal(t, 2, AtomicGet(ran))
}
