package stm

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// §8 scenario 1: one publisher, one subscriber, bounded n=4.
func TestHubBoundedSinglePublisherSubscriber(t *testing.T) {
	h := NewBoundedHub[int](4)
	sub := h.Subscribe()
	for _, v := range []int{7, 1, 4, 2} {
		ok, err := h.Publish(v)
		require.NoError(t, err)
		require.True(t, ok)
	}
	var got []int
	for i := 0; i < 4; i++ {
		v, err := h.Take(sub)
		require.NoError(t, err)
		got = append(got, v)
	}
	require.Equal(t, []int{7, 1, 4, 2}, got)
}

// §8 scenario 2: bounded backpressure, n=2, slow subscriber; hub size
// never exceeds capacity and every message is eventually delivered.
func TestHubBackpressureNeverExceedsCapacity(t *testing.T) {
	h := NewBoundedHub[int](2)
	sub := h.Subscribe()
	done := make(chan struct{})
	sizes := make(chan int, 100)

	go func() {
		for i := 1; i <= 5; i++ {
			_, err := h.Publish(i)
			require.NoError(t, err)
			sizes <- h.Size()
		}
		close(done)
	}()

	var got []int
	for i := 0; i < 5; i++ {
		time.Sleep(2 * time.Millisecond)
		v, err := h.Take(sub)
		require.NoError(t, err)
		got = append(got, v)
	}
	<-done
	close(sizes)
	for s := range sizes {
		require.LessOrEqual(t, s, 2)
	}
	require.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

// §8 scenario 3: dropping, n=2, three publications before any take;
// subscriber receives a prefix of length <= 2 starting with 1.
func TestHubDroppingPrefix(t *testing.T) {
	h := NewDroppingHub[int](2)
	sub := h.Subscribe()
	var admitted []bool
	for _, v := range []int{1, 2, 3} {
		ok, err := h.Publish(v)
		require.NoError(t, err)
		admitted = append(admitted, ok)
	}
	var got []int
	for h.Size() > 0 {
		v, err := h.Take(sub)
		require.NoError(t, err)
		got = append(got, v)
	}
	require.LessOrEqual(t, len(got), 2)
	if len(got) > 0 {
		require.Equal(t, 1, got[0])
	}
	require.True(t, admitted[0])
}

// §8 scenario 4: sliding, n=2, publications [1,2,3,4] before any take,
// two subscribers; each receives a monotonic-in-publish-order sequence of
// length <= 2, ending in 4.
func TestHubSlidingTwoSubscribers(t *testing.T) {
	h := NewSlidingHub[int](2)
	s1 := h.Subscribe()
	s2 := h.Subscribe()
	for _, v := range []int{1, 2, 3, 4} {
		_, err := h.Publish(v)
		require.NoError(t, err)
	}
	for _, sub := range []*Subscriber[int]{s1, s2} {
		var got []int
		for {
			v, ok := drainOne(t, h, sub)
			if !ok {
				break
			}
			got = append(got, v)
		}
		require.LessOrEqual(t, len(got), 2)
		require.True(t, sort.IntsAreSorted(got))
		if len(got) > 0 {
			require.Equal(t, 4, got[len(got)-1])
		}
	}
}

// drainOne attempts a non-blocking take: OrTry falls through to the -1
// sentinel the instant TakeTerm retries, instead of parking.
func drainOne(t *testing.T, h *Hub[int], sub *Subscriber[int]) (int, bool) {
	t.Helper()
	res, err := Atomically(OrTry(h.TakeTerm(sub), Succeed(-1)))
	require.NoError(t, err)
	if res.(int) == -1 {
		return 0, false
	}
	return res.(int), true
}

// §8 scenario 5: two concurrent publishers on an unbounded hub, two
// subscribers; each subscriber receives all positives in order and all
// negatives in order, interleaved arbitrarily.
func TestHubUnboundedTwoPublishersTwoSubscribers(t *testing.T) {
	h := NewUnboundedHub[int]()
	s1 := h.Subscribe()
	s2 := h.Subscribe()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 1; i <= 10; i++ {
			_, err := h.Publish(i)
			require.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := -1; i >= -10; i-- {
			_, err := h.Publish(i)
			require.NoError(t, err)
		}
	}()

	collect := func(sub *Subscriber[int]) (pos, neg []int) {
		for len(pos) < 10 || len(neg) < 10 {
			v, err := h.Take(sub)
			require.NoError(t, err)
			if v > 0 {
				pos = append(pos, v)
			} else {
				neg = append(neg, v)
			}
		}
		return
	}

	var got1pos, got1neg, got2pos, got2neg []int
	var wg2 sync.WaitGroup
	wg2.Add(2)
	go func() { defer wg2.Done(); got1pos, got1neg = collect(s1) }()
	go func() { defer wg2.Done(); got2pos, got2neg = collect(s2) }()
	wg.Wait()
	wg2.Wait()

	for i := range got1pos {
		require.Equal(t, i+1, got1pos[i])
	}
	for i := range got2pos {
		require.Equal(t, i+1, got2pos[i])
	}
	for i := range got1neg {
		require.Equal(t, -(i + 1), got1neg[i])
	}
	for i := range got2neg {
		require.Equal(t, -(i + 1), got2neg[i])
	}
}

func TestHubPublishWithNoSubscribersSucceeds(t *testing.T) {
	h := NewBoundedHub[int](2)
	ok, err := h.Publish(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, h.Size())
}

func TestHubUnsubscribeReclaimsFullyConsumedNodes(t *testing.T) {
	h := NewUnboundedHub[int]()
	s1 := h.Subscribe()
	s2 := h.Subscribe()
	_, err := h.Publish(1)
	require.NoError(t, err)

	_, err = h.Take(s1)
	require.NoError(t, err)
	require.Equal(t, 1, h.Size(), "node still owed to s2")

	h.Unsubscribe(s2)
	require.Equal(t, 0, h.Size(), "unsubscribing the last holdout reclaims the node")
}

func TestHubShutdownFailsTakeOnceDrained(t *testing.T) {
	h := NewBoundedHub[int](2)
	sub := h.Subscribe()
	_, err := h.Publish(1)
	require.NoError(t, err)
	h.Shutdown()

	v, err := h.Take(sub)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	_, err = h.Take(sub)
	require.ErrorIs(t, err, ErrHubShutdown)
}
