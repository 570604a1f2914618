package eventstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamDeliversToActiveSubscribers(t *testing.T) {
	s := New[int]()
	got := make(chan int, 1)
	_ = s.Subscribe(func(v int) { got <- v })

	s.Emit(42)

	select {
	case v := <-got:
		require.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestStreamLateSubscriberMissesPastEmissions(t *testing.T) {
	s := New[int]()
	s.Emit(1)

	got := make(chan int, 1)
	_ = s.Subscribe(func(v int) { got <- v })
	s.Emit(2)

	select {
	case v := <-got:
		require.Equal(t, 2, v, "late subscriber should only see emissions after it subscribed")
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}

func TestStreamCancelStopsDelivery(t *testing.T) {
	s := New[int]()
	count := 0
	sub := s.Subscribe(func(int) { count++ })
	s.Emit(1)
	sub.Cancel()
	s.Emit(2)

	require.Equal(t, 1, count)
	require.Equal(t, 0, s.Len())
}

func TestReplayStreamReplaysLastValueToLateSubscriber(t *testing.T) {
	r := NewReplay[string](nil)
	r.Emit("first")
	r.Emit("second")

	var got string
	_ = r.Subscribe(func(v string) { got = v })

	require.Equal(t, "second", got)
}

func TestReplayStreamNoReplayBeforeFirstEmission(t *testing.T) {
	r := NewReplay[string](nil)
	called := false
	_ = r.Subscribe(func(string) { called = true })
	require.False(t, called)
}

func TestReplayStreamOnZeroFiresAfterLastUnsubscribe(t *testing.T) {
	zeroed := make(chan struct{}, 1)
	r := NewReplay[int](func() { zeroed <- struct{}{} })

	sub1 := r.Subscribe(func(int) {})
	sub2 := r.Subscribe(func(int) {})
	sub1.Cancel()

	select {
	case <-zeroed:
		t.Fatal("onZero fired with one subscriber still active")
	case <-time.After(50 * time.Millisecond):
	}

	sub2.Cancel()

	select {
	case <-zeroed:
	case <-time.After(time.Second):
		t.Fatal("onZero did not fire after last unsubscribe")
	}
}

func TestReplayStreamDefersOnZeroDuringEmit(t *testing.T) {
	zeroed := make(chan struct{}, 1)
	r := NewReplay[int](func() { zeroed <- struct{}{} })

	var sub Subscription
	sub = r.Subscribe(func(v int) {
		// unsubscribing itself mid-delivery must not deadlock or fire
		// onZero before Emit finishes its delivery pass.
		sub.Cancel()
	})

	r.Emit(1)

	select {
	case <-zeroed:
	case <-time.After(time.Second):
		t.Fatal("onZero did not fire after self-unsubscribe during delivery")
	}
}
