package statebus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSubscribe_DropNew(t *testing.T) {
	b := New[int]()
	defer b.Close()

	ch := make(chan int, 1)
	require.NoError(t, b.Subscribe("slow", ch))

	b.Publish(1)
	b.Publish(2) // buffer full, dropped

	assert.Equal(t, 1, <-ch)

	stats, err := b.Stats("slow")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.Sent)
	assert.Equal(t, uint64(1), stats.Dropped)
	assert.Equal(t, uint64(2), b.Published())
}

func TestSubscribe_Errors(t *testing.T) {
	b := New[string]()

	assert.ErrorIs(t, b.Subscribe("a", nil), ErrNilChannel)
	require.NoError(t, b.Subscribe("a", make(chan string, 1)))
	assert.ErrorIs(t, b.Subscribe("a", make(chan string, 1)), ErrSubscriberExists)

	_, err := b.SubscribeLatest("a")
	assert.ErrorIs(t, err, ErrSubscriberExists)

	assert.ErrorIs(t, b.Unsubscribe("missing"), ErrSubscriberNotFound)
	_, err = b.Stats("missing")
	assert.ErrorIs(t, err, ErrSubscriberNotFound)

	b.Close()
	b.Close()
	assert.ErrorIs(t, b.Subscribe("b", make(chan string, 1)), ErrBusClosed)
	_, err = b.SubscribeLatest("b")
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestSubscribeLatest_KeepsNewest(t *testing.T) {
	b := New[int]()
	defer b.Close()

	l, err := b.SubscribeLatest("viewer")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		b.Publish(i)
	}

	v, err := l.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	stats, err := b.Stats("viewer")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stats.Sent)
	assert.Equal(t, uint64(4), stats.Dropped)
}

func TestSubscribeLatest_SeededWithLast(t *testing.T) {
	b := New[string]()
	defer b.Close()

	_, ok := b.Last()
	assert.False(t, ok)

	b.Publish("recording")

	l, err := b.SubscribeLatest("late")
	require.NoError(t, err)

	v, ok := l.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "recording", v)

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, "recording", last)
}

func TestLatest_ReceiveBlocksUntilPublish(t *testing.T) {
	b := New[int]()
	defer b.Close()

	l, err := b.SubscribeLatest("w")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var got int
	go func() {
		defer wg.Done()
		got, _ = l.Receive(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	b.Publish(42)
	wg.Wait()
	assert.Equal(t, 42, got)
}

func TestLatest_ReceiveContextAndClose(t *testing.T) {
	b := New[int]()
	l, err := b.SubscribeLatest("w")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() {
		_, err := l.Receive(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Unsubscribe("w"))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrReceiverClosed)
	case <-time.After(time.Second):
		t.Fatal("Receive not woken by Unsubscribe")
	}

	b.Close()
}

func TestPublish_NonBlockingConcurrent(t *testing.T) {
	b := New[int]()
	defer b.Close()

	ch := make(chan int) // unbuffered, never read
	require.NoError(t, b.Subscribe("stuck", ch))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(n*100 + j)
			}
		}(i)
	}
	wg.Wait()

	stats, err := b.Stats("stuck")
	require.NoError(t, err)
	assert.Equal(t, uint64(800), stats.Dropped)
}
