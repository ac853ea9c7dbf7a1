package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFOAcrossGrowth(t *testing.T) {
	q := New[int]()
	// wrap the ring before growing
	for i := 0; i < 10; i++ {
		q.Push(i)
	}
	for i := 0; i < 10; i++ {
		v, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	for i := 0; i < 100; i++ {
		q.Push(i)
	}
	assert.Equal(t, 100, q.Len())
	for i := 0; i < 100; i++ {
		v, err := q.Pop(context.Background())
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)
	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before Push")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push("tick")
	select {
	case v := <-got:
		assert.Equal(t, "tick", v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not observe Push")
	}
}

func TestQueue_PopHonoursContext(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.Push(i)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, q.Len())
}

func TestQueue_ReadyWakesSingleConsumer(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)

	select {
	case <-q.Ready():
	case <-time.After(time.Second):
		t.Fatal("Ready did not fire")
	}
	var got []int
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2}, got)

	select {
	case <-q.Ready():
		t.Fatal("no push since the last drain")
	default:
	}
}
