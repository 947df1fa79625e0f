package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshbridge/internal/shared/errors"
)

func req(id string) *Request {
	return &Request{ID: id, Type: TypeSendAdvert, EnqueuedAt: time.Now().UTC()}
}

func TestBoundedQueue_Enqueue(t *testing.T) {
	t.Run("should report one-based position and size", func(t *testing.T) {
		q := NewBoundedQueue(10, PolicyReject)

		for i, id := range []string{"a", "b", "c"} {
			pos, size, evicted, err := q.Enqueue(req(id))
			require.NoError(t, err)
			assert.Nil(t, evicted)
			assert.Equal(t, i+1, pos)
			assert.Equal(t, i+1, size)
		}
		assert.Equal(t, 3, q.Size())
	})

	t.Run("should reject the newcomer when full", func(t *testing.T) {
		q := NewBoundedQueue(2, PolicyReject)
		q.Enqueue(req("a"))
		q.Enqueue(req("b"))

		_, _, _, err := q.Enqueue(req("c"))
		require.Error(t, err)
		assert.True(t, errors.IsQueueFullError(err))
		assert.Equal(t, 2, q.Size())
	})

	t.Run("should evict the head under drop_oldest", func(t *testing.T) {
		q := NewBoundedQueue(2, PolicyDropOldest)
		q.Enqueue(req("a"))
		q.Enqueue(req("b"))

		pos, size, evicted, err := q.Enqueue(req("c"))
		require.NoError(t, err)
		require.NotNil(t, evicted)
		assert.Equal(t, "a", evicted.ID)
		assert.Equal(t, 2, pos)
		assert.Equal(t, 2, size)

		first, ok := q.Dequeue(context.Background(), time.Second)
		require.True(t, ok)
		assert.Equal(t, "b", first.ID)
		second, ok := q.Dequeue(context.Background(), time.Second)
		require.True(t, ok)
		assert.Equal(t, "c", second.ID)
	})
}

func TestBoundedQueue_Dequeue(t *testing.T) {
	t.Run("should pop in arrival order", func(t *testing.T) {
		q := NewBoundedQueue(10, PolicyReject)
		q.Enqueue(req("a"))
		q.Enqueue(req("b"))

		first, ok := q.Dequeue(context.Background(), time.Second)
		require.True(t, ok)
		assert.Equal(t, "a", first.ID)
		second, ok := q.Dequeue(context.Background(), time.Second)
		require.True(t, ok)
		assert.Equal(t, "b", second.ID)
		assert.Equal(t, 0, q.Size())
	})

	t.Run("should time out on an empty queue", func(t *testing.T) {
		q := NewBoundedQueue(10, PolicyReject)

		start := time.Now()
		got, ok := q.Dequeue(context.Background(), 50*time.Millisecond)
		assert.False(t, ok)
		assert.Nil(t, got)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("should wake when a request arrives", func(t *testing.T) {
		q := NewBoundedQueue(10, PolicyReject)
		go func() {
			time.Sleep(50 * time.Millisecond)
			q.Enqueue(req("late"))
		}()

		start := time.Now()
		got, ok := q.Dequeue(context.Background(), 2*time.Second)
		require.True(t, ok)
		assert.Equal(t, "late", got.ID)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("should return when the context is cancelled", func(t *testing.T) {
		q := NewBoundedQueue(10, PolicyReject)
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		_, ok := q.Dequeue(ctx, 5*time.Second)
		assert.False(t, ok)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestBoundedQueue_Drain(t *testing.T) {
	t.Run("should hand back everything in order and empty the queue", func(t *testing.T) {
		q := NewBoundedQueue(10, PolicyReject)
		q.Enqueue(req("a"))
		q.Enqueue(req("b"))
		q.Enqueue(req("c"))

		drained := q.Drain()
		require.Len(t, drained, 3)
		assert.Equal(t, "a", drained[0].ID)
		assert.Equal(t, "c", drained[2].ID)
		assert.Equal(t, 0, q.Size())

		_, ok := q.Dequeue(context.Background(), 20*time.Millisecond)
		assert.False(t, ok)
	})
}
