package command

import (
	"context"
	"sync"
	"time"

	"meshbridge/internal/shared/errors"
)

// Full-queue policies.
const (
	PolicyReject     = "reject"
	PolicyDropOldest = "drop_oldest"
)

// BoundedQueue is the FIFO between enqueue callers and the single worker.
// Enqueue never blocks: a full queue either rejects the newcomer or evicts
// the head, per policy.
type BoundedQueue struct {
	capacity int
	policy   string

	mu    sync.Mutex
	items []*Request

	// signal wakes a parked Dequeue; buffered so Enqueue never blocks on it.
	signal chan struct{}
}

// NewBoundedQueue builds a queue. The policy string is validated at config
// load time.
func NewBoundedQueue(capacity int, policy string) *BoundedQueue {
	return &BoundedQueue{
		capacity: capacity,
		policy:   policy,
		items:    make([]*Request, 0, capacity),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends the request and returns its 1-based position and the queue
// size after the operation. A full queue under reject returns a QueueFull
// error; under drop_oldest it evicts and returns the head so the caller can
// fail its debounce entry.
func (q *BoundedQueue) Enqueue(req *Request) (position int, size int, evicted *Request, err error) {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		if q.policy == PolicyReject {
			q.mu.Unlock()
			return 0, 0, nil, errors.NewQueueFullError("command queue is full")
		}
		evicted = q.items[0]
		q.items = q.items[1:]
	}
	q.items = append(q.items, req)
	position = len(q.items)
	size = len(q.items)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return position, size, evicted, nil
}

// Dequeue pops the head, waiting up to timeout for one to arrive. The second
// return is false on timeout or context cancellation.
func (q *BoundedQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Request, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			req := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return req, true
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-timer.C:
			return nil, false
		case <-q.signal:
		}
	}
}

// Drain empties the queue and returns the abandoned requests, newest last.
func (q *BoundedQueue) Drain() []*Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Size returns the number of waiting requests.
func (q *BoundedQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the fixed queue capacity.
func (q *BoundedQueue) Capacity() int { return q.capacity }

func (q *BoundedQueue) Policy() string { return q.policy }
