package jobs

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("queue is closed")

// Queue is a FIFO of job IDs with a blocking Pop.
type Queue struct {
	mu     sync.Mutex
	ids    []string
	notify chan struct{}
	closed bool
}

func NewQueue() *Queue {
	return &Queue{
		notify: make(chan struct{}, 1),
	}
}

func (q *Queue) Push(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.ids = append(q.ids, id)

	select {
	case q.notify <- struct{}{}:
	default:
	}

	return nil
}

// Pop waits for the next ID. Items pushed before Close are still handed
// out; after that Pop returns ErrQueueClosed.
func (q *Queue) Pop(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.ids) > 0 {
			id := q.ids[0]
			q.ids = q.ids[1:]
			q.mu.Unlock()
			return id, nil
		}
		if q.closed {
			q.mu.Unlock()
			return "", ErrQueueClosed
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.notify:
		}
	}
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.notify)
	}

	return nil
}
