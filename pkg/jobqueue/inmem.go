package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemQueue is a timer-backed Queue for tests and single-process
// deployments. Firing and cancellation race exactly like the redis
// implementation: once a timer has popped, Cancel returns
// ErrJobNotFound.
type InMemQueue struct {
	handler Handler

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewInMemQueue(handler Handler) *InMemQueue {
	return &InMemQueue{
		handler: handler,
		timers:  make(map[string]*time.Timer),
	}
}

func (q *InMemQueue) Enqueue(_ context.Context, delay time.Duration, payload []byte) (string, error) {
	jobID := uuid.NewString()

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return jobID, nil
	}

	q.timers[jobID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		_, live := q.timers[jobID]
		delete(q.timers, jobID)
		q.mu.Unlock()
		if !live {
			return
		}
		if q.handler != nil {
			q.handler(context.Background(), jobID, payload)
		}
	})

	return jobID, nil
}

func (q *InMemQueue) Cancel(_ context.Context, jobID string) error {
	q.mu.Lock()
	t, ok := q.timers[jobID]
	delete(q.timers, jobID)
	q.mu.Unlock()

	if !ok {
		return ErrJobNotFound
	}
	t.Stop()
	return nil
}

// Close stops all pending timers.
func (q *InMemQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
}
