// Package serial runs callbacks one at a time in submission order.
package serial

import "sync"

// Queue is a sequential executor. The zero value is ready to use.
// Callbacks run on a goroutine owned by the queue, never on the
// caller's, so a callback may submit to its own queue without blocking.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	running bool
	idle    *sync.Cond
}

func (q *Queue) Go(fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()
	go q.drain()
}

func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			if q.idle != nil {
				q.idle.Broadcast()
			}
			q.mu.Unlock()
			return
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		fn()
	}
}

// Wait blocks until every callback submitted so far has run.
// It must not be called from a callback of the same queue.
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.idle == nil {
		q.idle = sync.NewCond(&q.mu)
	}
	for q.running {
		q.idle.Wait()
	}
}
