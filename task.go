package rtcsession

import (
	"context"
	"sync"
)

// Task tracks one Connect call. It is done once the completion callback
// passed to Connect has returned.
type Task struct {
	conn *Connection
	done chan struct{}
	once sync.Once
	err  error
}

func newTask(conn *Connection) *Task {
	return &Task{conn: conn, done: make(chan struct{})}
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Err is the outcome of the attempt, valid after Done.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel abandons the attempt by disconnecting the connection.
func (t *Task) Cancel() {
	select {
	case <-t.done:
		return
	default:
	}
	t.conn.Disconnect(ErrConnectionCanceled)
}

func (t *Task) finish(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}
