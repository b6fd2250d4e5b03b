// Package stream provides producers and consumers which connect dataflow
// tasks to each other and to the outside world.
package stream

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/atomic"

	"github.com/grafana/dataflow/pkg/dataflow/task"
)

// ErrClosed is returned when offering a chunk to a closed queue.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded, in-memory edge between two tasks. The upstream task
// uses it as a [task.Consumer] and the downstream task as a
// [task.Producer].
//
// Neither side ever blocks: Offer refuses chunks while the queue is full and
// Poll reports [task.PollEmpty] while it is empty. Once closed and drained,
// Poll reports [task.PollExhausted].
//
// A Queue supports a single writer and a single reader.
type Queue[T any] struct {
	ch        chan T
	closed    atomic.Bool
	closeOnce sync.Once
}

var (
	_ task.Producer[any] = (*Queue[any])(nil)
	_ task.Consumer[any] = (*Queue[any])(nil)
)

// NewQueue returns a new Queue holding at most capacity chunks.
func NewQueue[T any](capacity int) *Queue[T] {
	return &Queue[T]{ch: make(chan T, max(capacity, 1))}
}

// Offer adds chunk to the queue if there is room for it.
func (q *Queue[T]) Offer(_ context.Context, chunk T) (bool, error) {
	if q.closed.Load() {
		return false, ErrClosed
	}

	select {
	case q.ch <- chunk:
		return true, nil
	default:
		return false, nil
	}
}

// Close marks the end of the stream. Chunks already in the queue remain
// available to Poll.
func (q *Queue[T]) Close(context.Context) error {
	q.closeOnce.Do(func() {
		q.closed.Store(true)
		close(q.ch)
	})
	return nil
}

// Finished reports whether the queue was closed.
func (q *Queue[T]) Finished() bool { return q.closed.Load() }

// Poll returns the oldest chunk in the queue.
func (q *Queue[T]) Poll(context.Context) (T, task.PollStatus, error) {
	select {
	case chunk, ok := <-q.ch:
		if !ok {
			var zero T
			return zero, task.PollExhausted, nil
		}
		return chunk, task.PollData, nil
	default:
		var zero T
		return zero, task.PollEmpty, nil
	}
}

// Len returns the number of chunks waiting in the queue.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap returns the capacity of the queue.
func (q *Queue[T]) Cap() int { return cap(q.ch) }
