package stream

import (
	"context"
	"slices"
	"sync"

	"github.com/grafana/dataflow/pkg/dataflow/task"
)

// SliceProducer returns the elements of a slice, one per poll, and is
// exhausted afterwards.
type SliceProducer[T any] struct {
	items []T
}

var _ task.Producer[any] = (*SliceProducer[any])(nil)

// NewSliceProducer returns a producer over items.
func NewSliceProducer[T any](items ...T) *SliceProducer[T] {
	return &SliceProducer[T]{items: items}
}

// Poll implements [task.Producer].
func (p *SliceProducer[T]) Poll(context.Context) (T, task.PollStatus, error) {
	if len(p.items) == 0 {
		var zero T
		return zero, task.PollExhausted, nil
	}

	item := p.items[0]
	p.items = p.items[1:]
	return item, task.PollData, nil
}

// Collector is a consumer which keeps every chunk offered to it. It is safe
// to read from a Collector while a task pushes to it.
type Collector[T any] struct {
	mtx    sync.Mutex
	items  []T
	closed bool
}

var _ task.Consumer[any] = (*Collector[any])(nil)

// Offer implements [task.Consumer]. Offer always accepts.
func (c *Collector[T]) Offer(_ context.Context, chunk T) (bool, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.closed {
		return false, ErrClosed
	}
	c.items = append(c.items, chunk)
	return true, nil
}

// Close implements [task.Consumer].
func (c *Collector[T]) Close(context.Context) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.closed = true
	return nil
}

// Finished implements [task.Consumer].
func (c *Collector[T]) Finished() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.closed
}

// Items returns a copy of the chunks collected so far.
func (c *Collector[T]) Items() []T {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return slices.Clone(c.items)
}
