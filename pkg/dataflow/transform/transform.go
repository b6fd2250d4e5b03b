// Package transform provides stock transformations for dataflow tasks.
package transform

import (
	"context"

	"github.com/grafana/dataflow/pkg/dataflow/task"
)

// forward moves chunks from in to out, applying fn to each one. fn returns
// false to drop a chunk. forward stops when in is empty or out is full, and
// reports whether all input was consumed.
func forward[In, Out any](ctx context.Context, in *task.Inbox[In], out *task.Outbox[Out], fn func(context.Context, In) (Out, bool, error)) error {
	for in.Len() > 0 && !out.Full() {
		chunk, _ := in.Pop()

		result, keep, err := fn(ctx, chunk)
		if err != nil {
			return err
		} else if keep {
			out.Offer(result)
		}
	}
	return nil
}

// drained reports whether no further input will reach a transformation.
func drained[T any](in *task.Inbox[T]) bool {
	return in.Exhausted() && in.Len() == 0
}

// Identity forwards every chunk unchanged.
type Identity[T any] struct {
	done bool
}

// Process implements [task.Transformation].
func (tr *Identity[T]) Process(ctx context.Context, in *task.Inbox[T], out *task.Outbox[T]) error {
	err := forward(ctx, in, out, func(_ context.Context, chunk T) (T, bool, error) {
		return chunk, true, nil
	})
	tr.done = drained(in)
	return err
}

// Finished implements [task.Transformation].
func (tr *Identity[T]) Finished() bool { return tr.done }

// Map applies a function to every chunk.
type Map[T any] struct {
	fn   func(context.Context, T) (T, error)
	done bool
}

// NewMap returns a transformation applying fn to every chunk.
func NewMap[T any](fn func(context.Context, T) (T, error)) *Map[T] {
	return &Map[T]{fn: fn}
}

// Process implements [task.Transformation].
func (tr *Map[T]) Process(ctx context.Context, in *task.Inbox[T], out *task.Outbox[T]) error {
	err := forward(ctx, in, out, func(ctx context.Context, chunk T) (T, bool, error) {
		result, err := tr.fn(ctx, chunk)
		return result, err == nil, err
	})
	tr.done = drained(in)
	return err
}

// Finished implements [task.Transformation].
func (tr *Map[T]) Finished() bool { return tr.done }

// Filter forwards the chunks matching a predicate.
type Filter[T any] struct {
	keep func(T) bool
	done bool
}

// NewFilter returns a transformation forwarding the chunks for which keep
// returns true.
func NewFilter[T any](keep func(T) bool) *Filter[T] {
	return &Filter[T]{keep: keep}
}

// Process implements [task.Transformation].
func (tr *Filter[T]) Process(ctx context.Context, in *task.Inbox[T], out *task.Outbox[T]) error {
	err := forward(ctx, in, out, func(_ context.Context, chunk T) (T, bool, error) {
		return chunk, tr.keep(chunk), nil
	})
	tr.done = drained(in)
	return err
}

// Finished implements [task.Transformation].
func (tr *Filter[T]) Finished() bool { return tr.done }

// Generator emits chunks produced by a function until it reports the end of
// the stream. Generator ignores its input and is meant for tasks without
// producers.
type Generator[T any] struct {
	next func(context.Context) (T, bool, error)
	done bool
}

// NewGenerator returns a transformation emitting the chunks returned by next
// until next returns false.
func NewGenerator[T any](next func(context.Context) (T, bool, error)) *Generator[T] {
	return &Generator[T]{next: next}
}

// NewSliceGenerator returns a Generator emitting items in order.
func NewSliceGenerator[T any](items ...T) *Generator[T] {
	return NewGenerator(func(context.Context) (T, bool, error) {
		if len(items) == 0 {
			var zero T
			return zero, false, nil
		}
		item := items[0]
		items = items[1:]
		return item, true, nil
	})
}

// Process implements [task.Transformation].
func (tr *Generator[T]) Process(ctx context.Context, _ *task.Inbox[T], out *task.Outbox[T]) error {
	for !tr.done && !out.Full() {
		chunk, ok, err := tr.next(ctx)
		if err != nil {
			return err
		} else if !ok {
			tr.done = true
			break
		}
		out.Offer(chunk)
	}
	return nil
}

// Finished implements [task.Transformation].
func (tr *Generator[T]) Finished() bool { return tr.done }

// Sink hands every chunk to a function and emits nothing.
type Sink[T any] struct {
	fn   func(context.Context, T) error
	done bool
}

// NewSink returns a transformation calling fn for every chunk.
func NewSink[T any](fn func(context.Context, T) error) *Sink[T] {
	return &Sink[T]{fn: fn}
}

// Process implements [task.Transformation].
func (tr *Sink[T]) Process(ctx context.Context, in *task.Inbox[T], _ *task.Outbox[T]) error {
	for in.Len() > 0 {
		chunk, _ := in.Pop()
		if err := tr.fn(ctx, chunk); err != nil {
			return err
		}
	}
	tr.done = in.Exhausted()
	return nil
}

// Finished implements [task.Transformation].
func (tr *Sink[T]) Finished() bool { return tr.done }
