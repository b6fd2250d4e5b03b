// Package task implements the execution layer of a single dataflow task: the
// [Processor] state machine that cycles producers, a user transformation and
// consumers, and the [Factory] that selects the processor variant for a task
// based on its topology.
//
// A Processor is driven by an external scheduler which repeatedly invokes
// [Processor.Step]. Step never blocks: producers and consumers signal "not
// ready" instead of waiting, and the scheduler decides when to try again.
package task

import (
	"context"
	"fmt"
)

// PollStatus is the outcome of polling a [Producer].
type PollStatus int

const (
	// PollEmpty reports that the producer has no data available right now.
	PollEmpty PollStatus = iota

	// PollData reports that the producer returned a chunk.
	PollData

	// PollExhausted reports that the producer will never return data again.
	PollExhausted
)

func (s PollStatus) String() string {
	switch s {
	case PollEmpty:
		return "empty"
	case PollData:
		return "data"
	case PollExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("PollStatus(%d)", s)
	}
}

// Producer is an upstream source of chunks for a task.
type Producer[T any] interface {
	// Poll returns the next chunk if one is available. Poll must not block.
	// The returned chunk is only meaningful when the status is PollData.
	Poll(ctx context.Context) (T, PollStatus, error)
}

// Consumer is a downstream sink of chunks for a task.
type Consumer[T any] interface {
	// Offer attempts to hand chunk to the consumer. Offer must not block: it
	// returns false if the consumer cannot currently accept the chunk
	// (backpressure), in which case the same chunk is offered again later.
	Offer(ctx context.Context, chunk T) (bool, error)

	// Close signals that no more chunks will be offered. Close is called at
	// most once, after every chunk has been accepted.
	Close(ctx context.Context) error

	// Finished reports whether the consumer has acknowledged completion.
	Finished() bool
}

// Transformation is the user-supplied logic of a task.
type Transformation[T any] interface {
	// Process consumes any number of chunks from in and emits any number of
	// chunks to out. Chunks left in in are passed to the next invocation.
	//
	// Process is invoked with an empty inbox when no further input will
	// arrive (see [Inbox.Exhausted]), giving the transformation the chance to
	// emit trailing output before it reports finished.
	Process(ctx context.Context, in *Inbox[T], out *Outbox[T]) error

	// Finished reports whether the transformation has completed. Once
	// Finished returns true, Process is not invoked again.
	Finished() bool
}

// Releaser is implemented by chunks which hold resources that must be freed
// once nobody reads the chunk. A task releases the chunks it drops: output of
// a task without consumers, input pulled after the transformation finished,
// and chunks still held by a failed task.
type Releaser interface {
	Release()
}

func release[T any](chunks []T) {
	for _, chunk := range chunks {
		if r, ok := any(chunk).(Releaser); ok {
			r.Release()
		}
	}
}

// Result describes the outcome of a single [Processor.Step].
type Result int

const (
	// ResultIdle reports that the cycle made no progress, typically because
	// no producer had data available.
	ResultIdle Result = iota

	// ResultProgress reports that the cycle made progress.
	ResultProgress

	// ResultBlocked reports that output was produced but could not be fully
	// flushed to consumers. The remainder is pushed on the next cycle before
	// any further input is pulled.
	ResultBlocked

	// ResultDone reports that the processor is in a terminal state.
	ResultDone
)

func (r Result) String() string {
	switch r {
	case ResultIdle:
		return "idle"
	case ResultProgress:
		return "progress"
	case ResultBlocked:
		return "blocked"
	case ResultDone:
		return "done"
	default:
		return fmt.Sprintf("Result(%d)", r)
	}
}
