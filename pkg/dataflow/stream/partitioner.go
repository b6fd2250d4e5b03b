package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/grafana/dataflow/pkg/dataflow/task"
)

// KeyFunc returns the partitioning key of a chunk. A nil key means that the
// chunk may be routed to any target.
type KeyFunc[T any] func(chunk T) []byte

// Partitioner is a consumer which routes every chunk to exactly one of its
// targets. Chunks with a key are routed by the xxhash of the key, so equal
// keys always reach the same target. Chunks without a key are distributed
// round-robin.
//
// A chunk refused by its target is retried against the same target, which
// keeps the order of chunks per target intact.
type Partitioner[T any] struct {
	targets []task.Consumer[T]
	key     KeyFunc[T]

	next    int // Next round-robin target.
	pending int // Target of the last refused chunk, or -1.
}

var _ task.Consumer[any] = (*Partitioner[any])(nil)

// NewPartitioner returns a Partitioner over targets. key may be nil, in which
// case all chunks are distributed round-robin.
func NewPartitioner[T any](key KeyFunc[T], targets ...task.Consumer[T]) (*Partitioner[T], error) {
	if len(targets) == 0 {
		return nil, errors.New("partitioner requires at least one target")
	}
	return &Partitioner[T]{targets: targets, key: key, pending: -1}, nil
}

// Target returns the index of the target chunk is routed to, ignoring any
// pending retry.
func (p *Partitioner[T]) Target(chunk T) (int, bool) {
	if p.key == nil {
		return 0, false
	}
	key := p.key(chunk)
	if key == nil {
		return 0, false
	}
	return int(xxhash.Sum64(key) % uint64(len(p.targets))), true
}

// Offer implements [task.Consumer].
func (p *Partitioner[T]) Offer(ctx context.Context, chunk T) (bool, error) {
	idx := p.pending
	if idx < 0 {
		if target, ok := p.Target(chunk); ok {
			idx = target
		} else {
			idx = p.next
			p.next = (p.next + 1) % len(p.targets)
		}
	}

	ok, err := p.targets[idx].Offer(ctx, chunk)
	if err != nil {
		return false, fmt.Errorf("partition %d: %w", idx, err)
	}
	if !ok {
		p.pending = idx
		return false, nil
	}
	p.pending = -1
	return true, nil
}

// Close closes every target.
func (p *Partitioner[T]) Close(ctx context.Context) error {
	var errs []error
	for i, target := range p.targets {
		if err := target.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("partition %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Finished reports whether every target finished.
func (p *Partitioner[T]) Finished() bool {
	for _, target := range p.targets {
		if !target.Finished() {
			return false
		}
	}
	return true
}

// Len returns the number of targets.
func (p *Partitioner[T]) Len() int { return len(p.targets) }
