package task

// Inbox holds the chunks pulled from producers that have not been consumed by
// the transformation yet. Chunks are kept in poll order.
type Inbox[T any] struct {
	chunks    []T
	exhausted bool
}

// Len returns the number of chunks in the inbox.
func (in *Inbox[T]) Len() int { return len(in.chunks) }

// Peek returns the oldest chunk without removing it.
func (in *Inbox[T]) Peek() (T, bool) {
	if len(in.chunks) == 0 {
		var zero T
		return zero, false
	}
	return in.chunks[0], true
}

// Pop removes and returns the oldest chunk.
func (in *Inbox[T]) Pop() (T, bool) {
	chunk, ok := in.Peek()
	if !ok {
		return chunk, false
	}

	var zero T
	in.chunks[0] = zero
	in.chunks = in.chunks[1:]
	if len(in.chunks) == 0 {
		in.chunks = nil
	}
	return chunk, true
}

// Exhausted reports whether no further chunks will ever be added to the
// inbox. Tasks without producers always have an exhausted inbox.
func (in *Inbox[T]) Exhausted() bool { return in.exhausted }

func (in *Inbox[T]) push(chunk T) { in.chunks = append(in.chunks, chunk) }

// take removes and returns all chunks.
func (in *Inbox[T]) take() []T {
	chunks := in.chunks
	in.chunks = nil
	return chunks
}

// Outbox collects the chunks emitted by a transformation during one cycle.
// The outbox is bounded; once full, Offer refuses further chunks and the
// transformation is expected to stop emitting until its next invocation.
type Outbox[T any] struct {
	chunks   []T
	capacity int
}

func newOutbox[T any](capacity int) *Outbox[T] {
	return &Outbox[T]{capacity: capacity}
}

// Offer adds chunk to the outbox. Offer returns false if the outbox is full.
func (out *Outbox[T]) Offer(chunk T) bool {
	if out.Full() {
		return false
	}
	out.chunks = append(out.chunks, chunk)
	return true
}

// Full reports whether the outbox refuses further chunks.
func (out *Outbox[T]) Full() bool { return len(out.chunks) >= out.capacity }

// Len returns the number of chunks in the outbox.
func (out *Outbox[T]) Len() int { return len(out.chunks) }

// take removes and returns all chunks in the outbox.
func (out *Outbox[T]) take() []T {
	chunks := out.chunks
	out.chunks = nil
	return chunks
}
