package task

import "context"

// stepSimple runs one cycle of a task without producers or consumers. The
// transformation alone decides when the task is done; its output is
// discarded.
func (p *Processor[T]) stepSimple(ctx context.Context) (Result, error) {
	processed, err := p.process(ctx)
	if err != nil {
		return ResultIdle, err
	}
	p.discard()
	return p.complete(ctx, processed)
}

// stepConsumer runs one cycle of a source-like task. The transformation is
// driven without input and must signal completion itself.
func (p *Processor[T]) stepConsumer(ctx context.Context) (Result, error) {
	resumed, blocked, err := p.resume(ctx)
	if err != nil {
		return ResultIdle, err
	} else if blocked {
		return ResultBlocked, nil
	}

	processed, err := p.process(ctx)
	if err != nil {
		return ResultIdle, err
	}

	pushed, blocked, err := p.push(ctx)
	if err != nil {
		return ResultIdle, err
	} else if blocked {
		return ResultBlocked, nil
	}
	return p.complete(ctx, resumed || processed || pushed)
}

// stepProducer runs one cycle of a sink-like task. Output of the
// transformation is discarded, so the task is never backpressured.
func (p *Processor[T]) stepProducer(ctx context.Context) (Result, error) {
	pulled, err := p.pull(ctx)
	if err != nil {
		return ResultIdle, err
	}

	processed, err := p.process(ctx)
	if err != nil {
		return ResultIdle, err
	}
	p.discard()
	return p.complete(ctx, pulled || processed)
}

// stepActor runs one cycle of a task with both producers and consumers.
// Output left over from the previous cycle is flushed before any further
// input is pulled.
func (p *Processor[T]) stepActor(ctx context.Context) (Result, error) {
	resumed, blocked, err := p.resume(ctx)
	if err != nil {
		return ResultIdle, err
	} else if blocked {
		return ResultBlocked, nil
	}

	pulled, err := p.pull(ctx)
	if err != nil {
		return ResultIdle, err
	}

	processed, err := p.process(ctx)
	if err != nil {
		return ResultIdle, err
	}

	pushed, blocked, err := p.push(ctx)
	if err != nil {
		return ResultIdle, err
	} else if blocked {
		return ResultBlocked, nil
	}
	return p.complete(ctx, resumed || pulled || processed || pushed)
}
