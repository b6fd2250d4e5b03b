package task

import (
	"errors"
	"fmt"
)

// ErrCanceled is wrapped by the error of a processor which stopped because it
// was canceled.
var ErrCanceled = errors.New("task canceled")

// ProducerError reports a failure to poll a producer.
type ProducerError struct {
	Producer int   // Index of the producer in the task's producer set.
	Cycle    int64 // Cycle during which the poll failed.
	Err      error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("polling producer %d in cycle %d: %v", e.Producer, e.Cycle, e.Err)
}

func (e *ProducerError) Unwrap() error { return e.Err }

// TransformationError reports a failure of the user transformation.
type TransformationError struct {
	Cycle int64 // Cycle during which the transformation failed.
	Err   error
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("transformation failed in cycle %d: %v", e.Cycle, e.Err)
}

func (e *TransformationError) Unwrap() error { return e.Err }

// ConsumerError reports a failure to push to, or to close, a consumer.
type ConsumerError struct {
	Consumer int   // Index of the consumer in the task's consumer set.
	Chunk    int64 // Sequence number of the chunk being offered, or -1 when closing.
	Cycle    int64 // Cycle during which the push failed.
	Err      error
}

func (e *ConsumerError) Error() string {
	if e.Chunk < 0 {
		return fmt.Sprintf("closing consumer %d in cycle %d: %v", e.Consumer, e.Cycle, e.Err)
	}
	return fmt.Sprintf("pushing chunk %d to consumer %d in cycle %d: %v", e.Chunk, e.Consumer, e.Cycle, e.Err)
}

func (e *ConsumerError) Unwrap() error { return e.Err }

// ProtocolViolation reports that a processor was requested with arguments
// that do not fit together, such as producer or consumer sets that do not
// match the variant or the vertex's declared edges.
type ProtocolViolation struct {
	Vertex string
	TaskID int
	Reason string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("protocol violation for task %s/%d: %s", e.Vertex, e.TaskID, e.Reason)
}
