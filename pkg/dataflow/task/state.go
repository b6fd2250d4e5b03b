package task

import "fmt"

// State is the lifecycle state of a [Processor].
type State int32

const (
	// StateReady reports that the processor was constructed but not started.
	StateReady State = iota

	// StateProcessing reports that the processor is cycling normally.
	StateProcessing

	// StateFinalizing reports that input is exhausted or the transformation
	// has finished, and the processor is draining remaining output.
	StateFinalizing

	// StateFinished reports that the processor completed successfully.
	StateFinished

	// StateFailed reports that the processor stopped because of an error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateProcessing:
		return "processing"
	case StateFinalizing:
		return "finalizing"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Terminal returns true if s is a terminal state.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateFailed
}

// Kind identifies which processor variant a task runs, based on whether it
// has producers, consumers, both, or neither.
type Kind int

const (
	// KindSimple is a task without producers or consumers.
	KindSimple Kind = iota

	// KindConsumer is a source-like task which only pushes to consumers.
	KindConsumer

	// KindProducer is a sink-like task which only pulls from producers.
	KindProducer

	// KindActor is a task which pulls from producers and pushes to
	// consumers.
	KindActor
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindConsumer:
		return "consumer"
	case KindProducer:
		return "producer"
	case KindActor:
		return "actor"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// KindFor returns the processor variant for a task with the given number of
// producers and consumers.
func KindFor(producers, consumers int) Kind {
	switch {
	case producers == 0 && consumers == 0:
		return KindSimple
	case producers == 0:
		return KindConsumer
	case consumers == 0:
		return KindProducer
	default:
		return KindActor
	}
}

func (k Kind) hasProducers() bool { return k == KindProducer || k == KindActor }
