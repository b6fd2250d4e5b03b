package job

import "go.uber.org/atomic"

// Counters accumulates task activity. Counters are updated on the hot path of
// every task cycle and are safe for concurrent use without locking.
type Counters struct {
	Cycles       atomic.Int64 // Task cycles executed.
	Pulled       atomic.Int64 // Chunks pulled from producers.
	Emitted      atomic.Int64 // Chunks emitted by transformations.
	Pushed       atomic.Int64 // Chunks accepted by consumers.
	Dropped      atomic.Int64 // Chunks discarded after a transformation finished.
	Backpressure atomic.Int64 // Offers refused by consumers.
	Finished     atomic.Int64 // Tasks which reached the finished state.
	Failed       atomic.Int64 // Tasks which reached the failed state.
}

// CounterValues is a point-in-time copy of [Counters].
type CounterValues struct {
	Cycles       int64
	Pulled       int64
	Emitted      int64
	Pushed       int64
	Dropped      int64
	Backpressure int64
	Finished     int64
	Failed       int64
}

// Snapshot returns the current values of c.
func (c *Counters) Snapshot() CounterValues {
	return CounterValues{
		Cycles:       c.Cycles.Load(),
		Pulled:       c.Pulled.Load(),
		Emitted:      c.Emitted.Load(),
		Pushed:       c.Pushed.Load(),
		Dropped:      c.Dropped.Load(),
		Backpressure: c.Backpressure.Load(),
		Finished:     c.Finished.Load(),
		Failed:       c.Failed.Load(),
	}
}
