// Package columnar provides transformations over Arrow record batches with a
// single int64 column.
//
// Records passed between tasks are owned by the receiving transformation,
// which releases them once it no longer needs them. A record must therefore
// reach exactly one downstream transformation. Records a task drops, such as
// the output of a sink, are released by the task (see [task.Releaser]).
package columnar

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/grafana/dataflow/pkg/dataflow/task"
)

// ColumnValue is the name of the value column.
const ColumnValue = "value"

// Schema is the schema of every record produced by this package.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: ColumnValue, Type: arrow.PrimitiveTypes.Int64},
}, nil)

// NewRecord builds a record holding values.
func NewRecord(mem memory.Allocator, values []int64) arrow.RecordBatch {
	builder := array.NewInt64Builder(mem)
	defer builder.Release()

	builder.AppendValues(values, nil)
	arr := builder.NewInt64Array()
	defer arr.Release()

	return array.NewRecordBatch(Schema, []arrow.Array{arr}, int64(len(values)))
}

// Values returns the values of rec. It returns an error if rec does not
// match [Schema].
func Values(rec arrow.RecordBatch) ([]int64, error) {
	if rec.NumCols() != 1 {
		return nil, fmt.Errorf("expected 1 column, got %d", rec.NumCols())
	}
	col, ok := rec.Column(0).(*array.Int64)
	if !ok {
		return nil, fmt.Errorf("expected int64 column, got %s", rec.Column(0).DataType())
	}

	values := make([]int64, 0, col.Len())
	for i := range col.Len() {
		if col.IsNull(i) {
			continue
		}
		values = append(values, col.Value(i))
	}
	return values, nil
}

// PartitionKey returns the first value of rec, big-endian encoded. Empty
// records have no key.
func PartitionKey(rec arrow.RecordBatch) []byte {
	values, err := Values(rec)
	if err != nil || len(values) == 0 {
		return nil
	}
	return binary.BigEndian.AppendUint64(nil, uint64(values[0]))
}

// Sequence emits the values [start, start+count) in records of at most
// batchSize rows.
type Sequence struct {
	mem       memory.Allocator
	next, end int64
	batchSize int64
}

var _ task.Transformation[arrow.RecordBatch] = (*Sequence)(nil)

// NewSequence returns a new Sequence.
func NewSequence(mem memory.Allocator, start, count, batchSize int64) *Sequence {
	return &Sequence{mem: mem, next: start, end: start + max(count, 0), batchSize: max(batchSize, 1)}
}

// Process implements [task.Transformation].
func (s *Sequence) Process(_ context.Context, _ *task.Inbox[arrow.RecordBatch], out *task.Outbox[arrow.RecordBatch]) error {
	for s.next < s.end && !out.Full() {
		n := min(s.batchSize, s.end-s.next)

		values := make([]int64, n)
		for i := range values {
			values[i] = s.next + int64(i)
		}
		out.Offer(NewRecord(s.mem, values))
		s.next += n
	}
	return nil
}

// Finished implements [task.Transformation].
func (s *Sequence) Finished() bool { return s.next >= s.end }

// Filter forwards the rows matching a predicate. Records without matching
// rows are not forwarded.
type Filter struct {
	mem  memory.Allocator
	keep func(int64) bool
	done bool
}

var _ task.Transformation[arrow.RecordBatch] = (*Filter)(nil)

// NewFilter returns a new Filter.
func NewFilter(mem memory.Allocator, keep func(int64) bool) *Filter {
	return &Filter{mem: mem, keep: keep}
}

// Process implements [task.Transformation].
func (f *Filter) Process(_ context.Context, in *task.Inbox[arrow.RecordBatch], out *task.Outbox[arrow.RecordBatch]) error {
	for in.Len() > 0 && !out.Full() {
		rec, _ := in.Pop()
		values, err := Values(rec)
		rec.Release()
		if err != nil {
			return err
		}

		kept := values[:0]
		for _, v := range values {
			if f.keep(v) {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			out.Offer(NewRecord(f.mem, kept))
		}
	}
	f.done = in.Exhausted() && in.Len() == 0
	return nil
}

// Finished implements [task.Transformation].
func (f *Filter) Finished() bool { return f.done }

// Sum adds up all values it receives. Once its input is exhausted it emits a
// single-row record holding the total.
type Sum struct {
	mem   memory.Allocator
	total int64
	rows  int64
	done  bool
}

var _ task.Transformation[arrow.RecordBatch] = (*Sum)(nil)

// NewSum returns a new Sum.
func NewSum(mem memory.Allocator) *Sum {
	return &Sum{mem: mem}
}

// Process implements [task.Transformation].
func (s *Sum) Process(_ context.Context, in *task.Inbox[arrow.RecordBatch], out *task.Outbox[arrow.RecordBatch]) error {
	for in.Len() > 0 {
		rec, _ := in.Pop()
		values, err := Values(rec)
		rec.Release()
		if err != nil {
			return err
		}

		for _, v := range values {
			s.total += v
		}
		s.rows += int64(len(values))
	}

	if in.Exhausted() && out.Offer(NewRecord(s.mem, []int64{s.total})) {
		s.done = true
	}
	return nil
}

// Finished implements [task.Transformation].
func (s *Sum) Finished() bool { return s.done }

// Total returns the sum of the values received so far.
func (s *Sum) Total() int64 { return s.total }

// Rows returns the number of values received so far.
func (s *Sum) Rows() int64 { return s.rows }
