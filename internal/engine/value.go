package engine

import "fmt"

// Row is one record of a dataset, values in field order. Unit-shaped
// datasets carry bare scalars instead of rows.
type Row = []any

// Dataset is a runtime collection handle. The two implementations
// differ in capability: a Table is finite with random access, a Stream
// is a single-pass pull iterator.
type Dataset interface {
	dataset()
}

// Table is a fully materialized dataset.
type Table struct {
	Rows []any
}

func (*Table) dataset() {}

// NewTable materializes the given rows.
func NewTable(rows ...any) *Table {
	return &Table{Rows: rows}
}

func (t *Table) Len() int { return len(t.Rows) }

// Stream is a single-owner pull iterator. After a Next call returns
// ok=false or an error, the stream is exhausted. Evaluation is
// single-threaded pull; streams are not safe for concurrent use.
type Stream struct {
	next func() (any, bool, error)
}

func (*Stream) dataset() {}

// NewStream wraps a pull function. next returns ok=false when the
// stream is exhausted.
func NewStream(next func() (any, bool, error)) *Stream {
	return &Stream{next: next}
}

// StreamOf iterates over already-materialized rows.
func StreamOf(rows ...any) *Stream {
	i := 0
	return NewStream(func() (any, bool, error) {
		if i >= len(rows) {
			return nil, false, nil
		}
		v := rows[i]
		i++
		return v, true, nil
	})
}

// Next pulls the next element.
func (s *Stream) Next() (any, bool, error) {
	return s.next()
}

// Prepend pushes already-pulled elements back onto the front of the
// stream. Distinct uses this after peeking for emptiness.
func (s *Stream) Prepend(rows ...any) *Stream {
	i := 0
	inner := s.next
	return NewStream(func() (any, bool, error) {
		if i < len(rows) {
			v := rows[i]
			i++
			return v, true, nil
		}
		return inner()
	})
}

// Materialize drains the stream into a Table.
func (s *Stream) Materialize() (*Table, error) {
	var rows []any
	for {
		v, ok, err := s.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return &Table{Rows: rows}, nil
		}
		rows = append(rows, v)
	}
}

// Tee splits the stream into two branches backed by one shared buffer.
// The source must not be pulled directly afterwards. Buffering grows
// with the lag between the two branches.
func (s *Stream) Tee() (*Stream, *Stream) {
	shared := &teeBuffer{src: s}
	return shared.branch(), shared.branch()
}

type teeBuffer struct {
	src  *Stream
	buf  []any
	done bool
	err  error
}

func (t *teeBuffer) at(i int) (any, bool, error) {
	for i >= len(t.buf) && !t.done {
		v, ok, err := t.src.Next()
		if err != nil {
			t.done, t.err = true, err
			break
		}
		if !ok {
			t.done = true
			break
		}
		t.buf = append(t.buf, v)
	}
	if i < len(t.buf) {
		return t.buf[i], true, nil
	}
	return nil, false, t.err
}

func (t *teeBuffer) branch() *Stream {
	i := 0
	return NewStream(func() (any, bool, error) {
		v, ok, err := t.at(i)
		if ok {
			i++
		}
		return v, ok, err
	})
}

// Rows materializes any dataset into a row slice. Tables return their
// backing slice; streams are drained.
func Rows(d Dataset) ([]any, error) {
	switch ds := d.(type) {
	case *Table:
		return ds.Rows, nil
	case *Stream:
		t, err := ds.Materialize()
		if err != nil {
			return nil, err
		}
		return t.Rows, nil
	}
	return nil, fmt.Errorf("engine: unknown dataset type %T", d)
}
