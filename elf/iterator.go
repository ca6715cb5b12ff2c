package elf

import (
	"fmt"
	"iter"
)

type IteratorState byte

const (
	IteratorReady      = IteratorState(0)
	IteratorPositioned = IteratorState(1)
	IteratorDone       = IteratorState(2)
)

func (state IteratorState) String() string {
	switch state {
	case IteratorReady:
		return "ready"
	case IteratorPositioned:
		return "positioned"
	case IteratorDone:
		return "done"
	default:
		return fmt.Sprintf("IteratorStateUnknown(%d)", state)
	}
}

// Iterator is a forward cursor over one of a File's record tables.  It holds
// a read-only view of the table (never a copy) and a private position, so
// any number of iterators may walk the same File concurrently.  Done is
// terminal: Next keeps returning false once the end is reached.
type Iterator[T any] struct {
	records []T

	state IteratorState
	index int
}

func newIterator[T any](records []T) *Iterator[T] {
	return &Iterator[T]{
		records: records,
		state:   IteratorReady,
		index:   -1,
	}
}

// Next advances to the next record.  ok is false once the iterator is done.
func (it *Iterator[T]) Next() (T, bool) {
	var zero T
	if it.state == IteratorDone {
		return zero, false
	}

	next := it.index + 1
	if next >= len(it.records) {
		it.state = IteratorDone
		it.index = len(it.records)
		return zero, false
	}

	it.state = IteratorPositioned
	it.index = next
	return it.records[next], true
}

func (it *Iterator[T]) State() IteratorState {
	return it.state
}

// Index is the position of the record last returned by Next, or -1 before
// the first call.
func (it *Iterator[T]) Index() int {
	if it.state == IteratorReady {
		return -1
	}
	return it.index
}

func (it *Iterator[T]) Len() int {
	return len(it.records)
}

// All drains the iterator from its current position.
func (it *Iterator[T]) All() iter.Seq2[int, T] {
	return func(yield func(int, T) bool) {
		for {
			record, ok := it.Next()
			if !ok {
				return
			}

			if !yield(it.index, record) {
				return
			}
		}
	}
}
