package transform

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is the class of table-shape failures detected by the Finalizer.
	ErrValidation = errors.New("validation failed")

	// ErrNoRows means every row was removed by the operation list.
	ErrNoRows = fmt.Errorf("%w: no rows produced", ErrValidation)

	// ErrIndexRange is returned when an operation addresses a cell outside the matrix.
	ErrIndexRange = errors.New("index out of range")
)

// IndexRangeError describes an out-of-bounds coordinate.
type IndexRangeError struct {
	What  string // e.g. "target row", "source column"
	Index int
	Limit int
}

func (e *IndexRangeError) Error() string {
	return fmt.Sprintf("%s index %d out of range [0, %d)", e.What, e.Index, e.Limit)
}

func (e *IndexRangeError) Unwrap() error { return ErrIndexRange }

func rowRangeErr(what string, index int, m *Matrix) error {
	return &IndexRangeError{What: what, Index: index, Limit: m.Rows()}
}

func colRangeErr(what string, index int, m *Matrix) error {
	return &IndexRangeError{What: what, Index: index, Limit: m.Cols()}
}

// HandlerError wraps the failure of a recognized operation. It aborts the page.
type HandlerError struct {
	Op       OperationType
	Position int // index of the element in the operation document
	Item     int // index within the element's nested parameter list
	Err      error
}

func (e *HandlerError) Error() string {
	if e.Item > 0 {
		return fmt.Sprintf("operation %s (#%d item %d) failed: %v", e.Op, e.Position, e.Item, e.Err)
	}
	return fmt.Sprintf("operation %s (#%d) failed: %v", e.Op, e.Position, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
