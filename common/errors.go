package common

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// FormatError means a buffer could not be decoded, e.g. its size is not the page size or a slot is corrupt.
	FormatError ErrorKind = iota + 1
	// IOError wraps a failed seek, read, write or stat on a backing file.
	IOError
	// StateError is returned when a method is called in a state that does not allow it.
	StateError
	// SchemaMismatchError is returned when a tuple does not fit the file or page it is given to.
	SchemaMismatchError
)

func (k ErrorKind) String() string {
	switch k {
	case FormatError:
		return "format error"
	case IOError:
		return "io error"
	case StateError:
		return "state error"
	case SchemaMismatchError:
		return "schema mismatch"
	default:
		return "unknown error"
	}
}

// StorageError is the error type returned by the storage layer. Op names the operation that failed and Err, when
// set, is the underlying cause.
type StorageError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Err == nil:
		return fmt.Sprintf("%v: %v", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the bare sentinel of e's kind, so that errors.Is(err, ErrFormat) matches every
// format error regardless of its operation and cause.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

var (
	ErrFormat         = &StorageError{Kind: FormatError}
	ErrIO             = &StorageError{Kind: IOError}
	ErrState          = &StorageError{Kind: StateError}
	ErrSchemaMismatch = &StorageError{Kind: SchemaMismatchError}

	// ErrNoSuchElement is returned by iterators when nothing remains.
	ErrNoSuchElement = &StorageError{Kind: StateError, Op: "next", Err: errors.New("no such element")}
)

func NewError(kind ErrorKind, op string, err error) error {
	return &StorageError{Kind: kind, Op: op, Err: err}
}

func Errorf(kind ErrorKind, op string, format string, args ...any) error {
	return &StorageError{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first StorageError in err's chain, or 0 if there is none.
func KindOf(err error) ErrorKind {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
