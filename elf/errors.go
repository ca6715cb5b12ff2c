package elf

import (
	"errors"
	"fmt"
)

var (
	// The file does not carry a recognizable elf identifier.
	ErrNotAnELF = errors.New("not an elf file")

	// A declared structure extends past the end of the file.
	ErrTruncated = errors.New("truncated elf file")

	// A read fell outside the validated image.
	ErrOutOfBounds = errors.New("out of bounds read")

	// A section index does not resolve to a section record.
	ErrIndexOutOfRange = errors.New("section index out of range")
)

// LoadError is the terminal failure returned by Load / Open.  Kind is one of
// ErrNotAnELF or ErrTruncated.
type LoadError struct {
	Kind error
	Path string
	Err  error
}

func newLoadError(kind error, format string, args ...any) *LoadError {
	return &LoadError{
		Kind: kind,
		Err:  fmt.Errorf(format, args...),
	}
}

func (err *LoadError) Error() string {
	prefix := err.Kind.Error()
	if err.Path != "" {
		prefix = err.Path + ": " + prefix
	}

	if err.Err == nil {
		return prefix
	}
	return prefix + ": " + err.Err.Error()
}

func (err *LoadError) Unwrap() []error {
	if err.Err == nil {
		return []error{err.Kind}
	}
	return []error{err.Kind, err.Err}
}

func outOfBounds(offset uint64, length uint64, size int) error {
	return fmt.Errorf(
		"%w (offset=%#x length=%#x size=%#x)",
		ErrOutOfBounds,
		offset,
		length,
		size)
}

func indexOutOfRange(index uint64, count int) error {
	return fmt.Errorf("%w (%d >= %d)", ErrIndexOutOfRange, index, count)
}
