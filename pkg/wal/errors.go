package wal

import (
	"errors"
	"fmt"
)

var (
	// ErrSegmentNotFound is returned when a segment file needed for a read is absent.
	ErrSegmentNotFound = errors.New("wal: segment not found")

	// ErrShortRead is returned when a segment holds fewer bytes than requested.
	ErrShortRead = errors.New("wal: short read")

	// ErrInvalidSegmentSize is returned when a long page header carries an unusable segment size.
	ErrInvalidSegmentSize = errors.New("wal: segment size must be a power of two between 1 MB and 1 GB")
)

// SegmentError carries the file and offset of a failed segment access.
// It unwraps to both the sentinel in Err and the underlying Cause.
type SegmentError struct {
	File   string
	Offset int64
	Err    error
	Cause  error
}

func (e *SegmentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: file %s offset %d: %v", e.Err, e.File, e.Offset, e.Cause)
	}
	return fmt.Sprintf("%v: file %s offset %d", e.Err, e.File, e.Offset)
}

func (e *SegmentError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
