package xlog

import (
	"errors"
	"fmt"

	"github.com/bft-labs/walfp/pkg/wal"
)

var (
	// ErrMalformedRecord is returned when record or page framing is not valid.
	// At the tail of the written WAL this is how the end of data looks.
	ErrMalformedRecord = errors.New("xlog: malformed record")

	// ErrEndpointReached is returned when a record continues past the end bound.
	ErrEndpointReached = errors.New("xlog: end of requested WAL range reached")
)

// RecordError reports where and why a record or page could not be decoded.
type RecordError struct {
	LSN    wal.LSN
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%v at %s: %s", ErrMalformedRecord, e.LSN, e.Reason)
}

func (e *RecordError) Unwrap() error { return ErrMalformedRecord }

func malformed(at wal.LSN, format string, args ...interface{}) error {
	return &RecordError{LSN: at, Reason: fmt.Sprintf(format, args...)}
}
