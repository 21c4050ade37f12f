package ports

import (
	"context"

	"github.com/bft-labs/walfp/pkg/wal"
	"github.com/bft-labs/walfp/pkg/xlog"
)

// RecordSource provides access to the WAL record stream.
type RecordSource interface {
	// FindNextRecord returns the start of the first valid record at or after
	// after, never a position inside a record.
	FindNextRecord(ctx context.Context, after wal.LSN) (wal.LSN, error)

	// ReadRecord reads the record starting at at.
	// Returns io.EOF when the stream ends there, xlog.ErrEndpointReached when
	// the record runs past the end bound and an error matching
	// xlog.ErrMalformedRecord for bytes that are not a valid record.
	// The record is only valid until the next call.
	ReadRecord(ctx context.Context, at wal.LSN) (*xlog.Record, error)

	// Invalidate drops any cached WAL bytes before a retry.
	Invalidate()
}

// Waiter blocks until the WAL may have grown.
type Waiter interface {
	// Wait returns when new data may be available, or with ctx.Err().
	Wait(ctx context.Context) error
}
