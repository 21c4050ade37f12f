package wal

import "context"

// Reader provides byte-level access to the logical WAL stream.
type Reader interface {
	// Read fills buf with the bytes starting at start. A request spanning
	// segments is served segment by segment. Fails with ErrSegmentNotFound
	// or ErrShortRead.
	Read(ctx context.Context, start LSN, buf []byte) error

	// SegmentSize returns the segment size fixed for this run.
	SegmentSize() uint32

	// Close releases the open segment file, if any.
	Close() error
}
