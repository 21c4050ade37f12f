package wal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bft-labs/walfp/pkg/log"
)

// SegmentReader implements Reader over a directory of segment files.
// It keeps the current segment open along with the file offset so that
// sequential reads do not seek. It is not safe for concurrent use.
type SegmentReader struct {
	dir      string
	timeline TimeLineID
	segSize  uint32
	logger   log.Logger

	file  *os.File
	segNo SegNo
	off   int64
}

var _ Reader = (*SegmentReader)(nil)

// NewSegmentReader creates a SegmentReader for segments of timeline tli in dir.
func NewSegmentReader(dir string, tli TimeLineID, segSize uint32, logger log.Logger) *SegmentReader {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &SegmentReader{
		dir:      dir,
		timeline: tli,
		segSize:  segSize,
		logger:   logger,
	}
}

// SegmentSize returns the segment size.
func (r *SegmentReader) SegmentSize() uint32 { return r.segSize }

// Read fills buf with the bytes at [start, start+len(buf)).
func (r *SegmentReader) Read(ctx context.Context, start LSN, buf []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	ptr := start
	for len(buf) > 0 {
		startOff := int64(SegmentOffset(ptr, r.segSize))

		if r.file == nil || SegmentOf(ptr, r.segSize) != r.segNo {
			if err := r.openSegment(SegmentOf(ptr, r.segSize)); err != nil {
				return err
			}
		}

		if r.off != startOff {
			if _, err := r.file.Seek(startOff, io.SeekStart); err != nil {
				return fmt.Errorf("seek in %s to offset %d: %w", r.fileName(), startOff, err)
			}
			r.off = startOff
		}

		// Never cross a segment boundary in one read.
		segBytes := int64(r.segSize) - startOff
		if int64(len(buf)) < segBytes {
			segBytes = int64(len(buf))
		}

		n, err := r.file.Read(buf[:segBytes])
		if n <= 0 {
			if err == nil || errors.Is(err, io.EOF) {
				return &SegmentError{File: r.fileName(), Offset: r.off, Err: ErrShortRead,
					Cause: fmt.Errorf("read 0 of %d bytes", segBytes)}
			}
			return &SegmentError{File: r.fileName(), Offset: r.off, Err: ErrShortRead, Cause: err}
		}

		ptr += LSN(n)
		r.off += int64(n)
		buf = buf[n:]
	}
	return nil
}

// Close closes the open segment file.
func (r *SegmentReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *SegmentReader) openSegment(segNo SegNo) error {
	if r.file != nil {
		r.file.Close()
		r.file = nil
	}
	name := SegmentFileName(r.timeline, segNo, r.segSize)
	f, err := os.Open(filepath.Join(r.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &SegmentError{File: name, Err: ErrSegmentNotFound, Cause: err}
		}
		return fmt.Errorf("open segment %s: %w", name, err)
	}
	r.logger.Debug("opened segment", log.String("file", name))
	r.file = f
	r.segNo = segNo
	r.off = 0
	return nil
}

func (r *SegmentReader) fileName() string {
	return SegmentFileName(r.timeline, r.segNo, r.segSize)
}
