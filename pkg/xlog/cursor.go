package xlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/bft-labs/walfp/pkg/log"
	"github.com/bft-labs/walfp/pkg/wal"
)

// Cursor reads records from a wal.Reader. It owns one page buffer and one
// record buffer, both reused between calls, so a Record returned by
// ReadRecord is only valid until the next call.
type Cursor struct {
	r       wal.Reader
	segSize uint32
	magic   uint16
	sysID   uint64
	format  Format
	end     wal.LSN
	logger  log.Logger

	page      []byte
	pagePtr   wal.LSN
	pageHdr   wal.PageHeader
	pageValid bool

	buf []byte
	rec Record

	// prev is the start of the last record read in sequence; InvalidLSN
	// when the next read is a random access.
	prev wal.LSN
}

// CursorOption configures a Cursor.
type CursorOption func(*Cursor)

// WithEnd stops the cursor at end: records starting at or after it are not
// read and a record running past it yields ErrEndpointReached.
func WithEnd(end wal.LSN) CursorOption {
	return func(c *Cursor) { c.end = end }
}

// WithLogger sets the cursor's logger.
func WithLogger(logger log.Logger) CursorOption {
	return func(c *Cursor) { c.logger = logger }
}

// NewCursor creates a cursor for the WAL described by desc.
func NewCursor(r wal.Reader, desc wal.SegmentDescriptor, opts ...CursorOption) (*Cursor, error) {
	format, err := FormatForMagic(desc.Magic)
	if err != nil {
		return nil, err
	}
	if r.SegmentSize() != desc.SegmentSize {
		return nil, fmt.Errorf("reader segment size %d does not match WAL segment size %d", r.SegmentSize(), desc.SegmentSize)
	}
	c := &Cursor{
		r:       r,
		segSize: desc.SegmentSize,
		magic:   desc.Magic,
		sysID:   desc.SystemID,
		format:  format,
		logger:  log.NewNoopLogger(),
		page:    make([]byte, wal.PageSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Format returns the record format in use.
func (c *Cursor) Format() Format { return c.format }

// Invalidate drops the cached page so the next read goes to disk again.
// Used when following a WAL that is still being written.
func (c *Cursor) Invalidate() {
	c.pageValid = false
}

// FindNextRecord returns the start of the first valid record at or after
// after. A pointer inside a record or page header is moved past it, never
// to a position inside the record.
func (c *Cursor) FindNextRecord(ctx context.Context, after wal.LSN) (wal.LSN, error) {
	if c.end.Valid() && after >= c.end {
		return wal.InvalidLSN, io.EOF
	}

	// Skip continuation data at the start of the page holding after.
	tmp := after
	for {
		pagePtr := tmp.PageStart()
		hdr, err := c.loadPage(ctx, pagePtr)
		if err != nil {
			return wal.InvalidLSN, c.tail(err)
		}
		if !hdr.IsContRecord() {
			tmp = pagePtr + wal.LSN(hdr.Size())
			break
		}
		rem := wal.Align8(hdr.RemLen)
		if rem >= wal.PageSize-hdr.Size() {
			// The whole page is continuation; look at the next one.
			tmp = pagePtr + wal.PageSize
			continue
		}
		tmp = pagePtr + wal.LSN(hdr.Size()+rem)
		break
	}

	// Walk forward to the first record starting at or after the target.
	c.prev = wal.InvalidLSN
	for {
		rec, err := c.ReadRecord(ctx, tmp)
		if err != nil {
			return wal.InvalidLSN, err
		}
		if rec.Start >= after {
			found := rec.Start
			c.prev = wal.InvalidLSN
			return found, nil
		}
		tmp = rec.Next()
	}
}

// ReadRecord reads the record starting at at. It returns io.EOF when at is
// at or past the end bound or when the segment holding at does not exist,
// ErrEndpointReached when the record runs past the end bound and an error
// matching ErrMalformedRecord when the bytes do not form a valid record.
func (c *Cursor) ReadRecord(ctx context.Context, at wal.LSN) (*Record, error) {
	if c.end.Valid() && at >= c.end {
		return nil, io.EOF
	}
	if at != at.Align() {
		return nil, malformed(at, "record pointer is not aligned")
	}

	hdr, err := c.loadPage(ctx, at.PageStart())
	if err != nil {
		return nil, c.tail(err)
	}

	start := at
	off := at.PageOffset()
	if off == 0 {
		start += wal.LSN(hdr.Size())
		off = hdr.Size()
	}
	if off < hdr.Size() {
		return nil, malformed(at, "invalid record offset %d inside page header", off)
	}
	if hdr.IsContRecord() && off == hdr.Size() {
		return nil, malformed(at, "contrecord is requested by %s", at)
	}
	if c.end.Valid() && start >= c.end {
		return nil, io.EOF
	}

	totLen := binary.LittleEndian.Uint32(c.page[off:])
	if totLen < RecordHeaderSize {
		return nil, malformed(start, "invalid record length: wanted %d, got %d", RecordHeaderSize, totLen)
	}
	if totLen > MaxRecordLength {
		return nil, malformed(start, "record length %d exceeds maximum %d", totLen, MaxRecordLength)
	}
	if cap(c.buf) < int(totLen) {
		c.buf = make([]byte, totLen)
	}
	c.buf = c.buf[:totLen]

	pos, err := c.fill(ctx, start, 0, RecordHeaderSize, totLen)
	if err != nil {
		return nil, err
	}
	rh := ParseHeader(c.buf)
	if err := c.checkPrevLink(start, rh.Prev); err != nil {
		return nil, err
	}

	pos, err = c.fill(ctx, pos, RecordHeaderSize, totLen, totLen)
	if err != nil {
		return nil, err
	}
	if c.end.Valid() && pos > c.end {
		return nil, fmt.Errorf("%w: record at %s ends at %s, past %s", ErrEndpointReached, start, pos, c.end)
	}

	if crc := RecordCRC(c.buf); crc != rh.CRC {
		return nil, malformed(start, "incorrect resource manager data checksum: computed %08X, stored %08X", crc, rh.CRC)
	}

	if err := decodeInto(&c.rec, c.buf, start, c.format); err != nil {
		return nil, err
	}
	c.rec.End = pos
	if rh.IsSwitch() {
		// The rest of the segment is padding.
		c.rec.End = wal.SegmentStart(wal.SegmentOf(pos-1, c.segSize)+1, c.segSize)
	}
	c.prev = start
	return &c.rec, nil
}

// fill copies record bytes [got, upto) into c.buf, reading from pos and
// stepping over page headers. It returns the position after the last byte.
func (c *Cursor) fill(ctx context.Context, pos wal.LSN, got, upto, totLen uint32) (wal.LSN, error) {
	for got < upto {
		off := pos.PageOffset()
		if off == 0 {
			if c.end.Valid() && pos >= c.end {
				return pos, fmt.Errorf("%w: record continues past %s", ErrEndpointReached, c.end)
			}
			hdr, err := c.loadPage(ctx, pos)
			if err != nil {
				return pos, err
			}
			if !hdr.IsContRecord() {
				return pos, malformed(pos, "there is no contrecord flag")
			}
			if hdr.RemLen == 0 || hdr.RemLen != totLen-got {
				return pos, malformed(pos, "invalid contrecord length %d, expected %d", hdr.RemLen, totLen-got)
			}
			off = hdr.Size()
			pos += wal.LSN(off)
		} else if _, err := c.loadPage(ctx, pos.PageStart()); err != nil {
			return pos, err
		}

		n := wal.PageSize - off
		if n > upto-got {
			n = upto - got
		}
		copy(c.buf[got:got+n], c.page[off:off+n])
		got += n
		pos += wal.LSN(n)
	}
	return pos, nil
}

func (c *Cursor) checkPrevLink(start, prev wal.LSN) error {
	if c.prev.Valid() {
		if prev != c.prev {
			return malformed(start, "record with incorrect prev-link %s, expected %s", prev, c.prev)
		}
		return nil
	}
	if prev >= start {
		return malformed(start, "record with incorrect prev-link %s", prev)
	}
	return nil
}

// loadPage makes the page at pagePtr current and returns its header.
func (c *Cursor) loadPage(ctx context.Context, pagePtr wal.LSN) (*wal.PageHeader, error) {
	if c.pageValid && c.pagePtr == pagePtr {
		return &c.pageHdr, nil
	}
	c.pageValid = false
	if err := c.r.Read(ctx, pagePtr, c.page); err != nil {
		return nil, err
	}
	hdr, err := wal.ParsePageHeader(c.page)
	if err != nil {
		return nil, malformed(pagePtr, "%v", err)
	}
	if err := c.validatePage(pagePtr, &hdr); err != nil {
		return nil, err
	}
	c.pageHdr = hdr
	c.pagePtr = pagePtr
	c.pageValid = true
	return &c.pageHdr, nil
}

func (c *Cursor) validatePage(pagePtr wal.LSN, hdr *wal.PageHeader) error {
	if hdr.Magic != c.magic {
		return malformed(pagePtr, "invalid magic number %04X, expected %04X", hdr.Magic, c.magic)
	}
	if hdr.Info&^wal.XlpAllFlags != 0 {
		return malformed(pagePtr, "invalid info bits %04X", hdr.Info)
	}
	if wal.SegmentOffset(pagePtr, c.segSize) == 0 {
		if !hdr.IsLong() {
			return malformed(pagePtr, "first page of segment has no long header")
		}
		if hdr.SegmentSize != c.segSize {
			return malformed(pagePtr, "segment size %d in page header, expected %d", hdr.SegmentSize, c.segSize)
		}
		if hdr.BlockSize != wal.PageSize {
			return malformed(pagePtr, "WAL block size %d in page header, expected %d", hdr.BlockSize, wal.PageSize)
		}
		if c.sysID != 0 && hdr.SystemID != c.sysID {
			return malformed(pagePtr, "WAL belongs to system %d, expected %d", hdr.SystemID, c.sysID)
		}
	}
	if hdr.PageAddr != pagePtr {
		return malformed(pagePtr, "unexpected pageaddr %s", hdr.PageAddr)
	}
	return nil
}

// tail maps a missing segment at a record boundary to io.EOF: the stream
// simply ends there.
func (c *Cursor) tail(err error) error {
	if errors.Is(err, wal.ErrSegmentNotFound) {
		c.logger.Debug("no further segment", log.Err(err))
		return io.EOF
	}
	return err
}
