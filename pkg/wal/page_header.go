package wal

import (
	"encoding/binary"
	"fmt"
)

// Page header info flags.
const (
	// XlpFirstIsContRecord is set when the page starts with the tail of a record.
	XlpFirstIsContRecord = 0x0001
	// XlpLongHeader marks a long header (first page of a segment).
	XlpLongHeader = 0x0002
	// XlpBkpRemovable marks backup blocks starting on this page as optional.
	XlpBkpRemovable = 0x0004
	// XlpFirstIsOverwriteContRecord replaces a missing contrecord.
	XlpFirstIsOverwriteContRecord = 0x0008
	// XlpAllFlags holds every defined flag bit.
	XlpAllFlags = 0x000F
)

// Header sizes, already MAXALIGNed.
const (
	ShortPageHeaderSize = 24
	LongPageHeaderSize  = 40
)

// PageHeader is the framing at the start of every WAL page. The long-form
// fields are zero on ordinary pages.
type PageHeader struct {
	Magic    uint16
	Info     uint16
	TimeLine TimeLineID
	PageAddr LSN
	RemLen   uint32

	SystemID    uint64
	SegmentSize uint32
	BlockSize   uint32
}

// IsLong reports whether the header is the long form.
func (h *PageHeader) IsLong() bool {
	return h.Info&XlpLongHeader != 0
}

// IsContRecord reports whether the page begins with continuation data.
func (h *PageHeader) IsContRecord() bool {
	return h.Info&XlpFirstIsContRecord != 0
}

// Size returns the number of framing bytes at the start of the page.
func (h *PageHeader) Size() uint32 {
	if h.IsLong() {
		return LongPageHeaderSize
	}
	return ShortPageHeaderSize
}

// ParsePageHeader decodes the header at the start of page.
func ParsePageHeader(page []byte) (PageHeader, error) {
	if len(page) < ShortPageHeaderSize {
		return PageHeader{}, fmt.Errorf("page header needs %d bytes, have %d", ShortPageHeaderSize, len(page))
	}
	h := PageHeader{
		Magic:    binary.LittleEndian.Uint16(page[0:]),
		Info:     binary.LittleEndian.Uint16(page[2:]),
		TimeLine: TimeLineID(binary.LittleEndian.Uint32(page[4:])),
		PageAddr: LSN(binary.LittleEndian.Uint64(page[8:])),
		RemLen:   binary.LittleEndian.Uint32(page[16:]),
	}
	if h.IsLong() {
		if len(page) < LongPageHeaderSize {
			return PageHeader{}, fmt.Errorf("long page header needs %d bytes, have %d", LongPageHeaderSize, len(page))
		}
		h.SystemID = binary.LittleEndian.Uint64(page[24:])
		h.SegmentSize = binary.LittleEndian.Uint32(page[32:])
		h.BlockSize = binary.LittleEndian.Uint32(page[36:])
	}
	return h, nil
}

// Encode writes h into the first Size() bytes of page.
func (h *PageHeader) Encode(page []byte) {
	binary.LittleEndian.PutUint16(page[0:], h.Magic)
	binary.LittleEndian.PutUint16(page[2:], h.Info)
	binary.LittleEndian.PutUint32(page[4:], uint32(h.TimeLine))
	binary.LittleEndian.PutUint64(page[8:], uint64(h.PageAddr))
	binary.LittleEndian.PutUint32(page[16:], h.RemLen)
	if h.IsLong() {
		binary.LittleEndian.PutUint64(page[24:], h.SystemID)
		binary.LittleEndian.PutUint32(page[32:], h.SegmentSize)
		binary.LittleEndian.PutUint32(page[36:], h.BlockSize)
	}
}
