package xlog

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/bft-labs/walfp/pkg/wal"
)

// RecordHeaderSize is the size of the fixed record header.
const RecordHeaderSize = 24

// MaxRecordLength bounds the declared length of a record.
const MaxRecordLength = 1020 * 1024 * 1024

// Resource manager and info bits needed to follow the stream.
const (
	RmgrXLogID    = 0
	XLogSwitch    = 0x40
	XlrInfoMask   = 0x0F
	crcFieldStart = 20
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Header is the fixed part of every record.
type Header struct {
	TotalLen uint32
	XID      uint32
	Prev     wal.LSN
	Info     uint8
	RmgrID   uint8
	CRC      uint32
}

// IsSwitch reports whether the record is an XLOG SWITCH, after which the
// rest of the segment is unused.
func (h *Header) IsSwitch() bool {
	return h.RmgrID == RmgrXLogID && h.Info&^XlrInfoMask == XLogSwitch
}

// ParseHeader decodes the record header at the start of b.
func ParseHeader(b []byte) Header {
	return Header{
		TotalLen: binary.LittleEndian.Uint32(b[0:]),
		XID:      binary.LittleEndian.Uint32(b[4:]),
		Prev:     wal.LSN(binary.LittleEndian.Uint64(b[8:])),
		Info:     b[16],
		RmgrID:   b[17],
		CRC:      binary.LittleEndian.Uint32(b[20:]),
	}
}

// Encode writes h into the first RecordHeaderSize bytes of b.
func (h *Header) Encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], h.TotalLen)
	binary.LittleEndian.PutUint32(b[4:], h.XID)
	binary.LittleEndian.PutUint64(b[8:], uint64(h.Prev))
	b[16] = h.Info
	b[17] = h.RmgrID
	b[18], b[19] = 0, 0
	binary.LittleEndian.PutUint32(b[20:], h.CRC)
}

// RecordCRC computes the CRC-32C of a complete record: the body first, then
// the header up to the CRC field.
func RecordCRC(rec []byte) uint32 {
	crc := crc32.Checksum(rec[RecordHeaderSize:], castagnoli)
	return crc32.Update(crc, castagnoli, rec[:crcFieldStart])
}

// Record is one decoded WAL record. Slices alias the buffer it was decoded from.
type Record struct {
	Header

	// Start is the LSN of the first header byte, End the position just past
	// the last byte.
	Start wal.LSN
	End   wal.LSN

	Origin      uint16
	HasOrigin   bool
	TopLevelXID uint32

	Blocks     []BlockRef
	MaxBlockID int
	MainData   []byte
}

// Next returns where the following record starts.
func (r *Record) Next() wal.LSN {
	return r.End.Align()
}

// Block returns the reference with the given block id.
func (r *Record) Block(id uint8) (*BlockRef, bool) {
	for i := range r.Blocks {
		if r.Blocks[i].ID == id {
			return &r.Blocks[i], true
		}
	}
	return nil, false
}
