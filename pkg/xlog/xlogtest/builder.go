// Package xlogtest builds synthetic WAL segment files for tests: records are
// laid out across pages with correct page headers, continuation headers,
// prev-links and CRCs, exactly as the server would write them.
package xlogtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bft-labs/walfp/pkg/pglz"
	"github.com/bft-labs/walfp/pkg/wal"
	"github.com/bft-labs/walfp/pkg/xlog"
)

// SystemID is written into every long page header.
const SystemID uint64 = 7301234567890123456

// ImageSpec describes a full-page image to embed. Page is the complete
// page; the bytes of the hole are dropped when encoding.
type ImageSpec struct {
	Page        []byte
	HoleOffset  uint16
	HoleLength  uint16
	Compression xlog.Compression
	Apply       bool
}

// BlockSpec describes one block reference.
type BlockSpec struct {
	ID       uint8
	Rel      xlog.RelFileLocator
	SameRel  bool
	Fork     xlog.ForkNumber
	Block    uint32
	WillInit bool
	Image    *ImageSpec
	Data     []byte
}

// RecordSpec describes a record.
type RecordSpec struct {
	XID      uint32
	RmgrID   uint8
	Info     uint8
	Blocks   []BlockSpec
	Origin   *uint16
	MainData []byte
}

// EncodeRecord serializes spec in the given format with the given prev-link.
func EncodeRecord(format xlog.Format, spec RecordSpec, prev wal.LSN) ([]byte, error) {
	var hdrs, payload bytes.Buffer
	le := binary.LittleEndian

	for _, blk := range spec.Blocks {
		flags := uint8(blk.Fork) & xlog.BkpBlockForkMask
		if blk.Image != nil {
			flags |= xlog.BkpBlockHasImage
		}
		if len(blk.Data) > 0 {
			flags |= xlog.BkpBlockHasData
		}
		if blk.WillInit {
			flags |= xlog.BkpBlockWillInit
		}
		if blk.SameRel {
			flags |= xlog.BkpBlockSameRel
		}
		hdrs.WriteByte(blk.ID)
		hdrs.WriteByte(flags)
		binary.Write(&hdrs, le, uint16(len(blk.Data)))

		if img := blk.Image; img != nil {
			stored, err := EncodeImage(img)
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", blk.ID, err)
			}
			info, err := format.ImageInfo(img.HoleLength > 0, img.Compression, img.Apply)
			if err != nil {
				return nil, err
			}
			binary.Write(&hdrs, le, uint16(len(stored)))
			binary.Write(&hdrs, le, img.HoleOffset)
			hdrs.WriteByte(info)
			if img.Compression != xlog.CompressionNone && img.HoleLength > 0 {
				binary.Write(&hdrs, le, img.HoleLength)
			}
			payload.Write(stored)
		}
		if !blk.SameRel {
			binary.Write(&hdrs, le, blk.Rel.SpcOid)
			binary.Write(&hdrs, le, blk.Rel.DBOid)
			binary.Write(&hdrs, le, blk.Rel.RelNumber)
		}
		binary.Write(&hdrs, le, blk.Block)
		payload.Write(blk.Data)
	}

	if spec.Origin != nil {
		hdrs.WriteByte(xlog.BlockIDOrigin)
		binary.Write(&hdrs, le, *spec.Origin)
	}
	switch n := len(spec.MainData); {
	case n == 0:
	case n <= 255:
		hdrs.WriteByte(xlog.BlockIDDataShort)
		hdrs.WriteByte(uint8(n))
	default:
		hdrs.WriteByte(xlog.BlockIDDataLong)
		binary.Write(&hdrs, le, uint32(n))
	}
	payload.Write(spec.MainData)

	rec := make([]byte, xlog.RecordHeaderSize, xlog.RecordHeaderSize+hdrs.Len()+payload.Len())
	rec = append(rec, hdrs.Bytes()...)
	rec = append(rec, payload.Bytes()...)

	h := xlog.Header{
		TotalLen: uint32(len(rec)),
		XID:      spec.XID,
		Prev:     prev,
		Info:     spec.Info,
		RmgrID:   spec.RmgrID,
	}
	h.Encode(rec)
	h.CRC = xlog.RecordCRC(rec)
	h.Encode(rec)
	return rec, nil
}

// EncodeImage returns the stored bytes of an image: the page without its
// hole, compressed with the requested method.
func EncodeImage(img *ImageSpec) ([]byte, error) {
	if len(img.Page) != xlog.BlockSize {
		return nil, fmt.Errorf("page is %d bytes, want %d", len(img.Page), xlog.BlockSize)
	}
	raw := make([]byte, 0, xlog.BlockSize-int(img.HoleLength))
	raw = append(raw, img.Page[:img.HoleOffset]...)
	raw = append(raw, img.Page[int(img.HoleOffset)+int(img.HoleLength):]...)

	var out []byte
	switch img.Compression {
	case xlog.CompressionNone:
		return raw, nil
	case xlog.CompressionPGLZ:
		out = pglz.Compress(raw)
	case xlog.CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		out = dst[:n]
	case xlog.CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		out = enc.EncodeAll(raw, nil)
		enc.Close()
	default:
		return nil, fmt.Errorf("unknown compression %s", img.Compression)
	}
	if len(out) == 0 || len(out) >= len(raw) {
		return nil, fmt.Errorf("%s did not shrink the image (%d -> %d bytes)", img.Compression, len(raw), len(out))
	}
	return out, nil
}

// NewPage returns a compressible data page for block blkno whose bytes in
// [holeOffset, holeOffset+holeLength) are zero.
func NewPage(blkno uint32, holeOffset, holeLength int) []byte {
	page := make([]byte, xlog.BlockSize)
	for i := 0; i < len(page); {
		i += copy(page[i:], fmt.Sprintf("blk%06d-row%04d|", blkno, i/24))
	}
	for i := holeOffset; i < holeOffset+holeLength; i++ {
		page[i] = 0
	}
	return page
}

// Builder lays records out into WAL pages held in memory.
type Builder struct {
	format   xlog.Format
	timeline wal.TimeLineID
	segSize  uint32

	pages map[wal.LSN][]byte
	pos   wal.LSN
	prev  wal.LSN
}

// NewBuilder starts a WAL at the beginning of segment startSeg.
func NewBuilder(magic uint16, tli wal.TimeLineID, segSize uint32, startSeg wal.SegNo) (*Builder, error) {
	format, err := xlog.FormatForMagic(magic)
	if err != nil {
		return nil, err
	}
	return &Builder{
		format:   format,
		timeline: tli,
		segSize:  segSize,
		pages:    make(map[wal.LSN][]byte),
		pos:      wal.SegmentStart(startSeg, segSize),
	}, nil
}

// Format returns the record format of the WAL being built.
func (b *Builder) Format() xlog.Format { return b.format }

// Pos returns where the next record will be placed (before alignment and
// page header).
func (b *Builder) Pos() wal.LSN { return b.pos }

// Append encodes spec and appends it. It returns the record's start and end.
func (b *Builder) Append(spec RecordSpec) (wal.LSN, wal.LSN, error) {
	rec, err := EncodeRecord(b.format, spec, b.prev)
	if err != nil {
		return 0, 0, err
	}
	start, end := b.AppendRaw(rec)
	return start, end, nil
}

// AppendRaw appends already encoded record bytes.
func (b *Builder) AppendRaw(rec []byte) (wal.LSN, wal.LSN) {
	pos := b.pos.Align()
	if pos.PageOffset() == 0 {
		pos += wal.LSN(b.writePageHeader(pos, 0))
	}
	start := pos

	for written := 0; written < len(rec); {
		if pos.PageOffset() == 0 {
			pos += wal.LSN(b.writePageHeader(pos, uint32(len(rec)-written)))
		}
		page := b.page(pos.PageStart())
		n := copy(page[pos.PageOffset():], rec[written:])
		written += n
		pos += wal.LSN(n)
	}

	b.pos = pos
	b.prev = start
	return start, pos
}

// SkipToNextSegment pads like an XLOG SWITCH: the next record starts in the
// following segment.
func (b *Builder) SkipToNextSegment() {
	seg := wal.SegmentOf(b.pos-1, b.segSize)
	b.pos = wal.SegmentStart(seg+1, b.segSize)
}

func (b *Builder) page(pagePtr wal.LSN) []byte {
	p, ok := b.pages[pagePtr]
	if !ok {
		p = make([]byte, wal.PageSize)
		b.pages[pagePtr] = p
	}
	return p
}

func (b *Builder) writePageHeader(pagePtr wal.LSN, remLen uint32) uint32 {
	h := wal.PageHeader{
		Magic:    b.format.Magic,
		TimeLine: b.timeline,
		PageAddr: pagePtr,
		RemLen:   remLen,
	}
	if remLen > 0 {
		h.Info |= wal.XlpFirstIsContRecord
	}
	if wal.SegmentOffset(pagePtr, b.segSize) == 0 {
		h.Info |= wal.XlpLongHeader
		h.SystemID = SystemID
		h.SegmentSize = b.segSize
		h.BlockSize = wal.PageSize
	}
	h.Encode(b.page(pagePtr))
	return h.Size()
}

// Segments returns the numbers of all segments holding at least one page.
func (b *Builder) Segments() []wal.SegNo {
	seen := make(map[wal.SegNo]bool)
	var segs []wal.SegNo
	for ptr := range b.pages {
		s := wal.SegmentOf(ptr, b.segSize)
		if !seen[s] {
			seen[s] = true
			segs = append(segs, s)
		}
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i] < segs[j] })
	return segs
}

// SegmentPath returns the path of segment segNo inside dir.
func (b *Builder) SegmentPath(dir string, segNo wal.SegNo) string {
	return filepath.Join(dir, wal.SegmentFileName(b.timeline, segNo, b.segSize))
}

// WriteDir writes every touched segment into dir as a full-size sparse file.
func (b *Builder) WriteDir(dir string) error {
	files := make(map[wal.SegNo]*os.File)
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()

	for _, segNo := range b.Segments() {
		f, err := os.OpenFile(b.SegmentPath(dir, segNo), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		files[segNo] = f
		if err := f.Truncate(int64(b.segSize)); err != nil {
			return err
		}
	}
	for ptr, page := range b.pages {
		f := files[wal.SegmentOf(ptr, b.segSize)]
		if _, err := f.WriteAt(page, int64(wal.SegmentOffset(ptr, b.segSize))); err != nil {
			return err
		}
	}
	for segNo, f := range files {
		if err := f.Close(); err != nil {
			return err
		}
		delete(files, segNo)
	}
	return nil
}
