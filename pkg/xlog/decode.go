package xlog

import (
	"encoding/binary"

	"github.com/bft-labs/walfp/pkg/wal"
)

// Decode parses one complete record. buf must hold exactly the record bytes
// with page framing already removed; start is only used in error messages
// and copied into the result.
func Decode(buf []byte, start wal.LSN, format Format) (*Record, error) {
	rec := &Record{}
	if err := decodeInto(rec, buf, start, format); err != nil {
		return nil, err
	}
	return rec, nil
}

// decoder is the working state of one parse pass. lastRel holds the
// locator of the previous block reference for SAME_REL references.
type decoder struct {
	buf     []byte
	pos     int
	at      wal.LSN
	lastRel RelFileLocator
	haveRel bool
}

func (d *decoder) need(n int, what string) error {
	if len(d.buf)-d.pos < n {
		return malformed(d.at, "record too short reading %s: need %d bytes at offset %d of %d", what, n, d.pos, len(d.buf))
	}
	return nil
}

func (d *decoder) u8(what string) (uint8, error) {
	if err := d.need(1, what); err != nil {
		return 0, err
	}
	v := d.buf[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) u16(what string) (uint16, error) {
	if err := d.need(2, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) u32(what string) (uint32, error) {
	if err := d.need(4, what); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func decodeInto(rec *Record, buf []byte, start wal.LSN, format Format) error {
	if len(buf) < RecordHeaderSize {
		return malformed(start, "record of %d bytes is shorter than its header", len(buf))
	}
	hdr := ParseHeader(buf)
	if int(hdr.TotalLen) != len(buf) {
		return malformed(start, "declared length %d does not match %d available bytes", hdr.TotalLen, len(buf))
	}

	*rec = Record{
		Header:     hdr,
		Start:      start,
		Blocks:     rec.Blocks[:0],
		MaxBlockID: -1,
	}

	d := decoder{buf: buf, pos: RecordHeaderSize, at: start}
	var mainLen, dataTotal int

headers:
	for len(buf)-d.pos > dataTotal {
		id, err := d.u8("block id")
		if err != nil {
			return err
		}

		switch {
		case id == BlockIDDataShort:
			n, err := d.u8("main data length")
			if err != nil {
				return err
			}
			mainLen = int(n)
			dataTotal += mainLen
			break headers

		case id == BlockIDDataLong:
			n, err := d.u32("main data length")
			if err != nil {
				return err
			}
			mainLen = int(n)
			dataTotal += mainLen
			break headers

		case id == BlockIDOrigin:
			if rec.Origin, err = d.u16("origin"); err != nil {
				return err
			}
			rec.HasOrigin = true

		case id == BlockIDTopLevelXID:
			if rec.TopLevelXID, err = d.u32("top-level xid"); err != nil {
				return err
			}

		case id <= MaxBlockID:
			if int(id) <= rec.MaxBlockID {
				return malformed(start, "out-of-order block_id %d", id)
			}
			rec.MaxBlockID = int(id)

			blk, n, err := d.blockHeader(id, format)
			if err != nil {
				return err
			}
			dataTotal += n
			rec.Blocks = append(rec.Blocks, blk)

		default:
			return malformed(start, "invalid block_id %d", id)
		}
	}

	if len(buf)-d.pos != dataTotal {
		return malformed(start, "block headers declare %d payload bytes, record has %d", dataTotal, len(buf)-d.pos)
	}

	for i := range rec.Blocks {
		b := &rec.Blocks[i]
		if b.HasImage() {
			n := int(b.image.Length)
			b.image.Bytes = buf[d.pos : d.pos+n]
			d.pos += n
		}
		if b.HasData() {
			n := int(b.dataLen)
			b.Data = buf[d.pos : d.pos+n]
			d.pos += n
		}
	}
	if mainLen > 0 {
		rec.MainData = buf[d.pos : d.pos+mainLen]
		d.pos += mainLen
	}
	return nil
}

// blockHeader parses one block reference header and returns it with the
// number of payload bytes it declares.
func (d *decoder) blockHeader(id uint8, format Format) (BlockRef, int, error) {
	blk := BlockRef{ID: id}
	var err error

	if blk.ForkFlags, err = d.u8("fork flags"); err != nil {
		return blk, 0, err
	}
	blk.Fork = ForkNumber(blk.ForkFlags & BkpBlockForkMask)
	if blk.dataLen, err = d.u16("block data length"); err != nil {
		return blk, 0, err
	}

	if blk.HasData() && blk.dataLen == 0 {
		return blk, 0, malformed(d.at, "BKPBLOCK_HAS_DATA set, but no data included for block %d", id)
	}
	if !blk.HasData() && blk.dataLen != 0 {
		return blk, 0, malformed(d.at, "BKPBLOCK_HAS_DATA not set, but data length is %d for block %d", blk.dataLen, id)
	}
	payload := int(blk.dataLen)

	if blk.HasImage() {
		if err := d.imageHeader(&blk.image, id, format); err != nil {
			return blk, 0, err
		}
		payload += int(blk.image.Length)
	}

	if blk.ForkFlags&BkpBlockSameRel == 0 {
		spc, err := d.u32("tablespace oid")
		if err != nil {
			return blk, 0, err
		}
		db, err := d.u32("database oid")
		if err != nil {
			return blk, 0, err
		}
		rel, err := d.u32("relation number")
		if err != nil {
			return blk, 0, err
		}
		d.lastRel = RelFileLocator{SpcOid: spc, DBOid: db, RelNumber: rel}
		d.haveRel = true
	} else if !d.haveRel {
		return blk, 0, malformed(d.at, "BKPBLOCK_SAME_REL set but no previous rel for block %d", id)
	}
	blk.Locator = d.lastRel

	if blk.Block, err = d.u32("block number"); err != nil {
		return blk, 0, err
	}
	return blk, payload, nil
}

func (d *decoder) imageHeader(img *Image, id uint8, format Format) error {
	var err error
	if img.Length, err = d.u16("image length"); err != nil {
		return err
	}
	if img.HoleOffset, err = d.u16("hole offset"); err != nil {
		return err
	}
	if img.Info, err = d.u8("image info"); err != nil {
		return err
	}
	img.Apply = img.Info&format.apply != 0

	var ok bool
	if img.Compression, ok = format.compression(img.Info); !ok {
		return malformed(d.at, "invalid compression flags 0x%02X in image of block %d", img.Info, id)
	}
	hasHole := img.Info&BkpImageHasHole != 0

	if img.Compressed() {
		if hasHole {
			if img.HoleLength, err = d.u16("hole length"); err != nil {
				return err
			}
		}
	} else {
		img.HoleLength = uint16(BlockSize - int(img.Length))
	}

	switch {
	case hasHole && (img.HoleOffset == 0 || img.HoleLength == 0 || img.Length == BlockSize):
		return malformed(d.at, "BKPIMAGE_HAS_HOLE set, but hole offset %d length %d block image length %d for block %d",
			img.HoleOffset, img.HoleLength, img.Length, id)
	case !hasHole && (img.HoleOffset != 0 || img.HoleLength != 0):
		return malformed(d.at, "BKPIMAGE_HAS_HOLE not set, but hole offset %d length %d for block %d",
			img.HoleOffset, img.HoleLength, id)
	case int(img.HoleOffset)+int(img.HoleLength) > BlockSize:
		return malformed(d.at, "hole offset %d length %d exceeds the page for block %d", img.HoleOffset, img.HoleLength, id)
	case img.Compressed() && int(img.Length) >= img.RawLength():
		return malformed(d.at, "compressed image length %d is not below %d for block %d", img.Length, img.RawLength(), id)
	case !hasHole && !img.Compressed() && img.Length != BlockSize:
		return malformed(d.at, "neither BKPIMAGE_HAS_HOLE nor compression set, but block image length %d for block %d", img.Length, id)
	}
	return nil
}
