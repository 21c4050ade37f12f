package xlog

import "fmt"

// BlockSize is the size of a data page (BLCKSZ).
const BlockSize = 8192

// Block reference ids and special ids in the record body.
const (
	MaxBlockID         = 32
	BlockIDTopLevelXID = 252
	BlockIDOrigin      = 253
	BlockIDDataLong    = 254
	BlockIDDataShort   = 255
)

// fork_flags bits of a block header.
const (
	BkpBlockForkMask = 0x0F
	BkpBlockHasImage = 0x10
	BkpBlockHasData  = 0x20
	BkpBlockWillInit = 0x40
	BkpBlockSameRel  = 0x80
)

// ForkNumber identifies a relation fork.
type ForkNumber uint8

const (
	MainFork ForkNumber = iota
	FSMFork
	VisibilityMapFork
	InitFork
)

var forkNames = [...]string{"main", "fsm", "vm", "init"}

// String returns the fork name used in relation file names.
func (f ForkNumber) String() string {
	if int(f) < len(forkNames) {
		return forkNames[f]
	}
	return fmt.Sprintf("fork%d", uint8(f))
}

// RelFileLocator identifies the physical file of a relation.
type RelFileLocator struct {
	SpcOid    uint32
	DBOid     uint32
	RelNumber uint32
}

func (l RelFileLocator) String() string {
	return fmt.Sprintf("%d/%d/%d", l.SpcOid, l.DBOid, l.RelNumber)
}

// Compression names the method used for a compressed page image.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionPGLZ
	CompressionLZ4
	CompressionZstd
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionPGLZ:
		return "pglz"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Image is the metadata and stored bytes of a full-page image.
// HoleOffset+HoleLength never exceeds BlockSize.
type Image struct {
	// Length is the number of stored bytes (bimg_len).
	Length      uint16
	HoleOffset  uint16
	HoleLength  uint16
	Info        uint8
	Compression Compression
	Apply       bool
	// Bytes aliases the record buffer.
	Bytes []byte
}

// Compressed reports whether Bytes must be decompressed.
func (i *Image) Compressed() bool {
	return i.Compression != CompressionNone
}

// RawLength is the size of the image once decompressed: the page minus the hole.
func (i *Image) RawLength() int {
	return BlockSize - int(i.HoleLength)
}

// BlockRef is one block reference of a record.
type BlockRef struct {
	ID        uint8
	ForkFlags uint8
	Locator   RelFileLocator
	Fork      ForkNumber
	Block     uint32

	image Image
	// Data aliases the record buffer.
	Data []byte
	// dataLen is the declared payload length, known before Data is sliced.
	dataLen uint16
}

// HasImage reports whether a full-page image is attached.
func (b *BlockRef) HasImage() bool { return b.ForkFlags&BkpBlockHasImage != 0 }

// HasData reports whether block data is attached.
func (b *BlockRef) HasData() bool { return b.ForkFlags&BkpBlockHasData != 0 }

// WillInit reports whether replay reinitializes the page.
func (b *BlockRef) WillInit() bool { return b.ForkFlags&BkpBlockWillInit != 0 }

// Location returns the relation the block belongs to.
func (b *BlockRef) Location() RelFileLocator { return b.Locator }

// BlockNumber returns the block number within the fork.
func (b *BlockRef) BlockNumber() uint32 { return b.Block }

// ImageMetadata returns the attached image, or nil when HasImage is false.
func (b *BlockRef) ImageMetadata() *Image {
	if !b.HasImage() {
		return nil
	}
	return &b.image
}
