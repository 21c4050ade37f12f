package page

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bft-labs/walfp/pkg/wal"
	"github.com/bft-labs/walfp/pkg/xlog"
)

// Size is the size of a reconstructed page.
const Size = xlog.BlockSize

// Offsets of page header fields that reconstruction rewrites.
const (
	lsnOffset      = 0
	checksumOffset = 8
)

var (
	// ErrDecompression is returned when a compressed image does not expand to
	// exactly the size of the page without its hole.
	ErrDecompression = errors.New("page: could not decompress image")

	// ErrInvalidImage is returned for image metadata that cannot describe a page.
	ErrInvalidImage = errors.New("page: invalid image")
)

// ChecksumFunc computes the checksum of a page stored as block blkno. The
// checksum field itself must not influence the result.
type ChecksumFunc func(page []byte, blkno uint32) uint16

// Reconstructor rebuilds pages from images. It owns one scratch buffer for
// decompression and is not safe for concurrent use.
type Reconstructor struct {
	decompressors map[xlog.Compression]Decompressor
	checksum      ChecksumFunc
	scratch       [Size]byte
}

// Option configures a Reconstructor.
type Option func(*Reconstructor)

// WithChecksum makes Reconstruct store checksum(page, blkno) in the page header.
func WithChecksum(checksum ChecksumFunc) Option {
	return func(r *Reconstructor) { r.checksum = checksum }
}

// WithDecompressor registers d for images compressed with c, replacing any default.
func WithDecompressor(c xlog.Compression, d Decompressor) Option {
	return func(r *Reconstructor) { r.decompressors[c] = d }
}

// NewReconstructor creates a Reconstructor with pglz and LZ4 support.
// Register zstd with WithDecompressor(xlog.CompressionZstd, ...).
func NewReconstructor(opts ...Option) *Reconstructor {
	r := &Reconstructor{
		decompressors: map[xlog.Compression]Decompressor{
			xlog.CompressionPGLZ: PGLZ,
			xlog.CompressionLZ4:  LZ4,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconstruct writes the page described by img into dst, which must be Size
// bytes. The hole is zero-filled, pd_lsn is set to lsn and, if a checksum
// function is configured, pd_checksum is recomputed for block blkno.
func (r *Reconstructor) Reconstruct(dst []byte, img *xlog.Image, blkno uint32, lsn wal.LSN) error {
	if len(dst) != Size {
		return fmt.Errorf("%w: destination is %d bytes, want %d", ErrInvalidImage, len(dst), Size)
	}
	holeOff, holeLen := int(img.HoleOffset), int(img.HoleLength)
	if holeOff+holeLen > Size {
		return fmt.Errorf("%w: hole at %d length %d exceeds the page", ErrInvalidImage, holeOff, holeLen)
	}
	rawLen := Size - holeLen

	src := img.Bytes
	if img.Compressed() {
		d, ok := r.decompressors[img.Compression]
		if !ok {
			return fmt.Errorf("%w: no decompressor for %s", ErrInvalidImage, img.Compression)
		}
		out := r.scratch[:rawLen]
		n, err := d.Decompress(out, src)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrDecompression, img.Compression, err)
		}
		if n != rawLen {
			return fmt.Errorf("%w: %s produced %d bytes, want %d", ErrDecompression, img.Compression, n, rawLen)
		}
		src = out
	} else if len(src) != rawLen {
		return fmt.Errorf("%w: image is %d bytes, want %d", ErrInvalidImage, len(src), rawLen)
	}

	if holeLen == 0 {
		copy(dst, src)
	} else {
		copy(dst[:holeOff], src[:holeOff])
		clear(dst[holeOff : holeOff+holeLen])
		copy(dst[holeOff+holeLen:], src[holeOff:])
	}

	SetLSN(dst, lsn)
	if r.checksum != nil {
		SetChecksum(dst, r.checksum(dst, blkno))
	}
	return nil
}

// LSN returns pd_lsn of p.
func LSN(p []byte) wal.LSN {
	hi := binary.LittleEndian.Uint32(p[lsnOffset:])
	lo := binary.LittleEndian.Uint32(p[lsnOffset+4:])
	return wal.LSN(uint64(hi)<<32 | uint64(lo))
}

// SetLSN stores lsn in pd_lsn, high half first.
func SetLSN(p []byte, lsn wal.LSN) {
	binary.LittleEndian.PutUint32(p[lsnOffset:], lsn.Hi())
	binary.LittleEndian.PutUint32(p[lsnOffset+4:], lsn.Lo())
}

// Checksum returns pd_checksum of p.
func Checksum(p []byte) uint16 {
	return binary.LittleEndian.Uint16(p[checksumOffset:])
}

// SetChecksum stores sum in pd_checksum.
func SetChecksum(p []byte, sum uint16) {
	binary.LittleEndian.PutUint16(p[checksumOffset:], sum)
}
