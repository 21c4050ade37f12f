package page

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/bft-labs/walfp/pkg/pglz"
)

// Decompressor expands one compressed image into dst, which has exactly the
// expected output length. It returns the number of bytes produced.
type Decompressor interface {
	Decompress(dst, src []byte) (int, error)
}

// DecompressorFunc adapts a function to Decompressor.
type DecompressorFunc func(dst, src []byte) (int, error)

// Decompress calls f.
func (f DecompressorFunc) Decompress(dst, src []byte) (int, error) { return f(dst, src) }

// PGLZ decompresses PostgreSQL's built-in LZ format and requires the output
// to be filled completely.
var PGLZ = DecompressorFunc(func(dst, src []byte) (int, error) {
	return pglz.Decompress(dst, src, true)
})

// LZ4 decompresses a raw LZ4 block.
var LZ4 = DecompressorFunc(func(dst, src []byte) (int, error) {
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return n, fmt.Errorf("lz4: %w", err)
	}
	return n, nil
})

// ZstdDecompressor decompresses single zstd frames. The decoder is created
// once and reused; it is not safe for concurrent use.
type ZstdDecompressor struct {
	dec *zstd.Decoder
}

// NewZstdDecompressor creates a single-threaded decoder.
func NewZstdDecompressor() (*ZstdDecompressor, error) {
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(16<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &ZstdDecompressor{dec: dec}, nil
}

// Decompress implements Decompressor.
func (z *ZstdDecompressor) Decompress(dst, src []byte) (int, error) {
	out, err := z.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return 0, fmt.Errorf("zstd: %w", err)
	}
	if len(out) > len(dst) {
		return len(out), fmt.Errorf("zstd: produced %d bytes into a %d byte buffer", len(out), len(dst))
	}
	return len(out), nil
}

// Close releases the decoder.
func (z *ZstdDecompressor) Close() {
	z.dec.Close()
}
