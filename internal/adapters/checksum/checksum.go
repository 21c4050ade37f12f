// Package checksum implements the PostgreSQL data page checksum.
package checksum

import (
	"encoding/binary"

	"github.com/bft-labs/walfp/pkg/page"
)

const (
	nSums    = 32
	fnvPrime = 16777619
	rows     = page.Size / (4 * nSums)
)

// Base offsets for the parallel FNV-1a sums, fixed by the on-disk format.
var baseOffsets = [nSums]uint32{
	0x5B1F36E9, 0xB8525960, 0x02AB50AA, 0x1DE66D2A,
	0x79FF467A, 0x9BB9F8A3, 0x217E7CD2, 0x83E13D2C,
	0xF8D4474F, 0xE39EB970, 0x42C6AE16, 0x993216FA,
	0x7B093B5D, 0x98DAFF3C, 0xF718902A, 0x0B1C9CDB,
	0xE58F764B, 0x187636BC, 0x5D7B3BB1, 0xE73DE7DE,
	0x92BEC979, 0xCCA6C0B2, 0x304A0979, 0x85AA43D4,
	0x783125BB, 0x6CA8EAA2, 0xE407EAC6, 0x4B5CFC3E,
	0x9FBF8C76, 0x15CA20BE, 0xF2CA9FFF, 0x3ED30E2B,
}

var _ page.ChecksumFunc = Page

func mix(sum, value uint32) uint32 {
	tmp := sum ^ value
	return tmp*fnvPrime ^ tmp>>17
}

// Page computes the checksum of a page.Size page stored as block blkno. The
// pd_checksum field is treated as zero and p is not modified.
func Page(p []byte, blkno uint32) uint16 {
	sums := baseOffsets
	for i := 0; i < rows; i++ {
		for j := 0; j < nSums; j++ {
			off := (i*nSums + j) * 4
			var v uint32
			if off != 8 {
				v = binary.LittleEndian.Uint32(p[off:])
			} else {
				// pd_checksum is the low half of the word at offset 8.
				v = binary.LittleEndian.Uint32(p[off:]) &^ 0xFFFF
			}
			sums[j] = mix(sums[j], v)
		}
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < nSums; j++ {
			sums[j] = mix(sums[j], 0)
		}
	}

	var result uint32
	for _, s := range sums {
		result ^= s
	}
	result ^= blkno
	return uint16(result%65535 + 1)
}
