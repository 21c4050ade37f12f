// Package pglz implements the PostgreSQL LZ (pglz) byte format used for
// compressed full-page images.
//
// The stream is a sequence of control bytes, each followed by up to eight
// items. A clear control bit means a literal byte; a set bit means a 2 or 3
// byte tag copying an earlier run of the output.
package pglz

import (
	"errors"
	"fmt"
)

const (
	maxOffset = 0x0fff
	minMatch  = 3
	maxMatch  = 273
)

// ErrCorrupt is returned for input that does not decode cleanly.
var ErrCorrupt = errors.New("pglz: corrupt input")

// Decompress expands src into dst and returns the number of bytes written.
// With complete set, the input must be consumed exactly and dst filled
// exactly, otherwise the result is ErrCorrupt.
func Decompress(dst, src []byte, complete bool) (int, error) {
	sp, dp := 0, 0
	for sp < len(src) && dp < len(dst) {
		ctrl := src[sp]
		sp++
		for bit := 0; bit < 8 && sp < len(src) && dp < len(dst); bit++ {
			if ctrl&1 == 0 {
				dst[dp] = src[sp]
				dp++
				sp++
				ctrl >>= 1
				continue
			}

			if sp+2 > len(src) {
				return dp, fmt.Errorf("%w: truncated tag at input offset %d", ErrCorrupt, sp)
			}
			length := int(src[sp]&0x0f) + minMatch
			off := int(src[sp]&0xf0)<<4 | int(src[sp+1])
			sp += 2
			if length == 18 {
				if sp >= len(src) {
					return dp, fmt.Errorf("%w: truncated length at input offset %d", ErrCorrupt, sp)
				}
				length += int(src[sp])
				sp++
			}
			if off == 0 || off > dp {
				return dp, fmt.Errorf("%w: back-reference %d at output offset %d", ErrCorrupt, off, dp)
			}
			if length > len(dst)-dp {
				length = len(dst) - dp
			}
			// Byte-wise copy: source and destination may overlap.
			for i := 0; i < length; i++ {
				dst[dp] = dst[dp-off]
				dp++
			}
			ctrl >>= 1
		}
	}

	if complete && (dp != len(dst) || sp != len(src)) {
		return dp, fmt.Errorf("%w: produced %d of %d bytes, consumed %d of %d", ErrCorrupt, dp, len(dst), sp, len(src))
	}
	return dp, nil
}

// Compress encodes src with a greedy longest-match search over the 4 KiB
// window. Output always decodes with Decompress; it is not guaranteed to be
// smaller than src.
func Compress(src []byte) []byte {
	out := make([]byte, 0, len(src)+len(src)/8+2)
	ctrlPos, bit := -1, 8

	for i := 0; i < len(src); {
		if bit == 8 {
			ctrlPos = len(out)
			out = append(out, 0)
			bit = 0
		}

		off, length := longestMatch(src, i)
		if length >= minMatch {
			out[ctrlPos] |= 1 << bit
			if length >= 18 {
				out = append(out, byte((off>>4)&0xf0)|0x0f, byte(off), byte(length-18))
			} else {
				out = append(out, byte((off>>4)&0xf0)|byte(length-minMatch), byte(off))
			}
			i += length
		} else {
			out = append(out, src[i])
			i++
		}
		bit++
	}
	return out
}

func longestMatch(src []byte, i int) (int, int) {
	limit := len(src) - i
	if limit > maxMatch {
		limit = maxMatch
	}
	if limit < minMatch {
		return 0, 0
	}
	lo := i - maxOffset
	if lo < 0 {
		lo = 0
	}
	bestOff, bestLen := 0, 0
	for j := i - 1; j >= lo; j-- {
		n := 0
		// The match may run into the bytes being encoded.
		for n < limit && src[j+n] == src[i+n] {
			n++
		}
		if n > bestLen {
			bestOff, bestLen = i-j, n
			if n == limit {
				break
			}
		}
	}
	return bestOff, bestLen
}
