package wal

import (
	"fmt"
	"strconv"
	"strings"
)

// PageSize is the size of a WAL page (XLOG_BLCKSZ).
const PageSize = 8192

// alignment of record starts (MAXALIGN on 64-bit platforms).
const alignment = 8

// LSN is an absolute byte position in the logical WAL stream.
type LSN uint64

// InvalidLSN means "unset".
const InvalidLSN LSN = 0

// ParseLSN parses the textual form "XXXXXXXX/XXXXXXXX" (two hexadecimal halves).
func ParseLSN(s string) (LSN, error) {
	hi, lo, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || hi == "" || lo == "" {
		return InvalidLSN, fmt.Errorf("invalid WAL location %q: expected X/X", s)
	}
	h, err := strconv.ParseUint(hi, 16, 32)
	if err != nil {
		return InvalidLSN, fmt.Errorf("invalid WAL location %q: %w", s, err)
	}
	l, err := strconv.ParseUint(lo, 16, 32)
	if err != nil {
		return InvalidLSN, fmt.Errorf("invalid WAL location %q: %w", s, err)
	}
	return LSN(h<<32 | l), nil
}

// String formats the LSN as high/low hexadecimal halves, e.g. 0/0100A0D8.
func (l LSN) String() string {
	return fmt.Sprintf("%X/%08X", l.Hi(), l.Lo())
}

// Valid reports whether l is set.
func (l LSN) Valid() bool { return l != InvalidLSN }

// Hi returns the high 32 bits.
func (l LSN) Hi() uint32 { return uint32(l >> 32) }

// Lo returns the low 32 bits.
func (l LSN) Lo() uint32 { return uint32(l) }

// PageOffset returns the offset of l within its WAL page.
func (l LSN) PageOffset() uint32 { return uint32(l % PageSize) }

// PageStart returns the LSN of the first byte of the page holding l.
func (l LSN) PageStart() LSN { return l - l%PageSize }

// Align rounds l up to the next record alignment boundary.
func (l LSN) Align() LSN {
	return (l + alignment - 1) &^ (alignment - 1)
}

// Align8 rounds n up to the record alignment boundary.
func Align8(n uint32) uint32 {
	return (n + alignment - 1) &^ (alignment - 1)
}
