package wal

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"path/filepath"
	"strconv"
)

// Segment size bounds accepted in a long page header.
const (
	MinSegmentSize     = 1 << 20
	MaxSegmentSize     = 1 << 30
	DefaultSegmentSize = 16 << 20
)

// segmentNameLen is the length of a segment file name: three 8-digit hex fields.
const segmentNameLen = 24

// TimeLineID identifies a WAL history branch.
type TimeLineID uint32

// SegNo is the sequence number of a segment file.
type SegNo uint64

// ValidSegmentSize reports whether size is a power of two between 1 MiB and 1 GiB.
func ValidSegmentSize(size uint32) bool {
	return bits.OnesCount32(size) == 1 && size >= MinSegmentSize && size <= MaxSegmentSize
}

// SegmentOf returns the segment holding l.
func SegmentOf(l LSN, segSize uint32) SegNo {
	return SegNo(uint64(l) / uint64(segSize))
}

// SegmentOffset returns the byte offset of l within its segment.
func SegmentOffset(l LSN, segSize uint32) uint32 {
	return uint32(uint64(l) % uint64(segSize))
}

// SegmentStart returns the LSN of the first byte of segment segNo.
func SegmentStart(segNo SegNo, segSize uint32) LSN {
	return LSN(uint64(segNo) * uint64(segSize))
}

func segmentsPerXLogID(segSize uint32) uint64 {
	return (1 << 32) / uint64(segSize)
}

// SegmentFileName returns the file name of segment segNo on timeline tli.
func SegmentFileName(tli TimeLineID, segNo SegNo, segSize uint32) string {
	per := segmentsPerXLogID(segSize)
	return fmt.Sprintf("%08X%08X%08X", uint32(tli), uint32(uint64(segNo)/per), uint32(uint64(segNo)%per))
}

// ParseSegmentFileName extracts the timeline and segment number from a segment file name.
func ParseSegmentFileName(name string, segSize uint32) (TimeLineID, SegNo, error) {
	if len(name) != segmentNameLen {
		return 0, 0, fmt.Errorf("%q is not a WAL segment file name", name)
	}
	if _, err := hex.DecodeString(name); err != nil {
		return 0, 0, fmt.Errorf("%q is not a WAL segment file name: %w", name, err)
	}
	tli, _ := strconv.ParseUint(name[0:8], 16, 32)
	log, _ := strconv.ParseUint(name[8:16], 16, 32)
	seg, _ := strconv.ParseUint(name[16:24], 16, 32)
	per := segmentsPerXLogID(segSize)
	if seg >= per {
		return 0, 0, fmt.Errorf("%q: segment %X out of range for %d byte segments", name, seg, segSize)
	}
	return TimeLineID(tli), SegNo(log*per + seg), nil
}

// SegmentDescriptor describes the segment a run starts from. SegmentSize is
// discovered from the long page header and fixed for the whole run.
type SegmentDescriptor struct {
	Dir         string
	Name        string
	TimeLine    TimeLineID
	SegNo       SegNo
	SegmentSize uint32
	Magic       uint16
	SystemID    uint64
}

// Start returns the LSN of the first byte of the described segment.
func (d SegmentDescriptor) Start() LSN {
	return SegmentStart(d.SegNo, d.SegmentSize)
}

// DescribeSegment reads the first page of the segment file at path and
// returns its geometry.
func DescribeSegment(path string) (SegmentDescriptor, error) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return SegmentDescriptor{}, &SegmentError{File: name, Err: ErrSegmentNotFound, Cause: err}
		}
		return SegmentDescriptor{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, PageSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return SegmentDescriptor{}, &SegmentError{File: name, Err: ErrShortRead, Cause: err}
	}
	hdr, err := ParsePageHeader(buf)
	if err != nil {
		return SegmentDescriptor{}, fmt.Errorf("%s: %w", name, err)
	}
	if !hdr.IsLong() {
		return SegmentDescriptor{}, fmt.Errorf("%s: first page has no long header", name)
	}
	if !ValidSegmentSize(hdr.SegmentSize) {
		return SegmentDescriptor{}, fmt.Errorf("%w: file %q header specifies %d bytes", ErrInvalidSegmentSize, name, hdr.SegmentSize)
	}
	if hdr.BlockSize != PageSize {
		return SegmentDescriptor{}, fmt.Errorf("%s: WAL block size %d, expected %d", name, hdr.BlockSize, PageSize)
	}
	tli, segNo, err := ParseSegmentFileName(name, hdr.SegmentSize)
	if err != nil {
		return SegmentDescriptor{}, err
	}
	return SegmentDescriptor{
		Dir:         filepath.Clean(dir),
		Name:        name,
		TimeLine:    tli,
		SegNo:       segNo,
		SegmentSize: hdr.SegmentSize,
		Magic:       hdr.Magic,
		SystemID:    hdr.SystemID,
	}, nil
}
