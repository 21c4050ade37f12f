// Package wal exposes a directory of fixed-size PostgreSQL WAL segment files
// as one contiguous byte stream addressed by LSN.
//
// The package knows about segment geometry (size, naming, LSN arithmetic)
// and page framing (short and long page headers). It does not know about
// records; see package xlog for that.
//
// # Usage
//
//	desc, err := wal.DescribeSegment("/var/lib/pgsql/wal/000000010000000000000003")
//	if err != nil {
//	    return err
//	}
//	r := wal.NewSegmentReader(desc.Dir, desc.TimeLine, desc.SegmentSize, logger)
//	defer r.Close()
//
//	buf := make([]byte, wal.PageSize)
//	if err := r.Read(ctx, desc.Start(), buf); err != nil {
//	    return err
//	}
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package wal
