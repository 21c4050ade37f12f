// Package page turns the full-page images carried in WAL records back into
// complete data pages.
//
// A stored image may be compressed (pglz, LZ4 or zstd) and usually omits the
// unused "hole" between the line pointers and the tuple data. Reconstruct
// undoes both, stamps the page LSN and, when a ChecksumFunc is configured,
// recomputes the page checksum.
package page
