// Package xlog walks the record stream of a PostgreSQL WAL and decodes the
// block references of each record.
//
// A Cursor turns the page-framed byte stream served by a wal.Reader into
// whole records: it strips page headers at every page boundary, checks
// continuation headers, the prev-link and the record CRC. Decode parses the
// bytes of one record into a Record with its ordered BlockRefs; a BlockRef
// carrying a full-page image exposes the image metadata needed by package
// page to rebuild the page.
package xlog
