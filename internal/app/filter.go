package app

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/bft-labs/walfp/pkg/xlog"
)

// Filter selects records by transaction id and block references by
// relation number. The zero Filter accepts everything.
type Filter struct {
	xid    uint32
	hasXID bool
	rels   *roaring.Bitmap
}

// NewFilter creates a filter. A nil xid disables the transaction filter and
// an empty rels disables the relation filter.
func NewFilter(xid *uint32, rels []uint32) Filter {
	var f Filter
	if xid != nil {
		f.xid, f.hasXID = *xid, true
	}
	if len(rels) > 0 {
		f.rels = roaring.BitmapOf(rels...)
	}
	return f
}

// AcceptRecord reports whether a record written by xid passes.
func (f Filter) AcceptRecord(xid uint32) bool {
	return !f.hasXID || xid == f.xid
}

// AcceptBlock reports whether a block reference to loc passes.
func (f Filter) AcceptBlock(loc xlog.RelFileLocator) bool {
	return f.rels == nil || f.rels.Contains(loc.RelNumber)
}
