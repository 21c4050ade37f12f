package domain

import (
	"fmt"

	"github.com/bft-labs/walfp/pkg/wal"
	"github.com/bft-labs/walfp/pkg/xlog"
)

// PageKey identifies one page image extracted from the WAL.
type PageKey struct {
	// Locator is the relation file the page belongs to.
	Locator xlog.RelFileLocator

	// Fork is the relation fork.
	Fork xlog.ForkNumber

	// Block is the block number within the fork.
	Block uint32

	// LSN is the start of the record that carried the image.
	LSN wal.LSN
}

// FileName returns the name of the file the page is dumped to.
func (k PageKey) FileName() string {
	return fmt.Sprintf("tbs_%d_db_%d_rel_%d_fork_%s_blk_%d_lsn_%X_%08X.dump",
		k.Locator.SpcOid, k.Locator.DBOid, k.Locator.RelNumber,
		k.Fork, k.Block, k.LSN.Hi(), k.LSN.Lo())
}

func (k PageKey) String() string {
	return fmt.Sprintf("rel %s fork %s blk %d lsn %s", k.Locator, k.Fork, k.Block, k.LSN)
}
