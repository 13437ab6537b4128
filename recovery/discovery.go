package recovery

import (
	"github.com/scalelfs/ScaleLFS/device"
	"github.com/scalelfs/ScaleLFS/format"
	"github.com/scalelfs/ScaleLFS/mlog"
	"github.com/scalelfs/ScaleLFS/segment"
)

// discoveryResult is what the discovery pass hands back to the
// orchestrator: the populated table, and the chain node pages queued
// for the data-repair pass, in traversal order.
type discoveryResult struct {
	table *fsyncTable
	pages []*RecoveredNodePage
}

// find is find_fsync_dnodes followed by recover_data's own pass: it
// walks the post-checkpoint chain once to build the fsync-inode table,
// then, unless checkOnly or the table came up empty, walks the
// identical chain a second time to gather every page belonging to an
// ino the first walk put in the table - not only that ino's own
// fsync-marked pages. A leading, non-fsync update to an ino is only
// known to matter once a later fsync-marked page for that same ino is
// found, which the first walk alone cannot tell while it's still
// reading that earlier block; the second walk, run against the
// finished table, can.
func (self *Recoverer) find(startBlkaddr uint32, checkOnly bool) (*discoveryResult, error) {
	table, err := self.findFsyncInodes(startBlkaddr, checkOnly)
	if err != nil {
		return nil, err
	}
	if checkOnly || table.isEmpty() {
		return &discoveryResult{table: table}, nil
	}
	pages, err := self.collectRecoverablePages(startBlkaddr, table)
	if err != nil {
		return nil, err
	}
	return &discoveryResult{table: table, pages: pages}, nil
}

// walkChain walks the post-checkpoint node chain starting at
// startBlkaddr, calling visit once per valid, in-bound, still
// checkpoint-current page. Traversal ends when visit returns
// stop=true, when the chain runs off the valid META_POR range or the
// device has nothing at the next block, or when the footer's
// checkpoint version falls behind - the same three exits find and
// recover_data each hit on their own copy of this loop.
func (self *Recoverer) walkChain(startBlkaddr uint32, visit func(blkaddr uint32, footer *format.Footer, page []byte) (stop bool, err error)) error {
	blkaddr := startBlkaddr
	steps := uint32(0)
	freeMainBlocks := self.SegMgr.Geometry().MainBlkaddrEnd - self.SegMgr.Geometry().MainBlkaddrStart
	ra := raMin

	for {
		if !self.SegMgr.IsValidBlkaddr(blkaddr, segment.MetaPOR) {
			return nil
		}
		page, err := self.Dev.ReadPage(blkaddr)
		if err == device.ErrNoBlock {
			return nil
		}
		if err != nil {
			return err
		}
		footer, err := format.DecodeFooter(page)
		if err != nil {
			return err
		}
		if !format.IsRecoverable(footer, self.SB.CheckpointVersion) {
			return nil
		}

		stop, err := visit(blkaddr, footer, page)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}

		steps++
		if steps >= freeMainBlocks {
			return corrupt("discovery exceeded free main-area block bound (loop?)")
		}
		next := footer.NextBlkaddr
		if next == blkaddr {
			return corrupt("node footer next_blkaddr equals current blkaddr (self-loop)")
		}

		geom := self.SegMgr.Geometry()
		if next == blkaddr+1 {
			ra = imin(ra*2, raMax)
		} else if !geom.IsSegmentBoundary(next) {
			ra = imax(ra/2, raMin)
		}
		mlog.Printf2("recovery/discovery", "d.find ra window now %d", ra)

		blkaddr = next
	}
}

// findFsyncInodes is find_fsync_dnodes: the first walk over the chain,
// gated on each page's own fsync mark, that builds the {ino -> entry}
// table and tracks the last fsync-marked block seen for each ino.
// checkOnly walks the same chain but never materializes new inodes and
// never mutates the node store's live state.
func (self *Recoverer) findFsyncInodes(startBlkaddr uint32, checkOnly bool) (*fsyncTable, error) {
	table := newFsyncTable(self.Inodes, self.Quota)

	err := self.walkChain(startBlkaddr, func(blkaddr uint32, footer *format.Footer, page []byte) (bool, error) {
		if !format.IsFsyncMarked(footer) {
			return false, nil
		}
		ino := footer.Ino
		entry := table.find(ino)
		if entry == nil {
			var addErr error
			if !checkOnly && format.IsInode(footer) && format.IsDentryMarked(footer) {
				if err := self.materializeInode(ino, page); err != nil {
					return false, err
				}
				entry, addErr = table.add(ino, blkaddr, true)
			} else {
				entry, addErr = table.add(ino, blkaddr, false)
			}
			if addErr != nil {
				if !isNotFound(addErr) {
					return false, addErr
				}
				// A data-only fsync node whose inode never
				// arrives in the NAT. Harmless drop.
				mlog.Printf2("recovery/discovery", "d.find ino %d not found, skipping block %d", ino, blkaddr)
				return false, nil
			}
		}
		entry.lastBlkaddr = blkaddr
		if format.IsInode(footer) && format.IsDentryMarked(footer) {
			entry.lastDentryBlkaddr = blkaddr
			entry.hasLastDentry = true
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return table, nil
}

// collectRecoverablePages is recover_data's own re-walk of the chain,
// run once the table is final: every page whose ino still has an
// active entry gets queued for repair, fsync-marked or not. An entry
// retires the moment the walk reaches the block that made it the
// ino's last fsync mark during discovery, so any of that ino's pages
// still further down the chain (already superseded before the crash)
// are left out, matching table.find no longer finding them.
func (self *Recoverer) collectRecoverablePages(startBlkaddr uint32, table *fsyncTable) ([]*RecoveredNodePage, error) {
	var pages []*RecoveredNodePage
	err := self.walkChain(startBlkaddr, func(blkaddr uint32, footer *format.Footer, page []byte) (bool, error) {
		entry := table.find(footer.Ino)
		if entry == nil {
			return false, nil
		}
		rnp, perr := decodeNodePage(blkaddr, footer, page)
		if perr != nil {
			return false, perr
		}
		rnp.entry = entry
		pages = append(pages, rnp)
		if blkaddr == entry.lastBlkaddr {
			table.retire(entry)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// decodeNodePage builds the RecoveredNodePage the repair pass needs
// out of a raw chain block: either an inode body, or a single {ofs,
// dest} index pair for a dnode page.
func decodeNodePage(blkaddr uint32, footer *format.Footer, page []byte) (*RecoveredNodePage, error) {
	body := page[:len(page)-format.FooterSize]
	rnp := &RecoveredNodePage{Blkaddr: blkaddr, Footer: footer}
	if format.IsInode(footer) {
		raw, err := format.DecodeInode(body, false)
		if err != nil {
			return nil, err
		}
		rnp.Ino = raw
		rnp.Ofs = 0
		return rnp, nil
	}
	ofs, dest, err := format.DecodeDnodeIndex(body)
	if err != nil {
		return nil, err
	}
	rnp.Ofs = ofs
	rnp.Dest = dest
	return rnp, nil
}

func imin(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func imax(a, b int) int {
	if a > b {
		return a
	}
	return b
}
