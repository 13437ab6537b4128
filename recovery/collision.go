package recovery

import (
	"github.com/scalelfs/ScaleLFS/format"
	"github.com/scalelfs/ScaleLFS/mlog"
	"github.com/scalelfs/ScaleLFS/nodestore"
	"github.com/scalelfs/ScaleLFS/segment"
)

// checkIndexInPrevNodes is check_index_in_prev_nodes: before
// redirecting a logical index to dest, detach any older index that
// still claims that physical block.
//
// The two fast paths (the summary's nid equals the current ino or the
// current dnode's nid) are kept, each guarded by the same
// "index still equals dest" check the slow path uses. The
// inode-page-lock juggling around opening a foreign inode is a
// property of a page-cache-backed node tree that this module's flat
// nodestore model doesn't need: every lookup here is a plain map
// access, not a blocking page-cache fetch, so there is no lock to
// release before "reaching into" another inode. The observable
// behavior — stale index detached, no deadlock possible — is
// preserved; that locking mechanism is not reproduced literally.
func (self *Recoverer) checkIndexInPrevNodes(curIno, curNid uint32, dest uint32) error {
	geom := self.SegMgr.Geometry()
	segno := geom.SegnoOf(dest)
	entry := self.SegMgr.GetSegEntry(segno)
	offset := (dest - geom.MainBlkaddrStart) % geom.BlocksPerSegment
	if !entry.IsValid(offset) {
		return nil // no collision
	}

	sum, ok := self.Nodes.LookupSummary(dest)
	if !ok {
		// A data curseg still being appended to keeps its summary
		// block in memory.
		for _, t := range []segment.CursegType{segment.CursegHotData, segment.CursegWarmData, segment.CursegColdData} {
			cs := self.SegMgr.CursegOf(t)
			if cs.Segno == segno && cs.SumBlock != nil {
				decoded, derr := format.DecodeSummary(cs.SumBlock, int(offset))
				if derr != nil {
					return derr
				}
				sum, ok = *decoded, true
				break
			}
		}
	}
	if !ok {
		// dest's segment isn't one recovery itself has written a
		// reverse pointer for in this run (no active curseg covers
		// it), so the summary lives only in the sealed segment's
		// on-disk summary page.
		page, perr := self.SegMgr.GetSumPage(segno)
		if perr != nil {
			// A block marked valid in the bitmap must have a summary
			// entry somewhere; if neither the live map nor the sealed
			// page has it, the allocator and the summary disagree,
			// which the format guarantees cannot happen.
			mlog.Panicf("recovery: valid block %d has no summary entry", dest)
		}
		decoded, derr := format.DecodeSummary(page, int(offset))
		if derr != nil {
			return derr
		}
		sum = *decoded
	}

	if sum.Nid == curIno || sum.Nid == curNid {
		if self.Nodes.GetIndex(sum.Nid) == dest {
			self.Nodes.TruncateDataBlocksRange(sum.Nid)
			mlog.Printf2("recovery/collision", "r.checkIndexInPrevNodes fast path truncated nid %d", sum.Nid)
		}
		return nil
	}

	info, err := self.Nodes.GetNodeInfo(sum.Nid)
	if err != nil {
		if isNotFound(err) {
			// The summary points at a nid the node store never saw;
			// nothing to truncate.
			return nil
		}
		return err
	}
	if info.Ino != curIno {
		foreign, err := self.Inodes.IgetRetry(info.Ino)
		if err != nil {
			if !isNotFound(err) {
				return err
			}
		} else {
			self.Quota.Initialize(foreign.UID, foreign.GID, foreign.ProjID)
			defer self.Inodes.Iput(foreign)
		}
	}

	loc, err := self.Nodes.GetDnodeOfData(info.Ino, self.Nodes.StartBidxOfNode(uint32(sum.OfsInNode)), nodestore.LookupNode)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	if self.Nodes.GetIndex(loc.Nid) == dest {
		self.Nodes.TruncateDataBlocksRange(loc.Nid)
		mlog.Printf2("recovery/collision", "r.checkIndexInPrevNodes truncated foreign nid %d ino %d", loc.Nid, info.Ino)
	}
	return nil
}
