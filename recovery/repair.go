package recovery

import (
	"fmt"

	"github.com/scalelfs/ScaleLFS/device"
	"github.com/scalelfs/ScaleLFS/format"
	"github.com/scalelfs/ScaleLFS/mlog"
	"github.com/scalelfs/ScaleLFS/nodestore"
	"github.com/scalelfs/ScaleLFS/segment"
)

// RecoveredNodePage is the decoded view of a chain node the repair
// pass consumes: its footer, the raw inode body if it is an inode
// page, and the single data index it carries if it is a dnode page.
// The flat one-index-per-node model (nodestore doc comment) means a
// "node page" here always covers exactly one logical offset.
type RecoveredNodePage struct {
	Blkaddr uint32
	Footer  *format.Footer
	Ino     *format.RawInode // non-nil iff this is an inode page
	Ofs     uint32           // logical offset this page's index covers
	Dest    uint32           // recovered destination address for Ofs

	entry *fsyncEntry // fsync-table entry this page was collected under
}

// recoverData is do_recover_data for a single node page whose ino is
// in the fsync table.
func (self *Recoverer) recoverData(entry *fsyncEntry, page *RecoveredNodePage) error {
	// Step 1: xattr recovery would run here for inode pages / the
	// dedicated xattr block; xattrs are file-data-plane state so
	// there is nothing further to do for either case.

	// Step 2: inline data. Inline bodies are file-data-plane state
	// too; only the presence bit matters to recovery; if it says
	// there's no separate index for this page, we're done.
	if page.Ino != nil && page.Ino.Inline&format.InlineDataExist != 0 {
		return nil
	}

	// Step 3: indices.
	loc, err := self.Nodes.GetDnodeOfData(entry.ino, page.Ofs, nodestore.AllocNode)
	if err != nil {
		return err
	}
	info, err := self.Nodes.GetNodeInfo(loc.Nid)
	if err != nil {
		return err
	}
	if loc.Ofs != page.Ofs {
		return corrupt("dnode locator ofs %d != recovered page ofs %d", loc.Ofs, page.Ofs)
	}

	src := self.Nodes.GetIndex(loc.Nid)
	dest := page.Dest

	extendSize := false

	switch {
	case dest == src:
		// case (a): identity, nothing to do.

	case dest == format.NullAddr:
		// case (b): destination unallocated.
		self.Nodes.TruncateDataBlocksRange(loc.Nid)

	case dest == format.NewAddr:
		// case (c): reserved slot.
		self.Nodes.TruncateDataBlocksRange(loc.Nid)
		newAddr, err := self.Nodes.ReserveNewBlock()
		if err != nil {
			return err
		}
		self.Nodes.SetIndex(loc.Nid, newAddr)
		extendSize = true

	default:
		if !self.SegMgr.IsValidBlkaddr(dest, segment.MetaPOR) {
			return corrupt("dest %d not META_POR-valid", dest)
		}
		if src != format.NullAddr && !self.SegMgr.IsValidBlkaddr(src, segment.MetaPOR) {
			return corrupt("src %d not META_POR-valid", src)
		}

		if src == format.NullAddr {
			// case (d): valid dest, src missing. Reserve a new block
			// (retry loop honors MaxReserveRetries), then fall
			// through to (e).
			if _, err := self.reserveWithRetry(); err != nil {
				return err
			}
		}

		// case (e): resolve collision, then replace the index.
		if err := self.checkIndexInPrevNodes(entry.ino, loc.Nid, dest); err != nil {
			return err
		}
		self.Nodes.SetIndex(loc.Nid, dest)
		geom := self.SegMgr.Geometry()
		self.SegMgr.GetSegEntry(geom.SegnoOf(dest)).SetValid((dest-geom.MainBlkaddrStart)%geom.BlocksPerSegment, true)
		self.Nodes.PutSummary(dest, format.Summary{Nid: loc.Nid, OfsInNode: uint16(page.Ofs), Version: info.Version})
		extendSize = true
	}

	if extendSize {
		n, ierr := self.Inodes.Iget(entry.ino)
		if ierr == nil {
			if !n.KeepISize && n.Size <= uint64(page.Ofs)*uint64(device.BlockSize) {
				n.Size = uint64(page.Ofs+1) * uint64(device.BlockSize)
			}
			self.Inodes.Iput(n)
		}
	}

	return nil
}

// reserveWithRetry is case (d)'s "retry forever under fault
// injection" loop, made bounded and opt-in via MaxReserveRetries.
func (self *Recoverer) reserveWithRetry() (uint32, error) {
	tries := 0
	for {
		addr, err := self.Nodes.ReserveNewBlock()
		if err == nil {
			return addr, nil
		}
		tries++
		if self.MaxReserveRetries > 0 && tries >= self.MaxReserveRetries {
			return 0, fmt.Errorf("recovery: reserve new block failed after %d attempts: %w", tries, err)
		}
		mlog.Printf2("recovery/repair", "r.reserveWithRetry retrying (try %d)", tries)
	}
}
