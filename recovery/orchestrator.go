package recovery

import (
	"github.com/scalelfs/ScaleLFS/mlog"
	"github.com/scalelfs/ScaleLFS/segment"
)

// RecoverFsyncData is recover_fsync_data, orchestrating discovery
// and data repair. Discovery starts at the warm-node current
// segment's next free block, read from SegMgr.CursegOf; passing a
// nonzero startBlkaddr overrides that for callers (check-only tooling,
// tests) that need to walk a chain not rooted at the live curseg.
// Return semantics: (needsRecovery=true, nil) is check-only's "1";
// (false, nil) is success or nothing to recover; a non-nil err is a
// corruption/resource failure.
func (self *Recoverer) RecoverFsyncData(startBlkaddr uint32, checkOnly bool) (needsRecovery bool, err error) {
	savedReadOnly := self.SB.ReadOnly
	self.SB.ReadOnly = false // enable quota files needs write access

	self.cpLock.Lock()
	self.SB.PORDoing = true

	if startBlkaddr == 0 {
		startBlkaddr = self.SegMgr.CursegOf(segment.CursegWarmNode).NextFreeBlkaddr
	}
	disc, ferr := self.find(startBlkaddr, checkOnly)

	if ferr == nil && !disc.table.isEmpty() && checkOnly {
		disc.table.destroy(false)
		self.SB.PORDoing = false
		self.cpLock.Unlock()
		self.SB.ReadOnly = savedReadOnly
		mlog.Printf2("recovery/orchestrator", "r.RecoverFsyncData check-only: recovery needed")
		return true, nil
	}

	needCheckpoint := false
	if ferr == nil && !disc.table.isEmpty() {
		needCheckpoint = true
		ferr = self.repairAll(disc)
	}

	drop := ferr != nil
	if disc != nil {
		disc.table.destroy(drop)
	}
	if ferr != nil {
		self.Dev.Discard()
	}

	fixPointers := !checkOnly || disc == nil || disc.table.isEmpty()
	if ferr == nil && fixPointers && !self.SB.ReadOnly && self.SB.Zoned {
		ferr = self.SegMgr.FixCursegWritePointer()
	}
	if ferr == nil {
		self.SB.PORDoing = false
	}
	self.cpLock.Unlock()

	if needCheckpoint {
		self.SB.IsRecovered = true
		if ferr == nil {
			if err := self.Dev.Flush(); err != nil {
				ferr = err
			} else if err := self.SB.WriteCheckpoint("recovery"); err != nil {
				ferr = err
			}
		}
	}

	self.SB.ReadOnly = savedReadOnly
	if ferr != nil {
		mlog.Printf2("recovery/orchestrator", "r.RecoverFsyncData failed: %v", ferr)
	}
	return false, ferr
}

// repairAll drives the data-repair pass over every queued node page,
// then reconstructs inode metadata and reinstates directory entries
// where the discovery pass flagged them.
func (self *Recoverer) repairAll(disc *discoveryResult) error {
	for _, page := range disc.pages {
		entry := page.entry
		if entry == nil {
			return corrupt("repair: no fsync entry for ino %d", page.Footer.Ino)
		}

		if err := self.recoverData(entry, page); err != nil {
			return err
		}

		if page.Ino != nil {
			if err := self.recoverInode(entry.inode, page.Ino); err != nil {
				return err
			}
			if entry.hasLastDentry && entry.lastDentryBlkaddr == page.Blkaddr {
				onDiskHash, hasHash := uint32(0), page.Ino.HasEncryptedHash()
				if hasHash {
					onDiskHash = page.Ino.EncryptedHash
				}
				if err := self.recoverDentry(disc.table, page.Ino.PIno, entry.ino, string(page.Ino.Name), page.Ino.Mode, onDiskHash, hasHash); err != nil {
					return err
				}
			}
		}
	}
	if self.Quota.RepairNeeded() {
		self.SB.QuotaNeedRepair = true
	}
	return nil
}
