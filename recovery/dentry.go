package recovery

import (
	"github.com/scalelfs/ScaleLFS/directory"
	"github.com/scalelfs/ScaleLFS/mlog"
)

// recoverDentry is recover_dentry: reinstate a fsynced
// inode's directory entry under its parent, replacing any stale
// colliding entry.
func (self *Recoverer) recoverDentry(table *fsyncTable, parentIno, ino uint32, name string, mode uint16, onDiskHash uint32, hasHash bool) error {
	if table.find(parentIno) == nil {
		if _, err := table.add(parentIno, 0, false); err != nil && !isNotFound(err) {
			return err
		}
	}

	dir := self.dirFor(parentIno)
	rn := directory.BuildRecoveredName(dir, name, onDiskHash, hasHash)

	for {
		existing, ok := dir.FindEntry(rn.Name)
		if !ok {
			dir.AddDentry(rn.Name, ino, mode)
			mlog.Printf2("recovery/dentry", "r.recoverDentry added %s -> ino %d under %d", rn.Name, ino, parentIno)
			return nil
		}
		if existing.Ino == ino {
			return nil
		}

		foreign, err := self.Inodes.IgetRetry(existing.Ino)
		if err != nil {
			if isNotFound(err) {
				dir.DeleteEntry(rn.Name)
				continue
			}
			return err
		}
		self.Quota.Initialize(foreign.UID, foreign.GID, foreign.ProjID)
		if err := self.Quota.AcquireOrphanInode(existing.Ino); err != nil {
			self.Inodes.Iput(foreign)
			return err
		}
		dir.DeleteEntry(rn.Name)
		self.Inodes.Iput(foreign)
		mlog.Printf2("recovery/dentry", "r.recoverDentry replaced colliding entry %s (was ino %d)", rn.Name, existing.Ino)
	}
}
