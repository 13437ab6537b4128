package recovery

import (
	"github.com/scalelfs/ScaleLFS/inodecache"
	"github.com/scalelfs/ScaleLFS/mlog"
	"github.com/scalelfs/ScaleLFS/quota"
)

// fsyncEntry is the {inode-handle, ino, last_blkaddr,
// last_dentry_blkaddr?} tuple discovery accumulates per fsynced ino.
// last_blkaddr tracks the most recent fsync-marked block seen for
// this ino; once the repair walk reaches it, the entry retires.
type fsyncEntry struct {
	inode             *inodecache.Inode
	ino               uint32
	lastBlkaddr       uint32
	lastDentryBlkaddr uint32
	hasLastDentry     bool
	retired           bool
}

// fsyncTable is the in-memory set of {ino -> entry} gathered during
// discovery. A slice gives O(n) find, acceptable since n is bounded
// by fsynced files since the last checkpoint.
type fsyncTable struct {
	entries []*fsyncEntry
	inodes  *inodecache.Cache
	quotaMgr *quota.Manager
}

func newFsyncTable(inodes *inodecache.Cache, quotaMgr *quota.Manager) *fsyncTable {
	return &fsyncTable{inodes: inodes, quotaMgr: quotaMgr}
}

// find looks up ino among the entries still eligible for repair.
// A retired entry - one the repair walk has already carried past its
// last fsync block - is invisible here, mirroring list_move_tail out
// of inode_list: any later chain page for that ino was superseded
// before the crash and is left alone.
func (self *fsyncTable) find(ino uint32) *fsyncEntry {
	for _, e := range self.entries {
		if e.ino == ino && !e.retired {
			return e
		}
	}
	return nil
}

// retire moves e out of find's lookup set without releasing its
// inode handle; destroy still tears it down at the end of recovery.
func (self *fsyncTable) retire(e *fsyncEntry) {
	e.retired = true
}

// add acquires an inode handle (retry-on-ENOMEM is IgetRetry's job),
// charges a quota inode allocation if quotaInode, and appends a fresh
// entry. Returns inodecache.ErrNotFound if ino isn't in the NAT-backed
// cache.
func (self *fsyncTable) add(ino uint32, blkaddr uint32, quotaInode bool) (*fsyncEntry, error) {
	n, err := self.inodes.IgetRetry(ino)
	if err != nil {
		return nil, err
	}
	if quotaInode {
		self.quotaMgr.Initialize(n.UID, n.GID, n.ProjID)
		if err := self.quotaMgr.AllocInode(n.UID, n.GID); err != nil {
			self.inodes.Iput(n)
			return nil, err
		}
	}
	e := &fsyncEntry{inode: n, ino: ino, lastBlkaddr: blkaddr}
	self.entries = append(self.entries, e)
	mlog.Printf2("recovery/fsynctable", "ft.add ino %d at %d (quota=%v)", ino, blkaddr, quotaInode)
	return e, nil
}

// del releases entry's inode handle. If drop, the inode is marked to
// revert to its pre-fsync state rather than being recovered.
func (self *fsyncTable) del(e *fsyncEntry, drop bool) {
	if drop {
		e.inode.MarkToDrop()
	} else {
		e.inode.MarkSynced()
	}
	self.inodes.Iput(e.inode)
	for i, cur := range self.entries {
		if cur == e {
			self.entries = append(self.entries[:i], self.entries[i+1:]...)
			return
		}
	}
}

// destroy tears down every remaining entry, e.g. at the end of
// recovery (successful path drops nothing; failure drops everything).
func (self *fsyncTable) destroy(drop bool) {
	for _, e := range append([]*fsyncEntry(nil), self.entries...) {
		self.del(e, drop)
	}
}

func (self *fsyncTable) isEmpty() bool { return len(self.entries) == 0 }
