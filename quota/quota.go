// quota is recovery's view of the quota/project-id subsystem:
// dquot_initialize, dquot_alloc_inode, dquot_transfer,
// transfer_project_quota, acquire_orphan_inode. Enforcement itself
// (limits, over-quota rejection) belongs to the quota subsystem proper
// and is out of scope here; recovery only needs to keep per-uid/gid/
// project usage counters consistent so a later mount doesn't see a
// corrupt quota file, and to flag when it cannot.
package quota

import "github.com/scalelfs/ScaleLFS/util"

// ErrRepairNeeded signals a non-fatal quota inconsistency: the
// caller must set the superblock's repair-needed flag and continue.
type ErrRepairNeeded struct{ Reason string }

func (e ErrRepairNeeded) Error() string { return "quota: repair needed: " + e.Reason }

type usage struct {
	Inodes int64
	Blocks int64
}

// Manager tracks per-uid, per-gid, and per-project usage. It is
// intentionally simple: recovery only ever adds/transfers, it never
// enforces a limit.
type Manager struct {
	lock             util.MutexLocked
	byUID, byGID     map[uint32]*usage
	byProject        map[uint32]*usage
	orphansAcquired  map[uint32]bool
	repairNeeded     bool
}

func New() *Manager {
	return &Manager{
		byUID:           make(map[uint32]*usage),
		byGID:           make(map[uint32]*usage),
		byProject:       make(map[uint32]*usage),
		orphansAcquired: make(map[uint32]bool),
	}
}

func (self *Manager) get(m map[uint32]*usage, id uint32) *usage {
	u, ok := m[id]
	if !ok {
		u = &usage{}
		m[id] = u
	}
	return u
}

// Initialize is dquot_initialize: establish quota context for an
// inode's current uid/gid/project before any transfer or allocation
// touches it. The in-memory model needs no per-call setup, so this is
// a no-op kept for interface parity with the real subsystem.
func (self *Manager) Initialize(uid, gid, projID uint32) {}

// AllocInode charges one inode against uid and gid, e.g. when
// materializing a fresh inode discovered via a recovered inode page.
func (self *Manager) AllocInode(uid, gid uint32) error {
	defer self.lock.Locked()()
	self.get(self.byUID, uid).Inodes++
	self.get(self.byGID, gid).Inodes++
	return nil
}

// Transfer moves inode-ownership quota from (oldUID, oldGID) to
// (newUID, newGID), matching recover_inode's "only transfer if it
// actually differs" behavior — callers only invoke this when the
// recovered inode's uid/gid differs from the live one.
func (self *Manager) Transfer(oldUID, oldGID, newUID, newGID uint32) error {
	defer self.lock.Locked()()
	if oldUID != newUID {
		self.get(self.byUID, oldUID).Inodes--
		self.get(self.byUID, newUID).Inodes++
	}
	if oldGID != newGID {
		self.get(self.byGID, oldGID).Inodes--
		self.get(self.byGID, newGID).Inodes++
	}
	return nil
}

// TransferProject moves inode-ownership quota between project ids,
// mirroring Transfer but for the extra-attr project id field.
func (self *Manager) TransferProject(oldProjID, newProjID uint32) error {
	if oldProjID == newProjID {
		return nil
	}
	defer self.lock.Locked()()
	self.get(self.byProject, oldProjID).Inodes--
	self.get(self.byProject, newProjID).Inodes++
	return nil
}

// AcquireOrphanInode reserves an orphan slot for an inode that is
// about to be unlinked out from under a stale directory entry, so a
// crash mid-unlink can still be undone. The in-memory model tracks
// only which inos are currently reserved.
func (self *Manager) AcquireOrphanInode(ino uint32) error {
	defer self.lock.Locked()()
	self.orphansAcquired[ino] = true
	return nil
}

func (self *Manager) IsOrphanAcquired(ino uint32) bool {
	defer self.lock.Locked()()
	return self.orphansAcquired[ino]
}

// MarkRepairNeeded records that a quota inconsistency was detected
// but recovery is proceeding anyway.
func (self *Manager) MarkRepairNeeded() { self.repairNeeded = true }
func (self *Manager) RepairNeeded() bool { return self.repairNeeded }
