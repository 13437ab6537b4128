package recovery

import (
	"github.com/scalelfs/ScaleLFS/device"
	"github.com/scalelfs/ScaleLFS/directory"
	"github.com/scalelfs/ScaleLFS/inodecache"
	"github.com/scalelfs/ScaleLFS/mlog"
	"github.com/scalelfs/ScaleLFS/nodestore"
	"github.com/scalelfs/ScaleLFS/quota"
	"github.com/scalelfs/ScaleLFS/segment"
	"github.com/scalelfs/ScaleLFS/util"
)

const (
	raMin = 4
	raMax = 256
)

// Superblock is the handful of mount-wide flags/state the
// orchestrator reads and writes.
type Superblock struct {
	ReadOnly          bool
	Zoned             bool
	PORDoing          bool
	IsRecovered       bool
	QuotaNeedRepair   bool
	CheckpointVersion uint64

	// WriteCheckpointCalls counts invocations of WriteCheckpoint, so
	// tests can assert a checkpoint was (or wasn't) written without a
	// real checkpoint subsystem.
	WriteCheckpointCalls int
}

func (self *Superblock) WriteCheckpoint(reason string) error {
	mlog.Printf2("recovery/recoverer", "sb.WriteCheckpoint reason=%s", reason)
	self.WriteCheckpointCalls++
	self.CheckpointVersion++
	return nil
}

// Recoverer bundles every collaborator recover_fsync_data touches:
// the device holding node/data pages, the segment/summary view, the
// node store standing in for the NAT, the inode cache, quota manager,
// and the per-ino directories fsynced dentries land in.
type Recoverer struct {
	Dev     *device.Device
	SegMgr  segment.Manager
	Nodes   *nodestore.Store
	Inodes  *inodecache.Cache
	Quota   *quota.Manager
	Dirs    map[uint32]*directory.Dir
	SB      *Superblock

	// MaxReserveRetries bounds the case-(d) reserve-new-block retry
	// loop; 0 (the default) retries forever, matching the source's
	// fault-injection loop. Set to a positive value to fail after that
	// many attempts with a distinct diagnostic (the reservation error
	// wrapped with the attempt count) instead.
	MaxReserveRetries int

	// cpLock is the exclusive checkpoint lock: held across discovery
	// and data repair, released before the final checkpoint write.
	cpLock util.MutexLocked
}

// dirFor returns (creating if necessary) the in-memory directory for
// ino. A real mount would resolve this via the directory subsystem's
// own inode-to-page mapping; here Dirs is recovery's whole view of
// the directory namespace, seeded by the caller/tests the way a NAT
// lookup would seed it.
func (self *Recoverer) dirFor(ino uint32) *directory.Dir {
	d, ok := self.Dirs[ino]
	if !ok {
		d = directory.NewDir(ino, false, false)
		self.Dirs[ino] = d
	}
	return d
}
