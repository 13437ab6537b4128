// inodecache is recovery's view of the inode cache: iget_retry, iput,
// mark_synced, mark_dirty_sync. It also carries enough of the live
// inode's attributes to answer FillAttr the way a real mount would,
// reusing hanwen/go-fuse's fuse.Attr/mode-bit vocabulary rather than
// inventing a parallel one; recovery itself only ever touches the
// fields the orchestrator's inode reconstruction step lists.
package inodecache

import (
	"time"

	"github.com/hanwen/go-fuse/fuse"

	"github.com/scalelfs/ScaleLFS/mlog"
	"github.com/scalelfs/ScaleLFS/util"
)

// ErrNotFound is returned by Iget/IgetRetry when ino is not present
// in the NAT-backed inode index.
type ErrNotFound struct{ Ino uint32 }

func (e ErrNotFound) Error() string { return "inodecache: inode not found" }

// Inode is the live, in-memory representation of a file or directory.
// Recovery only ever reconstructs its metadata fields; data-block
// bodies are the file data plane's problem, out of scope here.
type Inode struct {
	Ino uint32

	Mode uint16
	UID  uint32
	GID  uint32
	Size uint64

	ATimeSec, MTimeSec, CTimeSec    uint64
	ATimeNsec, MTimeNsec, CTimeNsec uint32

	Flags      uint32
	Inline     uint8
	ProjID     uint32
	GCFailures uint16
	KeepISize  bool

	refcnt      util.AtomicInt
	dirtySynced bool
	toDrop      bool
}

// FillAttr populates a fuse.Attr the way a mount would report this
// inode via stat/getattr.
func (self *Inode) FillAttr(out *fuse.Attr) {
	out.Ino = uint64(self.Ino)
	out.Size = self.Size
	out.Mode = uint32(self.Mode)
	out.Uid = self.UID
	out.Gid = self.GID
	out.Atime = self.ATimeSec
	out.Atimensec = self.ATimeNsec
	out.Ctime = self.CTimeSec
	out.Ctimensec = self.CTimeNsec
	out.Mtime = self.MTimeSec
	out.Mtimensec = self.MTimeNsec
}

func (self *Inode) IsDir() bool  { return self.Mode&fuse.S_IFDIR != 0 }
func (self *Inode) IsFile() bool { return self.Mode&fuse.S_IFREG != 0 }
func (self *Inode) IsLink() bool { return self.Mode&fuse.S_IFLNK != 0 }

func (self *Inode) MarkDirtySync() { self.dirtySynced = true }

func (self *Inode) MarkSynced() {
	self.dirtySynced = false
	self.toDrop = false
}

// MarkToDrop is del()'s "drop" flag: the entry reverts to its
// pre-fsync state on the next flush rather than being recovered.
func (self *Inode) MarkToDrop() { self.toDrop = true }
func (self *Inode) ToDrop() bool { return self.toDrop }

// Cache is the process-wide inode index; a real mount backs it with
// the NAT, so a lookup miss here means "genuinely absent from the
// NAT".
type Cache struct {
	lock  util.MutexLocked
	inode map[uint32]*Inode

	// maxRetries bounds IgetRetry's OOM backoff loop; 0 means retry
	// indefinitely, matching the source's own fault-injection loop.
	maxRetries int
	retryDelay time.Duration
}

func New() *Cache {
	return &Cache{
		inode:      make(map[uint32]*Inode),
		retryDelay: time.Millisecond,
	}
}

// SetMaxRetries bounds the OOM retry loop in IgetRetry; 0 (the
// default) retries forever.
func (self *Cache) SetMaxRetries(n int) { self.maxRetries = n }

// Seed installs an inode as already present, the way mounting a NAT
// entry would; used by discovery when it finds an inode already
// materialized and by tests constructing fixtures.
func (self *Cache) Seed(ino *Inode) {
	defer self.lock.Locked()()
	self.inode[ino.Ino] = ino
}

// Lookup finds an inode that must already exist, without refcounting
// it; used by callers that only want to read state (e.g. the
// collision resolver checking whether an ino equals the current
// inode's).
func (self *Cache) Lookup(ino uint32) (*Inode, bool) {
	defer self.lock.Locked()()
	n, ok := self.inode[ino]
	return n, ok
}

// Iget acquires a reference to ino, returning ErrNotFound if it isn't
// present. It never allocates.
func (self *Cache) Iget(ino uint32) (*Inode, error) {
	self.lock.Lock()
	n, ok := self.inode[ino]
	self.lock.Unlock()
	if !ok {
		return nil, ErrNotFound{Ino: ino}
	}
	n.refcnt.AddInt(1)
	return n, nil
}

// IgetRetry is Iget with the OOM backoff loop the inner recovery
// loops rely on. Since this cache never actually runs out of
// memory, the retry loop exists to preserve the call shape a real
// mount's inode cache would need; ENOMEM would come from the
// allocator underneath a real slab cache, not from map lookups.
func (self *Cache) IgetRetry(ino uint32) (*Inode, error) {
	tries := 0
	for {
		n, err := self.Iget(ino)
		if err == nil {
			return n, nil
		}
		if _, isNotFound := err.(ErrNotFound); isNotFound {
			return nil, err
		}
		tries++
		if self.maxRetries > 0 && tries >= self.maxRetries {
			return nil, err
		}
		mlog.Printf2("inodecache/inodecache", "ic.IgetRetry backing off (try %d)", tries)
		time.Sleep(self.retryDelay)
	}
}

// Create materializes a brand-new inode (e.g. from a recovered inode
// page whose ino was absent from the cache).
func (self *Cache) Create(ino uint32) *Inode {
	defer self.lock.Locked()()
	n := &Inode{Ino: ino}
	n.refcnt.AddInt(1)
	self.inode[ino] = n
	return n
}

// Iput releases a reference. When it drops to zero and the inode was
// marked to drop, it's evicted from the cache.
func (self *Cache) Iput(n *Inode) {
	rc := n.refcnt.AddInt(-1)
	if rc == 0 && n.toDrop {
		defer self.lock.Locked()()
		delete(self.inode, n.Ino)
	}
}
