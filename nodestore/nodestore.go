// nodestore is recovery's view of the node-address table and the
// dnode index tree: given an inode and a logical block offset, find
// (or allocate) the node that owns that offset, and get/set the
// physical block address it currently indexes.
//
// The real node layer resolves an offset through a multi-level
// direct/indirect node tree; that tree-walking machinery belongs to
// the NAT/node-layer collaborator the recovery engine only consumes
// through get_dnode_of_data-style calls, so it is out of scope here.
// This package models the contract directly: a
// per-inode map from logical offset to the nid that owns it, which is
// exactly what get_dnode_of_data resolves to from recovery's point of
// view regardless of how many indirection levels sit underneath it.
package nodestore

import (
	"github.com/scalelfs/ScaleLFS/device"
	"github.com/scalelfs/ScaleLFS/format"
	"github.com/scalelfs/ScaleLFS/mlog"
	"github.com/scalelfs/ScaleLFS/segment"
	"github.com/scalelfs/ScaleLFS/util"
)

// Mode selects whether GetDnodeOfData may create a missing node.
type Mode int

const (
	LookupNode Mode = iota
	AllocNode
)

// ErrNotFound mirrors the inode-cache/NAT NotFound error kind.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "nodestore: not found" }

// NodeInfo is the {ino, version, blkaddr} tuple the NAT hands back
// for a nid.
type NodeInfo struct {
	Nid     uint32
	Ino     uint32
	Version uint8
	Blkaddr uint32
}

// Locator is the dnode locator: the (ino, nid, ofs) triple a
// caller uses to reach a data-index slot without re-resolving the
// tree on every access.
type Locator struct {
	Ino uint32
	Nid uint32
	Ofs uint32
}

type dnodeKey struct {
	Ino uint32
	Ofs uint32
}

// Store owns the NAT-equivalent maps and the live index arrays for
// every dnode recovery has touched or created.
type Store struct {
	dev    *device.Device
	segMgr segment.Manager

	lock       util.MutexLocked
	ino2nid    map[dnodeKey]uint32
	info       map[uint32]*NodeInfo
	indices    map[uint32][]uint32
	summaries  map[uint32]format.Summary
	nextNid    util.AtomicInt
	nextDataBk uint32
}

func New(dev *device.Device, segMgr segment.Manager) *Store {
	geom := segMgr.Geometry()
	return &Store{
		dev:        dev,
		segMgr:     segMgr,
		ino2nid:    make(map[dnodeKey]uint32),
		info:       make(map[uint32]*NodeInfo),
		indices:    make(map[uint32][]uint32),
		nextNid:    util.AtomicInt(1),
		nextDataBk: geom.MainBlkaddrStart,
	}
}

// GetDnodeOfData resolves (ino, ofs) to a Locator, allocating a fresh
// nid in AllocNode mode if none exists yet.
func (self *Store) GetDnodeOfData(ino, ofs uint32, mode Mode) (*Locator, error) {
	key := dnodeKey{Ino: ino, Ofs: ofs}
	self.lock.Lock()
	nid, ok := self.ino2nid[key]
	self.lock.Unlock()
	if ok {
		return &Locator{Ino: ino, Nid: nid, Ofs: ofs}, nil
	}
	if mode == LookupNode {
		return nil, ErrNotFound
	}
	nid = uint32(self.nextNid.AddInt(1))
	blkaddr, err := self.reserveNodeBlock()
	if err != nil {
		return nil, err
	}
	self.lock.Lock()
	self.ino2nid[key] = nid
	self.info[nid] = &NodeInfo{Nid: nid, Ino: ino, Version: 0, Blkaddr: blkaddr}
	self.indices[nid] = nil
	self.lock.Unlock()
	mlog.Printf2("nodestore/nodestore", "ns.GetDnodeOfData allocated nid %d for ino %d ofs %d", nid, ino, ofs)
	return &Locator{Ino: ino, Nid: nid, Ofs: ofs}, nil
}

func (self *Store) GetNodeInfo(nid uint32) (*NodeInfo, error) {
	self.lock.Lock()
	defer self.lock.Unlock()
	info, ok := self.info[nid]
	if !ok {
		return nil, ErrNotFound
	}
	return info, nil
}

// RegisterNodeInfo lets discovery record a nid it read off an
// existing node page's footer, without going through allocation.
func (self *Store) RegisterNodeInfo(info NodeInfo) {
	self.lock.Lock()
	defer self.lock.Unlock()
	cp := info
	self.info[info.Nid] = &cp
	self.ino2nid[dnodeKey{Ino: info.Ino, Ofs: 0}] = info.Nid
}

// StartBidxOfNode returns the first logical block offset a node's
// index array covers; with the flat one-nid-per-offset model this is
// simply ofs itself.
func (self *Store) StartBidxOfNode(ofs uint32) uint32 { return ofs }

func (self *Store) index(nid uint32) []uint32 {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.indices[nid]
}

// GetIndex returns the physical block address a dnode's slot 0
// currently holds (each nid in the flat model owns exactly one
// logical offset, so there is exactly one slot).
func (self *Store) GetIndex(nid uint32) uint32 {
	idx := self.index(nid)
	if len(idx) == 0 {
		return format.NullAddr
	}
	return idx[0]
}

func (self *Store) SetIndex(nid, addr uint32) {
	self.lock.Lock()
	defer self.lock.Unlock()
	self.indices[nid] = []uint32{addr}
}

// ReserveNewBlock hands out the next unused data blkaddr and marks it
// valid in the segment allocator's bookkeeping.
func (self *Store) ReserveNewBlock() (uint32, error) {
	self.lock.Lock()
	addr := self.nextDataBk
	geom := self.segMgr.Geometry()
	if addr >= geom.MainBlkaddrEnd {
		self.lock.Unlock()
		// The format guarantees a reservation like this is always
		// possible; running out is a bug in the allocator, not
		// something recovery should paper over.
		mlog.Panicf("nodestore: main area exhausted reserving a new block")
	}
	self.nextDataBk++
	self.lock.Unlock()

	segno := geom.SegnoOf(addr)
	entry := self.segMgr.GetSegEntry(segno)
	entry.SetValid(offsetInSegment(geom, addr), true)
	return addr, nil
}

func offsetInSegment(geom segment.Geometry, addr uint32) uint32 {
	return (addr - geom.MainBlkaddrStart) % geom.BlocksPerSegment
}

// InvalidateBlock clears the validity bit for addr, used when an
// older index into it is being detached (collision resolution,
// truncation).
func (self *Store) InvalidateBlock(addr uint32) {
	if addr == format.NullAddr || addr == format.NewAddr {
		return
	}
	geom := self.segMgr.Geometry()
	segno := geom.SegnoOf(addr)
	self.segMgr.GetSegEntry(segno).SetValid(offsetInSegment(geom, addr), false)
}

// PutSummary records the reverse pointer for a freshly-indexed data
// block, the way replace_block updates the segment summary.
func (self *Store) PutSummary(addr uint32, s format.Summary) {
	// Summaries recorded here live in the Store's own map keyed by
	// blkaddr, not in the segment manager's summary pages; recovery's
	// own collision resolver consults them via LookupSummary below, so
	// persistence beyond the process lifetime is not required for the
	// recovery pass itself.
	self.lock.Lock()
	defer self.lock.Unlock()
	if self.summaries == nil {
		self.summaries = make(map[uint32]format.Summary)
	}
	self.summaries[addr] = s
}

// LookupSummary is the collision resolver's primary tool: given a
// data blkaddr, find out which (nid, ofs) currently claims it.
func (self *Store) LookupSummary(addr uint32) (format.Summary, bool) {
	self.lock.Lock()
	defer self.lock.Unlock()
	s, ok := self.summaries[addr]
	return s, ok
}

// TruncateDataBlocksRange invalidates and nulls out a single-index
// dnode's slot; kept as a range operation to mirror the node layer's
// naming even though the flat model always truncates one slot.
func (self *Store) TruncateDataBlocksRange(nid uint32) {
	addr := self.GetIndex(nid)
	self.InvalidateBlock(addr)
	self.SetIndex(nid, format.NullAddr)
}

func (self *Store) reserveNodeBlock() (uint32, error) {
	return self.ReserveNewBlock()
}
