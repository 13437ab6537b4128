// segment models the small slice of the allocator/segment-summary
// world that recovery actually touches: current-segment (CURSEG)
// pointers, per-segment validity bitmaps, and the summary blocks that
// map a physical block back to its logical owner. The node-address
// table and segment allocator proper are external collaborators recovery
// only consumes through this narrow surface; this package is a
// minimal in-memory stand-in sufficient to drive and test the
// recovery engine end to end.
package segment

import (
	"github.com/scalelfs/ScaleLFS/format"
	"github.com/scalelfs/ScaleLFS/mlog"
	"github.com/scalelfs/ScaleLFS/util"
)

// CursegType identifies one of the six current-segment slots
// (hot/warm/cold x data/node). Recovery only reads warm-node (the
// discovery root) and the three data types (for collision lookups).
type CursegType int

const (
	CursegHotData CursegType = iota
	CursegWarmData
	CursegColdData
	CursegHotNode
	CursegWarmNode
	CursegColdNode

	NumCurseg
)

func (t CursegType) IsNode() bool { return t >= CursegHotNode }

// MetaCategory partitions the blkaddr space the way the allocator
// does; recovery only ever needs META_POR, the post-checkpoint main
// area.
type MetaCategory int

const (
	MetaPOR MetaCategory = iota
)

// Geometry is the fixed layout of the image: segment size in blocks,
// and the [start, end) range of the main area.
type Geometry struct {
	BlocksPerSegment uint32
	MainBlkaddrStart uint32
	MainBlkaddrEnd   uint32
}

func (g Geometry) SegnoOf(addr uint32) uint32 {
	return (addr - g.MainBlkaddrStart) / g.BlocksPerSegment
}

func (g Geometry) IsSegmentBoundary(addr uint32) bool {
	return (addr-g.MainBlkaddrStart)%g.BlocksPerSegment == 0
}

// Curseg is a current-segment pointer: the segment currently being
// appended to for a given class, and its in-memory summary block (nil
// once the segment is sealed and its summary lives only on disk).
type Curseg struct {
	Segno           uint32
	NextFreeBlkaddr uint32
	SumBlock        []byte
}

// SegEntry is a segment's validity bitmap: bit i set means the i'th
// block offset in the segment currently holds live (indexed) data.
type SegEntry struct {
	Segno    uint32
	ValidMap []byte
}

func (e *SegEntry) IsValid(offset uint32) bool {
	byteIdx := offset / 8
	if int(byteIdx) >= len(e.ValidMap) {
		return false
	}
	return e.ValidMap[byteIdx]&(1<<(offset%8)) != 0
}

func (e *SegEntry) SetValid(offset uint32, valid bool) {
	byteIdx := offset / 8
	for int(byteIdx) >= len(e.ValidMap) {
		e.ValidMap = append(e.ValidMap, 0)
	}
	bit := byte(1 << (offset % 8))
	if valid {
		e.ValidMap[byteIdx] |= bit
	} else {
		e.ValidMap[byteIdx] &^= bit
	}
}

// Manager is the interface recovery drives: curseg lookup, summary
// lookup by segment, validity bitmap lookup, and the zoned
// write-pointer fixup the orchestrator may invoke on teardown.
type Manager interface {
	Geometry() Geometry
	CursegOf(t CursegType) *Curseg
	GetSumPage(segno uint32) ([]byte, error)
	GetSegEntry(segno uint32) *SegEntry
	IsValidBlkaddr(addr uint32, cat MetaCategory) bool
	FixCursegWritePointer() error
}

// InMemoryManager is a straightforward Manager backed by plain Go
// maps, guarded by a single lock (recovery holds the checkpoint lock
// for its whole run, so contention here is not a concern).
type InMemoryManager struct {
	geom Geometry

	lock     util.MutexLocked
	cursegs  [NumCurseg]*Curseg
	segEntry map[uint32]*SegEntry
	sumPage  map[uint32][]byte
	zoned    bool
}

var _ Manager = &InMemoryManager{}

func NewInMemoryManager(geom Geometry) *InMemoryManager {
	m := &InMemoryManager{
		geom:     geom,
		segEntry: make(map[uint32]*SegEntry),
		sumPage:  make(map[uint32][]byte),
	}
	for i := range m.cursegs {
		m.cursegs[i] = &Curseg{}
	}
	return m
}

func (self *InMemoryManager) Geometry() Geometry { return self.geom }

func (self *InMemoryManager) CursegOf(t CursegType) *Curseg {
	defer self.lock.Locked()()
	return self.cursegs[t]
}

func (self *InMemoryManager) SetSumPage(segno uint32, page []byte) {
	defer self.lock.Locked()()
	self.sumPage[segno] = page
}

func (self *InMemoryManager) GetSumPage(segno uint32) ([]byte, error) {
	defer self.lock.Locked()()
	p, ok := self.sumPage[segno]
	if !ok {
		return nil, format.NewCorruptFormat("no summary page for segment")
	}
	return p, nil
}

func (self *InMemoryManager) GetSegEntry(segno uint32) *SegEntry {
	defer self.lock.Locked()()
	e, ok := self.segEntry[segno]
	if !ok {
		e = &SegEntry{Segno: segno}
		self.segEntry[segno] = e
	}
	return e
}

func (self *InMemoryManager) IsValidBlkaddr(addr uint32, cat MetaCategory) bool {
	if addr == format.NullAddr || addr == format.NewAddr {
		return false
	}
	return addr >= self.geom.MainBlkaddrStart && addr < self.geom.MainBlkaddrEnd
}

// SetZoned marks the device as a zoned one. FixCursegWritePointer then
// logs the reconciliation request; it changes no state either way.
func (self *InMemoryManager) SetZoned(z bool) { self.zoned = z }

func (self *InMemoryManager) FixCursegWritePointer() error {
	if !self.zoned {
		return nil
	}
	mlog.Printf2("segment/segment", "s.FixCursegWritePointer zoned reconciliation")
	// A real zoned backend would query each curseg's zone write
	// pointer and roll it forward to next_free_blkaddr; there is no
	// zoned hardware to reconcile against here, so this is a no-op
	// beyond acknowledging the request.
	return nil
}
