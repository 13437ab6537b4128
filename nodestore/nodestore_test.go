package nodestore

import (
	"testing"

	"github.com/scalelfs/ScaleLFS/device"
	"github.com/scalelfs/ScaleLFS/device/inmemory"
	"github.com/scalelfs/ScaleLFS/format"
	"github.com/scalelfs/ScaleLFS/segment"
	"github.com/stvp/assert"
)

func newTestStore() *Store {
	geom := segment.Geometry{BlocksPerSegment: 8, MainBlkaddrStart: 100, MainBlkaddrEnd: 100 + 8*10}
	segMgr := segment.NewInMemoryManager(geom)
	dev := device.New(inmemory.New(), nil)
	return New(dev, segMgr)
}

func TestGetDnodeOfDataAllocAndLookup(t *testing.T) {
	s := newTestStore()

	_, err := s.GetDnodeOfData(7, 0, LookupNode)
	assert.Equal(t, err, ErrNotFound)

	loc, err := s.GetDnodeOfData(7, 0, AllocNode)
	assert.Nil(t, err)
	assert.Equal(t, loc.Ino, uint32(7))

	loc2, err := s.GetDnodeOfData(7, 0, LookupNode)
	assert.Nil(t, err)
	assert.Equal(t, loc2.Nid, loc.Nid)
}

func TestReserveAndInvalidate(t *testing.T) {
	s := newTestStore()
	addr, err := s.ReserveNewBlock()
	assert.Nil(t, err)
	assert.Equal(t, addr, uint32(100))

	geom := s.segMgr.Geometry()
	entry := s.segMgr.GetSegEntry(geom.SegnoOf(addr))
	assert.True(t, entry.IsValid(0))

	s.InvalidateBlock(addr)
	assert.True(t, !entry.IsValid(0))
}

func TestIndexSetGetTruncate(t *testing.T) {
	s := newTestStore()
	loc, err := s.GetDnodeOfData(1, 0, AllocNode)
	assert.Nil(t, err)
	assert.Equal(t, s.GetIndex(loc.Nid), format.NullAddr)

	s.SetIndex(loc.Nid, 200)
	assert.Equal(t, s.GetIndex(loc.Nid), uint32(200))

	s.TruncateDataBlocksRange(loc.Nid)
	assert.Equal(t, s.GetIndex(loc.Nid), format.NullAddr)
}

func TestSummaryRoundTrip(t *testing.T) {
	s := newTestStore()
	_, ok := s.LookupSummary(200)
	assert.True(t, !ok)

	s.PutSummary(200, format.Summary{Nid: 5, OfsInNode: 0, Version: 1})
	got, ok := s.LookupSummary(200)
	assert.True(t, ok)
	assert.Equal(t, got.Nid, uint32(5))
}
