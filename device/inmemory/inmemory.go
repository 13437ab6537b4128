// inmemory is a Backend used by tests and by check-only invocations
// that never intend to persist anything.
package inmemory

import (
	"github.com/scalelfs/ScaleLFS/device"
	"github.com/scalelfs/ScaleLFS/util"
)

type Backend struct {
	lock   util.MutexLocked
	blocks map[uint32][]byte
}

var _ device.Backend = &Backend{}

func New() *Backend {
	return &Backend{blocks: make(map[uint32][]byte)}
}

func (self *Backend) Close() error { return nil }

func (self *Backend) ReadBlock(addr uint32) ([]byte, error) {
	defer self.lock.Locked()()
	b, ok := self.blocks[addr]
	if !ok {
		return nil, device.ErrNoBlock
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

func (self *Backend) WriteBlock(addr uint32, data []byte) error {
	defer self.lock.Locked()()
	cp := make([]byte, len(data))
	copy(cp, data)
	self.blocks[addr] = cp
	return nil
}

func (self *Backend) Sync() error { return nil }
