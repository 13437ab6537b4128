package device

import (
	"github.com/scalelfs/ScaleLFS/codec"
	"github.com/scalelfs/ScaleLFS/mlog"
	"github.com/scalelfs/ScaleLFS/nodecache"
	"github.com/scalelfs/ScaleLFS/util"
)

// Device wraps a Backend with an optional codec chain and a
// delayed-flush dirty layer: writes stay staged in memory until Flush
// is explicitly called (here, at the end of the orchestrator's
// checkpoint-locked section).
type Device struct {
	backend Backend
	chain   codec.Codec // nil means store bytes as-is
	cache   *nodecache.Cache

	lock  util.MutexLocked
	dirty map[uint32][]byte
}

func New(backend Backend, chain codec.Codec) *Device {
	return &Device{
		backend: backend,
		chain:   chain,
		dirty:   make(map[uint32][]byte),
	}
}

// SetCache installs a decoded-page cache in front of the backend, so
// a block read once during discovery doesn't cost a second backend
// hit plus a second codec decode if repair revisits it.
func (self *Device) SetCache(c *nodecache.Cache) { self.cache = c }

// ReadPage returns the decoded page at addr, preferring an unflushed
// dirty write over whatever the backend or cache currently holds.
func (self *Device) ReadPage(addr uint32) ([]byte, error) {
	self.lock.Lock()
	if b, ok := self.dirty[addr]; ok {
		self.lock.Unlock()
		return b, nil
	}
	self.lock.Unlock()

	if page, ok := self.cache.Get(addr); ok {
		return page, nil
	}

	raw, err := self.backend.ReadBlock(addr)
	if err != nil {
		return nil, err
	}
	page := raw
	if self.chain != nil {
		page, err = self.chain.DecodeBytes(raw, nil)
		if err != nil {
			return nil, err
		}
	}
	self.cache.Set(addr, page)
	return page, nil
}

// WritePage stages data to be written at addr. It is not visible to
// the backend until Flush.
func (self *Device) WritePage(addr uint32, data []byte) {
	defer self.lock.Locked()()
	cp := make([]byte, len(data))
	copy(cp, data)
	self.dirty[addr] = cp
	mlog.Printf2("device/device", "device.WritePage %d (%d dirty)", addr, len(self.dirty))
}

// Dirty reports whether addr has a pending unflushed write.
func (self *Device) Dirty(addr uint32) bool {
	defer self.lock.Locked()()
	_, ok := self.dirty[addr]
	return ok
}

// Flush pushes every staged write through the codec chain and into
// the backend, then fsyncs it. On success the dirty set is cleared.
func (self *Device) Flush() error {
	defer self.lock.Locked()()
	for addr, data := range self.dirty {
		raw := data
		if self.chain != nil {
			var err error
			raw, err = self.chain.EncodeBytes(data, nil)
			if err != nil {
				return err
			}
		}
		if err := self.backend.WriteBlock(addr, raw); err != nil {
			return err
		}
		self.cache.Set(addr, data)
	}
	if err := self.backend.Sync(); err != nil {
		return err
	}
	mlog.Printf2("device/device", "device.Flush wrote %d blocks", len(self.dirty))
	self.dirty = make(map[uint32][]byte)
	return nil
}

// Discard drops every staged write without touching the backend; the
// orchestrator calls this on the corruption teardown path so that a
// failed recovery never dirties the next checkpoint.
func (self *Device) Discard() {
	defer self.lock.Locked()()
	self.dirty = make(map[uint32][]byte)
}

func (self *Device) Close() error {
	return self.backend.Close()
}
