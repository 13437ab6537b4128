// nodecache is a small ARC cache of decoded block pages, keyed by
// blkaddr, standing in for the node-data cache a real mount keeps in
// front of its page cache. Recovery only ever runs once per mount, so
// this is optional: nil is a valid Cache and every method degrades to
// a cache miss.
package nodecache

import "github.com/bluele/gcache"

type Cache struct {
	gc gcache.Cache
}

// New builds a Cache holding up to size decoded pages, evicted by an
// adaptive replacement policy. size <= 0 disables caching.
func New(size int) *Cache {
	if size <= 0 {
		return nil
	}
	return &Cache{gc: gcache.New(size).ARC().Build()}
}

func (self *Cache) Get(addr uint32) ([]byte, bool) {
	if self == nil {
		return nil, false
	}
	v, err := self.gc.GetIFPresent(addr)
	if err != nil {
		return nil, false
	}
	return v.([]byte), true
}

func (self *Cache) Set(addr uint32, page []byte) {
	if self == nil {
		return
	}
	self.gc.Set(addr, page)
}
