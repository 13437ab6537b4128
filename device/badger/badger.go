// badger stores blocks in a dgraph-io/badger key-value database,
// keyed by the big-endian blkaddr. Kept as a distinct package (rather
// than folded into device) so that the badger dependency is only
// pulled in by binaries that actually configure this backend.
package badger

import (
	"encoding/binary"

	"github.com/dgraph-io/badger"
	"github.com/scalelfs/ScaleLFS/device"
	"github.com/scalelfs/ScaleLFS/mlog"
)

type Backend struct {
	db  *badger.DB
	txn *badger.Txn
}

var _ device.Backend = &Backend{}

func Open(dir string) (*Backend, error) {
	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	self := &Backend{db: db}
	self.txn = db.NewTransaction(true)
	return self, nil
}

func key(addr uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, addr)
	return b
}

func (self *Backend) ReadBlock(addr uint32) ([]byte, error) {
	item, err := self.txn.Get(key(addr))
	if err == badger.ErrKeyNotFound {
		return nil, device.ErrNoBlock
	}
	if err != nil {
		return nil, err
	}
	v, err := item.Value()
	if err != nil {
		return nil, err
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (self *Backend) WriteBlock(addr uint32, data []byte) error {
	err := self.txn.Set(key(addr), data)
	if err == badger.ErrTxnTooBig {
		if cerr := self.commit(); cerr != nil {
			return cerr
		}
		self.txn = self.db.NewTransaction(true)
		return self.txn.Set(key(addr), data)
	}
	return err
}

func (self *Backend) commit() error {
	return self.txn.Commit(nil)
}

func (self *Backend) Sync() error {
	if err := self.commit(); err != nil {
		return err
	}
	self.txn = self.db.NewTransaction(true)
	mlog.Printf2("device/badger", "badger.Sync committed")
	return nil
}

func (self *Backend) Close() error {
	self.txn.Discard()
	return self.db.Close()
}
