// bolt stores blocks in a single coreos/bbolt file, in a "data"
// bucket keyed by big-endian blkaddr.
package bolt

import (
	"encoding/binary"
	"fmt"

	bbolt "github.com/coreos/bbolt"
	"github.com/scalelfs/ScaleLFS/device"
	"github.com/scalelfs/ScaleLFS/mlog"
)

var dataBucket = []byte("data")

type Backend struct {
	db *bbolt.DB
}

var _ device.Backend = &Backend{}

func Open(dir string) (*Backend, error) {
	db, err := bbolt.Open(fmt.Sprintf("%s/scalelfs.db", dir), 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Backend{db: db}, nil
}

func key(addr uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, addr)
	return b
}

func (self *Backend) ReadBlock(addr uint32) (v []byte, err error) {
	err = self.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(dataBucket).Get(key(addr))
		if raw == nil {
			return device.ErrNoBlock
		}
		v = make([]byte, len(raw))
		copy(v, raw)
		return nil
	})
	return
}

func (self *Backend) WriteBlock(addr uint32, data []byte) error {
	mlog.Printf2("device/bolt/bolt", "bolt.WriteBlock %d (%d b)", addr, len(data))
	return self.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(dataBucket).Put(key(addr), data)
	})
}

func (self *Backend) Sync() error { return self.db.Sync() }

func (self *Backend) Close() error { return self.db.Close() }
