// device provides the pluggable block storage the recovery engine
// treats as the main area: a flat space of fixed-size blocks
// addressed by blkaddr, with an on/off dirty-tracking layer in front
// of whichever Backend is actually configured (in-memory, badger,
// bolt).
//
// Unlike a content-addressed store, blkaddr is the identity of a
// block, not a hash of its content; a backend never needs the
// refcounting/GC dance a content-addressed store does; it merely
// needs to durably remember "what bytes live at address N" and
// support checkpoint-time fsync.
package device

import "fmt"

// BlockSize is fixed for the lifetime of an image.
const BlockSize = 4096

// Backend is the storage-engine-specific implementation behind
// Device. All methods operate on whole blocks; callers are
// responsible for block-sized buffers.
type Backend interface {
	Close() error

	// ReadBlock returns the raw (still-encoded) bytes at addr, or
	// ErrNoBlock if nothing has ever been written there.
	ReadBlock(addr uint32) ([]byte, error)

	// WriteBlock durably stores data at addr, creating or
	// overwriting as needed.
	WriteBlock(addr uint32, data []byte) error

	// Sync flushes any backend-internal buffering to stable storage.
	Sync() error
}

// ErrNoBlock is returned by a Backend (and by Device) when no data
// has ever been written at the requested address.
var ErrNoBlock = fmt.Errorf("device: no block at that address")
