// recovery is the roll-forward fsync recovery engine: it walks the
// post-checkpoint chain of node blocks, reconstructs inodes and
// directory entries, repairs data-block indices, and drives the
// final checkpoint. Everything else in this module exists to give
// this package something real to run against.
package recovery

import (
	"errors"
	"fmt"

	"github.com/scalelfs/ScaleLFS/inodecache"
	"github.com/scalelfs/ScaleLFS/nodestore"
)

// ErrOutOfMemory, ErrNotFound, ErrCorrupt and ErrQuotaRepairNeeded are
// the error kinds recovery distinguishes; its control flow branches
// on which of these (if any) an inner step returns.
var (
	ErrOutOfMemory = errors.New("recovery: out of memory")
	ErrNotFound    = errors.New("recovery: not found")
)

// ErrCorrupt wraps a reason: invalid block address, looped chain,
// mismatched node ofs, name too long. Recovery aborts and truncates
// its scratch page caches rather than let a corrupt image dirty the
// next checkpoint.
type ErrCorrupt struct {
	Reason string
}

func (e *ErrCorrupt) Error() string { return fmt.Sprintf("recovery: corrupt: %s", e.Reason) }

func corrupt(format string, args ...interface{}) error {
	return &ErrCorrupt{Reason: fmt.Sprintf(format, args...)}
}

// ErrQuotaRepairNeeded is non-fatal: the caller sets a superblock flag
// for offline repair and recovery continues.
type ErrQuotaRepairNeeded struct {
	Reason string
}

func (e *ErrQuotaRepairNeeded) Error() string {
	return fmt.Sprintf("recovery: quota repair needed: %s", e.Reason)
}

// isNotFound reports whether err is one of the several NotFound types
// the collaborator packages raise, so callers don't need to know
// which layer produced it.
func isNotFound(err error) bool {
	switch err.(type) {
	case nil:
		return false
	case inodecache.ErrNotFound:
		return true
	}
	if err == ErrNotFound || err == nodestore.ErrNotFound {
		return true
	}
	return false
}
