// format contains pure functions over block-sized buffers: the
// node-block footer, the raw on-disk inode, and the summary entry.
// Nothing here touches the device, the node cache, or any other
// collaborator; it is intentionally allocation-light so that the
// discovery pass can call it in the hot path without extra copies.
package format

import (
	"encoding/binary"
	"fmt"
)

// NullAddr and NewAddr are the two blkaddr sentinels: an unallocated
// index slot, and a slot reserved but not yet written.
const (
	NullAddr uint32 = 0
	NewAddr  uint32 = 0xffffffff
)

// Footer flag bits. The low 3 bits carry the fsync/dentry/inode
// marks; the remaining upper bits pack ofs_in_node, following the
// on-disk layout the format actually uses (there is no separate ofs
// field in the footer).
const (
	FlagFsyncMark uint32 = 1 << iota
	FlagDentryMark
	FlagInodeMark

	offsetBitShift = 3
)

// FooterSize is the on-disk size in bytes of the node footer:
// ino(4) + nid(4) + flag(4) + cp_ver(8) + next_blkaddr(4).
const FooterSize = 4 + 4 + 4 + 8 + 4

// Footer is the decoded {ino, nid, flag, cp_ver, next_blkaddr} tuple
// that trails every node page.
type Footer struct {
	Ino         uint32
	Nid         uint32
	Flag        uint32
	CpVer       uint64
	NextBlkaddr uint32
}

// ErrCorruptFormat is returned whenever a decoded field is obviously
// bad: a footer that doesn't fit, a namelen that overruns the block,
// an extra_isize outside the block.
type ErrCorruptFormat struct {
	Reason string
}

func (e *ErrCorruptFormat) Error() string {
	return fmt.Sprintf("format: corrupt: %s", e.Reason)
}

func corruptf(format string, args ...interface{}) error {
	return &ErrCorruptFormat{Reason: fmt.Sprintf(format, args...)}
}

// NewCorruptFormat lets other packages report the same corruption
// error type without exposing corruptf's variadic formatting.
func NewCorruptFormat(reason string) error {
	return &ErrCorruptFormat{Reason: reason}
}

// DecodeFooter reads the footer trailing a block-sized page. The
// footer occupies the last FooterSize bytes of the block.
func DecodeFooter(page []byte) (*Footer, error) {
	if len(page) < FooterSize {
		return nil, corruptf("page too small for footer (%d bytes)", len(page))
	}
	b := page[len(page)-FooterSize:]
	f := &Footer{
		Ino:         binary.LittleEndian.Uint32(b[0:4]),
		Nid:         binary.LittleEndian.Uint32(b[4:8]),
		Flag:        binary.LittleEndian.Uint32(b[8:12]),
		CpVer:       binary.LittleEndian.Uint64(b[12:20]),
		NextBlkaddr: binary.LittleEndian.Uint32(b[20:24]),
	}
	return f, nil
}

// EncodeFooter writes f into the trailing FooterSize bytes of page.
func EncodeFooter(page []byte, f *Footer) error {
	if len(page) < FooterSize {
		return corruptf("page too small for footer (%d bytes)", len(page))
	}
	b := page[len(page)-FooterSize:]
	binary.LittleEndian.PutUint32(b[0:4], f.Ino)
	binary.LittleEndian.PutUint32(b[4:8], f.Nid)
	binary.LittleEndian.PutUint32(b[8:12], f.Flag)
	binary.LittleEndian.PutUint64(b[12:20], f.CpVer)
	binary.LittleEndian.PutUint32(b[20:24], f.NextBlkaddr)
	return nil
}

func InoOf(f *Footer) uint32         { return f.Ino }
func NidOf(f *Footer) uint32         { return f.Nid }
func NextBlkaddrOf(f *Footer) uint32 { return f.NextBlkaddr }

// OfsOf returns ofs_in_node, packed into the upper bits of flag.
func OfsOf(f *Footer) uint32 { return f.Flag >> offsetBitShift }

// SetOfs sets ofs_in_node in-place, preserving the mark bits.
func SetOfs(f *Footer, ofs uint32) {
	f.Flag = (f.Flag & (1<<offsetBitShift - 1)) | (ofs << offsetBitShift)
}

func IsInode(f *Footer) bool       { return f.Flag&FlagInodeMark != 0 }
func IsFsyncMarked(f *Footer) bool { return f.Flag&FlagFsyncMark != 0 }
func IsDentryMarked(f *Footer) bool {
	return f.Flag&FlagDentryMark != 0
}

// IsRecoverable reports whether the page's footer checkpoint version
// matches the checkpoint version of the just-mounted checkpoint.
func IsRecoverable(f *Footer, currentCpVer uint64) bool {
	return f.CpVer == currentCpVer
}
