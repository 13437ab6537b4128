package format

import (
	"encoding/binary"
)

// Inline bitmap bits.
const (
	InlinePinFile uint8 = 1 << iota
	InlineDataExist
	InlineExtraAttr
)

const maxNameLen = 255

// timespec offsets within the fixed inode header: a {sec:u64, nsec:u32}
// pair for each of atime/ctime/mtime.
const (
	offMode     = 0
	offUID      = 2
	offGID      = 6
	offSize     = 10
	offATimeSec = 18
	offATimeNs  = 26
	offCTimeSec = 30
	offCTimeNs  = 38
	offMTimeSec = 42
	offMTimeNs  = 50
	offFlags    = 54
	offInline   = 58
	offExtraIsz = 59
	offProjID   = 61
	offGCFails  = 65
	offPIno     = 67
	offNameLen  = 71
	offName     = 75
)

// RawInode is the decoded on-disk inode body carried in an inode-type
// node page.
type RawInode struct {
	Mode         uint16
	UID          uint32
	GID          uint32
	Size         uint64
	ATimeSec     uint64
	ATimeNsec    uint32
	CTimeSec     uint64
	CTimeNsec    uint32
	MTimeSec     uint64
	MTimeNsec    uint32
	Flags        uint32
	Inline       uint8
	ExtraIsize   uint16
	ProjID       uint32
	GCFailures    uint16
	PIno          uint32
	NameLen       uint32
	Name          []byte
	EncryptedHash uint32
	hasHash       bool
}

// HasEncryptedHash reports whether a trailing hash was present (only
// for names on a casefolded+encrypted directory).
func (r *RawInode) HasEncryptedHash() bool { return r.hasHash }

// DecodeInode reads a RawInode out of an inode page body (page minus
// the trailing footer). namelen and any trailing hash are read
// unaligned at the offsets the on-disk layout places them.
func DecodeInode(body []byte, encryptedCasefolded bool) (*RawInode, error) {
	if len(body) < offName {
		return nil, corruptf("inode body too small (%d bytes)", len(body))
	}
	r := &RawInode{
		Mode:       binary.LittleEndian.Uint16(body[offMode:]),
		UID:        binary.LittleEndian.Uint32(body[offUID:]),
		GID:        binary.LittleEndian.Uint32(body[offGID:]),
		Size:       binary.LittleEndian.Uint64(body[offSize:]),
		ATimeSec:   binary.LittleEndian.Uint64(body[offATimeSec:]),
		ATimeNsec:  binary.LittleEndian.Uint32(body[offATimeNs:]),
		CTimeSec:   binary.LittleEndian.Uint64(body[offCTimeSec:]),
		CTimeNsec:  binary.LittleEndian.Uint32(body[offCTimeNs:]),
		MTimeSec:   binary.LittleEndian.Uint64(body[offMTimeSec:]),
		MTimeNsec:  binary.LittleEndian.Uint32(body[offMTimeNs:]),
		Flags:      binary.LittleEndian.Uint32(body[offFlags:]),
		Inline:     body[offInline],
		ExtraIsize: binary.LittleEndian.Uint16(body[offExtraIsz:]),
		ProjID:     binary.LittleEndian.Uint32(body[offProjID:]),
		GCFailures: binary.LittleEndian.Uint16(body[offGCFails:]),
		PIno:       binary.LittleEndian.Uint32(body[offPIno:]),
		NameLen:    binary.LittleEndian.Uint32(body[offNameLen:]),
	}
	if r.NameLen > maxNameLen {
		return nil, corruptf("namelen %d exceeds maximum %d", r.NameLen, maxNameLen)
	}
	if r.Inline&InlineExtraAttr != 0 && int(r.ExtraIsize) > len(body)-offName {
		return nil, corruptf("extra_isize %d out of range", r.ExtraIsize)
	}
	end := offName + int(r.NameLen)
	if end > len(body) {
		return nil, corruptf("name of length %d overruns inode body", r.NameLen)
	}
	r.Name = append([]byte(nil), body[offName:end]...)
	if encryptedCasefolded {
		if end+4 > len(body) {
			return nil, corruptf("missing trailing hash for encrypted+casefolded name")
		}
		r.EncryptedHash = binary.LittleEndian.Uint32(body[end : end+4])
		r.hasHash = true
	}
	return r, nil
}

// EncodeInode is the inverse of DecodeInode, used by tests and by the
// scratch-inode fixtures the recovery scenarios build against.
func EncodeInode(body []byte, r *RawInode) error {
	if len(body) < offName+len(r.Name) {
		return corruptf("body too small to hold encoded inode")
	}
	binary.LittleEndian.PutUint16(body[offMode:], r.Mode)
	binary.LittleEndian.PutUint32(body[offUID:], r.UID)
	binary.LittleEndian.PutUint32(body[offGID:], r.GID)
	binary.LittleEndian.PutUint64(body[offSize:], r.Size)
	binary.LittleEndian.PutUint64(body[offATimeSec:], r.ATimeSec)
	binary.LittleEndian.PutUint32(body[offATimeNs:], r.ATimeNsec)
	binary.LittleEndian.PutUint64(body[offCTimeSec:], r.CTimeSec)
	binary.LittleEndian.PutUint32(body[offCTimeNs:], r.CTimeNsec)
	binary.LittleEndian.PutUint64(body[offMTimeSec:], r.MTimeSec)
	binary.LittleEndian.PutUint32(body[offMTimeNs:], r.MTimeNsec)
	binary.LittleEndian.PutUint32(body[offFlags:], r.Flags)
	body[offInline] = r.Inline
	binary.LittleEndian.PutUint16(body[offExtraIsz:], r.ExtraIsize)
	binary.LittleEndian.PutUint32(body[offProjID:], r.ProjID)
	binary.LittleEndian.PutUint16(body[offGCFails:], r.GCFailures)
	binary.LittleEndian.PutUint32(body[offPIno:], r.PIno)
	binary.LittleEndian.PutUint32(body[offNameLen:], r.NameLen)
	copy(body[offName:], r.Name)
	end := offName + len(r.Name)
	if r.hasHash {
		if end+4 > len(body) {
			return corruptf("body too small to hold trailing hash")
		}
		binary.LittleEndian.PutUint32(body[end:end+4], r.EncryptedHash)
	}
	return nil
}

// SetEncryptedHash marks r as carrying a trailing on-disk hash and
// sets its value (used when constructing a casefolded+encrypted name
// for encode/round-trip tests).
func (r *RawInode) SetEncryptedHash(h uint32) {
	r.EncryptedHash = h
	r.hasHash = true
}
