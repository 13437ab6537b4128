// directory is recovery's view of the directory hash/lookup machinery:
// find_entry, add_dentry, delete_entry, plus the recovered filename
// descriptor init_recovered_filename builds so a fsync-time dentry can
// be looked up the same way it was created.
package directory

import (
	"hash/fnv"

	"github.com/scalelfs/ScaleLFS/util"
)

// Entry is one filename -> ino mapping inside a directory.
type Entry struct {
	Name string
	Ino  uint32
	Mode uint16
}

// Dir is an in-memory directory: recovery only ever manipulates the
// small set of entries a fsync chain touches, so a flat map keyed by
// name (recovery matches case-sensitively even under a casefolded
// directory) is sufficient.
type Dir struct {
	Ino uint32

	Casefolded bool
	Encrypted  bool

	lock    util.MutexLocked
	entries map[string]*Entry
}

func NewDir(ino uint32, casefolded, encrypted bool) *Dir {
	return &Dir{
		Ino:        ino,
		Casefolded: casefolded,
		Encrypted:  encrypted,
		entries:    make(map[string]*Entry),
	}
}

// RecoveredName is the filename descriptor init_recovered_filename
// builds: the raw bytes and, when the parent is casefolded+encrypted,
// the on-disk trailing hash read unaligned right after the name.
type RecoveredName struct {
	Name string
	Hash uint32
}

// BuildRecoveredName computes the lookup hash for name in the context
// of dir.
func BuildRecoveredName(dir *Dir, name string, onDiskHash uint32, hasOnDiskHash bool) RecoveredName {
	if dir.Casefolded && dir.Encrypted {
		// Casefolded + encrypted parent: the hash was already stored
		// on-disk right after the name; trust it rather than
		// recomputing (recomputation would need the casefold table
		// keyed by the encrypted, not plaintext, bytes).
		return RecoveredName{Name: name, Hash: onDiskHash}
	}
	if dir.Casefolded {
		// Casefolded + clear: fold, hash, then recovery still matches
		// case-sensitively against Name below.
		return RecoveredName{Name: name, Hash: fnvHash(foldCase(name))}
	}
	return RecoveredName{Name: name, Hash: fnvHash(name)}
}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func foldCase(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

// FindEntry looks up name in dir. Lookups are always exact-case,
// consistent with BuildRecoveredName's case handling.
func (self *Dir) FindEntry(name string) (*Entry, bool) {
	defer self.lock.Locked()()
	e, ok := self.entries[name]
	return e, ok
}

// AddDentry inserts a brand-new entry. The caller must have already
// ensured no colliding entry exists (via FindEntry + DeleteEntry).
func (self *Dir) AddDentry(name string, ino uint32, mode uint16) {
	defer self.lock.Locked()()
	self.entries[name] = &Entry{Name: name, Ino: ino, Mode: mode}
}

// DeleteEntry removes name, e.g. before AddDentry replaces a stale
// dentry pointing at a since-superseded ino.
func (self *Dir) DeleteEntry(name string) {
	defer self.lock.Locked()()
	delete(self.entries, name)
}
