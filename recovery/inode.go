package recovery

import (
	"github.com/scalelfs/ScaleLFS/format"
	"github.com/scalelfs/ScaleLFS/inodecache"
	"github.com/scalelfs/ScaleLFS/mlog"
)

// materializeInode creates a brand-new cache entry for ino from a
// recovered inode page, the way get_node_page + a NAT miss would
// drive recover_inode_page in the source. It seeds only the fields
// recoverInode itself would later overwrite; the full reconstruction
// still happens in the data-repair pass so that a mode/uid/gid change
// between the inode page and a later plain inode page is handled
// uniformly.
func (self *Recoverer) materializeInode(ino uint32, page []byte) error {
	if _, ok := self.Inodes.Lookup(ino); ok {
		return nil
	}
	body := page[:len(page)-format.FooterSize]
	raw, err := format.DecodeInode(body, false)
	if err != nil {
		return err
	}
	n := self.Inodes.Create(ino)
	self.Inodes.Iput(n) // Create takes a ref; the fsync table owns the real one via add()
	n.Mode = raw.Mode
	n.UID = raw.UID
	n.GID = raw.GID
	mlog.Printf2("recovery/inode", "r.materializeInode ino %d mode %o", ino, raw.Mode)
	return nil
}

// recoverInode is recover_inode: copy the recovered raw
// inode's metadata onto the live inode, transferring quota ownership
// if uid/gid or project id changed, and mark it dirty-synced.
func (self *Recoverer) recoverInode(n *inodecache.Inode, raw *format.RawInode) error {
	oldUID, oldGID, oldProj := n.UID, n.GID, n.ProjID

	n.Mode = raw.Mode
	n.UID = raw.UID
	n.GID = raw.GID
	n.Size = raw.Size
	n.ATimeSec, n.ATimeNsec = raw.ATimeSec, raw.ATimeNsec
	n.CTimeSec, n.CTimeNsec = raw.CTimeSec, raw.CTimeNsec
	n.MTimeSec, n.MTimeNsec = raw.MTimeSec, raw.MTimeNsec
	n.Flags = raw.Flags
	n.GCFailures = raw.GCFailures
	n.Inline = raw.Inline
	n.ProjID = raw.ProjID

	if oldUID != raw.UID || oldGID != raw.GID {
		if err := self.Quota.Transfer(oldUID, oldGID, raw.UID, raw.GID); err != nil {
			return err
		}
	}
	if raw.Inline&format.InlineExtraAttr != 0 && oldProj != raw.ProjID {
		if err := self.Quota.TransferProject(oldProj, raw.ProjID); err != nil {
			return err
		}
	}

	n.MarkDirtySync()
	mlog.Printf2("recovery/inode", "r.recoverInode ino %d size %d", n.Ino, n.Size)
	return nil
}
