package format

import "encoding/binary"

// DnodeIndexSize is the size of the single {ofs, dest} pair a dnode
// (non-inode) node page carries in its body, ahead of the footer.
// Real f3fs packs up to hundreds of addresses per node page; this
// module's node store resolves one logical offset to one nid (see
// nodestore's doc comment), so one node page maps to exactly one
// index slot.
const DnodeIndexSize = 4 + 4

// DecodeDnodeIndex reads {ofs, dest} out of a dnode page body.
func DecodeDnodeIndex(body []byte) (ofs uint32, dest uint32, err error) {
	if len(body) < DnodeIndexSize {
		err = corruptf("dnode body too small (%d bytes)", len(body))
		return
	}
	ofs = binary.LittleEndian.Uint32(body[0:4])
	dest = binary.LittleEndian.Uint32(body[4:8])
	return
}

// EncodeDnodeIndex is the inverse of DecodeDnodeIndex.
func EncodeDnodeIndex(body []byte, ofs, dest uint32) error {
	if len(body) < DnodeIndexSize {
		return corruptf("dnode body too small (%d bytes)", len(body))
	}
	binary.LittleEndian.PutUint32(body[0:4], ofs)
	binary.LittleEndian.PutUint32(body[4:8], dest)
	return nil
}
