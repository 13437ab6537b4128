package format

import "encoding/binary"

// SummarySize is the on-disk size of a summary entry:
// nid(4) + ofs_in_node(2) + version(1).
const SummarySize = 4 + 2 + 1

// Summary is the reverse pointer from a physical data block back to
// its logical owner, {nid, ofs_in_node}, plus the node version that
// wrote it.
type Summary struct {
	Nid       uint32
	OfsInNode uint16
	Version   uint8
}

// DecodeSummary reads a single summary entry at the given index
// within a segment's summary block.
func DecodeSummary(sumBlock []byte, index int) (*Summary, error) {
	off := index * SummarySize
	if off+SummarySize > len(sumBlock) {
		return nil, corruptf("summary index %d out of range", index)
	}
	b := sumBlock[off : off+SummarySize]
	return &Summary{
		Nid:       binary.LittleEndian.Uint32(b[0:4]),
		OfsInNode: binary.LittleEndian.Uint16(b[4:6]),
		Version:   b[6],
	}, nil
}

// EncodeSummary writes s at the given index within sumBlock.
func EncodeSummary(sumBlock []byte, index int, s *Summary) error {
	off := index * SummarySize
	if off+SummarySize > len(sumBlock) {
		return corruptf("summary index %d out of range", index)
	}
	b := sumBlock[off : off+SummarySize]
	binary.LittleEndian.PutUint32(b[0:4], s.Nid)
	binary.LittleEndian.PutUint16(b[4:6], s.OfsInNode)
	b[6] = s.Version
	return nil
}
