package format

import (
	"testing"

	"github.com/stvp/assert"
)

func TestSummaryRoundTrip(t *testing.T) {
	block := make([]byte, SummarySize*4)
	s := &Summary{Nid: 55, OfsInNode: 2, Version: 1}
	err := EncodeSummary(block, 1, s)
	assert.Nil(t, err)

	got, err := DecodeSummary(block, 1)
	assert.Nil(t, err)
	assert.Equal(t, got.Nid, uint32(55))
	assert.Equal(t, got.OfsInNode, uint16(2))
	assert.Equal(t, got.Version, uint8(1))
}

func TestSummaryOutOfRange(t *testing.T) {
	block := make([]byte, SummarySize)
	_, err := DecodeSummary(block, 5)
	assert.True(t, err != nil)
}
