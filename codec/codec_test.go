package codec

import (
	"testing"

	"github.com/stvp/assert"
)

const compressible = "123456789123456789123456789123456789123456789123456789123456789123456789123456789123456789123456789"

func roundTripOnce(t *testing.T, text string, c Codec) {
	p := []byte(text)
	enc, err := c.EncodeBytes(p, nil)
	assert.Nil(t, err)
	dec, err := c.DecodeBytes(enc, nil)
	assert.Nil(t, err)
	assert.Equal(t, p, dec)
}

func roundTrip(t *testing.T, c Codec) {
	roundTripOnce(t, "foo", c)
	roundTripOnce(t, compressible, c)
}

func TestEncryptingCodec(t *testing.T) {
	p := []byte("data")
	ad := []byte("ad")

	c := EncryptingCodec{}.Init([]byte("foo"), []byte("salt"), 64)
	roundTrip(t, c)

	enc, err := c.EncodeBytes(p, nil)
	assert.Nil(t, err)

	_, err2 := c.DecodeBytes(enc, ad)
	assert.True(t, err2 != nil)

	enc2, err := c.EncodeBytes(p, nil)
	assert.Nil(t, err)
	assert.NotEqual(t, enc, enc2)

	dec2, err := c.DecodeBytes(enc2, nil)
	assert.Nil(t, err)
	assert.Equal(t, p, dec2)
}

func TestCompressingCodec(t *testing.T) {
	c := &CompressingCodec{}
	roundTrip(t, c)

	enc, err := c.EncodeBytes([]byte(compressible), nil)
	assert.Nil(t, err)
	assert.True(t, len(enc) < len(compressible))
}

func TestCompressingCodecIncompressible(t *testing.T) {
	c := &CompressingCodec{}
	// Short random-looking input that lz4 can't shrink still round-trips,
	// falling back to the plain envelope.
	p := []byte{1, 2, 3}
	enc, err := c.EncodeBytes(p, nil)
	assert.Nil(t, err)
	dec, err := c.DecodeBytes(enc, nil)
	assert.Nil(t, err)
	assert.Equal(t, p, dec)
}

func TestCodecChain(t *testing.T) {
	enc := EncryptingCodec{}.Init([]byte("pw"), []byte("salt"), 16)
	comp := &CompressingCodec{}
	chain := CodecChain{}.Init(enc, comp)
	roundTrip(t, chain)
}
