package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/scalelfs/ScaleLFS/util"
)

// encryptedData and compressedData are the on-disk envelopes written
// by EncryptingCodec/CompressingCodec, hand-marshalled rather than
// generated. encryptedData is two length-prefixed chunks (big-endian
// uint32 length, then bytes); compressedData is one compression-type
// byte followed by the raw payload, with no length prefix.

type encryptedData struct {
	Nonce      []byte
	Ciphertext []byte
}

func (self *encryptedData) marshal() []byte {
	return util.ConcatBytes(
		util.Uint32Bytes(uint32(len(self.Nonce))), self.Nonce,
		util.Uint32Bytes(uint32(len(self.Ciphertext))), self.Ciphertext)
}

func (self *encryptedData) unmarshal(b []byte) error {
	nonce, rest, err := readChunk(b)
	if err != nil {
		return err
	}
	ciphertext, rest, err := readChunk(rest)
	if err != nil {
		return err
	}
	if len(rest) != 0 {
		return fmt.Errorf("codec: %d trailing bytes in encryptedData", len(rest))
	}
	self.Nonce = nonce
	self.Ciphertext = ciphertext
	return nil
}

type compressionType byte

const (
	compressionPlain compressionType = iota
	compressionLZ4
)

func corruptCompressionType(t compressionType) error {
	return fmt.Errorf("codec: unknown compression type %d", t)
}

type compressedData struct {
	Type    compressionType
	RawData []byte
}

func (self *compressedData) marshal() []byte {
	return util.ConcatBytes([]byte{byte(self.Type)}, self.RawData)
}

func (self *compressedData) unmarshal(b []byte) error {
	if len(b) < 1 {
		return fmt.Errorf("codec: compressedData too short")
	}
	self.Type = compressionType(b[0])
	self.RawData = b[1:]
	return nil
}

func readChunk(b []byte) (chunk, rest []byte, err error) {
	if len(b) < 4 {
		err = fmt.Errorf("codec: chunk header truncated")
		return
	}
	n := binary.BigEndian.Uint32(b[:4])
	b = b[4:]
	if uint32(len(b)) < n {
		err = fmt.Errorf("codec: chunk body truncated")
		return
	}
	chunk = b[:n]
	rest = b[n:]
	return
}
