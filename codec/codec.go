// codec is responsible for transforming block payloads to and from
// on-disk representation. This means, in practice, either
// encrypting/decrypting, or compressing/uncompressing, on a
// case-by-case basis.
//
// CodecChain makes it possible to combine multiple Codecs that each do
// one sub-EncodeBytes/DecodeBytes step. The device package wraps every
// node/data block it writes through a CodecChain before handing bytes
// to a backend, and unwraps on read; the on-disk node/inode/summary
// formats decoded by the format package are themselves always
// little-endian plaintext structs, encoded/decoded only after a codec
// chain has produced/consumed the raw bytes.
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"log"

	"github.com/minio/sha256-simd"
	"github.com/pierrec/lz4"
	"golang.org/x/crypto/pbkdf2"
)

// Codec is a single transformation of byte slices.
type Codec interface {
	DecodeBytes(data, additionalData []byte) (ret []byte, err error)
	EncodeBytes(data, additionalData []byte) (ret []byte, err error)
}

// EncryptingCodec is an AES-GCM based encrypting/decrypting
// (+authenticating) Codec.
type EncryptingCodec struct {
	gcm cipher.AEAD
	mk  []byte
}

func (self EncryptingCodec) Init(password, salt []byte, iter int) *EncryptingCodec {
	self.mk = pbkdf2.Key(password, salt, iter, 32, sha256.New)
	block, err := aes.NewCipher(self.mk)
	if err != nil {
		log.Fatal(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		log.Fatal(err)
	}
	self.gcm = gcm
	return &self
}

func (self *EncryptingCodec) DecodeBytes(data, additionalData []byte) (ret []byte, err error) {
	var ed encryptedData
	if err = ed.unmarshal(data); err != nil {
		return
	}
	ret, err = self.gcm.Open(nil, ed.Nonce, ed.Ciphertext, additionalData)
	return
}

func (self *EncryptingCodec) EncodeBytes(data, additionalData []byte) (ret []byte, err error) {
	nonce := make([]byte, self.gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return
	}
	ciphertext := self.gcm.Seal(nil, nonce, data, additionalData)
	ed := encryptedData{Nonce: nonce, Ciphertext: ciphertext}
	ret = ed.marshal()
	return
}

// CompressingCodec is an on-the-fly compressing Codec using LZ4. If
// the result does not improve, the payload is marked plain and passed
// through as-is (at the cost of one byte). maximumSize tracks the
// largest decode buffer needed so far and grows it on a short-buffer
// retry rather than allocating len(data)-guesses up front.
type CompressingCodec struct {
	maximumSize int
}

const smallestCompressionSize = 1024
const largestCompressionSize = 1024000000

func (self *CompressingCodec) DecodeBytes(data, additionalData []byte) (ret []byte, err error) {
	var cd compressedData
	if err = cd.unmarshal(data); err != nil {
		return
	}
	switch cd.Type {
	case compressionPlain:
		ret = cd.RawData
	case compressionLZ4:
		maximumSize := self.maximumSize
		if maximumSize < smallestCompressionSize {
			maximumSize = smallestCompressionSize
		}
		ret = make([]byte, maximumSize)
		var n int
		n, err = lz4.UncompressBlock(cd.RawData, ret, 0)
		if err == lz4.ErrShortBuffer {
			self.maximumSize = maximumSize * 2
			if self.maximumSize > largestCompressionSize {
				log.Panic(err)
			}
			return self.DecodeBytes(data, additionalData)
		}
		ret = ret[:n]
	default:
		err = corruptCompressionType(cd.Type)
	}
	return
}

func (self *CompressingCodec) EncodeBytes(data, additionalData []byte) (ret []byte, err error) {
	rd := make([]byte, len(data))
	var n int
	n, err = lz4.CompressBlock(data, rd, 0)
	if err != nil {
		return
	}
	cd := compressedData{Type: compressionLZ4, RawData: rd[:n]}
	if n == 0 {
		cd = compressedData{Type: compressionPlain, RawData: data}
	}
	ret = cd.marshal()
	return
}

// CodecChain composes a sequence of Codecs. Codecs are given in
// decryption order, so an encrypting one should be listed before a
// compressing one (EncodeBytes runs them in reverse, decoding-inward).
type CodecChain struct {
	codecs, reverseCodecs []Codec
}

func (self CodecChain) Init(codecs ...Codec) *CodecChain {
	self.codecs = codecs
	rc := make([]Codec, len(codecs))
	for i, c := range codecs {
		rc[len(codecs)-i-1] = c
	}
	self.reverseCodecs = rc
	return &self
}

func (self *CodecChain) DecodeBytes(data, additionalData []byte) (ret []byte, err error) {
	ret = data
	for _, c := range self.codecs {
		ret, err = c.DecodeBytes(data, additionalData)
		if err != nil {
			return
		}
		data = ret
	}
	return
}

func (self *CodecChain) EncodeBytes(data, additionalData []byte) (ret []byte, err error) {
	ret = data
	for _, c := range self.reverseCodecs {
		ret, err = c.EncodeBytes(data, additionalData)
		if err != nil {
			return
		}
		data = ret
	}
	return
}
