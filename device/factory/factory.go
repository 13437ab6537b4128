// factory constructs a named Device from configuration, wiring in an
// encrypting+compressing codec chain when a password is configured.
package factory

import (
	"github.com/scalelfs/ScaleLFS/codec"
	"github.com/scalelfs/ScaleLFS/device"
	"github.com/scalelfs/ScaleLFS/device/badger"
	"github.com/scalelfs/ScaleLFS/device/bolt"
	"github.com/scalelfs/ScaleLFS/device/inmemory"
	"github.com/scalelfs/ScaleLFS/mlog"
	"github.com/scalelfs/ScaleLFS/nodecache"
)

// Configuration describes how to open (or create) the backing store
// for a mount.
type Configuration struct {
	BackendName string // "inmemory", "badger", "bolt"
	Directory   string

	Password, Salt          string
	Iterations, QueueLength int

	// CacheSize bounds the decoded-page cache sitting in front of the
	// backend; 0 disables it.
	CacheSize int
}

func openBackend(name, dir string) (device.Backend, error) {
	switch name {
	case "inmemory":
		return inmemory.New(), nil
	case "badger":
		return badger.Open(dir)
	case "bolt":
		return bolt.Open(dir)
	}
	return nil, unknownBackend(name)
}

type unknownBackendError string

func (e unknownBackendError) Error() string { return "device/factory: unknown backend " + string(e) }

func unknownBackend(name string) error { return unknownBackendError(name) }

// New opens the named backend and wraps it in a Device with no codec
// chain (plaintext, uncompressed blocks).
func New(name, dir string) (*device.Device, error) {
	be, err := openBackend(name, dir)
	if err != nil {
		return nil, err
	}
	return device.New(be, nil), nil
}

// NewWithCrypto builds a Device with a codec chain that compresses and
// then encrypts on write (decrypts, then decompresses on read) when a
// password is configured, or compress-only otherwise.
func NewWithCrypto(config Configuration) (*device.Device, error) {
	iterations := config.Iterations
	if iterations == 0 {
		iterations = 12345
	}
	salt := config.Salt
	if salt == "" {
		salt = "asdf"
	}

	var chain codec.Codec
	if config.Password != "" {
		mlog.Printf2("device/factory/factory", "f.NewWithCrypto with encryption + compression")
		c1 := codec.EncryptingCodec{}.Init([]byte(config.Password), []byte(salt), iterations)
		c2 := &codec.CompressingCodec{}
		chain = codec.CodecChain{}.Init(c1, c2)
	} else {
		mlog.Printf2("device/factory/factory", "f.NewWithCrypto only compression")
		chain = codec.CodecChain{}.Init(&codec.CompressingCodec{})
	}

	be, err := openBackend(config.BackendName, config.Directory)
	if err != nil {
		return nil, err
	}
	dev := device.New(be, chain)
	dev.SetCache(nodecache.New(config.CacheSize))
	return dev, nil
}
