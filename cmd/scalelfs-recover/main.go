package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/scalelfs/ScaleLFS/device/factory"
	"github.com/scalelfs/ScaleLFS/directory"
	"github.com/scalelfs/ScaleLFS/inodecache"
	"github.com/scalelfs/ScaleLFS/mlog"
	"github.com/scalelfs/ScaleLFS/nodestore"
	"github.com/scalelfs/ScaleLFS/quota"
	"github.com/scalelfs/ScaleLFS/recovery"
	"github.com/scalelfs/ScaleLFS/segment"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage:\n\n%s STORAGEDIR\n", os.Args[0])
		flag.PrintDefaults()
	}
	backendp := flag.String("backend", "badger", "Backend to use (inmemory, badger, bolt)")
	password := flag.String("password", "", "Password (empty disables encryption)")
	salt := flag.String("salt", "salt", "Salt")
	blocksPerSegment := flag.Uint("blocks-per-segment", 512, "Blocks per segment")
	mainStart := flag.Uint("main-start", 512, "First blkaddr of the main area")
	mainEnd := flag.Uint("main-end", 1<<20, "One past the last blkaddr of the main area")
	startBlkaddr := flag.Uint("start-blkaddr", 0, "Warm-node current segment's next free blkaddr, where discovery starts; it is not read from the on-disk checkpoint, and 0 is not a valid main-area block, so with 0 nothing is recovered")
	checkOnly := flag.Bool("check-only", false, "Report whether recovery is needed without committing anything")
	zoned := flag.Bool("zoned", false, "Treat the backend as a zoned device")
	cachesize := flag.Int("cachesize", 10000, "Number of decoded pages to cache (0 disables)")

	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	storedir := flag.Arg(0)

	conf := factory.Configuration{
		BackendName: *backendp,
		Directory:   storedir,
		Password:    *password,
		Salt:        *salt,
		CacheSize:   *cachesize,
	}
	dev, err := factory.NewWithCrypto(conf)
	if err != nil {
		log.Fatalf("scalelfs-recover: opening backend: %v", err)
	}
	defer dev.Close()

	geom := segment.Geometry{
		BlocksPerSegment: uint32(*blocksPerSegment),
		MainBlkaddrStart: uint32(*mainStart),
		MainBlkaddrEnd:   uint32(*mainEnd),
	}
	segMgr := segment.NewInMemoryManager(geom)
	segMgr.SetZoned(*zoned)
	// Seed the warm-node curseg's next free block; RecoverFsyncData
	// reads it back out via SegMgr.CursegOf rather than taking it as a
	// bypass parameter.
	segMgr.CursegOf(segment.CursegWarmNode).NextFreeBlkaddr = uint32(*startBlkaddr)

	rec := &recovery.Recoverer{
		Dev:    dev,
		SegMgr: segMgr,
		Nodes:  nodestore.New(dev, segMgr),
		Inodes: inodecache.New(),
		Quota:  quota.New(),
		Dirs:   make(map[uint32]*directory.Dir),
		SB:     &recovery.Superblock{Zoned: *zoned, CheckpointVersion: 1},
	}

	needsRecovery, err := rec.RecoverFsyncData(0, *checkOnly)
	if err != nil {
		log.Fatalf("scalelfs-recover: recovery failed: %v", err)
	}
	if *checkOnly {
		if needsRecovery {
			mlog.Printf2("cmd/scalelfs-recover", "m.main recovery needed")
			fmt.Println("recovery needed")
			os.Exit(1)
		}
		fmt.Println("clean")
		return
	}
	fmt.Println("recovery complete")
}
