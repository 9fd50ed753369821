// Package blockdir implements the content-addressed block store at
// an archive's "d/" subtree: store, get, contains, block_names, and
// validate, with a bounded in-memory presence cache. It generalizes
// the teacher's blob storage (storage/backends/fs.Repository's
// PutBlob/GetBlob/GetBlobs, fanned out by the first bytes of a
// checksum) from the teacher's raw-sha256 blob model to the spec's
// single Snappy-compressed, BLAKE2b-256-addressed block.
package blockdir

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/archivekit/conserve/compression"
	"github.com/archivekit/conserve/conserveerr"
	"github.com/archivekit/conserve/hashing"
	"github.com/archivekit/conserve/transport"
)

// presenceCacheSize bounds the number of hashes the "known present"
// cache holds, per spec.md §4.2.
const presenceCacheSize = 10000

// Blockdir is the content-addressed block store rooted at an
// archive's "d/" directory.
type Blockdir struct {
	tr transport.Transport

	mu    sync.Mutex
	cache *lru.Cache[string, struct{}]
}

// New returns a Blockdir backed by tr, which should already be a
// transport rooted at the archive's "d/" subtree.
func New(tr transport.Transport) *Blockdir {
	cache, err := lru.New[string, struct{}](presenceCacheSize)
	if err != nil {
		// Only fails for a non-positive size, which presenceCacheSize never is.
		panic(err)
	}
	return &Blockdir{tr: tr, cache: cache}
}

func pathFor(hash string) string {
	return fmt.Sprintf("%s/%s", hash[:2], hash)
}

// cacheHas reports whether hash is already known present, without
// touching the transport.
func (b *Blockdir) cacheHas(hash string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.cache.Get(hash)
	return ok
}

func (b *Blockdir) cacheAdd(hash string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cache.Add(hash, struct{}{})
}

// Store computes the BlockHash of buf, and if no block with that
// hash exists yet, Snappy-compresses and atomically writes it. It
// returns the hash and the length of the bytes actually stored on
// the wire (0 if the block was already present, since nothing new
// was written).
func (b *Blockdir) Store(ctx context.Context, buf []byte) (hash string, compressedLen int, err error) {
	hash = hashing.Sum(buf)

	if b.cacheHas(hash) {
		return hash, 0, nil
	}

	path := pathFor(hash)
	exists, err := b.tr.Exists(ctx, path)
	if err != nil {
		return "", 0, err
	}
	if exists {
		b.cacheAdd(hash)
		return hash, 0, nil
	}

	compressed := compression.Deflate(buf)
	if err := b.tr.Write(ctx, path, compressed); err != nil {
		return "", 0, err
	}
	b.cacheAdd(hash)
	return hash, len(compressed), nil
}

// Get reads the block named hash, verifies its content hash, and
// returns the slice [start, start+length).
func (b *Blockdir) Get(ctx context.Context, hash string, start, length int64) ([]byte, error) {
	raw, err := b.tr.Read(ctx, pathFor(hash))
	if err != nil {
		return nil, err
	}
	data, err := compression.Inflate(raw)
	if err != nil {
		return nil, conserveerr.Wrap(conserveerr.BlockCorrupt, "decompressing block "+hash, err)
	}
	actual := hashing.Sum(data)
	if actual != hash {
		return nil, conserveerr.BlockCorruptf(hash, actual)
	}
	if start < 0 || length < 0 || start+length > int64(len(data)) {
		return nil, conserveerr.New(conserveerr.AddressOutOfRange,
			fmt.Sprintf("range [%d,%d) exceeds block %s of length %d", start, start+length, hash, len(data)))
	}
	return data[start : start+length], nil
}

// Contains reports whether hash is present in the blockdir,
// consulting the presence cache before the transport.
func (b *Blockdir) Contains(ctx context.Context, hash string) (bool, error) {
	if b.cacheHas(hash) {
		return true, nil
	}
	exists, err := b.tr.Exists(ctx, pathFor(hash))
	if err != nil {
		return false, err
	}
	if exists {
		b.cacheAdd(hash)
	}
	return exists, nil
}

// BlockNames lists every valid-looking BlockHash present in the
// blockdir, by walking its two-hex-char fan-out directories.
func (b *Blockdir) BlockNames(ctx context.Context) ([]string, error) {
	_, buckets, err := b.tr.ListDir(ctx, "")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, bucket := range buckets {
		if len(bucket) != 2 {
			continue
		}
		if _, err := hex.DecodeString(bucket); err != nil {
			continue
		}
		files, _, err := b.tr.ListDir(ctx, bucket)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if len(f) != hashing.Size*2 {
				continue
			}
			if _, err := hex.DecodeString(f); err != nil {
				continue
			}
			names = append(names, f)
		}
	}
	return names, nil
}

// Validate downloads, decompresses, and re-hashes the block named
// hash, reporting the uncompressed length and whether it matches.
func (b *Blockdir) Validate(ctx context.Context, hash string) (uncompressedLen int, ok bool, err error) {
	raw, err := b.tr.Read(ctx, pathFor(hash))
	if err != nil {
		return 0, false, err
	}
	data, err := compression.Inflate(raw)
	if err != nil {
		return 0, false, nil
	}
	return len(data), hashing.Sum(data) == hash, nil
}
