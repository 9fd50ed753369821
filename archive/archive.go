// Package archive implements the top-level archive directory: the
// CONSERVE header, the shared blockdir, and the collection of bands.
// Its operation set (Create/Open, ListBands, LastBandId,
// LastCompleteBand, ReferencedBlocks, Validate) is a direct port of
// original_source's Archive (archive.rs), the real project this
// spec's archive component distills; the teacher's nearest analogue,
// storage/backends/fs.Repository, only ever holds one flat blob/
// snapshot/packfile namespace and has no notion of bands at all, so
// the header read/write shape is the only thing carried over from it.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/archivekit/conserve/apath"
	"github.com/archivekit/conserve/band"
	"github.com/archivekit/conserve/blockdir"
	"github.com/archivekit/conserve/conserveerr"
	"github.com/archivekit/conserve/index"
	"github.com/archivekit/conserve/transport"
)

// Version is the archive format version this implementation writes.
// On open, any version whose major component is not higher than
// Version's is accepted.
const Version = "1.0"

const (
	headerFile = "CONSERVE"
	blockDir   = "d"
)

type header struct {
	ConserveArchiveVersion string `json:"conserve_archive_version"`
}

// Archive is a handle to one archive directory: a CONSERVE header, a
// shared Blockdir, and zero or more bands.
type Archive struct {
	tr       transport.Transport
	blockdir *blockdir.Blockdir
}

// Create makes a new archive at tr, an empty directory, writing the
// header and initializing the blockdir.
func Create(ctx context.Context, tr transport.Transport) (*Archive, error) {
	if err := tr.CreateDir(ctx, ""); err != nil {
		return nil, err
	}
	if err := tr.CreateDir(ctx, blockDir); err != nil {
		return nil, err
	}
	h := header{ConserveArchiveVersion: Version}
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, conserveerr.Wrap(conserveerr.Io, "encoding archive header", err)
	}
	if err := tr.Write(ctx, headerFile, raw); err != nil {
		return nil, err
	}
	return &Archive{tr: tr, blockdir: blockdir.New(tr.SubTransport(blockDir))}, nil
}

// Open opens an existing archive at tr, checking the header's
// version.
func Open(ctx context.Context, tr transport.Transport) (*Archive, error) {
	exists, err := tr.Exists(ctx, headerFile)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, conserveerr.New(conserveerr.NotFound, "not an archive: missing CONSERVE header")
	}
	raw, err := tr.Read(ctx, headerFile)
	if err != nil {
		return nil, err
	}
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, conserveerr.Wrap(conserveerr.IndexCorrupt, "parsing CONSERVE header", err)
	}
	if err := checkVersion(h.ConserveArchiveVersion); err != nil {
		return nil, err
	}
	return &Archive{tr: tr, blockdir: blockdir.New(tr.SubTransport(blockDir))}, nil
}

func checkVersion(found string) error {
	if found == "" {
		return conserveerr.UnsupportedFormatf(found, Version)
	}
	foundMajor, err := strconv.Atoi(strings.SplitN(found, ".", 2)[0])
	if err != nil {
		return conserveerr.UnsupportedFormatf(found, Version)
	}
	supportedMajor, err := strconv.Atoi(strings.SplitN(Version, ".", 2)[0])
	if err != nil {
		return conserveerr.UnsupportedFormatf(found, Version)
	}
	if foundMajor > supportedMajor {
		return conserveerr.UnsupportedFormatf(found, Version)
	}
	return nil
}

// Blockdir returns the archive's shared block store.
func (a *Archive) Blockdir() *blockdir.Blockdir { return a.blockdir }

// Transport returns the transport rooted at the archive's top-level
// directory.
func (a *Archive) Transport() transport.Transport { return a.tr }

// ListBands returns every band id in the archive, sorted ascending.
func (a *Archive) ListBands(ctx context.Context) ([]band.Id, error) {
	_, dirs, err := a.tr.ListDir(ctx, "")
	if err != nil {
		return nil, err
	}
	var ids []band.Id
	for _, d := range dirs {
		if d == blockDir {
			continue
		}
		id, err := band.ParseId(d)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids, nil
}

// LastBandId returns the highest-numbered band id, or ok=false if
// the archive has no bands.
func (a *Archive) LastBandId(ctx context.Context) (id band.Id, ok bool, err error) {
	ids, err := a.ListBands(ctx)
	if err != nil {
		return band.Id{}, false, err
	}
	if len(ids) == 0 {
		return band.Id{}, false, nil
	}
	return ids[len(ids)-1], true, nil
}

// OpenBand opens the band named id for reading.
func (a *Archive) OpenBand(ctx context.Context, id band.Id) (*band.Band, error) {
	return band.Open(ctx, a.tr.SubTransport(id.String()), id)
}

// CreateBand allocates the next unused band id (max existing + 1,
// starting from 0) and opens it for write.
func (a *Archive) CreateBand(ctx context.Context, head band.Head) (*band.Band, error) {
	last, ok, err := a.LastBandId(ctx)
	if err != nil {
		return nil, err
	}
	next := 0
	if ok {
		next = firstComponent(last) + 1
	}
	id := band.NewId(next)
	return band.Create(ctx, a.tr.SubTransport(id.String()), id, head)
}

func firstComponent(id band.Id) int {
	// Parse the leading component back out of the rendered name
	// ("b0012-0003" -> 12) without band exporting its internal slice.
	s := id.String()
	var n int
	fmt.Sscanf(strings.SplitN(s[1:], "-", 2)[0], "%d", &n)
	return n
}

// LastCompleteBand returns the most recently written complete band,
// scanning from the newest id backward, or ok=false if none exist.
func (a *Archive) LastCompleteBand(ctx context.Context) (b *band.Band, ok bool, err error) {
	ids, err := a.ListBands(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := len(ids) - 1; i >= 0; i-- {
		cand, err := a.OpenBand(ctx, ids[i])
		if err != nil {
			return nil, false, err
		}
		closed, err := cand.IsClosed(ctx)
		if err != nil {
			return nil, false, err
		}
		if closed {
			return cand, true, nil
		}
	}
	return nil, false, nil
}

// openReader returns a raw (unstitched) index.Reader over b's own
// hunks, declaring the hunk count from BANDTAIL when b is complete.
func openReader(ctx context.Context, b *band.Band) (*index.Reader, error) {
	declared := -1
	if closed, err := b.IsClosed(ctx); err != nil {
		return nil, err
	} else if closed {
		tail, err := b.ReadTail(ctx)
		if err != nil {
			return nil, err
		}
		declared = tail.IndexHunkCount
	}
	return index.NewReader(b.Transport(), declared), nil
}

// ReferencedBlocks returns the set of every BlockHash referenced by
// every band's index across the whole archive, used by Validate and
// by garbage-collection-adjacent tooling to find orphan blocks.
func (a *Archive) ReferencedBlocks(ctx context.Context) (map[string]bool, error) {
	seen := map[string]bool{}
	ids, err := a.ListBands(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		b, err := a.OpenBand(ctx, id)
		if err != nil {
			return nil, err
		}
		r, err := openReader(ctx, b)
		if err != nil {
			return nil, err
		}
		for {
			entry, ok, err := r.Next(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			for _, addr := range entry.Addrs {
				seen[addr.Hash] = true
			}
		}
	}
	return seen, nil
}

// Stats is the result of Validate: counts of problems found at each
// layer of the archive, mirroring original_source's
// ValidateArchiveStats/ValidateBlockDirStats.
type Stats struct {
	StructureProblems int
	BlockReadCount    int
	BlockErrorCount   int
	IndexProblems     int
	OrphanBlockCount  int
}

// HasProblems reports whether Validate found anything wrong.
// OrphanBlockCount is deliberately excluded: an orphan block wastes
// space but corrupts nothing, so it is reported as a note rather than
// a problem.
func (s Stats) HasProblems() bool {
	return s.StructureProblems > 0 || s.BlockErrorCount > 0 || s.IndexProblems > 0
}

// Validate checks the archive header, every block in the blockdir,
// and every band's index for structural problems, per spec.md §4.7.
// It does not stop at the first problem; it accumulates and reports
// all of them in Stats. It also cross-references every block against
// ReferencedBlocks and counts the ones no band's index points to as
// OrphanBlockCount, a non-fatal validation note. For every index
// Address it additionally checks, against the decompressed lengths
// collected while validating the blockdir, that [Start, Start+Len)
// lies within the referenced block's actual length, counting a
// violation as an IndexProblem the same as a dangling reference to a
// block that doesn't exist at all.
func (a *Archive) Validate(ctx context.Context) (Stats, error) {
	var stats Stats

	files, dirs, err := a.tr.ListDir(ctx, "")
	if err != nil {
		return stats, err
	}
	for _, f := range files {
		if f != headerFile {
			stats.StructureProblems++
		}
	}
	seenBand := map[string]bool{}
	for _, d := range dirs {
		if d == blockDir {
			continue
		}
		if _, err := band.ParseId(d); err != nil {
			stats.StructureProblems++
			continue
		}
		if seenBand[d] {
			stats.StructureProblems++
			continue
		}
		seenBand[d] = true
	}

	refs, err := a.ReferencedBlocks(ctx)
	if err != nil {
		return stats, err
	}

	names, err := a.blockdir.BlockNames(ctx)
	if err != nil {
		return stats, err
	}
	blockLen := make(map[string]int64, len(names))
	for _, hash := range names {
		stats.BlockReadCount++
		length, ok, err := a.blockdir.Validate(ctx, hash)
		if err != nil {
			return stats, err
		}
		if !ok {
			stats.BlockErrorCount++
		} else {
			blockLen[hash] = int64(length)
		}
		if !refs[hash] {
			stats.OrphanBlockCount++
		}
	}

	ids, err := a.ListBands(ctx)
	if err != nil {
		return stats, err
	}
	for _, id := range ids {
		b, err := a.OpenBand(ctx, id)
		if err != nil {
			stats.IndexProblems++
			continue
		}
		r, err := openReader(ctx, b)
		if err != nil {
			stats.IndexProblems++
			continue
		}
		last := ""
		haveLast := false
		for {
			entry, ok, err := r.Next(ctx)
			if err != nil {
				stats.IndexProblems++
				break
			}
			if !ok {
				break
			}
			if haveLast && !apath.Less(last, entry.Apath) {
				stats.IndexProblems++
			}
			last = entry.Apath
			haveLast = true
			for _, addr := range entry.Addrs {
				length, known := blockLen[addr.Hash]
				if !known {
					present, err := a.blockdir.Contains(ctx, addr.Hash)
					if err != nil {
						return stats, err
					}
					if !present {
						stats.IndexProblems++
					}
					continue
				}
				if addr.Start < 0 || addr.Len < 0 || addr.Start+addr.Len > length {
					stats.IndexProblems++
				}
			}
		}
	}

	return stats, nil
}
