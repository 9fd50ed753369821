// Package backup implements the backup pipeline: walk the source
// tree in apath order, chunk each file into fixed-size blocks, hash
// and dedupe them through the archive's blockdir with a bounded
// worker pool, and emit index entries preserving walk order
// regardless of which block finished hashing first. The walk itself
// is grounded on the teacher's snapshot/importer/fs.FSImporter.Scan
// (filepath.WalkDir plus os.Lstat for symlinks); the worker pool uses
// golang.org/x/sync/errgroup, the fan-out primitive cockroachdb-pebble
// carries in its go.mod, in place of the teacher's raw goroutine+
// channel scan loop, because here every file's blocks must rendezvous
// before that file's IndexEntry can be emitted. Extended attribute
// capture, when enabled, reuses the teacher's
// snapshot/importer/fs/xattr.go list-then-get loop via
// github.com/pkg/xattr. Owner/group capture follows the teacher's
// snapshot/importer/fs.walkDirectory: a syscall.Stat_t gives the
// numeric uid/gid, resolved to names via os/user.LookupId and
// LookupGroupId.
package backup

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/xattr"
	"golang.org/x/sync/errgroup"

	"github.com/archivekit/conserve/apath"
	"github.com/archivekit/conserve/archive"
	"github.com/archivekit/conserve/band"
	"github.com/archivekit/conserve/clock"
	"github.com/archivekit/conserve/conserveerr"
	"github.com/archivekit/conserve/index"
	"github.com/archivekit/conserve/logger"
	"github.com/archivekit/conserve/policy"
	"github.com/archivekit/conserve/profiler"
	"github.com/archivekit/conserve/progress"
)

// TargetBlockSize is the maximum uncompressed size of one block, per
// spec.md §3.
const TargetBlockSize = 1 << 20

// Options configures one backup run. It is passed by value and never
// mutated once a run starts, per spec.md §9's immutable-options-record
// design note.
type Options struct {
	Exclude            *policy.ExcludeSet
	MaxEntriesPerHunk  int
	TargetBlockSize    int64
	Threads            int
	StrictSourceErrors bool
	CaptureXattrs      bool
	Clock              clock.Clock
	Progress           progress.Sink
}

// DefaultOptions returns the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntriesPerHunk: index.HunkEntryLimit,
		TargetBlockSize:   TargetBlockSize,
		Threads:           runtime.NumCPU(),
		Clock:             clock.System{},
		Progress:          progress.Noop{},
	}
}

func (o Options) normalized() Options {
	if o.MaxEntriesPerHunk <= 0 {
		o.MaxEntriesPerHunk = index.HunkEntryLimit
	}
	if o.TargetBlockSize <= 0 {
		o.TargetBlockSize = TargetBlockSize
	}
	if o.Threads <= 0 {
		o.Threads = runtime.NumCPU()
	}
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	if o.Progress == nil {
		o.Progress = progress.Noop{}
	}
	return o
}

// walkEntry is one filesystem object discovered during the walk,
// already converted to its apath.
type walkEntry struct {
	apath  string
	kind   index.Kind
	info   os.FileInfo
	fsPath string
	target string // symlink target, if kind == Symlink
}

// Run performs one backup of sourceRoot into archive a, writing a new
// band. On success the band's BANDTAIL is written and the completed
// band id is returned, along with a Snapshot of files/dirs/symlinks/
// bytes/blocks/errors accumulated over the run, per spec.md §9's
// stats-accumulator requirement (grounded on original_source's
// stats.rs CopyStats). opts.Progress, if set, keeps receiving the
// same updates live via progress.Tee. On error, the band is left open
// (no BANDTAIL) so the stitcher can still serve a partial restore.
func Run(ctx context.Context, a *archive.Archive, sourceRoot string, opts Options) (band.Id, progress.Snapshot, error) {
	opts = opts.normalized()
	t0 := time.Now()
	defer func() { profiler.RecordEvent("backup.Run", time.Since(t0)) }()

	stats := &progress.Counters{}
	opts.Progress = progress.Tee(opts.Progress, stats)

	entries, err := walk(sourceRoot, opts)
	if err != nil {
		return band.Id{}, stats.Snapshot(), err
	}
	logger.Info("backup: walked %d entries under %s", len(entries), sourceRoot)

	now := opts.Clock.Now()
	b, err := a.CreateBand(ctx, band.Head{
		StartTime: now.Unix(),
		Hostname:  hostname(),
		Source:    sourceRoot,
	})
	if err != nil {
		return band.Id{}, stats.Snapshot(), err
	}

	writer := index.NewWriterWithLimit(b.Transport(), opts.MaxEntriesPerHunk)
	bd := a.Blockdir()

	for _, we := range entries {
		opts.Progress.CurrentPath(we.apath)
		var entry index.Entry
		switch we.kind {
		case index.KindDir:
			entry = dirEntry(we, opts)
			opts.Progress.Dirs(1)
		case index.KindSymlink:
			entry = symlinkEntry(we)
			opts.Progress.Symlinks(1)
		case index.KindFile:
			entry, err = fileEntry(ctx, bd, we, opts)
			if err != nil {
				if opts.StrictSourceErrors {
					return band.Id{}, stats.Snapshot(), err
				}
				logger.Warn("backup: skipping %s: %v", we.apath, err)
				opts.Progress.Errors(1)
				continue
			}
			opts.Progress.Files(1)
		}
		if err := writer.Add(ctx, entry); err != nil {
			return band.Id{}, stats.Snapshot(), err
		}
	}

	if err := writer.Flush(ctx); err != nil {
		return band.Id{}, stats.Snapshot(), err
	}

	end := opts.Clock.Now()
	if err := b.Close(ctx, band.Tail{
		EndTime:        end.Unix(),
		IndexHunkCount: writer.HunkCount(),
	}); err != nil {
		return band.Id{}, stats.Snapshot(), err
	}

	return b.Id, stats.Snapshot(), nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return ""
	}
	return h
}

func dirEntry(we walkEntry, opts Options) index.Entry {
	uname, gname, uid, gid := ownership(we.info)
	return index.Entry{
		Apath:    we.apath,
		Kind:     index.KindDir,
		Mtime:    we.info.ModTime().Unix(),
		UnixMode: uint32(we.info.Mode().Perm()),
		User:     uname,
		Group:    gname,
		OwnerUID: uid,
		OwnerGID: gid,
		Xattrs:   captureXattrs(we.fsPath, opts),
	}
}

// ownership reads the uid/gid off info's platform-specific Sys() value
// and resolves them to names, the same stat-then-lookup pair the
// teacher's snapshot/importer/fs.walkDirectory performs via
// objects.FileInfoFromStat plus os/user.LookupId/LookupGroupId. A
// failed name lookup (no nss entry for the id) is not an error: the
// numeric id is still captured and restore only needs the id.
func ownership(info os.FileInfo) (uname, gname string, uid, gid *int) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return "", "", nil, nil
	}
	u := int(stat.Uid)
	g := int(stat.Gid)
	uid, gid = &u, &g

	if pw, err := user.LookupId(fmt.Sprintf("%d", u)); err == nil {
		uname = pw.Username
	}
	if gr, err := user.LookupGroupId(fmt.Sprintf("%d", g)); err == nil {
		gname = gr.Name
	}
	return uname, gname, uid, gid
}

// captureXattrs reads we's extended attributes when opts.CaptureXattrs
// is set, the same list-then-get loop as the teacher's
// snapshot/importer/fs.getExtendedAttributes, except a List or Get
// failure here is treated as "no xattrs" rather than aborting the
// backup: many filesystems (tmpfs, some network mounts) simply don't
// support them.
func captureXattrs(path string, opts Options) map[string][]byte {
	if !opts.CaptureXattrs {
		return nil
	}
	names, err := xattr.List(path)
	if err != nil || len(names) == 0 {
		return nil
	}
	attrs := make(map[string][]byte, len(names))
	for _, name := range names {
		val, err := xattr.Get(path, name)
		if err != nil {
			continue
		}
		attrs[name] = val
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func symlinkEntry(we walkEntry) index.Entry {
	uname, gname, uid, gid := ownership(we.info)
	return index.Entry{
		Apath:    we.apath,
		Kind:     index.KindSymlink,
		Mtime:    we.info.ModTime().Unix(),
		UnixMode: uint32(we.info.Mode().Perm()),
		Target:   we.target,
		User:     uname,
		Group:    gname,
		OwnerUID: uid,
		OwnerGID: gid,
	}
}

// fileEntry reads the file in TargetBlockSize chunks, hashes and
// dedupes each chunk concurrently through bd, and waits for every
// chunk to land before returning the IndexEntry with addresses in
// file order.
func fileEntry(ctx context.Context, bd blockStore, we walkEntry, opts Options) (index.Entry, error) {
	f, err := os.Open(we.fsPath)
	if err != nil {
		return index.Entry{}, conserveerr.Iof(we.apath, err)
	}
	defer f.Close()

	size := we.info.Size()
	nChunks := int((size + opts.TargetBlockSize - 1) / opts.TargetBlockSize)
	if nChunks == 0 {
		nChunks = 1 // empty files still produce one zero-length block slot
	}
	addrs := make([]index.Addr, nChunks)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Threads)

	for i := 0; i < nChunks; i++ {
		i := i
		offset := int64(i) * opts.TargetBlockSize
		length := opts.TargetBlockSize
		if offset+length > size {
			length = size - offset
		}
		g.Go(func() error {
			buf := make([]byte, length)
			if length > 0 {
				if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
					return conserveerr.Iof(we.apath, err)
				}
			}
			hash, compressedLen, err := bd.Store(gctx, buf)
			if err != nil {
				return err
			}
			opts.Progress.BytesRead(int64(len(buf)))
			if compressedLen > 0 {
				opts.Progress.BlocksWritten(1)
				opts.Progress.BytesCompressed(int64(compressedLen))
			} else {
				opts.Progress.BlocksReused(1)
			}
			addrs[i] = index.Addr{Hash: hash, Start: 0, Len: length}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return index.Entry{}, err
	}

	uname, gname, uid, gid := ownership(we.info)
	return index.Entry{
		Apath:    we.apath,
		Kind:     index.KindFile,
		Mtime:    we.info.ModTime().Unix(),
		Size:     size,
		Addrs:    addrs,
		UnixMode: uint32(we.info.Mode().Perm()),
		User:     uname,
		Group:    gname,
		OwnerUID: uid,
		OwnerGID: gid,
		Xattrs:   captureXattrs(we.fsPath, opts),
	}, nil
}

// blockStore is the subset of *blockdir.Blockdir the backup pipeline
// depends on, kept narrow so fileEntry can be exercised with a fake
// in tests without constructing a real archive.
type blockStore interface {
	Store(ctx context.Context, buf []byte) (hash string, compressedLen int, err error)
}

// walk lists sourceRoot in apath order, applying opts.Exclude, and
// returns every directory, file, and symlink found.
func walk(sourceRoot string, opts Options) ([]walkEntry, error) {
	clean := filepath.Clean(sourceRoot)
	var entries []walkEntry

	err := filepath.WalkDir(clean, func(fsPath string, d fs.DirEntry, err error) error {
		if err != nil {
			if opts.StrictSourceErrors {
				return err
			}
			logger.Warn("backup: walk error at %s: %v", fsPath, err)
			return nil
		}

		rel := strings.TrimPrefix(strings.TrimPrefix(fsPath, clean), string(os.PathSeparator))
		ap := apath.Root
		if rel != "" {
			ap = apath.Root + filepath.ToSlash(rel)
		}

		info, err := d.Info()
		if err != nil {
			if opts.StrictSourceErrors {
				return conserveerr.Iof(ap, err)
			}
			logger.Warn("backup: stat error at %s: %v", ap, err)
			return nil
		}

		kind := index.KindFile
		var target string
		switch {
		case info.IsDir():
			kind = index.KindDir
		case info.Mode()&os.ModeSymlink != 0:
			kind = index.KindSymlink
			t, err := os.Readlink(fsPath)
			if err != nil {
				if opts.StrictSourceErrors {
					return conserveerr.Iof(ap, err)
				}
				logger.Warn("backup: readlink error at %s: %v", ap, err)
				return nil
			}
			target = t
		case !info.Mode().IsRegular():
			// Skip devices, sockets, etc: not modeled by IndexEntry.
			return nil
		}

		if opts.Exclude.Matches(ap, kind) {
			if kind == index.KindDir {
				return filepath.SkipDir
			}
			return nil
		}

		entries = append(entries, walkEntry{apath: ap, kind: kind, info: info, fsPath: fsPath, target: target})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool { return apath.Less(entries[i].apath, entries[j].apath) })
	return entries, nil
}
