// Package progress implements the Progress sink collaborator of
// spec.md §6: monotonic counters plus a current-path reporter, with a
// no-op implementation the backup/restore pipelines default to. The
// counter set mirrors original_source's monitor::counters::Counter
// enum and atomic Counters struct (Go gives us sync/atomic in place
// of Rust's AtomicUsize array), extended with the dirs/symlinks/
// blocks-reused/errors counters original_source's stats.rs CopyStats
// also tracks; the human-readable summary formatting follows the
// teacher's objects.FileInfo HumanSize convention, built on
// github.com/dustin/go-humanize. Tee lets backup.Run and restore.Run
// keep forwarding updates to a caller-supplied Sink while still
// accumulating their own authoritative Snapshot to return.
package progress

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// Sink receives progress updates during a backup, restore, or
// validate run. Implementations must be safe for concurrent use: the
// backup pipeline's worker pool reports from multiple goroutines.
type Sink interface {
	CurrentPath(apath string)
	Files(n int64)
	Dirs(n int64)
	Symlinks(n int64)
	BytesRead(n int64)
	BlocksWritten(n int64)
	BlocksReused(n int64)
	BytesCompressed(n int64)
	Errors(n int64)
}

// Counters is a concrete, atomic-backed Sink. The zero value is
// ready to use.
type Counters struct {
	files           int64
	dirs            int64
	symlinks        int64
	bytesRead       int64
	blocksWritten   int64
	blocksReused    int64
	bytesCompressed int64
	errors          int64
}

func (c *Counters) CurrentPath(apath string) {}

func (c *Counters) Files(n int64)           { atomic.AddInt64(&c.files, n) }
func (c *Counters) Dirs(n int64)            { atomic.AddInt64(&c.dirs, n) }
func (c *Counters) Symlinks(n int64)        { atomic.AddInt64(&c.symlinks, n) }
func (c *Counters) BytesRead(n int64)       { atomic.AddInt64(&c.bytesRead, n) }
func (c *Counters) BlocksWritten(n int64)   { atomic.AddInt64(&c.blocksWritten, n) }
func (c *Counters) BlocksReused(n int64)    { atomic.AddInt64(&c.blocksReused, n) }
func (c *Counters) BytesCompressed(n int64) { atomic.AddInt64(&c.bytesCompressed, n) }
func (c *Counters) Errors(n int64)          { atomic.AddInt64(&c.errors, n) }

// Snapshot is a point-in-time read of a Counters.
type Snapshot struct {
	Files           int64
	Dirs            int64
	Symlinks        int64
	BytesRead       int64
	BlocksWritten   int64
	BlocksReused    int64
	BytesCompressed int64
	Errors          int64
}

// Snapshot reads the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Files:           atomic.LoadInt64(&c.files),
		Dirs:            atomic.LoadInt64(&c.dirs),
		Symlinks:        atomic.LoadInt64(&c.symlinks),
		BytesRead:       atomic.LoadInt64(&c.bytesRead),
		BlocksWritten:   atomic.LoadInt64(&c.blocksWritten),
		BlocksReused:    atomic.LoadInt64(&c.blocksReused),
		BytesCompressed: atomic.LoadInt64(&c.bytesCompressed),
		Errors:          atomic.LoadInt64(&c.errors),
	}
}

// String renders the snapshot as a human-readable one-liner, e.g.
// "12 files, 2 dirs, 1 symlinks, 3.4 MB read, 9 blocks written (3
// reused), 1.1 MB compressed, 0 errors".
func (s Snapshot) String() string {
	return fmt.Sprintf("%s files, %s dirs, %s symlinks, %s read, %s blocks written (%s reused), %s compressed, %s errors",
		humanize.Comma(s.Files), humanize.Comma(s.Dirs), humanize.Comma(s.Symlinks),
		humanize.Bytes(uint64(s.BytesRead)), humanize.Comma(s.BlocksWritten), humanize.Comma(s.BlocksReused),
		humanize.Bytes(uint64(s.BytesCompressed)), humanize.Comma(s.Errors))
}

// Noop is a Sink that discards every update, the default for
// pipeline entry points that don't want progress reporting.
type Noop struct{}

func (Noop) CurrentPath(apath string)   {}
func (Noop) Files(n int64)              {}
func (Noop) Dirs(n int64)               {}
func (Noop) Symlinks(n int64)           {}
func (Noop) BytesRead(n int64)          {}
func (Noop) BlocksWritten(n int64)      {}
func (Noop) BlocksReused(n int64)       {}
func (Noop) BytesCompressed(n int64)    {}
func (Noop) Errors(n int64)             {}

// tee forwards every update to both underlying sinks.
type tee struct{ a, b Sink }

// Tee returns a Sink that fans every update out to both a and b, so a
// pipeline can feed a caller-supplied sink for live reporting while
// also accumulating its own Snapshot to return from Run.
func Tee(a, b Sink) Sink { return tee{a: a, b: b} }

func (t tee) CurrentPath(apath string) { t.a.CurrentPath(apath); t.b.CurrentPath(apath) }
func (t tee) Files(n int64)            { t.a.Files(n); t.b.Files(n) }
func (t tee) Dirs(n int64)             { t.a.Dirs(n); t.b.Dirs(n) }
func (t tee) Symlinks(n int64)         { t.a.Symlinks(n); t.b.Symlinks(n) }
func (t tee) BytesRead(n int64)        { t.a.BytesRead(n); t.b.BytesRead(n) }
func (t tee) BlocksWritten(n int64)    { t.a.BlocksWritten(n); t.b.BlocksWritten(n) }
func (t tee) BlocksReused(n int64)     { t.a.BlocksReused(n); t.b.BlocksReused(n) }
func (t tee) BytesCompressed(n int64)  { t.a.BytesCompressed(n); t.b.BytesCompressed(n) }
func (t tee) Errors(n int64)           { t.a.Errors(n); t.b.Errors(n) }

var _ Sink = (*Counters)(nil)
var _ Sink = Noop{}
var _ Sink = tee{}
