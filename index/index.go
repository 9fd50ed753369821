// Package index implements the per-band hunk writer and reader:
// ordered, chunked persistence of IndexEntry records as Snappy-
// compressed JSON arrays. It plays the role the teacher's
// objects.Object msgpack Serialize/NewObjectFromBytes pair plays for
// packfile objects, re-expressed as the spec's JSON wire format and
// fanned out into 10,000-hunk directory groups instead of a flat
// two-hex blob layout.
package index

import (
	"encoding/json"
	"fmt"

	"context"

	"github.com/archivekit/conserve/apath"
	"github.com/archivekit/conserve/compression"
	"github.com/archivekit/conserve/conserveerr"
	"github.com/archivekit/conserve/transport"
)

// HunkEntryLimit is the number of IndexEntry records buffered before
// a hunk is flushed, per spec.md §4.3.
const HunkEntryLimit = 1000

// Kind enumerates the possible IndexEntry.Kind values.
type Kind string

const (
	KindFile    Kind = "File"
	KindDir     Kind = "Dir"
	KindSymlink Kind = "Symlink"
)

// Addr is a (hash, start, length) slice into a block.
type Addr struct {
	Hash  string `json:"hash"`
	Start int64  `json:"start"`
	Len   int64  `json:"len"`
}

// Entry is one filesystem object captured in a snapshot.
type Entry struct {
	Apath      string            `json:"apath"`
	Kind       Kind              `json:"kind"`
	Mtime      int64             `json:"mtime"`
	MtimeNanos int64             `json:"mtime_nanos,omitempty"`
	Size       int64             `json:"size,omitempty"`
	Addrs      []Addr            `json:"addrs,omitempty"`
	Target     string            `json:"target,omitempty"`
	UnixMode   uint32            `json:"unix_mode"`
	User       string            `json:"user"`
	Group      string            `json:"group"`
	OwnerUID   *int              `json:"owner_uid,omitempty"`
	OwnerGID   *int              `json:"owner_gid,omitempty"`
	Xattrs     map[string][]byte `json:"xattrs,omitempty"`
}

// hunkPath returns the archive-relative path of hunk number n, fanned
// out in groups of 10,000 per spec.md §6.
func hunkPath(n int) string {
	return fmt.Sprintf("i/%05d/%04d", n/10000, n%10000)
}

// Writer accumulates IndexEntry records in apath order and flushes
// them to hunks of at most HunkEntryLimit entries.
type Writer struct {
	tr         transport.Transport
	entryLimit int
	buf        []Entry
	nextHunk   int
	lastPath   string
	haveLast   bool
}

// NewWriter returns a Writer that flushes hunks through tr, which
// should be a transport rooted at the band directory, buffering up
// to HunkEntryLimit entries per hunk.
func NewWriter(tr transport.Transport) *Writer {
	return NewWriterWithLimit(tr, HunkEntryLimit)
}

// NewWriterWithLimit is NewWriter with a caller-chosen entries-per-hunk
// limit, for callers honoring Options.MaxEntriesPerHunk.
func NewWriterWithLimit(tr transport.Transport, entryLimit int) *Writer {
	if entryLimit <= 0 {
		entryLimit = HunkEntryLimit
	}
	return &Writer{tr: tr, entryLimit: entryLimit}
}

// Add appends entry to the buffer, flushing a hunk if it is full.
// entry.Apath must be strictly greater than every previously added
// entry's apath; violating this is a programmer error.
func (w *Writer) Add(ctx context.Context, entry Entry) error {
	if w.haveLast && !apath.Less(w.lastPath, entry.Apath) {
		panic(fmt.Sprintf("index.Writer: apath %q did not strictly increase past %q", entry.Apath, w.lastPath))
	}
	w.lastPath = entry.Apath
	w.haveLast = true

	w.buf = append(w.buf, entry)
	if len(w.buf) >= w.entryLimit {
		return w.Flush(ctx)
	}
	return nil
}

// Flush writes any buffered entries as the next hunk, even if it is
// smaller than HunkEntryLimit. It is a no-op if the buffer is empty.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	encoded, err := json.Marshal(w.buf)
	if err != nil {
		return conserveerr.Wrap(conserveerr.IndexCorrupt, "encoding hunk", err)
	}
	compressed := compression.Deflate(encoded)
	if err := w.tr.Write(ctx, hunkPath(w.nextHunk), compressed); err != nil {
		return err
	}
	w.nextHunk++
	w.buf = w.buf[:0]
	return nil
}

// HunkCount returns the number of hunks written so far, for
// recording into BANDTAIL.
func (w *Writer) HunkCount() int { return w.nextHunk }

// Reader streams hunks from a band's index in numeric order, yielding
// entries within each hunk in their stored order.
type Reader struct {
	tr      transport.Transport
	next    int
	known   int // total hunk count, if declared complete by BANDTAIL; -1 if unknown
	current []Entry
	pos     int
	done    bool
	err     error
}

// NewReader returns a Reader over the hunks at tr. declaredCount is
// the BANDTAIL.index_hunk_count if the band is complete, or -1 if the
// band has no BANDTAIL and the reader should stop at the first
// missing hunk.
func NewReader(tr transport.Transport, declaredCount int) *Reader {
	return &Reader{tr: tr, known: declaredCount}
}

// Next returns the next entry, or ok=false when the index is
// exhausted. A non-nil error from a prior call is sticky.
func (r *Reader) Next(ctx context.Context) (entry Entry, ok bool, err error) {
	if r.err != nil {
		return Entry{}, false, r.err
	}
	for r.pos >= len(r.current) {
		if r.done {
			return Entry{}, false, nil
		}
		if err := r.loadHunk(ctx); err != nil {
			r.err = err
			return Entry{}, false, err
		}
		if r.done {
			return Entry{}, false, nil
		}
	}
	e := r.current[r.pos]
	r.pos++
	return e, true, nil
}

func (r *Reader) loadHunk(ctx context.Context) error {
	path := hunkPath(r.next)
	exists, err := r.tr.Exists(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		if r.known >= 0 && r.next < r.known {
			return conserveerr.IndexCorruptf("", r.next, "hunk missing but BANDTAIL declares it present")
		}
		r.done = true
		return nil
	}
	raw, err := r.tr.Read(ctx, path)
	if err != nil {
		return err
	}
	decompressed, err := compression.Inflate(raw)
	if err != nil {
		return conserveerr.Wrap(conserveerr.IndexCorrupt, fmt.Sprintf("decompressing hunk %d", r.next), err)
	}
	var entries []Entry
	if err := json.Unmarshal(decompressed, &entries); err != nil {
		return conserveerr.Wrap(conserveerr.IndexCorrupt, fmt.Sprintf("parsing hunk %d", r.next), err)
	}
	r.current = entries
	r.pos = 0
	r.next++
	return nil
}
