// Package stitch implements cross-band index stitching: presenting a
// target band's partial index, merged with entries past its cutoff
// point drawn from the newest complete predecessor, as one coherent
// apath-ordered sequence. This is the Go rendering of the behavior
// original_source's stored_tree.rs calls an "incomplete version" view;
// the teacher has nothing equivalent since its snapshot model has no
// notion of an interrupted, resumable write. Modeled as a pull-based
// `Next` state machine per spec.md §9's "iterator chains for
// stitching" design note, the same shape the teacher uses for its
// importer's Scan() channel, just synchronous instead of channel-fed.
package stitch

import (
	"context"

	"github.com/archivekit/conserve/apath"
	"github.com/archivekit/conserve/archive"
	"github.com/archivekit/conserve/band"
	"github.com/archivekit/conserve/index"
)

// Iterator yields IndexEntry records in strictly increasing apath
// order for a (possibly incomplete) target band, filling any tail
// past the target's last written apath from its nearest complete
// predecessor.
type Iterator struct {
	ctx context.Context

	target      *index.Reader
	targetDone  bool
	predecessor *index.Reader
	cutoff      string
	haveCutoff  bool
	usingPred   bool
}

// Open builds a stitched Iterator for band id within a. If id's band
// is complete, the iterator is simply its own index. Otherwise the
// newest complete band older than id supplies entries past the
// target's last written apath.
func Open(ctx context.Context, a *archive.Archive, id band.Id) (*Iterator, error) {
	target, err := a.OpenBand(ctx, id)
	if err != nil {
		return nil, err
	}
	closed, err := target.IsClosed(ctx)
	if err != nil {
		return nil, err
	}

	declared := -1
	if closed {
		tail, err := target.ReadTail(ctx)
		if err != nil {
			return nil, err
		}
		declared = tail.IndexHunkCount
	}
	targetReader := index.NewReader(target.Transport(), declared)

	it := &Iterator{ctx: ctx, target: targetReader}

	if closed {
		return it, nil
	}

	// Determine the cutoff apath: the maximum apath written so far in
	// the target's partial index. We scan it once to find the cutoff,
	// then build a fresh reader to actually stream it (the reader has
	// no rewind).
	scan := index.NewReader(target.Transport(), -1)
	cutoff := ""
	have := false
	for {
		e, ok, err := scan.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		cutoff = e.Apath
		have = true
	}
	it.cutoff = cutoff
	it.haveCutoff = have
	it.target = index.NewReader(target.Transport(), -1)

	ids, err := a.ListBands(ctx)
	if err != nil {
		return nil, err
	}
	var predId band.Id
	foundPred := false
	for i := len(ids) - 1; i >= 0; i-- {
		if !ids[i].Less(id) {
			continue
		}
		cand, err := a.OpenBand(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		closed, err := cand.IsClosed(ctx)
		if err != nil {
			return nil, err
		}
		if closed {
			predId = ids[i]
			foundPred = true
			break
		}
	}
	if foundPred {
		predBand, err := a.OpenBand(ctx, predId)
		if err != nil {
			return nil, err
		}
		tail, err := predBand.ReadTail(ctx)
		if err != nil {
			return nil, err
		}
		it.predecessor = index.NewReader(predBand.Transport(), tail.IndexHunkCount)
	}

	return it, nil
}

// Next returns the next stitched entry, or ok=false when exhausted.
func (it *Iterator) Next() (index.Entry, bool, error) {
	if !it.targetDone {
		e, ok, err := it.target.Next(it.ctx)
		if err != nil {
			return index.Entry{}, false, err
		}
		if ok {
			return e, true, nil
		}
		it.targetDone = true
	}

	if it.predecessor == nil {
		return index.Entry{}, false, nil
	}

	for {
		e, ok, err := it.predecessor.Next(it.ctx)
		if err != nil {
			return index.Entry{}, false, err
		}
		if !ok {
			return index.Entry{}, false, nil
		}
		if it.haveCutoff && !apath.Less(it.cutoff, e.Apath) {
			continue
		}
		return e, true, nil
	}
}
