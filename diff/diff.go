// Package diff implements change detection between two index
// streams: a streaming merge-join by apath that classifies every
// entry as Added, Removed, Modified, or Unchanged, per spec.md §4.8.
// There is no teacher analogue (the teacher's snapshot model has no
// band-to-band diff); this is built from scratch in the project's
// plain-struct, explicit-error style.
package diff

import (
	"github.com/archivekit/conserve/apath"
	"github.com/archivekit/conserve/index"
)

// ChangeKind classifies how an apath differs between two index
// streams.
type ChangeKind int

const (
	Unchanged ChangeKind = iota
	Added
	Removed
	Modified
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "Added"
	case Removed:
		return "Removed"
	case Modified:
		return "Modified"
	default:
		return "Unchanged"
	}
}

// Change describes one apath's status between a "from" stream (A)
// and a "to" stream (B). Old is the entry from A (zero value if
// Kind == Added); New is the entry from B (zero value if Kind ==
// Removed).
type Change struct {
	Apath string
	Kind  ChangeKind
	Old   index.Entry
	New   index.Entry
}

// Entries is the minimal pull interface diff needs from an index
// stream: a stitch.Iterator satisfies it directly.
type Entries interface {
	Next() (index.Entry, bool, error)
}

// Compare performs a streaming merge-join of a and b by apath,
// yielding one Change per apath in combined apath order. The inputs
// are consumed one entry at a time, but every Change (Unchanged ones
// included) is collected into the returned slice, so memory grows
// with the number of apaths in the two streams.
func Compare(a, b Entries) ([]Change, error) {
	var changes []Change

	ae, aok, err := a.Next()
	if err != nil {
		return nil, err
	}
	be, bok, err := b.Next()
	if err != nil {
		return nil, err
	}

	for aok || bok {
		switch {
		case aok && (!bok || apath.Less(ae.Apath, be.Apath)):
			changes = append(changes, Change{Apath: ae.Apath, Kind: Removed, Old: ae})
			if ae, aok, err = a.Next(); err != nil {
				return nil, err
			}
		case bok && (!aok || apath.Less(be.Apath, ae.Apath)):
			changes = append(changes, Change{Apath: be.Apath, Kind: Added, New: be})
			if be, bok, err = b.Next(); err != nil {
				return nil, err
			}
		default:
			kind := Unchanged
			if !entriesEqual(ae, be) {
				kind = Modified
			}
			changes = append(changes, Change{Apath: ae.Apath, Kind: kind, Old: ae, New: be})
			if ae, aok, err = a.Next(); err != nil {
				return nil, err
			}
			if be, bok, err = b.Next(); err != nil {
				return nil, err
			}
		}
	}

	return changes, nil
}

func entriesEqual(a, b index.Entry) bool {
	if a.Kind != b.Kind || a.Mtime != b.Mtime || a.Size != b.Size ||
		a.UnixMode != b.UnixMode || a.Target != b.Target {
		return false
	}
	if len(a.Addrs) != len(b.Addrs) {
		return false
	}
	for i := range a.Addrs {
		if a.Addrs[i] != b.Addrs[i] {
			return false
		}
	}
	return true
}
