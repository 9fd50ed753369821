// Package apath implements the canonical archive path type: a
// forward-slash, rooted string with a total order under which a
// directory's prefix always sorts before its children. Every walk,
// index hunk, and stitch in the engine enumerates entries in this
// order, so getting the comparator right here is load-bearing for
// the rest of the archive format.
package apath

import (
	"strings"

	"github.com/archivekit/conserve/conserveerr"
)

// Root is the apath of the backup source's top-level directory.
const Root = "/"

// Validate checks that p is a well-formed apath: rooted, forward
// slash separated, no empty components, and no "." or ".." segments.
func Validate(p string) error {
	if p == "" || p[0] != '/' {
		return conserveerr.InvalidApathf(p, "must begin with /")
	}
	if p == Root {
		return nil
	}
	if strings.HasSuffix(p, "/") {
		return conserveerr.InvalidApathf(p, "must not end with /")
	}
	for _, c := range strings.Split(p[1:], "/") {
		switch c {
		case "":
			return conserveerr.InvalidApathf(p, "empty path component")
		case ".", "..":
			return conserveerr.InvalidApathf(p, "relative path component")
		}
	}
	return nil
}

// components splits p into its path segments, excluding the leading
// "/". Root ("/") yields an empty slice.
func components(p string) []string {
	if p == Root {
		return nil
	}
	return strings.Split(p[1:], "/")
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater
// than b under the archive's total apath order: componentwise byte
// comparison, with the rule that a strict directory prefix sorts
// before its descendants.
func Compare(a, b string) int {
	if a == b {
		return 0
	}
	ca, cb := components(a), components(b)
	n := len(ca)
	if len(cb) < n {
		n = len(cb)
	}
	for i := 0; i < n; i++ {
		if ca[i] != cb[i] {
			if ca[i] < cb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ca) < len(cb):
		return -1
	case len(ca) > len(cb):
		return 1
	default:
		return 0
	}
}

// Less reports whether a sorts strictly before b.
func Less(a, b string) bool { return Compare(a, b) < 0 }

// IsStrictPrefixDir reports whether dir is a strict directory
// ancestor of p (e.g. "/a" is a strict prefix dir of "/a/b").
func IsStrictPrefixDir(dir, p string) bool {
	if dir == p {
		return false
	}
	if dir == Root {
		return p != Root
	}
	return strings.HasPrefix(p, dir+"/")
}

// Join appends name as a child component of dir, producing a
// well-formed child apath.
func Join(dir, name string) string {
	if dir == Root {
		return Root + name
	}
	return dir + "/" + name
}

// Parent returns the apath of p's containing directory. Parent(Root)
// returns Root.
func Parent(p string) string {
	if p == Root {
		return Root
	}
	i := strings.LastIndexByte(p, '/')
	if i <= 0 {
		return Root
	}
	return p[:i]
}
