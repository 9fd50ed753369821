// Package policy implements the exclusion predicate the backup walk
// consults per apath, the same glob usage the teacher's backup
// subcommand gives its callers for -exclude flags.
package policy

import (
	"github.com/gobwas/glob"

	"github.com/archivekit/conserve/index"
)

// ExcludeSet is a compiled set of glob patterns. A path matching any
// pattern is excluded from the walk.
type ExcludeSet struct {
	globs []glob.Glob
}

// NewExcludeSet compiles patterns (shell-style globs, e.g. "*.tmp",
// "/cache/**") into an ExcludeSet.
func NewExcludeSet(patterns ...string) (*ExcludeSet, error) {
	set := &ExcludeSet{}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		set.globs = append(set.globs, g)
	}
	return set, nil
}

// Matches reports whether apath should be excluded. kind is accepted
// for symmetry with the spec's exclusion predicate contract, though
// the current pattern language does not distinguish by kind.
func (s *ExcludeSet) Matches(apath string, kind index.Kind) bool {
	if s == nil {
		return false
	}
	for _, g := range s.globs {
		if g.Match(apath) {
			return true
		}
	}
	return false
}
