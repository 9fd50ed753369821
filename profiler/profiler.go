// Package profiler accumulates min/avg/max timings for named events
// across the engine (currently backup.Run and restore.Run) and dumps
// them through logger.Profile when Display is called. It is a
// process-wide singleton, since nothing in this engine runs two
// backups or restores concurrently within one process and a single
// shared table is simpler than threading a profiler value through
// every call.  Display is gated by "conserve backup/restore
// --profile": the flag calls logger.EnableProfiling before the run
// and Display after it, so the table only prints when an operator
// asks for it.
package profiler

import (
	"sort"
	"sync"
	"time"

	"github.com/archivekit/conserve/logger"
)

// eventStats folds every recorded occurrence of one named event into
// a running count, total, min, and max, the four numbers Display
// needs; keeping them in one struct per event (rather than four
// parallel maps keyed by event name) means there's one lookup to
// update instead of four kept in sync by hand.
type eventStats struct {
	count           uint64
	total, min, max time.Duration
}

func (s *eventStats) record(d time.Duration) {
	if s.count == 0 {
		s.min, s.max = d, d
	} else {
		if d < s.min {
			s.min = d
		}
		if d > s.max {
			s.max = d
		}
	}
	s.total += d
	s.count++
}

func (s eventStats) avg() time.Duration {
	return s.total / time.Duration(s.count)
}

var (
	mu     sync.Mutex
	events = make(map[string]*eventStats)
)

// RecordEvent folds one timed occurrence of event into its running
// min/avg/max/count tally.
func RecordEvent(event string, duration time.Duration) {
	mu.Lock()
	defer mu.Unlock()

	s, ok := events[event]
	if !ok {
		s = &eventStats{}
		events[event] = s
	}
	s.record(duration)
}

// Display prints one logger.Profile line per recorded event, in
// name-sorted order so two runs over the same workload produce
// diffable output.
func Display() {
	mu.Lock()
	defer mu.Unlock()

	names := make([]string, 0, len(events))
	for name := range events {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		s := events[name]
		logger.Profile("%s: calls=%d, min=%s, avg=%s, max=%s, total=%s",
			name, s.count, s.min, s.avg(), s.max, s.total)
	}
}
