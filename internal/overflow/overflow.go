// Package overflow implements the Overflow & Back-pressure Controller:
// bookkeeping for records that cannot fit in the ring, under either a
// DROP or WAIT policy, plus the OVERFLOW/RECOVER marker protocol.
package overflow

import "sync"

// Policy selects what happens when a record does not fit.
type Policy int

const (
	// Drop silently discards records once the ring is full, after the
	// first such drop emits an OVERFLOW marker.
	Drop Policy = iota
	// Wait blocks the producer until space frees up or the policy
	// changes to Drop.
	Wait
)

// Queue holds the overflow counters, guarded by a lock distinct from the
// commit engine's primary mutex. Lock order is always: engine mutex (if
// held) first, Queue's lock second — callers must never acquire Queue's
// lock and then block trying to acquire the engine mutex.
type Queue struct {
	mu         sync.Mutex
	numDropped uint64
	extraSpace uint64
}

// RecordOverflow increments the dropped-record counter and accumulates
// the space that would have been needed to admit the record. It reports
// whether this was the first overflow since the last recovery, which is
// the caller's signal to emit a single OVERFLOW marker.
func (q *Queue) RecordOverflow(requiredBytes uint64) (firstOverflow bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	firstOverflow = q.numDropped == 0
	q.numDropped++
	q.extraSpace += requiredBytes
	return firstOverflow
}

// Snapshot returns the current counters without resetting them.
func (q *Queue) Snapshot() (numDropped, extraSpace uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.numDropped, q.extraSpace
}

// Recover zeroes both counters and returns their pre-reset values, for
// the caller to embed in a RECOVER marker record. It reports whether a
// recovery was actually pending (numDropped > 0 before the reset).
func (q *Queue) Recover() (numDropped, extraSpace uint64, hadOverflow bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	numDropped, extraSpace = q.numDropped, q.extraSpace
	hadOverflow = numDropped > 0
	q.numDropped = 0
	q.extraSpace = 0
	return numDropped, extraSpace, hadOverflow
}
