package channel

import (
	"sync/atomic"

	"github.com/kolkov/ddtrace/internal/ddtrace/record"
)

// recordRing duplicates spscring.Ring's algorithm over a fixed array
// instead of a slice: Go has no const-generic array length, so the
// generic Ring[T] used for in-process testing can't directly back a
// struct that is also mmap'd across process boundaries (the array must
// be inline in RecordStorage, not a separately-allocated slice header
// pointing at heap memory meaningless to another process). The
// push/pop/full/empty logic is intentionally identical to
// internal/ddtrace/spscring.Ring.
type recordRing struct {
	write uint64
	read  uint64
	buf   [RecordQueueSize]record.IntervalRecord
}

// Push appends v, returning false (and dropping v) if the ring is full.
func (r *recordRing) Push(v record.IntervalRecord) bool {
	write := atomic.LoadUint64(&r.write)
	read := atomic.LoadUint64(&r.read)
	next := (write + 1) % RecordQueueSize
	if next == read {
		return false
	}
	r.buf[write] = v
	atomic.StoreUint64(&r.write, next)
	return true
}

// Pop removes and returns the oldest element, or returns false if empty.
func (r *recordRing) Pop(out *record.IntervalRecord) bool {
	read := atomic.LoadUint64(&r.read)
	write := atomic.LoadUint64(&r.write)
	if read == write {
		return false
	}
	*out = r.buf[read]
	atomic.StoreUint64(&r.read, (read+1)%RecordQueueSize)
	return true
}

// RecordStorage is the exact byte layout mapped into one channel file:
// two independent SPSC rings, sized so sizeof(RecordStorage) is stable
// across a build (a size change requires a SchemaVersion bump).
type RecordStorage struct {
	All         recordRing
	SLAExceeded recordRing
}
