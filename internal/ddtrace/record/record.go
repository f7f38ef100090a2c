// Package record defines the fixed-size, byte-copyable payload carried
// through every channel ring: IntervalRecord and its embedded PerfRecord.
//
// Go gives no way to force compiler-inserted padding out of a struct the
// way C's __attribute__((packed)) does. The channel rings hold
// IntervalRecord in Go's native in-memory layout, which is not packed:
// each vectorclock.Entry is padded to 4 bytes and PerfRecord is aligned
// to 8 bytes after ServerID, so an in-memory record is larger than
// WireSize and its byte offsets differ from the wire layout. Producer and
// consumer share it only because both are built from this package; no
// marshal step runs on the hot path. MarshalBinary/UnmarshalBinary
// produce the packed little-endian wire layout (WireSize bytes), used for
// the on-disk dump consumed by external tools (spec.md §6).
package record

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/kolkov/ddtrace/internal/ddtrace/vectorclock"
)

// MaxCountersPerType is the number of raw counter slots tracked per
// record. spec.md §3 fixes this at 1 for the current counter-type set;
// the array form keeps the schema extensible without a layout change
// the day a counter type needs more than one raw value (e.g. paired
// events).
const MaxCountersPerType = 1

// CounterType identifies which hardware counter (if any) counters_diff
// holds, so that records of mixed counter types can coexist in one
// consumer without ambiguity.
type CounterType uint8

const (
	// TimeOnly means counters_diff carries no hardware counter data;
	// only the cycle-derived timing is meaningful.
	TimeOnly CounterType = iota
	// UserspaceCycles is a CPU cycle count taken from user-space-visible
	// hardware counters (distinct from the cycleclock.Now() TSC read:
	// this is a dedicated PMU cycle event, see perfcounter.Cycles).
	UserspaceCycles
	// L3Reference counts last-level-cache references.
	L3Reference
	// L3Miss counts last-level-cache misses.
	L3Miss
	// Invalid marks a record whose counter type could not be
	// determined; selector predicates never return ok for it.
	Invalid CounterType = 255
)

// String returns a short label for the counter type, used in the CSV
// dumper and log lines.
func (c CounterType) String() string {
	switch c {
	case TimeOnly:
		return "time_only"
	case UserspaceCycles:
		return "userspace_cycles"
	case L3Reference:
		return "l3_reference"
	case L3Miss:
		return "l3_miss"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// PerfRecord holds a diffed hardware counter reading for one interval.
type PerfRecord struct {
	Counters    [MaxCountersPerType]uint64
	CounterType CounterType
}

// Subtract computes diff.Counters[i] = end.Counters[i] - start.Counters[i]
// in 64-bit arithmetic, two's-complement wraparound permitted: hardware
// counters are monotonic non-decreasing over short intervals, so the
// diff recovers the observed delta even across a wrap. CounterType is
// copied from end into diff (both start and end must agree; callers
// that mix counter types get Invalid).
func Subtract(start, end PerfRecord) PerfRecord {
	var diff PerfRecord
	for i := range diff.Counters {
		diff.Counters[i] = end.Counters[i] - start.Counters[i]
	}
	if start.CounterType == end.CounterType {
		diff.CounterType = end.CounterType
	} else {
		diff.CounterType = Invalid
	}
	return diff
}

// UserspaceCyclesValue returns the userspace-cycles counter and whether
// this record's counter type is UserspaceCycles.
func (p PerfRecord) UserspaceCyclesValue() (uint64, bool) {
	return p.Counters[0], p.CounterType == UserspaceCycles
}

// L3ReferenceValue returns the L3-reference counter and whether this
// record's counter type is L3Reference.
func (p PerfRecord) L3ReferenceValue() (uint64, bool) {
	return p.Counters[0], p.CounterType == L3Reference
}

// L3MissValue returns the L3-miss counter and whether this record's
// counter type is L3Miss.
func (p PerfRecord) L3MissValue() (uint64, bool) {
	return p.Counters[0], p.CounterType == L3Miss
}

// IntervalRecord is the fixed-size unit of data pushed into a channel's
// rings: one start/stop measurement of a traced interval.
type IntervalRecord struct {
	StartCycles  uint64
	EndCycles    uint64
	Clock        vectorclock.Clock
	CyclesPerSec float64
	ServerID     uint16
	CountersDiff PerfRecord
}

// wireSize is the exact encoded size produced by MarshalBinary: the
// dumper and any out-of-process reader rely on this being stable across
// builds sharing the same schema version (spec.md §6).
const wireSize = 8 + 8 + (8 + 8 + vectorclock.MaxEntries*3) + 8 + 2 + (8*MaxCountersPerType + 1)

// WireSize is the exact byte length of one MarshalBinary-encoded
// record; external readers (e.g. the dumper) need it to frame a
// contiguous record stream without a length prefix.
const WireSize = wireSize

// MarshalBinary encodes the record in the canonical little-endian wire
// layout used by the on-disk dumper contract (spec.md §6). This is
// never called on the record_interval_end hot path; the in-memory
// struct is pushed into the ring directly.
func (r IntervalRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, wireSize)
	off := 0

	binary.LittleEndian.PutUint64(buf[off:], r.StartCycles)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], r.EndCycles)
	off += 8

	binary.LittleEndian.PutUint64(buf[off:], r.Clock.ID)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], r.Clock.Length)
	off += 8
	for i := 0; i < vectorclock.MaxEntries; i++ {
		binary.LittleEndian.PutUint16(buf[off:], r.Clock.Entries[i].ServerID)
		off += 2
		buf[off] = r.Clock.Entries[i].Count
		off++
	}

	binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(r.CyclesPerSec))
	off += 8

	binary.LittleEndian.PutUint16(buf[off:], r.ServerID)
	off += 2

	for i := 0; i < MaxCountersPerType; i++ {
		binary.LittleEndian.PutUint64(buf[off:], r.CountersDiff.Counters[i])
		off += 8
	}
	buf[off] = byte(r.CountersDiff.CounterType)
	off++

	return buf, nil
}

// UnmarshalBinary decodes a record previously produced by MarshalBinary.
func (r *IntervalRecord) UnmarshalBinary(buf []byte) error {
	if len(buf) < wireSize {
		return errors.Errorf("record: short buffer: got %d bytes, want %d", len(buf), wireSize)
	}
	off := 0

	r.StartCycles = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	r.EndCycles = binary.LittleEndian.Uint64(buf[off:])
	off += 8

	r.Clock.ID = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	r.Clock.Length = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	for i := 0; i < vectorclock.MaxEntries; i++ {
		r.Clock.Entries[i].ServerID = binary.LittleEndian.Uint16(buf[off:])
		off += 2
		r.Clock.Entries[i].Count = buf[off]
		off++
	}

	r.CyclesPerSec = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
	off += 8

	r.ServerID = binary.LittleEndian.Uint16(buf[off:])
	off += 2

	for i := 0; i < MaxCountersPerType; i++ {
		r.CountersDiff.Counters[i] = binary.LittleEndian.Uint64(buf[off:])
		off += 8
	}
	r.CountersDiff.CounterType = CounterType(buf[off])
	off++

	return nil
}
