// Package vectorclock implements the bounded per-request causality stamp
// carried by every IntervalRecord.
//
// Unlike a classic vector clock (one counter per participant, unbounded),
// this is a bounded, fixed-capacity stamp: at most MaxEntries distinct
// server ids are tracked per request, each with a saturating 8-bit visit
// count. This keeps the type fixed-size and byte-copyable, which matters
// because it is embedded verbatim in a cross-process shared-memory record
// (see internal/ddtrace/record) and must survive a raw memcpy intact.
//
// Key operations:
//   - Increment: advance the count for one server id on this request.
//   - Less: strict happens-before check used to build a partial order.
//
// Performance targets: Increment and Less are both O(MaxEntries) with
// MaxEntries=8, zero allocations.
package vectorclock

const (
	// MaxEntries is the maximum number of distinct server ids a single
	// Clock can track. Fixed-size for zero-allocation, byte-copyable
	// operation and to keep the wire layout constant.
	MaxEntries = 8
)

// Entry pairs a server id with a saturating visit count.
type Entry struct {
	ServerID uint16
	Count    uint8
}

// Clock is a bounded per-request causality stamp.
//
// Entries[0:Length] are the meaningful entries; bytes beyond Length are
// unspecified (but still byte-copied along with the rest of the struct,
// matching spec.md's stated invariant). Clock is a plain value type —
// assignment is a full copy, which is required for safe use as a field
// embedded in a ring-buffer slot shared across the mmap boundary.
type Clock struct {
	ID      uint64
	Length  uint64
	Entries [MaxEntries]Entry
}

// New returns a zero-value Clock stamped with the given request id.
func New(id uint64) Clock {
	return Clock{ID: id}
}

// Increment advances the count for serverID, saturating at 255.
//
// If serverID already has an entry within [0, Length), its count is
// incremented (saturating). Otherwise, if Length < MaxEntries, a new
// entry is appended. If the clock is already full, the increment is a
// silent no-op — overflow is defined behavior, not an error (spec.md
// §3: "overflow is silent and defined").
//
// Increment is not safe for concurrent use: callers guarantee a given
// Clock is touched by one goroutine at a time (spec.md §4.C).
func (c *Clock) Increment(serverID uint16) {
	for i := uint64(0); i < c.Length; i++ {
		if c.Entries[i].ServerID == serverID {
			if c.Entries[i].Count < 255 {
				c.Entries[i].Count++
			}
			return
		}
	}
	if c.Length < MaxEntries {
		c.Entries[c.Length] = Entry{ServerID: serverID, Count: 1}
		c.Length++
	}
	// Length == MaxEntries and serverID not found: silent overflow.
}

// Equal reports structural equality: same ID, Length, and entries
// within [0, Length). Bytes beyond Length are not compared, per
// spec.md's equality definition.
func (c Clock) Equal(other Clock) bool {
	if c.ID != other.ID || c.Length != other.Length {
		return false
	}
	for i := uint64(0); i < c.Length; i++ {
		if c.Entries[i] != other.Entries[i] {
			return false
		}
	}
	return true
}

// Less reports whether a strictly happens-before b.
//
// Entries are compared position-wise (the sequence in which server ids
// were first seen matters, not just the set of ids): at any position
// held by both clocks, the server id must agree or the clocks are
// incomparable (false). A position held by only one side implies a
// count of 0 on the other. Less(a,b) holds iff every compared count
// satisfies a<=b with at least one strict a<b.
//
// Clocks stamping different requests (different ID) are always
// incomparable, per spec.md §8 property 3. Less is not antisymmetric in
// the way a total order is: Less(a,b) and Less(b,a) can both be false
// without either being "equal or greater" — callers must not read
// !Less(a,b) as "b happens-before-or-equal a" (spec.md §4.C).
func Less(a, b Clock) bool {
	if a.ID != b.ID {
		return false
	}

	max := a.Length
	if b.Length > max {
		max = b.Length
	}

	strict := false
	for i := uint64(0); i < max; i++ {
		haveA := i < a.Length
		haveB := i < b.Length

		var av, bv uint8
		switch {
		case haveA && haveB:
			if a.Entries[i].ServerID != b.Entries[i].ServerID {
				return false // different server-id sequences: incomparable
			}
			av, bv = a.Entries[i].Count, b.Entries[i].Count
		case haveA:
			av = a.Entries[i].Count
		case haveB:
			bv = b.Entries[i].Count
		}

		if av > bv {
			return false
		}
		if av < bv {
			strict = true
		}
	}
	return strict
}
