package vectorclock

import "testing"

// TestClockIncrementNewEntry tests that Increment appends a fresh entry.
func TestClockIncrementNewEntry(t *testing.T) {
	c := New(1)
	c.Increment(7)

	if c.Length != 1 {
		t.Fatalf("Length = %d, want 1", c.Length)
	}
	if c.Entries[0] != (Entry{ServerID: 7, Count: 1}) {
		t.Errorf("Entries[0] = %+v, want {7 1}", c.Entries[0])
	}
}

// TestClockIncrementExisting tests that a repeat Increment bumps the
// existing entry rather than appending a duplicate.
func TestClockIncrementExisting(t *testing.T) {
	c := New(1)
	c.Increment(7)
	c.Increment(7)
	c.Increment(7)

	if c.Length != 1 {
		t.Fatalf("Length = %d, want 1", c.Length)
	}
	if c.Entries[0].Count != 3 {
		t.Errorf("Count = %d, want 3", c.Entries[0].Count)
	}
}

// TestClockIncrementSaturates tests that Count saturates at 255.
func TestClockIncrementSaturates(t *testing.T) {
	c := New(1)
	c.Entries[0] = Entry{ServerID: 7, Count: 255}
	c.Length = 1

	c.Increment(7)

	if c.Entries[0].Count != 255 {
		t.Errorf("Count = %d, want 255 (saturated)", c.Entries[0].Count)
	}
}

// TestClockIncrementOverflowsSilently tests that incrementing past
// MaxEntries distinct server ids is a silent no-op.
func TestClockIncrementOverflowsSilently(t *testing.T) {
	c := New(1)
	for i := uint16(0); i < MaxEntries; i++ {
		c.Increment(i)
	}
	if c.Length != MaxEntries {
		t.Fatalf("Length = %d, want %d", c.Length, MaxEntries)
	}

	c.Increment(999) // would be a 9th distinct server id

	if c.Length != MaxEntries {
		t.Errorf("Length = %d after overflow increment, want unchanged %d", c.Length, MaxEntries)
	}
}

// TestClockEqual tests structural equality bounded by Length.
func TestClockEqual(t *testing.T) {
	a := New(5)
	a.Increment(1)
	a.Increment(2)

	b := New(5)
	b.Increment(1)
	b.Increment(2)
	b.Entries[7] = Entry{ServerID: 99, Count: 42} // garbage beyond Length

	if !a.Equal(b) {
		t.Errorf("Equal() = false, want true (garbage beyond Length must not matter)")
	}

	c := New(6) // different request id
	c.Increment(1)
	c.Increment(2)
	if a.Equal(c) {
		t.Errorf("Equal() = true for differing IDs, want false")
	}
}

// TestLessIrreflexive tests less_than(a,a) = false.
func TestLessIrreflexive(t *testing.T) {
	a := New(1)
	a.Increment(7)
	a.Increment(7)

	if Less(a, a) {
		t.Errorf("Less(a, a) = true, want false")
	}
}

// TestLessStrict tests a simple strict ordering.
func TestLessStrict(t *testing.T) {
	a := New(1)
	a.Increment(7)

	b := a
	b.Increment(7)

	if !Less(a, b) {
		t.Errorf("Less(a, b) = false, want true")
	}
	if Less(b, a) {
		t.Errorf("Less(b, a) = true, want false")
	}
}

// TestLessTransitive tests less_than(a,b) && less_than(b,c) => less_than(a,c).
func TestLessTransitive(t *testing.T) {
	a := New(1)
	a.Increment(7)
	b := a
	b.Increment(7)
	c := b
	c.Increment(7)

	if !Less(a, b) || !Less(b, c) {
		t.Fatalf("setup invariant broken: Less(a,b)=%v Less(b,c)=%v", Less(a, b), Less(b, c))
	}
	if !Less(a, c) {
		t.Errorf("Less(a, c) = false, want true (transitivity)")
	}
}

// TestLessAntisymmetric tests that Less(a,b) && Less(b,a) never both hold.
func TestLessAntisymmetric(t *testing.T) {
	a := New(1)
	a.Increment(7)
	b := a
	b.Increment(8)

	if Less(a, b) && Less(b, a) {
		t.Errorf("Less(a,b) and Less(b,a) both true, want at most one")
	}
}

// TestLessDifferentIDsIncomparable tests that clocks for different
// requests are never comparable.
func TestLessDifferentIDsIncomparable(t *testing.T) {
	a := New(1)
	a.Increment(7)
	b := New(2)
	b.Increment(7)
	b.Increment(7)

	if Less(a, b) || Less(b, a) {
		t.Errorf("clocks with different IDs compared as ordered, want incomparable")
	}
}

// TestLessDifferentServerSequenceIncomparable tests that differing
// server-id sequences at a shared position are incomparable, not "less".
func TestLessDifferentServerSequenceIncomparable(t *testing.T) {
	a := New(1)
	a.Increment(7)

	b := New(1)
	b.Increment(9)

	if Less(a, b) || Less(b, a) {
		t.Errorf("clocks with divergent server sequences compared as ordered, want incomparable")
	}
}
