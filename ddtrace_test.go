package ddtrace

import (
	"testing"

	"github.com/kolkov/ddtrace/internal/ddtrace/record"
)

// TestIntervalInertWithoutClock exercises spec.md §4.I: an Interval
// that never receives a clock delivers nothing on Stop.
func TestIntervalInertWithoutClock(t *testing.T) {
	iv := &Interval{thread: 0}
	iv.Start(nil)
	iv.Stop(nil)
	// No panic, no delivery attempt (iv.clock is nil, and deliver()
	// would panic dereferencing it if it did not return early) —
	// reaching here is the assertion.
}

// TestIntervalAbortDiscardsMeasurement checks Abort leaves the interval
// Stopped without ever reaching deliver.
func TestIntervalAbortDiscardsMeasurement(t *testing.T) {
	iv := &Interval{thread: 0}
	clock := NewClock(1)
	iv.Start(&clock)
	iv.Abort()
	if iv.running {
		t.Errorf("running = true after Abort, want false")
	}
}

// TestSetClockOnlyAttachesOnce checks the "attaches only if none was
// set" rule from spec.md §4.I.
func TestSetClockOnlyAttachesOnce(t *testing.T) {
	iv := &Interval{}
	first := NewClock(1)
	second := NewClock(2)

	iv.SetClock(&first)
	iv.SetClock(&second)

	if iv.clock != &first {
		t.Errorf("SetClock overwrote an already-attached clock")
	}
}

func TestReadCountersWithoutHandleIsTimeOnly(t *testing.T) {
	iv := &Interval{thread: 63} // never initialized via procinit.InitThread
	got := iv.readCounters()
	if got.CounterType != record.TimeOnly {
		t.Errorf("CounterType = %v, want TimeOnly", got.CounterType)
	}
}
