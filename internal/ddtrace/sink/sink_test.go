package sink

import (
	"testing"

	"github.com/kolkov/ddtrace/internal/ddtrace/channel"
	"github.com/kolkov/ddtrace/internal/ddtrace/record"
	"github.com/kolkov/ddtrace/internal/ddtrace/sla"
	"github.com/kolkov/ddtrace/internal/ddtrace/vectorclock"
)

// TestRecordIntervalEndPushesAll tests S4's first half: a short
// interval lands in "all" but not "sla_exceeded".
func TestRecordIntervalEndPushesAll(t *testing.T) {
	SetRecordingEnabled(true)
	root := t.TempDir()

	s, err := Init(root, "svc", 7, 1e9, sla.Default()) // 1 cycle == 1ns
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	clock := vectorclock.New(1)
	s.RecordIntervalEnd(0, 50_000, record.PerfRecord{}, clock) // 50us

	consumer, err := channel.Open(s.storage.Path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer consumer.Unmap()

	var got record.IntervalRecord
	if !consumer.Storage.All.Pop(&got) {
		t.Fatalf("pop from All: got false, want true")
	}
	var discard record.IntervalRecord
	if consumer.Storage.SLAExceeded.Pop(&discard) {
		t.Errorf("pop from SLAExceeded: got true, want false (50us is under threshold)")
	}
}

// TestRecordIntervalEndSLAExceeded tests S4's second half: a long
// interval lands in both rings.
func TestRecordIntervalEndSLAExceeded(t *testing.T) {
	SetRecordingEnabled(true)
	root := t.TempDir()

	s, err := Init(root, "svc", 7, 1e9, sla.Default())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	clock := vectorclock.New(1)
	s.RecordIntervalEnd(0, 200_000, record.PerfRecord{}, clock) // 200us

	consumer, err := channel.Open(s.storage.Path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer consumer.Unmap()

	var inAll, inSLA record.IntervalRecord
	if !consumer.Storage.All.Pop(&inAll) {
		t.Fatalf("pop from All: got false, want true")
	}
	if !consumer.Storage.SLAExceeded.Pop(&inSLA) {
		t.Fatalf("pop from SLAExceeded: got false, want true")
	}
	if inAll != inSLA {
		t.Errorf("records differ between rings: %+v vs %+v", inAll, inSLA)
	}
}

// TestRecordIntervalEndGloballyDisabled tests the supplemented global
// kill switch: no record reaches either ring while disabled.
func TestRecordIntervalEndGloballyDisabled(t *testing.T) {
	root := t.TempDir()

	s, err := Init(root, "svc", 7, 1e9, sla.Default())
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer s.Close()

	SetRecordingEnabled(false)
	defer SetRecordingEnabled(true)

	s.RecordIntervalEnd(0, 200_000, record.PerfRecord{}, vectorclock.New(1))

	consumer, err := channel.Open(s.storage.Path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer consumer.Unmap()

	var discard record.IntervalRecord
	if consumer.Storage.All.Pop(&discard) {
		t.Errorf("pop from All while disabled: got true, want false")
	}
}

// TestRecordIntervalEndNilSinkIsNoop tests that a nil *Sink (a thread
// that never called InitThreadSink) is safe to call through.
func TestRecordIntervalEndNilSinkIsNoop(t *testing.T) {
	var s *Sink
	s.RecordIntervalEnd(0, 1, record.PerfRecord{}, vectorclock.New(1))
	if stats := s.DropStats(); stats != (DropStats{}) {
		t.Errorf("DropStats() on nil sink = %+v, want zero value", stats)
	}
}
