// Package sink implements the per-thread producer side of a channel:
// formatting finished intervals into IntervalRecords and pushing them
// into the owning channel's two rings.
package sink

import (
	"sync/atomic"

	"github.com/kolkov/ddtrace/internal/ddtrace/channel"
	"github.com/kolkov/ddtrace/internal/ddtrace/record"
	"github.com/kolkov/ddtrace/internal/ddtrace/sla"
	"github.com/kolkov/ddtrace/internal/ddtrace/vectorclock"
)

// recordingEnabled is the global kill switch from original_source/'s
// RecordingEnabled (supplemented feature, not named in spec.md §4.G but
// alluded to as "globally disabled" — see SPEC_FULL.md §3).
var recordingEnabled atomic.Bool

func init() {
	recordingEnabled.Store(true)
}

// SetRecordingEnabled toggles whether RecordIntervalEnd does any work at
// all. Checked on every call, so toggling it off removes essentially
// all per-interval cost immediately.
func SetRecordingEnabled(enabled bool) {
	recordingEnabled.Store(enabled)
}

// RecordingEnabled reports the current state of the global switch.
func RecordingEnabled() bool {
	return recordingEnabled.Load()
}

// DropStats reports how many records this Sink has silently dropped,
// per ring, since Init (supplemented from original_source/, see
// SPEC_FULL.md §3 — the original keeps a per-sink drop counter for
// diagnostics without logging on the hot path).
type DropStats struct {
	All         uint64
	SLAExceeded uint64
}

// Sink owns one mapped channel and pushes finished intervals into it.
// A Sink must be used by exactly one goroutine (spec.md §5): the one
// that owns the channel's write side.
type Sink struct {
	storage      *channel.MappedStorage
	rule         sla.Rule
	cyclesPerSec float64
	serverID     uint16

	dropsAll uint64
	dropsSLA uint64
}

// Init performs spec.md §4.E's publication sequence for one new
// channel and returns a Sink ready to record. Every failure here is
// fatal per spec.md §7 — construction failures should not be retried
// by the caller.
func Init(root, baseName string, serverID uint16, cyclesPerSec float64, rule sla.Rule) (*Sink, error) {
	storage, err := channel.Create(root, baseName)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		rule = sla.Default()
	}
	return &Sink{
		storage:      storage,
		rule:         rule,
		cyclesPerSec: cyclesPerSec,
		serverID:     serverID,
	}, nil
}

// RecordIntervalEnd builds an IntervalRecord and pushes it into the
// "all" ring, then — if the SLA rule matches — also into the
// "sla_exceeded" ring. A full ring drops the record silently; this
// never blocks and never returns an error (spec.md §4.G, §7: "after
// init succeeds, the sink never fails").
//
// No-op if recording is globally disabled or this Sink is nil (a nil
// Sink models "this thread never called InitThreadSink").
func (s *Sink) RecordIntervalEnd(startCycles, endCycles uint64, countersDiff record.PerfRecord, clock vectorclock.Clock) {
	if s == nil || !RecordingEnabled() {
		return
	}

	rec := record.IntervalRecord{
		StartCycles:  startCycles,
		EndCycles:    endCycles,
		Clock:        clock,
		CyclesPerSec: s.cyclesPerSec,
		ServerID:     s.serverID,
		CountersDiff: countersDiff,
	}

	if !s.storage.Storage.All.Push(rec) {
		atomic.AddUint64(&s.dropsAll, 1)
	}

	if s.rule(rec) {
		if !s.storage.Storage.SLAExceeded.Push(rec) {
			atomic.AddUint64(&s.dropsSLA, 1)
		}
	}
}

// DropStats returns a snapshot of this Sink's drop counters.
func (s *Sink) DropStats() DropStats {
	if s == nil {
		return DropStats{}
	}
	return DropStats{
		All:         atomic.LoadUint64(&s.dropsAll),
		SLAExceeded: atomic.LoadUint64(&s.dropsSLA),
	}
}

// Close unmaps the channel without unlinking it: per spec.md §4.G, the
// sink's destructor unmaps only, leaving the file for the consumer to
// reap once it observes the channel is dead.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.storage.Unmap()
}
