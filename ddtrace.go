// Package ddtrace is the public API for recording hardware- and
// cycle-counter-delimited intervals published to shared-memory
// channels for an out-of-process consumer to drain.
//
// This package is a thin facade over the internal packages that do the
// actual work, mirroring the teacher's own top-level delegation-only
// surface (internal.Init() called straight through from race.Init()):
// every package-level function here does nothing but forward. Interval
// is the exception: it keeps the start snapshot and computes the counter
// diff itself before handing the record to the sink.
package ddtrace

import (
	"github.com/kolkov/ddtrace/internal/ddtrace/cycleclock"
	"github.com/kolkov/ddtrace/internal/ddtrace/perfcounter"
	"github.com/kolkov/ddtrace/internal/ddtrace/procinit"
	"github.com/kolkov/ddtrace/internal/ddtrace/record"
	"github.com/kolkov/ddtrace/internal/ddtrace/sink"
	"github.com/kolkov/ddtrace/internal/ddtrace/vectorclock"
)

// ThreadID is the dense per-goroutine identifier assigned by InitThread.
type ThreadID = procinit.ThreadID

// Clock is re-exported so callers don't need to import the internal
// vectorclock package directly.
type Clock = vectorclock.Clock

// NewClock returns a fresh vector clock for the request identified by id.
func NewClock(id uint64) Clock {
	return vectorclock.New(id)
}

// Config is the process-wide configuration consumed by Init.
type Config = procinit.Config

// LoadConfig reads Config from a YAML file; a missing file yields the
// built-in defaults rather than an error.
func LoadConfig(path string) (Config, error) {
	return procinit.LoadConfig(path)
}

// Init sets the process-wide counter kind, backend, and server id. Safe
// to call multiple times; only the first call takes effect. Must
// precede any InitThread call.
func Init(cfg Config, kind perfcounter.Kind, backend perfcounter.Backend) error {
	return procinit.Init(kind, backend, cfg.ServerID, cfg)
}

// MustInit is Init, panicking on error — the Go idiom for "this failure
// is fatal, abort the process" (spec.md §7: initialization failures are
// fatal).
func MustInit(cfg Config, kind perfcounter.Kind, backend perfcounter.Backend) {
	if err := Init(cfg, kind, backend); err != nil {
		panic(err)
	}
}

// InitFromConfig is Init with the counter kind and backend derived
// from cfg's CounterKind/CounterBackend strings (as loaded by
// LoadConfig) instead of passed explicitly — for callers that drive
// counter selection entirely from a deployment's YAML config file.
func InitFromConfig(cfg Config) error {
	return procinit.InitFromConfig(cfg)
}

// InitThread assigns the calling goroutine a dense ThreadID and opens
// its hardware counter handle. Must be called exactly once per
// goroutine that ever records an interval.
func InitThread() (ThreadID, error) {
	return procinit.InitThread()
}

// InitThreadSink is InitThread followed by creating this thread's
// channel, returning a ready-to-use Interval factory bound to both.
func InitThreadSink(baseName string) (*Owner, error) {
	id, s, err := procinit.InitThreadSink(baseName)
	if err != nil {
		return nil, err
	}
	return &Owner{thread: id, sink: s}, nil
}

// Owner binds a ThreadID to its Sink, letting callers mint new
// Intervals without re-threading both values through every call site.
type Owner struct {
	thread ThreadID
	sink   *sink.Sink
}

// NewInterval returns a fresh, Stopped Interval owned by this thread,
// with no clock attached.
func (o *Owner) NewInterval() *Interval {
	return &Interval{thread: o.thread, sink: o.sink}
}

// Close unmaps this thread's channel without unlinking it (spec.md
// §4.G: the consumer alone decides when to reap).
func (o *Owner) Close() error {
	return o.sink.Close()
}

// Interval is a scoped start/stop/checkpoint/abort measurement, per
// spec.md §4.I. The zero value is Stopped with no clock attached; a
// nil clock at Stop/Checkpoint time makes the interval inert (no
// record delivered) rather than an error.
type Interval struct {
	thread  ThreadID
	sink    *sink.Sink
	clock   *Clock
	running bool

	startCycles   uint64
	startCounters record.PerfRecord
}

// SetClock attaches a clock if none is already attached; otherwise a
// no-op. Matches spec.md §4.I's "set_clock attaches one only if none
// was set."
func (iv *Interval) SetClock(clock *Clock) {
	if iv.clock == nil {
		iv.clock = clock
	}
}

// Start transitions Stopped → Running: reads the cycle counter and the
// thread's hardware counter. clock may be nil; if non-nil it attaches
// via the same only-if-unset rule as SetClock.
func (iv *Interval) Start(clock *Clock) {
	iv.SetClock(clock)

	iv.startCycles = cycleclock.Now()
	iv.startCounters = iv.readCounters()
	iv.running = true
}

// Stop transitions Running → Stopped: computes the counter diff,
// increments the clock for this process's server id, and delivers one
// record. A no-op if the interval isn't Running. If no clock was ever
// attached, the interval is inert and delivers nothing.
func (iv *Interval) Stop(clock *Clock) {
	iv.SetClock(clock)
	if !iv.running {
		return
	}
	iv.running = false
	iv.deliver(cycleclock.Now(), iv.readCounters())
}

// Checkpoint delivers a record for [start, now), then starts a new
// interval in place with start = now, reusing the just-read counter
// snapshot as the new interval's start reading (spec.md §4.I: "atomic
// from the measurement's point of view"). A no-op if not Running.
func (iv *Interval) Checkpoint(clock *Clock) {
	iv.SetClock(clock)
	if !iv.running {
		return
	}
	now := cycleclock.Now()
	counters := iv.readCounters()
	iv.deliver(now, counters)
	iv.startCycles = now
	iv.startCounters = counters
}

// Abort discards the in-flight measurement without delivering a
// record — the escape hatch for exceptional control flow, per
// spec.md §4.I.
func (iv *Interval) Abort() {
	iv.running = false
}

func (iv *Interval) readCounters() record.PerfRecord {
	h := procinit.CounterHandle(iv.thread)
	if h == nil {
		return record.PerfRecord{CounterType: record.TimeOnly}
	}
	v, err := h.Read()
	if err != nil {
		return record.PerfRecord{CounterType: record.TimeOnly}
	}
	return record.PerfRecord{Counters: [record.MaxCountersPerType]uint64{v}, CounterType: procinit.CounterKind().CounterType()}
}

func (iv *Interval) deliver(endCycles uint64, endCounters record.PerfRecord) {
	if iv.clock == nil {
		return // inert: no clock ever attached
	}
	diff := record.Subtract(iv.startCounters, endCounters)
	iv.clock.Increment(procinit.ServerID())
	iv.sink.RecordIntervalEnd(iv.startCycles, endCycles, diff, *iv.clock)
}
