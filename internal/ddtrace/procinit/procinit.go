// Package procinit implements the process-wide initialization and
// dense thread-id registry of spec.md §4.K: one call to Init per
// process, followed by one InitThread (or InitThreadSink) call per
// traced goroutine.
package procinit

import (
	"log/slog"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/kolkov/ddtrace/internal/ddtrace/cycleclock"
	"github.com/kolkov/ddtrace/internal/ddtrace/perfcounter"
	"github.com/kolkov/ddtrace/internal/ddtrace/sink"
	"github.com/kolkov/ddtrace/internal/ddtrace/sla"
)

// MaxThreads bounds the dense ThreadID space; exhausting it is a fatal
// initialization error (spec.md §3, §7).
const MaxThreads = 64

// ThreadID is a dense, process-local, never-reused identifier for a
// traced goroutine, in [0, MaxThreads).
type ThreadID int

var (
	mu          sync.Mutex
	initialized bool

	counterKind    perfcounter.Kind
	counterBackend perfcounter.Backend
	serverID       uint16
	cyclesPerSec   float64
	root           string
	rule           sla.Rule

	nextThreadID int
	goroutineIDs sync.Map // int64 (goroutine id) -> ThreadID

	handles [MaxThreads]perfcounter.Handle
)

// SetRecordingEnabled delegates to sink's global kill switch
// (supplemented from original_source/, see SPEC_FULL.md §3).
func SetRecordingEnabled(enabled bool) {
	sink.SetRecordingEnabled(enabled)
}

// Init sets the process-wide counter kind and server id. Idempotent:
// a second call is a no-op (callers don't need to guard it themselves).
// Must precede any InitThread call.
func Init(kind perfcounter.Kind, backend perfcounter.Backend, server uint16, cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	if initialized {
		return nil
	}

	counterKind = kind
	counterBackend = backend
	serverID = server
	root = cfg.Root
	if root == "" {
		root = DefaultRoot
	}
	rule = sla.Default()
	cyclesPerSec = cycleclock.CalibrateCyclesPerSec()

	initialized = true
	return nil
}

// InitThread assigns the next dense ThreadID to the calling goroutine
// (idempotent per goroutine: repeat calls from the same goroutine
// return its existing id) and opens its hardware counter handle.
// Fatal if MaxThreads is exhausted, per spec.md §3/§7.
func InitThread() (ThreadID, error) {
	gid := goroutineID()
	if v, ok := goroutineIDs.Load(gid); ok {
		return v.(ThreadID), nil
	}

	mu.Lock()
	defer mu.Unlock()

	if !initialized {
		return 0, errors.New("procinit: InitThread called before Init")
	}
	if v, ok := goroutineIDs.Load(gid); ok {
		return v.(ThreadID), nil // lost the race with another call on this goroutine
	}
	if nextThreadID >= MaxThreads {
		slog.Error("procinit: thread id space exhausted", "max_threads", MaxThreads)
		os.Exit(1)
	}

	id := ThreadID(nextThreadID)
	nextThreadID++

	handle, err := perfcounter.Open(counterKind, perfcounter.ExclusionFlags{}, counterBackend)
	if err != nil {
		return 0, errors.Wrapf(err, "procinit: open perf counter for thread %d", id)
	}
	handles[id] = handle

	goroutineIDs.Store(gid, id)
	return id, nil
}

// InitThreadSink is a convenience wrapping InitThread followed by
// sink.Init for this thread's channel.
func InitThreadSink(baseName string) (ThreadID, *sink.Sink, error) {
	id, err := InitThread()
	if err != nil {
		return 0, nil, err
	}

	mu.Lock()
	r, cps, sid, slaRule := root, cyclesPerSec, serverID, rule
	mu.Unlock()

	s, err := sink.Init(r, baseName, sid, cps, slaRule)
	if err != nil {
		return id, nil, errors.Wrapf(err, "procinit: sink init for thread %d", id)
	}
	return id, s, nil
}

// CounterHandle returns the hardware counter handle opened for id by
// InitThread, or nil if id was never initialized.
func CounterHandle(id ThreadID) perfcounter.Handle {
	if id < 0 || int(id) >= MaxThreads {
		return nil
	}
	return handles[id]
}

// CyclesPerSec returns the process-wide calibrated conversion factor
// captured once at Init.
func CyclesPerSec() float64 {
	return cyclesPerSec
}

// ServerID returns the process-wide logical server id set at Init.
func ServerID() uint16 {
	return serverID
}

// CounterKind returns the hardware counter kind set at Init, so callers
// can label a record with the counter type actually configured for this
// process instead of assuming one (spec.md §3).
func CounterKind() perfcounter.Kind {
	return counterKind
}
