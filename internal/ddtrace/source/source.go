// Package source implements the consumer side of channel discovery,
// draining, and reaping (spec.md §4.H).
package source

import (
	"path/filepath"
	"time"

	"github.com/agilira/go-timecache"

	"github.com/kolkov/ddtrace/internal/ddtrace/channel"
	"github.com/kolkov/ddtrace/internal/ddtrace/record"
)

// SelectRecordsReuseCounter is the number of pop calls the selection
// algorithm spends on one channel before advancing the round-robin
// iterator (spec.md §4.H).
const SelectRecordsReuseCounter = 8

// LivenessGracePeriod is the minimum time between a channel's first
// "looks dead" observation and the second one that actually triggers a
// reap (spec.md §9 design note: "rely on a heartbeat... declaring a
// channel dead after a grace period", adapted here to gate the existing
// refcount probe with two consecutive dead observations rather than
// switching to a heartbeat scheme, since spec.md §4.E's probe is
// refcount-based, not heartbeat-based).
const LivenessGracePeriod = 2 * time.Second

type mappedChannel struct {
	storage      *channel.MappedStorage
	firstDeadObs time.Time // first "looks dead" observation; zero if none pending
}

// Source discovers and drains every channel published under
// <root>/<baseName>. A Source must be used by exactly one goroutine
// (spec.md §5): "the consumer may serve many channels but must do so
// sequentially from a single thread."
type Source struct {
	root     string
	baseName string

	beacon        *channel.Beacon
	cachedVersion uint64
	clock         *timecache.TimeCache

	channels map[string]*mappedChannel
	order    []string // stable iteration order; rebuilt on UpdateChannels
	cursor   int
	reuses   int
}

// Init opens the channels-version beacon for baseName and performs an
// initial scan, mirroring spec.md §4.E: "same directory creation
// idempotent; map the channelsVersions beacon; run an initial channel
// scan."
func Init(root, baseName string) (*Source, error) {
	beacon, err := channel.OpenBeacon(root, baseName)
	if err != nil {
		return nil, err
	}
	s := &Source{
		root:     root,
		baseName: baseName,
		beacon:   beacon,
		channels: make(map[string]*mappedChannel),
		clock:    timecache.NewWithResolution(100 * time.Millisecond),
	}
	if err := s.UpdateChannels(); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateChannels enumerates rec_* files, maps any new ones, and resets
// the round-robin iterator. Existing channels already in the set are
// left mapped as-is (spec.md §4.H).
func (s *Source) UpdateChannels() error {
	matches, err := filepath.Glob(channel.RecordGlob(s.root, s.baseName))
	if err != nil {
		return err
	}

	for _, path := range matches {
		if _, ok := s.channels[path]; ok {
			continue
		}
		storage, err := channel.Open(path)
		if err != nil {
			// The file may have been reaped by a racing consumer, or be
			// mid-rename; skip it this round rather than failing the scan.
			continue
		}
		s.channels[path] = &mappedChannel{storage: storage}
	}

	s.rebuildOrder()
	s.cachedVersion = s.beacon.Load()
	return nil
}

func (s *Source) rebuildOrder() {
	s.order = s.order[:0]
	for path := range s.channels {
		s.order = append(s.order, path)
	}
	s.cursor = 0
	s.reuses = 0
}

// CleanupDeadChannels applies the liveness probe to every open channel
// and reaps those declared dead, per spec.md §4.E/§9: a channel is
// reaped only after two consecutive dead observations separated by at
// least LivenessGracePeriod, so a momentarily-ambiguous probe result
// never unlinks a file whose producer is still alive.
func (s *Source) CleanupDeadChannels() {
	now := s.clock.CachedTime()
	dirty := false

	for path, mc := range s.channels {
		if channel.IsLive(mc.storage.Path) {
			mc.firstDeadObs = time.Time{}
			continue
		}
		if mc.firstDeadObs.IsZero() {
			mc.firstDeadObs = now
			continue
		}
		if now.Sub(mc.firstDeadObs) < LivenessGracePeriod {
			continue
		}

		mc.storage.Reap()
		delete(s.channels, path)
		dirty = true
	}

	if dirty {
		s.rebuildOrder()
	}
}

// selectChannel runs the channel-selection algorithm of spec.md §4.H:
// rescan if the beacon moved, then stay on the current channel for
// SelectRecordsReuseCounter calls before advancing.
func (s *Source) selectChannel() *mappedChannel {
	if s.beacon.Load() != s.cachedVersion {
		s.UpdateChannels()
	}
	if len(s.order) == 0 {
		return nil
	}

	if s.reuses >= SelectRecordsReuseCounter {
		s.cursor = (s.cursor + 1) % len(s.order)
		s.reuses = 0
	}
	s.reuses++

	return s.channels[s.order[s.cursor]]
}

// PopRecord pops one record from the selected channel's "all" ring.
// Returns false if no channel is open or the chosen ring is empty — per
// spec.md §4.H, "a single call only inspects one channel."
func (s *Source) PopRecord(out *record.IntervalRecord) bool {
	mc := s.selectChannel()
	if mc == nil {
		return false
	}
	return mc.storage.Storage.All.Pop(out)
}

// PopSLAExceededRecord pops one record from the selected channel's
// "sla_exceeded" ring.
func (s *Source) PopSLAExceededRecord(out *record.IntervalRecord) bool {
	mc := s.selectChannel()
	if mc == nil {
		return false
	}
	return mc.storage.Storage.SLAExceeded.Pop(out)
}

// Close unmaps every open channel and the beacon. It does not unlink
// any files — unlinking is CleanupDeadChannels's job, driven by
// liveness, not shutdown.
func (s *Source) Close() error {
	var firstErr error
	for _, mc := range s.channels {
		if err := mc.storage.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.beacon.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	s.clock.Stop()
	return firstErr
}
