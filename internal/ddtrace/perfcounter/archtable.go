package perfcounter

// perf_event_open(2) type/config constants, reproduced locally rather
// than trusted to golang.org/x/sys/unix's PerfEventAttr helpers: the
// exact set of exported PERF_* constant names has shifted across
// x/sys/unix versions, while the kernel ABI values themselves are a
// stable, documented contract (perf_event_open(2), linux/perf_event.h).
const (
	perfTypeHardware uint32 = 0
	perfTypeHWCache  uint32 = 3

	perfCountHWCPUCycles       uint64 = 0
	perfCountHWCacheReferences uint64 = 2
	perfCountHWCacheMisses     uint64 = 3

	// perf_hw_cache_id / _op_id / _result_id, packed per the ABI:
	// config = id | (op_id << 8) | (result_id << 16).
	perfCountHWCacheLL           uint64 = 2 // PERF_COUNT_HW_CACHE_LL
	perfCountHWCacheOpRead       uint64 = 0
	perfCountHWCacheResultMiss   uint64 = 1
)

// eventConfig is the (type, config) pair perf_event_open needs to select
// a specific hardware event.
type eventConfig struct {
	typ    uint32
	config uint64
}

// lookupEvent resolves a Kind to the perf_event_attr type/config pair.
// Returns ok=false for combinations this platform doesn't expose, per
// spec.md §4.D ("opening an unsupported counter is a construction-time
// error, not a silent zero reading").
func lookupEvent(kind Kind) (eventConfig, bool) {
	switch kind {
	case Cycles:
		return eventConfig{typ: perfTypeHardware, config: perfCountHWCPUCycles}, true
	case L3Reference:
		return eventConfig{typ: perfTypeHardware, config: perfCountHWCacheReferences}, true
	case L3Miss:
		return eventConfig{typ: perfTypeHardware, config: perfCountHWCacheMisses}, true
	case L2EvictionClean, L2EvictionDirty:
		// Neither a clean nor a dirty eviction count is exposed as a
		// distinct generic hardware event; both map to the LL-cache
		// read-miss event, which is the closest available proxy.
		config := perfCountHWCacheLL | (perfCountHWCacheOpRead << 8) | (perfCountHWCacheResultMiss << 16)
		return eventConfig{typ: perfTypeHWCache, config: config}, true
	default:
		return eventConfig{}, false
	}
}
