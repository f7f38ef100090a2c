//go:build !linux

package perfcounter

// openPerfEvent has no implementation outside Linux; perf_event_open is
// a Linux-only syscall. Non-Linux builds can still compile and run
// without hardware counters by treating this as a construction-time
// ErrBackendUnavailable (spec.md §4.D allows TimeOnly-only operation).
func openPerfEvent(kind Kind, flags ExclusionFlags) (Handle, error) {
	return nil, ErrBackendUnavailable
}
