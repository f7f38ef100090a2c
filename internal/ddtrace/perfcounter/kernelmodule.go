package perfcounter

// openKernelModule would open a counter backed by a cooperating kernel
// module that exposes pre-programmed fixed MSR indices directly,
// bypassing perf_event_open entirely. Building or loading that module is
// out of scope (spec.md §1, Non-goals); the Go-side contract exists so
// callers can select the backend without a build-tag change, and get a
// clear error instead of a silent fallback to the other backend.
func openKernelModule(kind Kind, flags ExclusionFlags) (Handle, error) {
	return nil, ErrBackendUnavailable
}
