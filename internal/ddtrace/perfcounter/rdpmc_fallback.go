//go:build linux && !amd64

package perfcounter

// rdpmc has no portable equivalent outside amd64; non-amd64 Linux
// builds always take the read(2) fallback path in Read.
func rdpmc(index uint32) (uint64, bool) {
	return 0, false
}
