package procinit

import "runtime"

// goroutineID returns the current goroutine's id, parsed from
// runtime.Stack output. Grounded on the teacher's getGoroutineIDSlow/
// parseGID (internal/race/api/goid_generic.go); unlike the teacher,
// InitThread calls this once per goroutine lifetime rather than on
// every traced memory access, so the ~1500ns parse cost here is
// irrelevant and the teacher's assembly fast path (a hardcoded,
// Go-version-gated offset into runtime.g) isn't worth the fragility —
// see DESIGN.md.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parseGID(buf[:n])
}

// parseGID extracts the numeric goroutine id from a "goroutine 123
// [running]:..." stack trace prefix, or 0 if the format is unexpected.
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "
	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}

	var gid int64
	for i := len(prefix); i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}
	return gid
}
