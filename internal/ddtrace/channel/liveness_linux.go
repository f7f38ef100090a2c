//go:build linux

package channel

import (
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// RefCount counts distinct open file descriptors across the system that
// point at path's device+inode, by walking /proc/*/fd (spec.md §4.E).
// Counting is inherently racy: a process can open or close the fd
// between the Readdir and the Readlink. The consumer's own fd (if it
// keeps the file open) is included in the count.
func RefCount(path string) (int, error) {
	target, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	stat, ok := target.Sys().(*unix.Stat_t)
	if !ok {
		return 0, nil
	}
	wantDev, wantIno := stat.Dev, stat.Ino

	procs, err := os.ReadDir("/proc")
	if err != nil {
		return 0, err
	}

	count := 0
	for _, p := range procs {
		if _, err := strconv.Atoi(p.Name()); err != nil {
			continue // not a pid directory
		}
		fdDir := "/proc/" + p.Name() + "/fd"
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue // process exited or permission denied; skip, don't fail the probe
		}
		for _, fd := range fds {
			var st unix.Stat_t
			if err := unix.Stat(fdDir+"/"+fd.Name(), &st); err != nil {
				continue
			}
			if st.Dev == wantDev && st.Ino == wantIno {
				count++
			}
		}
	}
	return count, nil
}

// IsLive reports whether path still has more than one open reference
// (the consumer's own open file descriptor counts as one; mappings are
// not counted). A probe error is treated
// as "can't tell, assume live" — the liveness-probe-ambiguity policy of
// spec.md §7 is report-but-retry, never unlink on uncertainty.
func IsLive(path string) bool {
	n, err := RefCount(path)
	if err != nil {
		return true
	}
	return n > 1
}
