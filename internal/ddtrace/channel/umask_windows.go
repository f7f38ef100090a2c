//go:build windows

package channel

// Windows has no umask; shared-memory channel files are not a supported
// target there (spec.md assumes a POSIX shared-memory filesystem), but
// this stub keeps the package buildable.
func syscallUmask(mask int) int {
	return 0
}
