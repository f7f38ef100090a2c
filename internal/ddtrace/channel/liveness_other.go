//go:build !linux

package channel

// RefCount has no portable implementation outside Linux's /proc
// enumeration; other platforms always report "can't tell".
func RefCount(path string) (int, error) {
	return 0, errUnsupportedPlatform
}

// IsLive always reports live outside Linux: without a refcount probe,
// the safe default per spec.md §7 is to never unlink.
func IsLive(path string) bool {
	return true
}
