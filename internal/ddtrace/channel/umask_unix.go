//go:build !windows

package channel

import "golang.org/x/sys/unix"

func syscallUmask(mask int) int {
	return unix.Umask(mask)
}
