//go:build linux || freebsd

package dirty

import "golang.org/x/sys/unix"

// syncFile flushes file data; metadata other than the size is left to the
// kernel. full has no stronger variant here.
func syncFile(fd uintptr, _ bool) error {
	return unix.Fdatasync(int(fd))
}
